package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"gebr/internal/ipc"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var jobFilter string
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream job notifications from the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hostname, _ := os.Hostname()
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := client.Subscribe(hostname)
				if err != nil {
					return err
				}
				defer func() { _ = client.Unsubscribe(id) }()

				var deadline time.Time
				if duration > 0 {
					deadline = time.Now().Add(duration)
				}
				out := cmd.OutOrStdout()
				for deadline.IsZero() || time.Now().Before(deadline) {
					if err := cmd.Context().Err(); err != nil {
						return nil
					}
					resp, err := client.Poll(ipc.PollRequest{ClientID: id, Limit: waitPollLimit, WaitMillis: waitPollMillis})
					if err != nil {
						return err
					}
					for _, msg := range resp.Messages {
						if jobFilter != "" && msg.JobID != jobFilter {
							continue
						}
						if ctx.jsonOutput() {
							if err := writeJSONLine(cmd, msg); err != nil {
								return err
							}
							continue
						}
						fmt.Fprint(out, formatMessage(msg))
					}
					if resp.Closed {
						return errors.New("daemon closed the subscription")
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&jobFilter, "job", "", "Only show notifications for this job")
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop watching after this long (default: until interrupted)")
	return cmd
}
