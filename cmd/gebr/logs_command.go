package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"gebr/internal/ipc"
	"gebr/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Logs(ipc.LogsRequest{Tail: true, Limit: lines})
				if err != nil {
					return err
				}
				if err := printLogEvents(cmd, ctx.jsonOutput(), resp.Events); err != nil {
					return err
				}
				next := resp.Next
				for follow {
					if err := cmd.Context().Err(); err != nil {
						return nil
					}
					resp, err := client.Logs(ipc.LogsRequest{Since: next, Follow: true, WaitMillis: 5000})
					if err != nil {
						return err
					}
					if err := printLogEvents(cmd, ctx.jsonOutput(), resp.Events); err != nil {
						return err
					}
					next = resp.Next
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent events to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events")
	return cmd
}

func printLogEvents(cmd *cobra.Command, asJSON bool, events []logging.LogEvent) error {
	for _, evt := range events {
		if asJSON {
			if err := writeJSONLine(cmd, evt); err != nil {
				return err
			}
			continue
		}
		writeLogEvent(cmd.OutOrStdout(), evt)
	}
	return nil
}

func writeLogEvent(out io.Writer, evt logging.LogEvent) {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format("2006-01-02 15:04:05"))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%-5s", strings.ToUpper(evt.Level)))
	if evt.Component != "" {
		b.WriteString(" [" + evt.Component + "]")
	}
	for _, tag := range [][2]string{{"job", evt.JobID}, {"queue", evt.Queue}, {"batch", evt.BatchID}} {
		if tag[1] != "" {
			b.WriteString(" " + tag[0] + "=" + tag[1])
		}
	}
	b.WriteString(" " + evt.Message)
	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString(" " + key + "=" + evt.Fields[key])
	}
	fmt.Fprintln(out, b.String())
}
