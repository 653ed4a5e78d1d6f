package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gebr/internal/ipc"
	"gebr/internal/job"
	"gebr/internal/notify"
)

const (
	waitPollMillis = 1000
	waitPollLimit  = 256
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var req ipc.RunRequest
	var wait bool

	cmd := &cobra.Command{
		Use:   "run <flow.yaml|->",
		Short: "Submit a flow to a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFlow(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			req.Flow = string(data)
			if strings.TrimSpace(req.Hostname) == "" {
				req.Hostname, _ = os.Hostname()
			}
			if strings.TrimSpace(req.Display) == "" {
				req.Display = os.Getenv("DISPLAY")
			}

			return ctx.withClient(func(client *ipc.Client) error {
				var subscription string
				if wait {
					id, err := client.Subscribe(req.Hostname)
					if err != nil {
						return err
					}
					subscription = id
					defer func() { _ = client.Unsubscribe(subscription) }()
				}

				resp, err := client.Run(req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !wait {
					if ctx.jsonOutput() {
						return writeJSON(cmd, resp.Job)
					}
					fmt.Fprintf(out, "Submitted job %s to queue %s\n", resp.Job.ID, resp.Job.Queue)
					for _, issue := range resp.Job.Issues {
						fmt.Fprintf(out, "  issue: %s\n", issue)
					}
					return nil
				}
				if terminalToken(resp.Job.Status) {
					return jobResult(resp.Job.ID, resp.Job.Status)
				}
				return followJob(cmd, client, subscription, resp.Job.ID)
			})
		},
	}

	cmd.Flags().StringVarP(&req.Queue, "queue", "q", "", "Queue to run in (default from config)")
	cmd.Flags().StringVar(&req.Account, "account", "", "Batch accounting string")
	cmd.Flags().IntVarP(&req.NProcs, "nprocs", "n", 0, "Process count for MPI programs")
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "Client correlation id echoed on notifications")
	cmd.Flags().StringVar(&req.Hostname, "hostname", "", "Requesting host (default: this host)")
	cmd.Flags().StringVar(&req.Display, "display", "", "X display for graphical programs (default: $DISPLAY)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Stream output and wait for the job to finish")
	return cmd
}

func readFlow(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read flow from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow: %w", err)
	}
	return data, nil
}

// followJob prints a job's output until it reaches a terminal status.
func followJob(cmd *cobra.Command, client *ipc.Client, subscription, jobID string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	for {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		resp, err := client.Poll(ipc.PollRequest{ClientID: subscription, Limit: waitPollLimit, WaitMillis: waitPollMillis})
		if err != nil {
			return err
		}
		for _, msg := range resp.Messages {
			if msg.JobID != jobID {
				continue
			}
			switch msg.Kind {
			case notify.KindOutput:
				fmt.Fprint(out, msg.Chunk)
			case notify.KindStatus:
				if msg.Status == string(job.NotifyIssued) {
					fmt.Fprintf(errOut, "issue: %s\n", msg.Parameter)
					continue
				}
				if terminalToken(msg.Status) {
					return jobResult(jobID, msg.Status)
				}
			}
		}
		if resp.Closed {
			return errors.New("daemon closed the subscription before the job finished")
		}
	}
}

func jobResult(jobID, token string) error {
	if token == string(job.StatusFinished) {
		return nil
	}
	return fmt.Errorf("job %s %s", jobID, token)
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List jobs known to the daemon",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.List()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Jobs)
				}
				renderJobList(cmd.OutOrStdout(), resp.Jobs)
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job with its issues and output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Show(args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Job)
				}
				renderJobDetail(cmd.OutOrStdout(), resp.Job)
				return nil
			})
		},
	}
}

func newJobActionCommands(ctx *commandContext) []*cobra.Command {
	actions := []struct {
		use   string
		short string
		done  string
		call  func(*ipc.Client, string) error
	}{
		{"clear", "Forget finished jobs or cancel queued ones", "Cleared", (*ipc.Client).Clear},
		{"end", "Terminate jobs gracefully", "End requested for", (*ipc.Client).End},
		{"kill", "Kill jobs immediately", "Kill requested for", (*ipc.Client).Kill},
	}
	cmds := make([]*cobra.Command, 0, len(actions))
	for _, action := range actions {
		cmds = append(cmds, &cobra.Command{
			Use:   action.use + " <id>...",
			Short: action.short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withClient(func(client *ipc.Client) error {
					var errs []error
					for _, id := range args {
						if err := action.call(client, id); err != nil {
							errs = append(errs, fmt.Errorf("%s %s: %w", action.use, id, err))
							continue
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%s job %s\n", action.done, id)
					}
					return errors.Join(errs...)
				})
			},
		})
	}
	return cmds
}
