package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gebr/internal/ipc"
)

func newQueuesCommand(ctx *commandContext) *cobra.Command {
	queuesCmd := &cobra.Command{
		Use:   "queues",
		Short: "List queues and their pending jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Queues()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Queues)
				}
				renderQueues(cmd.OutOrStdout(), resp.Queues)
				return nil
			})
		},
	}

	renameCmd := &cobra.Command{
		Use:   "rename <from> <to>",
		Short: "Rename a queue and relabel its jobs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.RenameQueue(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed queue %s to %s\n", args[0], args[1])
				return nil
			})
		},
	}
	queuesCmd.AddCommand(renameCmd)
	return queuesCmd
}
