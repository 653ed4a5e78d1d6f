package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gebr/internal/daemonctl"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start, stop or restart gebrd",
	}

	var logLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start gebrd in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := daemonController(ctx, logLevel).Start()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop gebrd, killing it if it does not exit in time",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := daemonController(ctx, "").Stop()
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			printStopResult(cmd, result)
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart gebrd",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := daemonController(ctx, logLevel).Restart()
			if err != nil {
				return err
			}
			if result.WasRunning {
				printStopResult(cmd, result.Stop)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon restarted (pid %d)\n", result.Start.PID)
			return nil
		},
	}

	for _, c := range []*cobra.Command{startCmd, restartCmd} {
		c.Flags().StringVar(&logLevel, "log-level", "", "Log level for the launched daemon")
	}
	daemonCmd.AddCommand(startCmd, stopCmd, restartCmd)
	return daemonCmd
}

func daemonController(ctx *commandContext, level string) *daemonctl.Controller {
	ctl := daemonctl.NewController(ctx.configValue(), daemonctl.LaunchOptions{
		ConfigPath: ctx.configPath(),
		LogLevel:   strings.TrimSpace(level),
	})
	ctl.SocketPath = ctx.socketPath()
	return ctl
}

func printStopResult(cmd *cobra.Command, result daemonctl.StopResult) {
	stdout := cmd.OutOrStdout()
	if result.ForcedKill {
		fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.PID)
		return
	}
	fmt.Fprintln(stdout, "Daemon stopped")
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and job status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := daemonctl.BuildStatusSnapshot(ctx.configValue(), ctx.socketPath())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, snapshot)
			}

			p := newStatusPrinter(cmd.OutOrStdout())
			p.section("System Status")
			for _, line := range snapshot.SystemChecks {
				p.line(line.Label, line.Severity, line.Detail)
			}
			fmt.Fprintln(p.out)

			p.section("Dependencies")
			for _, line := range dependencyLines(snapshot.Status.Dependencies, snapshot.DependencySummary, p.color) {
				fmt.Fprintln(p.out, line)
			}
			if !snapshot.Status.Running {
				return nil
			}

			fmt.Fprintln(p.out)
			p.section("Jobs")
			fmt.Fprintf(p.out, "%s%d jobs in %d queues, %d clients connected\n", statusIndent,
				snapshot.Status.Jobs, snapshot.Status.Queues, snapshot.Status.Clients)
			if rows := countRows(snapshot.Status.Counts); len(rows) > 0 {
				cols := columns("Status", "Count")
				cols[1].numeric = true
				fmt.Fprintln(p.out, renderTable(cols, rows))
			}
			return nil
		},
	}
}
