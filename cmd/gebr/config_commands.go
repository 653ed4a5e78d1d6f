package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gebr/internal/config"
)

var skipConfigLoad = map[string]string{"skipConfigLoad": "true"}

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the gebr configuration file",
	}
	configCmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var target string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Args:        cobra.NoArgs,
		Annotations: skipConfigLoad,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sampleTarget(target)
			if err != nil {
				return err
			}
			if _, statErr := os.Stat(path); statErr == nil && !overwrite {
				return fmt.Errorf("%s already exists; pass --overwrite to replace it", path)
			} else if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
				return fmt.Errorf("check config path: %w", statErr)
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Add [mpi-<flavor>] sections or enable [batch] as needed, then run `gebr daemon start`.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "path", "p", "", "Destination (default ~/.config/gebr/config.toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func sampleTarget(flagValue string) (string, error) {
	if path := strings.TrimSpace(flagValue); path != "" {
		return config.ExpandPath(path)
	}
	return config.DefaultConfigPath()
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and print the effective settings",
		Args:        cobra.NoArgs,
		Annotations: skipConfigLoad,
		RunE: func(cmd *cobra.Command, args []string) error {
			flagPath, _ := cmd.Flags().GetString("config")
			cfg, resolved, exists, err := config.Load(strings.TrimSpace(flagPath))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			source := resolved
			if !exists {
				source += " (not found, defaults used)"
			}
			mode := "local"
			if cfg.Batch.Enabled {
				mode = "batch via " + cfg.Batch.SubmitCommand
			}
			flavors := strings.Join(cfg.MPIFlavors(), ", ")
			if flavors == "" {
				flavors = "none"
			}
			for _, kv := range [][2]string{
				{"Config path", source},
				{"Socket", cfg.Paths.SocketPath},
				{"Log directory", cfg.Paths.LogDir},
				{"Execution", mode},
				{"Reserved queues", strings.Join(cfg.Scheduler.ReservedQueues, ", ")},
				{"MPI flavors", flavors},
			} {
				fmt.Fprintf(out, "%-16s %s\n", kv[0]+":", kv[1])
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
