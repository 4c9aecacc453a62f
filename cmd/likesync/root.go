package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds the global flags
type rootOptions struct {
	ConfigPath string
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "likesync",
		Short: "Like toggles buffered in Redis, reconciled into the system of record",
		Long: `likesync serves like toggles from a Redis write buffer and moves the
buffered state into the relational system of record in the background.

Example:
  likesync worker --config ./likesync.yaml
  likesync toggle --config ./likesync.yaml --user u1 --tweet t9`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "likesync.yaml", "path to the YAML configuration")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override logger.level from the configuration")

	cmd.AddCommand(newWorkerCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newToggleCommand(opts))
	cmd.AddCommand(newParkedCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newRelayCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}
