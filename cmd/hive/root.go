package main

import (
	"fmt"

	"hive/internal/version"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root hive command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hive",
		Short:         "Hive multi-agent task orchestrator",
		Long:          "hive is the single entry point for the hive colony.\nIt manages tasks, the bee registry, and the coordination channel.",
		Version:       fmt.Sprintf("hive %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().StringVar(&dbOverride, "db", "", "database path (overrides config and HIVE_DB_PATH)")

	cmd.AddCommand(
		newInitCmd(),
		newSessionCmd(),
		newSendCmd(),
		newTaskCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newQueenCmd(),
		newWorkerCmd(),
		newMonitorCmd(),
		newDashCmd(),
	)

	return cmd
}
