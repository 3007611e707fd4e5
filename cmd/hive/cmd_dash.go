package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// newDashCmd creates the "hive dash" subcommand.
func newDashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Launch interactive dashboard",
		Long:  "Opens the hive dashboard TUI for monitoring tasks, bees, and channel traffic.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isatty.IsTerminal(os.Stdout.Fd()) {
				return fmt.Errorf("dash needs a terminal; use hive-dash -snapshot for scripts")
			}

			dashCmd := exec.CommandContext(cmd.Context(), "hive-dash")
			dashCmd.Stdin = os.Stdin
			dashCmd.Stdout = os.Stdout
			dashCmd.Stderr = os.Stderr

			if err := dashCmd.Run(); err != nil {
				return fmt.Errorf("run hive-dash: %w", err)
			}

			return nil
		},
	}
}
