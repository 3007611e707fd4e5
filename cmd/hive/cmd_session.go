package main

import (
	"fmt"
	"io"

	"hive/pkg/channel"
	"hive/pkg/config"

	"github.com/spf13/cobra"
)

// newSessionCmd creates the "hive session" subcommand group.
func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the tmux session the colony runs in",
	}

	cmd.AddCommand(newSessionUpCmd(), newSessionDownCmd())

	return cmd
}

func newSessionUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create the colony session with one window per bee",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			return runSessionUp(cmd.OutOrStdout(), cfg, newChannel(cfg, nil))
		},
	}
}

func newSessionDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Kill the colony session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			return runSessionDown(cmd.OutOrStdout(), cfg, newChannel(cfg, nil))
		},
	}
}

func runSessionUp(w io.Writer, cfg config.Config, ch *channel.Tmux) error {
	if ch.Exists() {
		fmt.Fprintf(w, "session %s already running\n", cfg.SessionName)
		return nil
	}
	windows := append([]string{cfg.QueenName}, cfg.AgentNames...)
	if err := ch.EnsureSession(windows); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	fmt.Fprintf(w, "session %s up (%d windows)\n", cfg.SessionName, len(windows))
	return nil
}

func runSessionDown(w io.Writer, cfg config.Config, ch *channel.Tmux) error {
	if !ch.Exists() {
		fmt.Fprintf(w, "session %s not running\n", cfg.SessionName)
		return nil
	}
	if err := ch.Kill(); err != nil {
		return err
	}
	fmt.Fprintf(w, "session %s down\n", cfg.SessionName)
	return nil
}
