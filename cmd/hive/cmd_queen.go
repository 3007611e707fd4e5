package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"hive/pkg/config"
	"hive/pkg/queen"

	"github.com/spf13/cobra"
)

// newQueenCmd creates the "hive queen" subcommand.
func newQueenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queen",
		Short: "Run the queen scheduler daemon",
		Long: "The queen sweeps the unassigned backlog, drains her inbox, and marks\n" +
			"bees offline when their heartbeats go stale. Runs until SIGTERM/SIGINT.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQueen(cmd.Context())
		},
	}
}

func runQueen(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	st, closeStore, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ch := newChannel(cfg, st)
	q := queen.New(cfg, st, st, st, st, ch)
	if cfg.Backend != config.BackendPostgres {
		// Wake the sweep on database writes instead of waiting out the
		// poll interval. SQLite writes touch files in the DB directory.
		q.SetWatchDir(filepath.Dir(cfg.DBPath))
	}

	if err := q.Run(ctx); err != nil {
		return fmt.Errorf("queen: %w", err)
	}
	return nil
}
