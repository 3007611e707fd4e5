package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"hive/pkg/monitor"

	"github.com/spf13/cobra"
)

// newMonitorCmd creates the "hive monitor" subcommand.
func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run the compliance monitor daemon",
		Long: "Audits the message bus on an interval: flags channel violations,\n" +
			"alerts the queen when the compliance rate drops below the threshold,\n" +
			"and records periodic compliance snapshots in the event log.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd.Context())
		},
	}
}

func runMonitor(ctx context.Context) error {
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

	m := monitor.New(cfg, st, st, newChannel(cfg, st))
	if err := m.Run(ctx); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
