package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"hive/pkg/hive"
	"hive/pkg/worker"

	"github.com/spf13/cobra"
)

// newWorkerCmd creates the "hive worker" subcommand.
func newWorkerCmd() *cobra.Command {
	var specialty string

	cmd := &cobra.Command{
		Use:   "worker <name>",
		Short: "Run a worker bee daemon",
		Long: "Registers the named bee, heartbeats, and works its inbox: accepting\n" +
			"assignments, reporting progress, and completing tasks. The role is\n" +
			"derived from the name (qa, analyst, otherwise developer) unless\n" +
			"--specialty overrides it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := worker.RoleFor(args[0])
			if specialty != "" {
				r, ok := worker.RoleNamed(specialty)
				if !ok {
					return &hive.ValidationError{Field: "specialty", Value: specialty, Reason: "must be developer, qa, or analyst"}
				}
				role = r
			}
			return runWorkerDaemon(cmd.Context(), args[0], role)
		},
	}
	cmd.Flags().StringVar(&specialty, "specialty", "", "role override: developer, qa, or analyst")
	return cmd
}

func runWorkerDaemon(ctx context.Context, name string, role worker.Role) error {
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
	a := worker.New(name, role, cfg, st, st, st, st, ch)

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("worker %s: %w", name, err)
	}
	return nil
}
