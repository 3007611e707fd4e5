package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"hive/pkg/hive"
	"hive/pkg/queen"

	"github.com/spf13/cobra"
)

// newTaskCmd creates the "hive task" subcommand group.
func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, inspect, and manage tasks",
	}

	cmd.AddCommand(
		newTaskCreateCmd(),
		newTaskListCmd(),
		newTaskShowCmd(),
		newTaskAssignCmd(),
		newTaskCancelCmd(),
		newTaskDecomposeCmd(),
	)

	return cmd
}

func newTaskCreateCmd() *cobra.Command {
	var (
		desc     string
		priority string
		estimate float64
		parent   string
		due      string
		by       string
	)

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			spec := hive.TaskSpec{
				Title:          args[0],
				Description:    desc,
				Priority:       hive.Priority(priority),
				EstimatedHours: estimate,
				ParentID:       parent,
				CreatedBy:      by,
			}
			if spec.CreatedBy == "" {
				spec.CreatedBy = cfg.GatewayName
			}
			if due != "" {
				d, err := time.Parse(time.RFC3339, due)
				if err != nil {
					return fmt.Errorf("parse --due: %w", err)
				}
				spec.DueDate = &d
			}

			t, err := st.CreateTask(cmd.Context(), spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s created (%s, %s)\n", t.ID, t.Priority, t.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&desc, "desc", "", "task description")
	cmd.Flags().StringVar(&priority, "priority", "medium", "priority: low, medium, high, critical")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "estimated hours")
	cmd.Flags().StringVar(&parent, "parent", "", "parent task ID")
	cmd.Flags().StringVar(&due, "due", "", "due date, RFC 3339 (e.g. 2026-09-01T17:00:00Z)")
	cmd.Flags().StringVar(&by, "by", "", "creator identity (default: the gateway)")

	return cmd
}

func newTaskListCmd() *cobra.Command {
	var (
		status     string
		bee        string
		limit      int
		unassigned bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			var tasks []hive.Task
			switch {
			case unassigned:
				tasks, err = st.ListUnassigned(cmd.Context())
			case bee != "":
				tasks, err = st.TasksByBee(cmd.Context(), bee)
			default:
				tasks, err = st.Tasks(cmd.Context(), hive.TaskStatus(status), limit)
			}
			if err != nil {
				return err
			}

			printTaskTable(cmd.OutOrStdout(), tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status: pending, in_progress, completed, failed, cancelled")
	cmd.Flags().StringVar(&bee, "bee", "", "tasks assigned to this bee")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().BoolVar(&unassigned, "unassigned", false, "only the unassigned backlog")

	return cmd
}

func newTaskShowCmd() *cobra.Command {
	var activityLimit int

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task with its recent activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			return runTaskShow(cmd.Context(), cmd.OutOrStdout(), st, args[0], activityLimit)
		},
	}

	cmd.Flags().IntVar(&activityLimit, "activity", 10, "activity rows to show")

	return cmd
}

func runTaskShow(ctx context.Context, w io.Writer, st backend, id string, activityLimit int) error {
	t, err := st.Task(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "id          %s\n", t.ID)
	fmt.Fprintf(w, "title       %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(w, "description %s\n", t.Description)
	}
	fmt.Fprintf(w, "status      %s\n", t.Status)
	fmt.Fprintf(w, "priority    %s\n", t.Priority)
	fmt.Fprintf(w, "assigned    %s\n", orDash(t.AssignedTo))
	fmt.Fprintf(w, "parent      %s\n", orDash(t.ParentID))
	fmt.Fprintf(w, "created by  %s at %s\n", t.CreatedBy, t.CreatedAt.Format(time.RFC3339))
	if t.EstimatedHours > 0 {
		fmt.Fprintf(w, "estimate    %.1fh\n", t.EstimatedHours)
	}
	if t.ActualHours != nil {
		fmt.Fprintf(w, "actual      %.1fh\n", *t.ActualHours)
	}
	if t.DueDate != nil {
		fmt.Fprintf(w, "due         %s\n", t.DueDate.Format(time.RFC3339))
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(w, "completed   %s\n", t.CompletedAt.Format(time.RFC3339))
	}

	children, err := st.Children(ctx, t.ID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		fmt.Fprintln(w, "subtasks")
		for _, c := range children {
			fmt.Fprintf(w, "  %-36s  %-12s  %s\n", c.ID, c.Status, c.Title)
		}
	}

	entries, err := st.Activity(ctx, t.ID, activityLimit)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		fmt.Fprintln(w, "activity")
		for _, e := range entries {
			fmt.Fprintf(w, "  %s  %-12s  %-15s  %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Type, e.Actor, e.Description)
		}
	}

	return nil
}

func newTaskAssignCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "assign <id> <bee>",
		Short: "Assign a pending task to a bee",
		Long:  "Runs the scheduler's assignment path: capacity and workload checks,\nthen the conditional claim and an assignment notice to the bee.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ch := newChannel(cfg, st)
			q := queen.New(cfg, st, st, st, st, ch)
			if err := q.Assign(cmd.Context(), args[0], args[1], reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s assigned to %s\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "note recorded on the assignment")
	return cmd
}

func newTaskCancelCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := st.UpdateTaskStatus(cmd.Context(), args[0], hive.StatusCancelled, reason, cfg.GatewayName); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s cancelled\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "cancellation note for the activity log")

	return cmd
}

func newTaskDecomposeCmd() *cobra.Command {
	var (
		priority string
		estimate float64
	)

	cmd := &cobra.Command{
		Use:   "decompose <parent-id> <subtask-title>...",
		Short: "Split a task into subtasks",
		Long:  "Creates one subtask per title under the parent. Subtasks are created\nall-or-nothing: any invalid title rolls back the batch.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			specs := make([]hive.SubtaskSpec, 0, len(args)-1)
			for _, title := range args[1:] {
				specs = append(specs, hive.SubtaskSpec{
					Title:          title,
					Priority:       hive.Priority(priority),
					EstimatedHours: estimate,
				})
			}

			ch := newChannel(cfg, st)
			q := queen.New(cfg, st, st, st, st, ch)
			children, err := q.Decompose(cmd.Context(), args[0], specs)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, c := range children {
				fmt.Fprintf(w, "subtask %s  %s\n", c.ID, c.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&priority, "priority", "", "priority for every subtask (default: medium)")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "estimated hours for every subtask")

	return cmd
}

// printTaskTable renders tasks in fixed-width columns.
func printTaskTable(w io.Writer, tasks []hive.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "no tasks found")
		return
	}
	fmt.Fprintf(w, "%-36s  %-12s  %-8s  %-12s  %s\n", "ID", "STATUS", "PRIORITY", "ASSIGNED", "TITLE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%-36s  %-12s  %-8s  %-12s  %s\n",
			t.ID, t.Status, t.Priority, orDash(t.AssignedTo), t.Title)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
