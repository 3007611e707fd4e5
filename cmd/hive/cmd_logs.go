package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"hive/pkg/hive"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	tail       int
	follow     bool
	bee        string
	target     string
	deliveries bool
	messages   bool
	task       string
	format     string
}

// newLogsCmd creates the "hive logs" subcommand.
func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query and tail colony logs",
		Long: "Displays runtime events from the event log. --deliveries switches to\n" +
			"terminal channel delivery attempts, --messages to recent bus traffic,\n" +
			"and --task to one task's activity trail.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.format != "table" && cfg.format != "json" {
				return &hive.ValidationError{Field: "format", Value: cfg.format, Reason: "must be table or json"}
			}
			if cfg.format == "json" && cfg.follow {
				return &hive.ValidationError{Field: "format", Value: cfg.format, Reason: "json output does not support --follow"}
			}
			appCfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openBackend(cmd.Context(), appCfg)
			if err != nil {
				return err
			}
			defer closeStore()

			w := cmd.OutOrStdout()

			if cfg.format == "json" {
				return printJSON(cmd.Context(), st, w, cfg)
			}
			if cfg.task != "" {
				return printActivity(cmd.Context(), st, w, cfg.task, cfg.tail)
			}

			r := termRenderer{pretty: isatty.IsTerminal(os.Stdout.Fd())}
			view := newLogView(st, cfg, r)
			if cfg.follow {
				return followView(cmd.Context(), w, view, cfg.tail)
			}
			return printView(cmd.Context(), w, view, cfg.tail)
		},
	}

	cmd.Flags().IntVar(&cfg.tail, "limit", 20, "number of recent rows to show")
	cmd.Flags().BoolVarP(&cfg.follow, "follow", "f", false, "poll for new rows every 1s")
	cmd.Flags().StringVar(&cfg.bee, "bee", "", "filter events by bee")
	cmd.Flags().StringVar(&cfg.target, "target", "", "filter deliveries by window target")
	cmd.Flags().BoolVar(&cfg.deliveries, "deliveries", false, "show delivery attempts instead of events")
	cmd.Flags().BoolVar(&cfg.messages, "messages", false, "show recent bus traffic instead of events")
	cmd.Flags().StringVar(&cfg.task, "task", "", "show one task's activity trail")
	cmd.Flags().StringVar(&cfg.format, "format", "table", "output format: table or json")

	return cmd
}

// printJSON emits the selected log slice as indented JSON, newest first.
func printJSON(ctx context.Context, st backend, w io.Writer, cfg logsConfig) error {
	var v any
	var err error
	switch {
	case cfg.task != "":
		v, err = st.Activity(ctx, cfg.task, cfg.tail)
	case cfg.deliveries:
		v, err = st.Deliveries(ctx, cfg.target, cfg.tail)
	case cfg.messages:
		v, err = st.Recent(ctx, cfg.tail)
	default:
		v, err = st.Events(ctx, cfg.bee, cfg.tail)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// logView is a pollable slice of one log table: fetch returns recent rows
// newest first, each carrying a monotonically increasing ID.
type logView interface {
	fetch(ctx context.Context, limit int) ([]logRow, error)
}

// logRow is one formatted line plus the watermark ID used by follow mode.
type logRow struct {
	id   int64
	line string
}

func newLogView(st backend, cfg logsConfig, r termRenderer) logView {
	switch {
	case cfg.deliveries:
		return deliveryView{st: st, target: cfg.target, r: r}
	case cfg.messages:
		return messageView{st: st, r: r}
	default:
		return eventView{st: st, bee: cfg.bee}
	}
}

type eventView struct {
	st  backend
	bee string
}

func (v eventView) fetch(ctx context.Context, limit int) ([]logRow, error) {
	events, err := v.st.Events(ctx, v.bee, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]logRow, 0, len(events))
	for _, e := range events {
		rows = append(rows, logRow{
			id: e.ID,
			line: fmt.Sprintf("%s | %-15s | %-20s | %-36s | %s",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Bee, e.Type, orDash(e.TaskID), e.Payload),
		})
	}
	return rows, nil
}

type deliveryView struct {
	st     backend
	target string
	r      termRenderer
}

func (v deliveryView) fetch(ctx context.Context, limit int) ([]logRow, error) {
	entries, err := v.st.Deliveries(ctx, v.target, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]logRow, 0, len(entries))
	for _, e := range entries {
		outcome := v.r.good("ok")
		if !e.Success {
			outcome = v.r.bad("FAIL " + e.Error)
		}
		rows = append(rows, logRow{
			id: e.ID,
			line: fmt.Sprintf("%s | %-20s | %-7d | %s",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Target, len(e.Payload), outcome),
		})
	}
	return rows, nil
}

type messageView struct {
	st backend
	r  termRenderer
}

func (v messageView) fetch(ctx context.Context, limit int) ([]logRow, error) {
	msgs, err := v.st.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]logRow, 0, len(msgs))
	for _, m := range msgs {
		compliant := ""
		if !m.ChannelCompliant {
			compliant = v.r.bad(" [VIOLATION]")
		}
		rows = append(rows, logRow{
			id: m.ID,
			line: fmt.Sprintf("%s | %-12s -> %-12s | %-12s | %s%s",
				m.CreatedAt.Format("2006-01-02 15:04:05"), m.From, m.To, m.Type, m.Subject, compliant),
		})
	}
	return rows, nil
}

// printView displays the last N rows in chronological order.
func printView(ctx context.Context, w io.Writer, view logView, tail int) error {
	rows, err := view.fetch(ctx, tail)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no rows found")
		return nil
	}
	for i := len(rows) - 1; i >= 0; i-- {
		fmt.Fprintln(w, rows[i].line)
	}
	return nil
}

// followView prints the initial batch, then polls every second and prints
// rows whose ID is above the watermark.
func followView(ctx context.Context, w io.Writer, view logView, tail int) error {
	rows, err := view.fetch(ctx, tail)
	if err != nil {
		return err
	}
	var lastID int64
	for i := len(rows) - 1; i >= 0; i-- {
		fmt.Fprintln(w, rows[i].line)
		if rows[i].id > lastID {
			lastID = rows[i].id
		}
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rows, err := view.fetch(ctx, 100)
			if err != nil {
				return err
			}
			for i := len(rows) - 1; i >= 0; i-- {
				if rows[i].id <= lastID {
					continue
				}
				fmt.Fprintln(w, rows[i].line)
				lastID = rows[i].id
			}
		}
	}
}

// printActivity displays one task's activity trail, oldest first.
func printActivity(ctx context.Context, st hive.TaskStore, w io.Writer, taskID string, tail int) error {
	entries, err := st.Activity(ctx, taskID, tail)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no activity found")
		return nil
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(w, "%s | %-15s | %-15s | %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Actor, e.Type, e.Description)
	}
	return nil
}
