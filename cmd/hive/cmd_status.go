package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"hive/pkg/hive"
	"hive/pkg/queen"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// newStatusCmd creates the "hive status" subcommand.
func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show colony status: tasks, bees, compliance",
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

			q := queen.New(cfg, st, st, st, st, newChannel(cfg, st))
			report, err := q.ReviewProgress(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			r := termRenderer{pretty: isatty.IsTerminal(os.Stdout.Fd())}
			renderStatus(w, report, r, cfg.ComplianceThresholdPct, cfg.HeartbeatInterval, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the raw progress report as JSON")

	return cmd
}

// termRenderer colors output when attached to a terminal and degrades to
// plain text otherwise.
type termRenderer struct {
	pretty bool
}

func (r termRenderer) header(s string) string {
	if r.pretty {
		return color.CyanString(s)
	}
	return s
}

func (r termRenderer) good(s string) string {
	if r.pretty {
		return color.GreenString(s)
	}
	return s
}

func (r termRenderer) bad(s string) string {
	if r.pretty {
		return color.RedString(s)
	}
	return s
}

func (r termRenderer) dim(s string) string {
	if r.pretty {
		return color.HiBlackString(s)
	}
	return s
}

// renderStatus writes the human-readable colony report. A bee is shown as
// stale once its heartbeat is older than three intervals, matching the
// scheduler's own cutoff.
func renderStatus(w io.Writer, rep queen.ProgressReport, r termRenderer, thresholdPct float64, heartbeat time.Duration, now time.Time) {
	sep := strings.Repeat("─", 60)
	fmt.Fprintln(w, r.dim(sep))
	fmt.Fprintf(w, "%s  %s\n", r.header("hive status"), r.dim(rep.GeneratedAt.Format(time.RFC3339)))
	fmt.Fprintln(w, r.dim(sep))

	fmt.Fprintln(w, r.header("tasks"))
	if len(rep.Tasks) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, sc := range rep.Tasks {
		line := fmt.Sprintf("  %-12s %4d", sc.Status, sc.Count)
		if sc.AvgHours > 0 {
			line += fmt.Sprintf("   avg %.1fh", sc.AvgHours)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "  unassigned %d, overdue %d\n", rep.Unassigned, rep.Overdue)

	fmt.Fprintln(w, r.header("bees"))
	if len(rep.Bees) == 0 {
		fmt.Fprintln(w, "  none registered")
	} else {
		fmt.Fprintf(w, "  %-15s %-10s %-38s %-9s %-6s %s\n",
			"NAME", "STATUS", "TASK", "WORKLOAD", "PERF", "HEARTBEAT")
		for _, b := range rep.Bees {
			beat := heartbeatBadge(r, now.Sub(b.LastHeartbeat), heartbeat, b.Status)
			fmt.Fprintf(w, "  %-15s %-10s %-38s %-9.1f %-6.1f %s\n",
				b.Name, b.Status, orDash(b.CurrentTaskID), b.WorkloadScore, b.PerformanceScore, beat)
		}
	}

	fmt.Fprintln(w, r.header("compliance"))
	rate := fmt.Sprintf("%.1f%%", rep.Compliance.RatePct)
	if rep.Compliance.Total == 0 {
		rate = "n/a"
	} else if rep.Compliance.RatePct >= thresholdPct {
		rate = r.good(rate)
	} else {
		rate = r.bad(rate)
	}
	fmt.Fprintf(w, "  %s of last %d messages, %d conversations\n",
		rate, rep.Compliance.Total, rep.Compliance.Conversations)
}

// heartbeatBadge renders heartbeat age with the same staleness cutoff the
// scheduler applies: three missed intervals.
func heartbeatBadge(r termRenderer, age, interval time.Duration, status hive.BeeStatus) string {
	if status == hive.BeeOffline {
		return r.dim("offline")
	}
	if interval > 0 && age > 3*interval {
		return r.bad(fmt.Sprintf("stale %s", age.Round(time.Second)))
	}
	return r.good(fmt.Sprintf("%s ago", age.Round(time.Second)))
}
