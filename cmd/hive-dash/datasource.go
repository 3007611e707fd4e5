package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// complianceWindow is how many recent messages the compliance gauge covers.
// Matches the monitor daemon's default audit window.
const complianceWindow = 100

// TaskRow is the slice of a task the board renders.
type TaskRow struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	AssignedTo string `json:"assigned_to"`
}

// BeeRow is the slice of a bee the table renders.
type BeeRow struct {
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	TaskID        string    `json:"task_id"`
	Workload      float64   `json:"workload"`
	Performance   float64   `json:"performance"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// ComplianceStats counts channel-compliant messages inside the audit window.
type ComplianceStats struct {
	Total     int `json:"total"`
	Compliant int `json:"compliant"`
}

// resolveDBPath returns the colony database path from env or default.
// Mirrors the hive CLI resolution: HIVE_DB_PATH wins, then HIVE_HOME/hive.db,
// then ~/.hive/hive.db.
func resolveDBPath() string {
	if v := os.Getenv("HIVE_DB_PATH"); v != "" {
		return v
	}
	home := os.Getenv("HIVE_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		home = filepath.Join(userHome, ".hive")
	}
	return filepath.Join(home, "hive.db")
}

// FetchTasks reads every task from the colony database at dbPath, highest
// priority first so the board shows urgent work at the top of each column.
//
// Error cases:
//   - dbPath does not exist or is not a valid sqlite DB → returns error
//   - SQL query error → returns error
func FetchTasks(dbPath string) ([]TaskRow, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open colony db %s: %w", dbPath, err)
	}
	defer db.Close() //nolint:errcheck // best-effort close on read-only query path

	ctx := context.Background()

	// Verify the database is reachable (catches missing file / bad path).
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping colony db %s: %w", dbPath, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, title, status, priority, assigned_to
		FROM   tasks
		ORDER  BY priority_rank DESC, created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close() //nolint:errcheck // best-effort close after full iteration

	var tasks []TaskRow
	for rows.Next() {
		var t TaskRow
		if err := rows.Scan(&t.ID, &t.Title, &t.Status, &t.Priority, &t.AssignedTo); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	if tasks == nil {
		tasks = []TaskRow{}
	}

	return tasks, nil
}

// FetchBees reads every registered bee from the colony database at dbPath.
func FetchBees(dbPath string) ([]BeeRow, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open colony db %s: %w", dbPath, err)
	}
	defer db.Close() //nolint:errcheck // best-effort close on read-only query path

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping colony db %s: %w", dbPath, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT name, status, current_task_id, workload_score, performance_score, last_heartbeat
		FROM   bee_states
		ORDER  BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query bee states: %w", err)
	}
	defer rows.Close() //nolint:errcheck // best-effort close after full iteration

	var bees []BeeRow
	for rows.Next() {
		var (
			b         BeeRow
			heartbeat string
		)
		if err := rows.Scan(&b.Name, &b.Status, &b.TaskID, &b.Workload, &b.Performance, &heartbeat); err != nil {
			return nil, fmt.Errorf("scan bee row: %w", err)
		}
		b.LastHeartbeat = parseHeartbeat(heartbeat)
		bees = append(bees, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bee states: %w", err)
	}

	if bees == nil {
		bees = []BeeRow{}
	}

	return bees, nil
}

// FetchCompliance counts compliant messages among the newest window rows.
func FetchCompliance(dbPath string, window int) (ComplianceStats, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return ComplianceStats{}, fmt.Errorf("open colony db %s: %w", dbPath, err)
	}
	defer db.Close() //nolint:errcheck // best-effort close on read-only query path

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		return ComplianceStats{}, fmt.Errorf("ping colony db %s: %w", dbPath, err)
	}

	var stats ComplianceStats
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(channel_compliant), 0)
		FROM   (SELECT channel_compliant FROM messages ORDER BY id DESC LIMIT ?)
	`, window).Scan(&stats.Total, &stats.Compliant)
	if err != nil {
		return ComplianceStats{}, fmt.Errorf("query compliance window: %w", err)
	}

	return stats, nil
}

// parseHeartbeat parses a stored heartbeat timestamp. The store writes
// microsecond precision; older rows may carry second precision or RFC3339.
// An unparseable value comes back zero, which renders as stale.
func parseHeartbeat(v string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05.000000", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
