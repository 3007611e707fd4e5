package store

import (
	"context"
	"fmt"

	"hive/pkg/hive"
)

// LogEvent records one runtime lifecycle event. Callers on daemon paths
// discard the returned error.
func (s *Store) LogEvent(ctx context.Context, evType, source, taskID, bee, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (type, source, task_id, bee, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		evType, source, taskID, bee, payload, s.fmtNow())
	if err != nil {
		return &hive.PersistenceError{Op: "log event", Err: err}
	}
	return nil
}

// Events returns recent events, newest first, optionally filtered by bee.
func (s *Store) Events(ctx context.Context, bee string, limit int) ([]hive.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, type, source, task_id, bee, payload, created_at FROM events`
	var args []any
	if bee != "" {
		query += ` WHERE bee = ?`
		args = append(args, bee)
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "query events", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []hive.Event
	for rows.Next() {
		var e hive.Event
		var created string
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &e.TaskID, &e.Bee, &e.Payload, &created); err != nil {
			return nil, &hive.PersistenceError{Op: "scan event", Err: err}
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, &hive.PersistenceError{Op: "scan event", Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &hive.PersistenceError{Op: "iterate events", Err: err}
	}
	return out, nil
}
