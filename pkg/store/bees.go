package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hive/pkg/hive"
)

const beeColumns = `name, status, current_task_id, workload_score, performance_score,
	capabilities, last_heartbeat, updated_at`

// UpsertBee writes the agent's live fields in one statement. Capabilities
// and performance are preserved across upserts; they have their own
// setters.
func (s *Store) UpsertBee(ctx context.Context, name string, status hive.BeeStatus, currentTaskID string, workload float64) error {
	if name == "" {
		return &hive.ValidationError{Field: "name", Value: name, Reason: "must not be empty"}
	}
	if !status.Valid() {
		return &hive.ValidationError{Field: "status", Value: string(status), Reason: "unknown bee status"}
	}
	now := s.fmtNow()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bee_states (name, status, current_task_id, workload_score, last_heartbeat, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			status = excluded.status,
			current_task_id = excluded.current_task_id,
			workload_score = excluded.workload_score,
			last_heartbeat = excluded.last_heartbeat,
			updated_at = excluded.updated_at`,
		name, string(status), currentTaskID, clampScore(workload), now, now)
	if err != nil {
		return &hive.PersistenceError{Op: "upsert bee", Err: err}
	}
	return nil
}

// SetStatus changes only the status.
func (s *Store) SetStatus(ctx context.Context, name string, status hive.BeeStatus) error {
	if !status.Valid() {
		return &hive.ValidationError{Field: "status", Value: string(status), Reason: "unknown bee status"}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE bee_states SET status = ?, updated_at = ? WHERE name = ?`,
		string(status), s.fmtNow(), name)
	if err != nil {
		return &hive.PersistenceError{Op: "set bee status", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &hive.NotFoundError{Kind: "bee", ID: name}
	}
	return nil
}

// SetCapabilities replaces the agent's capability set, stored as a JSON
// array.
func (s *Store) SetCapabilities(ctx context.Context, name string, caps []string) error {
	if caps == nil {
		caps = []string{}
	}
	blob, err := json.Marshal(caps)
	if err != nil {
		return &hive.PersistenceError{Op: "encode capabilities", Err: err}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE bee_states SET capabilities = ?, updated_at = ? WHERE name = ?`,
		string(blob), s.fmtNow(), name)
	if err != nil {
		return &hive.PersistenceError{Op: "set capabilities", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &hive.NotFoundError{Kind: "bee", ID: name}
	}
	return nil
}

// SetPerformance writes the performance score, clamped to [0,100].
func (s *Store) SetPerformance(ctx context.Context, name string, score float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bee_states SET performance_score = ?, updated_at = ? WHERE name = ?`,
		clampScore(score), s.fmtNow(), name)
	if err != nil {
		return &hive.PersistenceError{Op: "set performance", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &hive.NotFoundError{Kind: "bee", ID: name}
	}
	return nil
}

// Bee returns one agent row.
func (s *Store) Bee(ctx context.Context, name string) (hive.BeeState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+beeColumns+` FROM bee_states WHERE name = ?`, name)
	b, err := scanBee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return hive.BeeState{}, &hive.NotFoundError{Kind: "bee", ID: name}
	}
	if err != nil {
		return hive.BeeState{}, &hive.PersistenceError{Op: "load bee", Err: err}
	}
	return b, nil
}

// Bees returns rows for the given names in the order given. With no names
// it returns every row ordered by name. Missing names are skipped so the
// caller's order is the selection order.
func (s *Store) Bees(ctx context.Context, names ...string) ([]hive.BeeState, error) {
	if len(names) == 0 {
		return s.queryBees(ctx, `SELECT `+beeColumns+` FROM bee_states ORDER BY name ASC`)
	}
	out := make([]hive.BeeState, 0, len(names))
	for _, name := range names {
		b, err := s.Bee(ctx, name)
		if hive.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Heartbeat refreshes last_heartbeat only.
func (s *Store) Heartbeat(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bee_states SET last_heartbeat = ? WHERE name = ?`,
		s.fmtNow(), name)
	if err != nil {
		return &hive.PersistenceError{Op: "heartbeat", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &hive.NotFoundError{Kind: "bee", ID: name}
	}
	return nil
}

// StaleBees returns non-offline agents whose last heartbeat is older than
// cutoff.
func (s *Store) StaleBees(ctx context.Context, cutoff time.Time) ([]hive.BeeState, error) {
	return s.queryBees(ctx,
		`SELECT `+beeColumns+` FROM bee_states
		WHERE status != 'offline' AND last_heartbeat < ?
		ORDER BY name ASC`, fmtTime(cutoff))
}

func (s *Store) queryBees(ctx context.Context, query string, args ...any) ([]hive.BeeState, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "query bees", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []hive.BeeState
	for rows.Next() {
		b, err := scanBee(rows)
		if err != nil {
			return nil, &hive.PersistenceError{Op: "scan bee", Err: err}
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, &hive.PersistenceError{Op: "iterate bees", Err: err}
	}
	return out, nil
}

func scanBee(sc scanner) (hive.BeeState, error) {
	var b hive.BeeState
	var status, caps, heartbeat, updated string
	err := sc.Scan(&b.Name, &status, &b.CurrentTaskID, &b.WorkloadScore,
		&b.PerformanceScore, &caps, &heartbeat, &updated)
	if err != nil {
		return hive.BeeState{}, err
	}
	b.Status = hive.BeeStatus(status)
	if caps != "" {
		if err := json.Unmarshal([]byte(caps), &b.Capabilities); err != nil {
			return hive.BeeState{}, fmt.Errorf("decode capabilities for %s: %w", b.Name, err)
		}
	}
	if b.LastHeartbeat, err = parseTime(heartbeat); err != nil {
		return hive.BeeState{}, err
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return hive.BeeState{}, err
	}
	return b, nil
}
