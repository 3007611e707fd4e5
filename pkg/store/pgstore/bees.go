package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

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
	now := s.stamp()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bee_states (name, status, current_task_id, workload_score, last_heartbeat, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
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
	tag, err := s.pool.Exec(ctx,
		`UPDATE bee_states SET status = $1, updated_at = $2 WHERE name = $3`,
		string(status), s.stamp(), name)
	if err != nil {
		return &hive.PersistenceError{Op: "set bee status", Err: err}
	}
	if tag.RowsAffected() == 0 {
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
	tag, err := s.pool.Exec(ctx,
		`UPDATE bee_states SET capabilities = $1::jsonb, updated_at = $2 WHERE name = $3`,
		string(blob), s.stamp(), name)
	if err != nil {
		return &hive.PersistenceError{Op: "set capabilities", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &hive.NotFoundError{Kind: "bee", ID: name}
	}
	return nil
}

// SetPerformance writes the performance score, clamped to [0,100].
func (s *Store) SetPerformance(ctx context.Context, name string, score float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bee_states SET performance_score = $1, updated_at = $2 WHERE name = $3`,
		clampScore(score), s.stamp(), name)
	if err != nil {
		return &hive.PersistenceError{Op: "set performance", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &hive.NotFoundError{Kind: "bee", ID: name}
	}
	return nil
}

// Bee returns one agent row.
func (s *Store) Bee(ctx context.Context, name string) (hive.BeeState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+beeColumns+` FROM bee_states WHERE name = $1`, name)
	b, err := scanBee(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := s.pool.Exec(ctx,
		`UPDATE bee_states SET last_heartbeat = $1 WHERE name = $2`,
		s.stamp(), name)
	if err != nil {
		return &hive.PersistenceError{Op: "heartbeat", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &hive.NotFoundError{Kind: "bee", ID: name}
	}
	return nil
}

// StaleBees returns non-offline agents whose last heartbeat is older than
// cutoff.
func (s *Store) StaleBees(ctx context.Context, cutoff time.Time) ([]hive.BeeState, error) {
	return s.queryBees(ctx,
		`SELECT `+beeColumns+` FROM bee_states
		WHERE status <> 'offline' AND last_heartbeat < $1
		ORDER BY name ASC`, cutoff.UTC())
}

func (s *Store) queryBees(ctx context.Context, query string, args ...any) ([]hive.BeeState, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "query bees", Err: err}
	}
	defer rows.Close()

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
	var status string
	var caps []byte
	err := sc.Scan(&b.Name, &status, &b.CurrentTaskID, &b.WorkloadScore,
		&b.PerformanceScore, &caps, &b.LastHeartbeat, &b.UpdatedAt)
	if err != nil {
		return hive.BeeState{}, err
	}
	b.Status = hive.BeeStatus(status)
	if len(caps) > 0 {
		if err := json.Unmarshal(caps, &b.Capabilities); err != nil {
			return hive.BeeState{}, fmt.Errorf("decode capabilities for %s: %w", b.Name, err)
		}
	}
	return b, nil
}
