package pgstore

import (
	"context"
	"fmt"
	"time"

	"hive/pkg/hive"
)

// AppendDelivery records one Terminal Channel delivery attempt.
func (s *Store) AppendDelivery(ctx context.Context, e hive.DeliveryEntry) error {
	when := e.CreatedAt
	if when.IsZero() {
		when = s.now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO delivery_log (target, payload, success, error, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.Target, e.Payload, e.Success, e.Error, when.UTC().Truncate(time.Microsecond))
	if err != nil {
		return &hive.PersistenceError{Op: "append delivery", Err: err}
	}
	return nil
}

// Deliveries returns recent attempts, newest first, optionally filtered by
// target.
func (s *Store) Deliveries(ctx context.Context, target string, limit int) ([]hive.DeliveryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, target, payload, success, error, created_at FROM delivery_log`
	var args []any
	if target != "" {
		query += ` WHERE target = $1`
		args = append(args, target)
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "query deliveries", Err: err}
	}
	defer rows.Close()

	var out []hive.DeliveryEntry
	for rows.Next() {
		var e hive.DeliveryEntry
		if err := rows.Scan(&e.ID, &e.Target, &e.Payload, &e.Success, &e.Error, &e.CreatedAt); err != nil {
			return nil, &hive.PersistenceError{Op: "scan delivery", Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &hive.PersistenceError{Op: "iterate deliveries", Err: err}
	}
	return out, nil
}
