// Package pgstore implements the hive storage interfaces on PostgreSQL
// through a pgx connection pool. Semantics match pkg/store exactly:
// every mutation is one conditional statement, first writer wins, and the
// loser receives a ConflictError. Timestamps are stored as timestamptz
// truncated to microseconds so values round-trip unchanged.
package pgstore

import (
	"context"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"hive/pkg/hive"
	"hive/pkg/store"
)

// Store implements hive.TaskStore, hive.BeeRegistry, hive.MessageBus,
// hive.EventLog, and hive.DeliveryLog on a PostgreSQL pool.
type Store struct {
	pool   *pgxpool.Pool
	now    func() time.Time // injectable for tests
	limits store.Limits
}

// Compile-time interface checks.
var (
	_ hive.TaskStore   = (*Store)(nil)
	_ hive.BeeRegistry = (*Store)(nil)
	_ hive.MessageBus  = (*Store)(nil)
	_ hive.EventLog    = (*Store)(nil)
	_ hive.DeliveryLog = (*Store)(nil)
)

// New wraps pool with default limits. The caller owns the pool and is
// responsible for EnsureSchema and Close.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now, limits: store.DefaultLimits()}
}

// NewWithLimits wraps pool with explicit validation ceilings.
func NewWithLimits(pool *pgxpool.Pool, limits store.Limits) *Store {
	s := New(pool)
	if limits.MaxTitleLength > 0 {
		s.limits.MaxTitleLength = limits.MaxTitleLength
	}
	if limits.MaxDescriptionLength > 0 {
		s.limits.MaxDescriptionLength = limits.MaxDescriptionLength
	}
	if limits.MaxEstimatedHours > 0 {
		s.limits.MaxEstimatedHours = limits.MaxEstimatedHours
	}
	return s
}

// Connect opens a pool for dsn and verifies the server is reachable.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "open postgres pool", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &hive.PersistenceError{Op: "ping postgres", Err: err}
	}
	return pool, nil
}

// stamp returns the current UTC time at the precision timestamptz keeps.
func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// scanner covers both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
