// Package store implements the hive storage interfaces on SQLite. One
// *sql.DB is shared by every component in the process; concurrency control
// is conditional single-statement writes, so first writer wins and the
// loser sees a ConflictError. Timestamps are stored as UTC text with
// microsecond precision so lexical order is chronological order.
package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"hive/pkg/hive"
)

// timeLayout is the stored timestamp format. Microseconds keep rows written
// in the same second ordered.
const timeLayout = "2006-01-02 15:04:05.000000"

// Limits bounds caller-supplied task fields at the validation boundary.
type Limits struct {
	MaxTitleLength       int
	MaxDescriptionLength int
	MaxEstimatedHours    float64
}

// DefaultLimits returns the standard validation ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxTitleLength:       200,
		MaxDescriptionLength: 10000,
		MaxEstimatedHours:    1000,
	}
}

// Store implements hive.TaskStore, hive.BeeRegistry, hive.MessageBus,
// hive.EventLog, and hive.DeliveryLog on a SQLite database.
type Store struct {
	db     *sql.DB
	now    func() time.Time // injectable for tests
	limits Limits
}

// Compile-time interface checks.
var (
	_ hive.TaskStore   = (*Store)(nil)
	_ hive.BeeRegistry = (*Store)(nil)
	_ hive.MessageBus  = (*Store)(nil)
	_ hive.EventLog    = (*Store)(nil)
	_ hive.DeliveryLog = (*Store)(nil)
)

// New wraps db with default limits. The caller owns the database handle
// and is responsible for ApplySchema and Close.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now, limits: DefaultLimits()}
}

// NewWithLimits wraps db with explicit validation ceilings.
func NewWithLimits(db *sql.DB, limits Limits) *Store {
	s := New(db)
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

// ApplySchema creates the tables and runs the additive migrations. Safe to
// call on every startup.
func (s *Store) ApplySchema() error {
	if _, err := s.db.Exec(hive.SchemaDDL); err != nil {
		return &hive.PersistenceError{Op: "apply schema", Err: err}
	}
	// Pre-existing databases may lack later columns. ALTER fails when the
	// column exists; ignore it.
	_, _ = s.db.Exec(hive.MigrateDueDate)
	return nil
}

// DB exposes the underlying handle for read-only surfaces (dash, logs).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) fmtNow() string {
	return s.now().UTC().Format(timeLayout)
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the stored layout plus the second-precision and
// RFC3339 forms older rows may carry.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
