package store //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore opens a file-backed SQLite database under t.TempDir with
// the schema applied and a deterministic clock that advances one
// millisecond per call.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hive.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	if err := s.ApplySchema(); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return s
}

func TestApplySchemaIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.ApplySchema(); err != nil {
		t.Fatalf("second ApplySchema: %v", err)
	}
}

func TestParseTimeAcceptedLayouts(t *testing.T) {
	t.Parallel()
	for _, v := range []string{
		"2025-06-01 12:00:00.000123",
		"2025-06-01 12:00:00",
		"2025-06-01T12:00:00Z",
	} {
		if _, err := parseTime(v); err != nil {
			t.Errorf("parseTime(%q) = %v, want nil", v, err)
		}
	}
	if _, err := parseTime("not a time"); err == nil {
		t.Error("parseTime(garbage) = nil, want error")
	}
}

func TestClampScore(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want float64
	}{
		{-5, 0},
		{0, 0},
		{42.5, 42.5},
		{100, 100},
		{250, 100},
	}
	for _, tt := range tests {
		if got := clampScore(tt.in); got != tt.want {
			t.Errorf("clampScore(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
