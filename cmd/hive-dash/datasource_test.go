package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"hive/pkg/hive"
	"hive/pkg/store"
)

// seedColony creates a colony database under a temp dir, applies the schema,
// and returns its path plus a store handle for seeding rows.
func seedColony(t *testing.T) (string, *store.Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "hive.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st := store.New(db)
	if err := st.ApplySchema(); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return path, st
}

// TestFetchTasks verifies that FetchTasks returns seeded tasks ordered
// highest priority first.
func TestFetchTasks(t *testing.T) {
	path, st := seedColony(t)
	ctx := context.Background()

	if _, err := st.CreateTask(ctx, hive.TaskSpec{Title: "Tidy the docs", Priority: hive.PriorityLow, CreatedBy: "beekeeper"}); err != nil {
		t.Fatalf("create low task: %v", err)
	}
	critical, err := st.CreateTask(ctx, hive.TaskSpec{Title: "Fix prod outage", Priority: hive.PriorityCritical, CreatedBy: "beekeeper"})
	if err != nil {
		t.Fatalf("create critical task: %v", err)
	}

	tasks, err := FetchTasks(path)
	if err != nil {
		t.Fatalf("FetchTasks() error = %v", err)
	}

	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != critical.ID {
		t.Errorf("tasks[0].ID = %q, want critical task %q first", tasks[0].ID, critical.ID)
	}
	if tasks[0].Title != "Fix prod outage" {
		t.Errorf("tasks[0].Title = %q, want %q", tasks[0].Title, "Fix prod outage")
	}
	if tasks[0].Status != "pending" {
		t.Errorf("tasks[0].Status = %q, want %q", tasks[0].Status, "pending")
	}
	if tasks[0].AssignedTo != "" {
		t.Errorf("tasks[0].AssignedTo = %q, want empty", tasks[0].AssignedTo)
	}
}

// TestFetchTasks_EmptyDB verifies an empty, non-nil slice for a colony with
// no tasks yet.
func TestFetchTasks_EmptyDB(t *testing.T) {
	path, _ := seedColony(t)

	tasks, err := FetchTasks(path)
	if err != nil {
		t.Fatalf("FetchTasks() error = %v", err)
	}
	if tasks == nil {
		t.Fatal("FetchTasks() returned nil, want empty slice")
	}
	if len(tasks) != 0 {
		t.Errorf("expected 0 tasks, got %d", len(tasks))
	}
}

// TestFetchTasks_MissingDB verifies an error when the database path cannot
// be opened. The driver creates missing files, so the failure mode is a
// missing parent directory.
func TestFetchTasks_MissingDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "hive.db")

	if _, err := FetchTasks(path); err == nil {
		t.Fatal("FetchTasks() with unreachable path should error")
	}
}

// TestFetchBees verifies that FetchBees returns seeded bee states with a
// parsed heartbeat.
func TestFetchBees(t *testing.T) {
	path, st := seedColony(t)
	ctx := context.Background()

	if err := st.UpsertBee(ctx, "developer", hive.BeeBusy, "task-1", 33); err != nil {
		t.Fatalf("upsert developer: %v", err)
	}
	if err := st.UpsertBee(ctx, "qa", hive.BeeIdle, "", 0); err != nil {
		t.Fatalf("upsert qa: %v", err)
	}

	bees, err := FetchBees(path)
	if err != nil {
		t.Fatalf("FetchBees() error = %v", err)
	}

	if len(bees) != 2 {
		t.Fatalf("expected 2 bees, got %d", len(bees))
	}
	// Rows come back ordered by name.
	if bees[0].Name != "developer" || bees[1].Name != "qa" {
		t.Errorf("bee order = %q, %q, want developer, qa", bees[0].Name, bees[1].Name)
	}
	if bees[0].Status != "busy" {
		t.Errorf("developer status = %q, want %q", bees[0].Status, "busy")
	}
	if bees[0].TaskID != "task-1" {
		t.Errorf("developer task = %q, want %q", bees[0].TaskID, "task-1")
	}
	if bees[0].Workload != 33 {
		t.Errorf("developer workload = %v, want 33", bees[0].Workload)
	}
	if bees[0].LastHeartbeat.IsZero() {
		t.Error("developer heartbeat did not parse")
	}
	if age := time.Since(bees[0].LastHeartbeat); age > time.Minute {
		t.Errorf("developer heartbeat age = %v, want under a minute", age)
	}
}

// TestFetchCompliance verifies the counts over the newest window rows.
func TestFetchCompliance(t *testing.T) {
	path, st := seedColony(t)
	ctx := context.Background()

	envs := []hive.Envelope{
		{From: "queen", To: "developer", Type: hive.MsgInstruction, Content: "start the parser", ChannelCompliant: true},
		{From: "developer", To: "queen", Type: hive.MsgTaskUpdate, Content: "parser at 50%", ChannelCompliant: true},
		{From: "qa", To: "developer", Type: hive.MsgConversation, Content: "psst, skip the bus", ChannelCompliant: false},
	}
	for _, env := range envs {
		if _, err := st.Enqueue(ctx, env); err != nil {
			t.Fatalf("enqueue %q: %v", env.Content, err)
		}
	}

	stats, err := FetchCompliance(path, 100)
	if err != nil {
		t.Fatalf("FetchCompliance() error = %v", err)
	}
	if stats.Total != 3 || stats.Compliant != 2 {
		t.Errorf("stats = %+v, want Total 3, Compliant 2", stats)
	}

	// A narrow window covers only the newest rows.
	narrow, err := FetchCompliance(path, 2)
	if err != nil {
		t.Fatalf("FetchCompliance(window=2) error = %v", err)
	}
	if narrow.Total != 2 || narrow.Compliant != 1 {
		t.Errorf("narrow stats = %+v, want Total 2, Compliant 1", narrow)
	}
}

// TestParseHeartbeat verifies the accepted timestamp layouts and the zero
// fallback for garbage.
func TestParseHeartbeat(t *testing.T) {
	tests := []struct {
		in       string
		wantZero bool
	}{
		{"2025-07-01 12:00:00.000123", false},
		{"2025-07-01 12:00:00", false},
		{"2025-07-01T12:00:00Z", false},
		{"not a timestamp", true},
		{"", true},
	}

	for _, tt := range tests {
		got := parseHeartbeat(tt.in)
		if got.IsZero() != tt.wantZero {
			t.Errorf("parseHeartbeat(%q).IsZero() = %v, want %v", tt.in, got.IsZero(), tt.wantZero)
		}
	}
}
