package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hive/pkg/config"
	"hive/pkg/hive"

	_ "modernc.org/sqlite"
)

func TestOpenDB_PingSucceeds(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := openDB(dbPath)
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		t.Fatalf("db.Ping after openDB: %v", err)
	}
}

func TestOpenDB_WALModeEnabled(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := openDB(dbPath)
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	defer func() { _ = db.Close() }()

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected journal_mode=wal, got %q", journalMode)
	}
}

func TestOpenDB_BusyTimeoutSet(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := openDB(dbPath)
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	defer func() { _ = db.Close() }()

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("expected busy_timeout=5000, got %d", busyTimeout)
	}
}

func TestOpenBackend_SQLiteRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "hive.db")
	cfg = cfg.WithDefaults()

	st, closeStore, err := openBackend(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	defer closeStore()

	task, err := st.CreateTask(context.Background(), hive.TaskSpec{
		Title:     "Wire the backend",
		CreatedBy: "beekeeper",
	})
	if err != nil {
		t.Fatalf("CreateTask through backend: %v", err)
	}

	got, err := st.Task(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if got.Title != "Wire the backend" {
		t.Errorf("Title = %q, want %q", got.Title, "Wire the backend")
	}
}

func TestOpenBackend_LimitsPlumbedThrough(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "hive.db")
	cfg.MaxTitleLength = 10

	st, closeStore, err := openBackend(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	defer closeStore()

	_, err = st.CreateTask(context.Background(), hive.TaskSpec{
		Title:     "this title is longer than ten characters",
		CreatedBy: "beekeeper",
	})
	var verr *hive.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for long title, got %v", err)
	}
}

func TestOpenBackend_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "etcd"

	_, _, err := openBackend(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unknown backend") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestLoadConfigDBOverride(t *testing.T) {
	home := setupHive(t)

	// The flag outranks both the config file and HIVE_DB_PATH.
	t.Setenv("HIVE_DB_PATH", filepath.Join(home, "env.db"))
	dbOverride = filepath.Join(home, "flag.db")

	cfg, _, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.DBPath != dbOverride {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, dbOverride)
	}
}

func TestDBFlagRoutesCommands(t *testing.T) {
	home := setupHive(t)

	custom := filepath.Join(home, "elsewhere.db")
	mustExec(t, "--db", custom, "init")

	if _, err := os.Stat(custom); err != nil {
		t.Fatalf("database not created at --db path: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "hive.db")); !os.IsNotExist(err) {
		t.Errorf("default database created despite --db: %v", err)
	}
}
