package main

import (
	"context"
	"database/sql"
	"fmt"

	"hive/pkg/channel"
	"hive/pkg/config"
	"hive/pkg/hive"
	"hive/pkg/store"
	"hive/pkg/store/pgstore"

	_ "modernc.org/sqlite"
)

// backend bundles the storage interfaces the subcommands wire. Both the
// SQLite store and the Postgres store satisfy it.
type backend interface {
	hive.TaskStore
	hive.BeeRegistry
	hive.MessageBus
	hive.EventLog
	hive.DeliveryLog
}

// openDB opens a SQLite database at path and enforces production-safe
// defaults: WAL journal mode and a 5-second busy timeout. It also calls
// db.PingContext to verify the connection is usable before returning.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	return db, nil
}

// openBackend opens the store named by cfg.Backend with the schema applied.
// The returned closer releases the underlying handle.
func openBackend(ctx context.Context, cfg config.Config) (backend, func(), error) {
	limits := store.Limits{
		MaxTitleLength:       cfg.MaxTitleLength,
		MaxDescriptionLength: cfg.MaxDescriptionLength,
		MaxEstimatedHours:    cfg.MaxEstimatedHours,
	}

	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		st := pgstore.NewWithLimits(pool, limits)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply postgres schema: %w", err)
		}
		return st, pool.Close, nil
	case config.BackendSQLite, "":
		db, err := openDB(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		st := store.NewWithLimits(db, limits)
		if err := st.ApplySchema(); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
		return st, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// dbOverride is the --db flag value; it outranks both the config file and
// HIVE_DB_PATH.
var dbOverride string

// loadConfig resolves the state paths, loads the config file, and fills in
// the database path default. A missing config file is not an error.
func loadConfig() (config.Config, *Paths, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("resolve paths: %w", err)
	}
	cfg, err := config.Load(paths.ConfigPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = paths.DBPath
	}
	if dbOverride != "" {
		cfg.DBPath = dbOverride
	}
	return cfg, paths, nil
}

// newChannel builds the tmux delivery channel from cfg, recording every
// attempt in the delivery log.
func newChannel(cfg config.Config, log channel.DeliveryLogger) *channel.Tmux {
	t := channel.NewTmux(cfg.SessionName)
	t.Log = log
	t.ChunkSize = cfg.ChunkSize
	t.MaxRetries = cfg.MaxRetries
	t.RetryDelay = cfg.RetryDelay
	return t
}
