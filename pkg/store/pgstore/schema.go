package pgstore

import (
	"context"

	"hive/pkg/hive"
)

// schemaStatements is the PostgreSQL rendering of the hive schema. Same
// tables, columns, and ordering contracts as hive.SchemaDDL; native types
// where SQLite stores text and integers. Statements run one at a time so
// the pool's prepared-statement protocol is never asked to batch DDL.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		priority TEXT NOT NULL DEFAULT 'medium',
		priority_rank INTEGER NOT NULL DEFAULT 20,
		assigned_to TEXT NOT NULL DEFAULT '',
		parent_id TEXT NOT NULL DEFAULT '',
		estimated_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
		actual_hours DOUBLE PRECISION,
		created_by TEXT NOT NULL DEFAULT '',
		due_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS task_assignments (
		id BIGSERIAL PRIMARY KEY,
		task_id TEXT NOT NULL,
		assigned_to TEXT NOT NULL,
		assigned_by TEXT NOT NULL,
		assignment_type TEXT NOT NULL DEFAULT 'primary',
		notes TEXT NOT NULL DEFAULT '',
		assigned_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS task_activity (
		id BIGSERIAL PRIMARY KEY,
		task_id TEXT NOT NULL,
		actor TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bee_states (
		name TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'idle',
		current_task_id TEXT NOT NULL DEFAULT '',
		workload_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		performance_score DOUBLE PRECISION NOT NULL DEFAULT 100,
		capabilities JSONB NOT NULL DEFAULT '[]',
		last_heartbeat TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		from_bee TEXT NOT NULL,
		to_bee TEXT NOT NULL,
		type TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'normal',
		priority_rank INTEGER NOT NULL DEFAULT 20,
		task_id TEXT NOT NULL DEFAULT '',
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		processed_at TIMESTAMPTZ,
		conversation_id TEXT NOT NULL,
		channel_compliant BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS delivery_log (
		id BIGSERIAL PRIMARY KEY,
		target TEXT NOT NULL,
		payload TEXT NOT NULL,
		success BOOLEAN NOT NULL DEFAULT TRUE,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		type TEXT NOT NULL,
		source TEXT NOT NULL,
		task_id TEXT NOT NULL DEFAULT '',
		bee TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to ON tasks(assigned_to)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_task ON task_activity(task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_inbox ON messages(to_bee, processed)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_target ON delivery_log(target)`,
	`CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at)`,
}

// EnsureSchema creates the tables and indexes. Safe to call on every
// startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return &hive.PersistenceError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}
