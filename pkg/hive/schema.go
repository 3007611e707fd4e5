package hive

// SchemaDDL defines the SQLite schema for the hive runtime database.
// Tables: tasks, task_assignments, task_activity, bee_states, messages,
// delivery_log, events.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Units of work. Rows are never physically deleted; cancellation is a
-- terminal status. completed_at is non-null iff status is terminal.
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    priority TEXT NOT NULL DEFAULT 'medium',
    priority_rank INTEGER NOT NULL DEFAULT 20,
    assigned_to TEXT NOT NULL DEFAULT '',
    parent_id TEXT NOT NULL DEFAULT '',
    estimated_hours REAL NOT NULL DEFAULT 0,
    actual_hours REAL,
    created_by TEXT NOT NULL DEFAULT '',
    due_date TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    completed_at TEXT
);

-- Assignment history: one row per assign call, never updated.
CREATE TABLE IF NOT EXISTS task_assignments (
    id INTEGER PRIMARY KEY,
    task_id TEXT NOT NULL,
    assigned_to TEXT NOT NULL,
    assigned_by TEXT NOT NULL,
    assignment_type TEXT NOT NULL DEFAULT 'primary',
    notes TEXT NOT NULL DEFAULT '',
    assigned_at TEXT NOT NULL
);

-- Append-only activity trail per task. Business logic never reads this;
-- only the logs/status surfaces do.
CREATE TABLE IF NOT EXISTS task_activity (
    id INTEGER PRIMARY KEY,
    task_id TEXT NOT NULL,
    actor TEXT NOT NULL,
    activity_type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

-- One row per configured agent, upserted at bootstrap, never deleted.
CREATE TABLE IF NOT EXISTS bee_states (
    name TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'idle',
    current_task_id TEXT NOT NULL DEFAULT '',
    workload_score REAL NOT NULL DEFAULT 0,
    performance_score REAL NOT NULL DEFAULT 100,
    capabilities TEXT NOT NULL DEFAULT '[]',
    last_heartbeat TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- The coordination channel. Retained indefinitely as the audit log.
-- Inbox ordering contract: priority_rank DESC, created_at ASC, id ASC.
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY,
    from_bee TEXT NOT NULL,
    to_bee TEXT NOT NULL,
    type TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    priority TEXT NOT NULL DEFAULT 'normal',
    priority_rank INTEGER NOT NULL DEFAULT 20,
    task_id TEXT NOT NULL DEFAULT '',
    processed INTEGER NOT NULL DEFAULT 0,
    processed_at TEXT,
    conversation_id TEXT NOT NULL,
    channel_compliant INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL
);

-- Every Terminal Channel delivery attempt, success or failure.
CREATE TABLE IF NOT EXISTS delivery_log (
    id INTEGER PRIMARY KEY,
    target TEXT NOT NULL,
    payload TEXT NOT NULL,
    success INTEGER NOT NULL DEFAULT 1,
    error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

-- Runtime event log: queen/worker/monitor lifecycle events.
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    task_id TEXT NOT NULL DEFAULT '',
    bee TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to ON tasks(assigned_to);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_activity_task ON task_activity(task_id);
CREATE INDEX IF NOT EXISTS idx_messages_inbox ON messages(to_bee, processed);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_delivery_target ON delivery_log(target);
CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
`

// MigrateDueDate adds the due_date column to tasks tables created before
// it existed. ALTER TABLE errors when the column is already present;
// callers ignore the error (try/ignore pattern).
const MigrateDueDate = `
ALTER TABLE tasks ADD COLUMN due_date TEXT;
`
