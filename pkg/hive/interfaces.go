package hive

import (
	"context"
	"time"
)

// TaskStore is the durable record of tasks and their lifecycle — the single
// source of truth for status. Implementations must wrap every mutation in
// one atomic statement or transaction: concurrent writers race on
// conditional updates and the loser receives a ConflictError.
type TaskStore interface {
	// CreateTask validates spec, assigns a UUID, and inserts the row.
	CreateTask(ctx context.Context, spec TaskSpec) (Task, error)

	// Task returns the task by ID, or a NotFoundError.
	Task(ctx context.Context, id string) (Task, error)

	// UpdateTaskStatus enforces the state machine and appends a
	// status_update activity entry. The losing side of a concurrent
	// transition receives a ConflictError.
	UpdateTaskStatus(ctx context.Context, id string, status TaskStatus, note, actor string) error

	// AssignTask writes assigned_to for a still-pending task, records an
	// assignment row, and appends an assigned activity entry. First
	// writer wins; losers receive a ConflictError.
	AssignTask(ctx context.Context, id, bee, actor, reason string) error

	// RecordActuals sets actual_hours exactly once. A second call
	// returns a ConflictError.
	RecordActuals(ctx context.Context, id string, hours float64) error

	// ListUnassigned returns pending, unassigned tasks ordered by
	// priority desc, created_at asc.
	ListUnassigned(ctx context.Context) ([]Task, error)

	// Children returns the direct subtasks of parentID.
	Children(ctx context.Context, parentID string) ([]Task, error)

	// TasksByBee returns tasks assigned to bee, optionally filtered by
	// status.
	TasksByBee(ctx context.Context, bee string, statuses ...TaskStatus) ([]Task, error)

	// Tasks returns tasks filtered by status (empty = all), ordered by
	// priority desc, created_at asc.
	Tasks(ctx context.Context, status TaskStatus, limit int) ([]Task, error)

	// TaskStatusStats returns per-status counts with average actual
	// hours.
	TaskStatusStats(ctx context.Context) ([]StatusCount, error)

	// LogActivity appends to the task activity trail. metadata is an
	// optional JSON blob.
	LogActivity(ctx context.Context, taskID, actor, activityType, description, metadata string) error

	// Activity returns recent activity entries, newest first, optionally
	// filtered by task.
	Activity(ctx context.Context, taskID string, limit int) ([]ActivityEntry, error)
}

// BeeRegistry is the durable record of each agent's status, scores,
// capabilities, and heartbeat.
type BeeRegistry interface {
	// UpsertBee writes the agent's status, current task, and workload in
	// one statement, refreshing last_heartbeat. Scores are clamped to
	// [0,100].
	UpsertBee(ctx context.Context, name string, status BeeStatus, currentTaskID string, workload float64) error

	// SetStatus changes only the status, leaving scores untouched.
	SetStatus(ctx context.Context, name string, status BeeStatus) error

	// SetCapabilities replaces the agent's capability set.
	SetCapabilities(ctx context.Context, name string, caps []string) error

	// SetPerformance writes the performance score, clamped to [0,100].
	SetPerformance(ctx context.Context, name string, score float64) error

	// Bee returns one agent row, or a NotFoundError.
	Bee(ctx context.Context, name string) (BeeState, error)

	// Bees returns rows for the given names in the order given — the
	// assignment tie-break contract. Missing names are skipped.
	Bees(ctx context.Context, names ...string) ([]BeeState, error)

	// Heartbeat refreshes last_heartbeat only.
	Heartbeat(ctx context.Context, name string) error

	// StaleBees returns non-offline agents whose last heartbeat is older
	// than cutoff.
	StaleBees(ctx context.Context, cutoff time.Time) ([]BeeState, error)
}

// MessageBus is the durable, ordered inbox per agent — the sole
// coordination channel between agents. Enqueue never delivers; the
// Terminal Channel is invoked by the caller after enqueue.
type MessageBus interface {
	// Enqueue persists the message, assigning a conversation ID when the
	// envelope has none, and returns the stored row.
	Enqueue(ctx context.Context, env Envelope) (Message, error)

	// Inbox returns messages for a recipient with the given processed
	// flag, ordered priority desc, created_at asc.
	Inbox(ctx context.Context, to string, processed bool) ([]Message, error)

	// MarkProcessed sets processed and processed_at. Idempotent: a
	// second call leaves processed_at unchanged.
	MarkProcessed(ctx context.Context, id int64) error

	// History returns messages matching the filter, newest first.
	History(ctx context.Context, f HistoryFilter) ([]Message, error)

	// Violations returns messages with channel_compliant = false where
	// neither endpoint is gateway, with id > afterID, newest first,
	// capped at limit.
	Violations(ctx context.Context, gateway string, afterID int64, limit int) ([]Message, error)

	// Recent returns the newest messages up to limit, newest first.
	Recent(ctx context.Context, limit int) ([]Message, error)

	// ComplianceStats summarizes compliance over the last window
	// messages.
	ComplianceStats(ctx context.Context, window int) (ComplianceStats, error)
}

// EventLog records runtime lifecycle events from the daemon loops.
// Errors on the logging path are discarded by callers.
type EventLog interface {
	LogEvent(ctx context.Context, evType, source, taskID, bee, payload string) error

	// Events returns recent events, newest first, optionally filtered by
	// bee.
	Events(ctx context.Context, bee string, limit int) ([]Event, error)
}

// DeliveryLog records every Terminal Channel delivery attempt.
type DeliveryLog interface {
	AppendDelivery(ctx context.Context, e DeliveryEntry) error

	// Deliveries returns recent attempts, newest first, optionally
	// filtered by target.
	Deliveries(ctx context.Context, target string, limit int) ([]DeliveryEntry, error)
}
