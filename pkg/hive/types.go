// Package hive defines the shared protocol for the hive runtime: the
// persisted record types (Task, BeeState, Message), their enums, the SQLite
// schema, the error taxonomy, and the storage interfaces implemented by
// pkg/store and pkg/store/pgstore.
package hive

import "time"

// TaskStatus represents a task's lifecycle state.
type TaskStatus string

// Task status constants.
const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a final state. No transition leaves a
// terminal state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ValidateTransition checks the task state machine:
//
//	pending → in_progress → {completed | failed | cancelled}
//
// Any non-terminal state may move to cancelled. pending → pending is
// permitted (the re-assignment ready-state write), as is
// in_progress → in_progress (decompose marks an already-accepted parent).
// Every other same-state or backward write is rejected.
func ValidateTransition(current, next TaskStatus, operation string) error {
	if current.Terminal() {
		return &WorkflowStateError{
			CurrentState: string(current),
			Operation:    operation,
			Reason:       "no transition is permitted from a terminal state",
		}
	}
	switch current {
	case StatusPending:
		if next == StatusPending || next == StatusInProgress || next == StatusCancelled {
			return nil
		}
	case StatusInProgress:
		if next == StatusInProgress || next.Terminal() {
			return nil
		}
	}
	return &WorkflowStateError{
		CurrentState: string(current),
		Operation:    operation,
		Reason:       "illegal transition to " + string(next),
	}
}

// Priority represents a task's urgency.
type Priority string

// Task priority constants.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known task priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank returns the numeric ordering weight stored alongside the label so
// SQL `ORDER BY priority_rank DESC` implements the priority contract.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 40
	case PriorityHigh:
		return 30
	case PriorityMedium:
		return 20
	case PriorityLow:
		return 10
	}
	return 0
}

// BeeStatus represents an agent's runtime state.
type BeeStatus string

// Bee status constants.
const (
	BeeIdle        BeeStatus = "idle"
	BeeBusy        BeeStatus = "busy"
	BeeError       BeeStatus = "error"
	BeeOffline     BeeStatus = "offline"
	BeeMaintenance BeeStatus = "maintenance"
)

// Valid reports whether s is a known bee status.
func (s BeeStatus) Valid() bool {
	switch s {
	case BeeIdle, BeeBusy, BeeError, BeeOffline, BeeMaintenance:
		return true
	}
	return false
}

// MessageType classifies a coordination-channel message.
type MessageType string

// Message type constants.
const (
	MsgInstruction  MessageType = "instruction"
	MsgTaskUpdate   MessageType = "task_update"
	MsgRequest      MessageType = "request"
	MsgResponse     MessageType = "response"
	MsgAlert        MessageType = "alert"
	MsgConversation MessageType = "conversation"
	MsgNotification MessageType = "notification"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MsgInstruction, MsgTaskUpdate, MsgRequest, MsgResponse, MsgAlert, MsgConversation, MsgNotification:
		return true
	}
	return false
}

// MsgPriority represents a message's inbox ordering weight.
type MsgPriority string

// Message priority constants.
const (
	MsgLow    MsgPriority = "low"
	MsgNormal MsgPriority = "normal"
	MsgHigh   MsgPriority = "high"
	MsgUrgent MsgPriority = "urgent"
)

// Valid reports whether p is a known message priority.
func (p MsgPriority) Valid() bool {
	switch p {
	case MsgLow, MsgNormal, MsgHigh, MsgUrgent:
		return true
	}
	return false
}

// Rank returns the numeric ordering weight for `ORDER BY priority_rank DESC`.
func (p MsgPriority) Rank() int {
	switch p {
	case MsgUrgent:
		return 40
	case MsgHigh:
		return 30
	case MsgNormal:
		return 20
	case MsgLow:
		return 10
	}
	return 0
}

// Task represents a row in the tasks table: one unit of work.
// IDs are UUIDs, assigned at creation and never reused. ActualHours is set
// exactly once, at completion. CompletedAt is non-nil iff the status is
// terminal.
type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         TaskStatus `json:"status"`
	Priority       Priority   `json:"priority"`
	AssignedTo     string     `json:"assigned_to,omitempty"` // empty = unassigned
	ParentID       string     `json:"parent_id,omitempty"`   // empty = root task
	EstimatedHours float64    `json:"estimated_hours,omitempty"`
	ActualHours    *float64   `json:"actual_hours,omitempty"`
	CreatedBy      string     `json:"created_by"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Overdue reports whether the task has a due date in the past and is not
// yet in a terminal state.
func (t Task) Overdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && !t.Status.Terminal()
}

// TaskSpec carries the caller-supplied fields for CreateTask.
type TaskSpec struct {
	Title          string
	Description    string
	Priority       Priority
	EstimatedHours float64
	ParentID       string
	AssignedTo     string
	CreatedBy      string
	DueDate        *time.Time
}

// SubtaskSpec is one entry of a Decompose call.
type SubtaskSpec struct {
	Title          string
	Description    string
	Priority       Priority // defaults to medium when empty
	EstimatedHours float64
}

// BeeState represents a row in the bee_states table: one agent's runtime
// record. Rows are upserted at agent bootstrap and never deleted during a
// run. Scores are clamped to [0,100] on write.
type BeeState struct {
	Name             string    `json:"name"`
	Status           BeeStatus `json:"status"`
	CurrentTaskID    string    `json:"current_task_id,omitempty"`
	WorkloadScore    float64   `json:"workload_score"`
	PerformanceScore float64   `json:"performance_score"`
	Capabilities     []string  `json:"capabilities"`
	LastHeartbeat    time.Time `json:"last_heartbeat"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Message represents a row in the messages table: the atomic unit of the
// coordination channel. Rows are retained indefinitely as the audit log.
type Message struct {
	ID               int64       `json:"id"`
	From             string      `json:"from"`
	To               string      `json:"to"`
	Type             MessageType `json:"type"`
	Subject          string      `json:"subject,omitempty"`
	Content          string      `json:"content"`
	Priority         MsgPriority `json:"priority"`
	TaskID           string      `json:"task_id,omitempty"`
	Processed        bool        `json:"processed"`
	ProcessedAt      *time.Time  `json:"processed_at,omitempty"`
	ConversationID   string      `json:"conversation_id"`
	ChannelCompliant bool        `json:"channel_compliant"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Envelope carries the caller-supplied fields for Enqueue. ConversationID
// is assigned at enqueue when empty. Priority defaults to normal.
type Envelope struct {
	From             string
	To               string
	Type             MessageType
	Subject          string
	Content          string
	Priority         MsgPriority
	TaskID           string
	ConversationID   string
	ChannelCompliant bool
}

// HistoryFilter narrows a History query. Zero values are ignored.
type HistoryFilter struct {
	ConversationID string
	Participant    string // matches either endpoint
	Limit          int    // 0 = default 50
	IncludeSystem  bool   // include alert/notification traffic
}

// ComplianceStats summarizes channel compliance over a recent window.
type ComplianceStats struct {
	Total         int     `json:"total"`
	Compliant     int     `json:"compliant"`
	RatePct       float64 `json:"rate_pct"` // 0 when Total == 0
	Conversations int     `json:"conversations"`
}

// ActivityEntry represents a row in the task_activity table: the
// append-only audit trail of task mutations. Business logic never reads
// this table; only observability tooling does.
type ActivityEntry struct {
	ID          int64     `json:"id"`
	TaskID      string    `json:"task_id"`
	Actor       string    `json:"actor"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    string    `json:"metadata,omitempty"` // JSON blob
	CreatedAt   time.Time `json:"created_at"`
}

// DeliveryEntry represents a row in the delivery_log table: one Terminal
// Channel delivery attempt, success or failure.
type DeliveryEntry struct {
	ID        int64     `json:"id"`
	Target    string    `json:"target"`
	Payload   string    `json:"payload"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Event represents a row in the events table: one runtime lifecycle event
// from a daemon loop. Failures on the event-logging path are discarded.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	TaskID    string    `json:"task_id,omitempty"`
	Bee       string    `json:"bee,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusCount is one row of a task status breakdown.
type StatusCount struct {
	Status   TaskStatus `json:"status"`
	Count    int        `json:"count"`
	AvgHours float64    `json:"avg_actual_hours"` // over completed rows with actuals
}
