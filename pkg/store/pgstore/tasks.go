package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"hive/pkg/hive"
	"hive/pkg/store"
)

const taskColumns = `id, title, description, status, priority, assigned_to, parent_id,
	estimated_hours, actual_hours, created_by, due_date, created_at, updated_at, completed_at`

// CreateTask validates spec, assigns a UUID, and inserts the row with
// status pending. A non-empty ParentID must reference an existing task.
func (s *Store) CreateTask(ctx context.Context, spec hive.TaskSpec) (hive.Task, error) {
	if err := store.ValidateSpec(spec, s.limits); err != nil {
		return hive.Task{}, err
	}
	if spec.ParentID != "" {
		if _, err := s.Task(ctx, spec.ParentID); err != nil {
			return hive.Task{}, err
		}
	}

	priority := spec.Priority
	if priority == "" {
		priority = hive.PriorityMedium
	}
	now := s.stamp()
	t := hive.Task{
		ID:             uuid.NewString(),
		Title:          spec.Title,
		Description:    spec.Description,
		Status:         hive.StatusPending,
		Priority:       priority,
		AssignedTo:     spec.AssignedTo,
		ParentID:       spec.ParentID,
		EstimatedHours: spec.EstimatedHours,
		CreatedBy:      spec.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if spec.DueDate != nil {
		d := spec.DueDate.UTC().Truncate(time.Microsecond)
		t.DueDate = &d
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, title, description, status, priority, priority_rank,
			assigned_to, parent_id, estimated_hours, created_by, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.Priority.Rank(),
		t.AssignedTo, t.ParentID, t.EstimatedHours, t.CreatedBy, t.DueDate, now, now)
	if err != nil {
		return hive.Task{}, &hive.PersistenceError{Op: "create task", Err: err}
	}

	_ = s.LogActivity(ctx, t.ID, t.CreatedBy, "created", "Task created: "+t.Title, "")
	return t, nil
}

// Task returns the task by ID.
func (s *Store) Task(ctx context.Context, id string) (hive.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return hive.Task{}, &hive.NotFoundError{Kind: "task", ID: id}
	}
	if err != nil {
		return hive.Task{}, &hive.PersistenceError{Op: "load task", Err: err}
	}
	return t, nil
}

// UpdateTaskStatus enforces the state machine with a conditional write.
// The row's status is re-checked inside the UPDATE, so a concurrent
// transition makes the slower caller lose with a ConflictError.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status hive.TaskStatus, note, actor string) error {
	if !status.Valid() {
		return &hive.ValidationError{Field: "status", Value: string(status), Reason: "unknown task status"}
	}
	t, err := s.Task(ctx, id)
	if err != nil {
		return err
	}
	if err := hive.ValidateTransition(t.Status, status, "update_status"); err != nil {
		return err
	}

	now := s.stamp()
	var tag pgconn.CommandTag
	if status.Terminal() {
		tag, err = s.pool.Exec(ctx,
			`UPDATE tasks SET status = $1, updated_at = $2, completed_at = COALESCE(completed_at, $2)
			WHERE id = $3 AND status = $4`,
			string(status), now, id, string(t.Status))
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
			string(status), now, id, string(t.Status))
	}
	if err != nil {
		return &hive.PersistenceError{Op: "update task status", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &hive.ConflictError{Resource: "task " + id, Reason: "status changed concurrently"}
	}

	desc := fmt.Sprintf("Status: %s -> %s", t.Status, status)
	if note != "" {
		desc += " (" + note + ")"
	}
	_ = s.LogActivity(ctx, id, actor, "status_update", desc, "")
	return nil
}

// AssignTask claims a pending, unassigned task for bee. First writer wins.
func (s *Store) AssignTask(ctx context.Context, id, bee, actor, reason string) error {
	if strings.TrimSpace(bee) == "" {
		return &hive.ValidationError{Field: "bee", Value: bee, Reason: "must not be empty"}
	}
	t, err := s.Task(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != hive.StatusPending {
		return &hive.WorkflowStateError{
			CurrentState: string(t.Status),
			Operation:    "assign",
			Reason:       "only pending tasks can be assigned",
		}
	}
	if t.AssignedTo != "" && t.AssignedTo != bee {
		return &hive.ConflictError{
			Resource: "task " + id,
			Reason:   "already assigned to " + t.AssignedTo,
		}
	}

	now := s.stamp()
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET assigned_to = $1, updated_at = $2
		WHERE id = $3 AND status = 'pending' AND (assigned_to = '' OR assigned_to = $1)`,
		bee, now, id)
	if err != nil {
		return &hive.PersistenceError{Op: "assign task", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &hive.ConflictError{Resource: "task " + id, Reason: "claimed concurrently"}
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO task_assignments (task_id, assigned_to, assigned_by, notes, assigned_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, bee, actor, reason, now); err != nil {
		return &hive.PersistenceError{Op: "record assignment", Err: err}
	}
	_ = s.LogActivity(ctx, id, actor, "assigned", "Assigned to "+bee+": "+reason, "")
	return nil
}

// RecordActuals writes actual_hours exactly once.
func (s *Store) RecordActuals(ctx context.Context, id string, hours float64) error {
	if hours < 0 {
		return &hive.ValidationError{Field: "actual_hours", Value: fmt.Sprint(hours), Reason: "must not be negative"}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET actual_hours = $1, updated_at = $2 WHERE id = $3 AND actual_hours IS NULL`,
		hours, s.stamp(), id)
	if err != nil {
		return &hive.PersistenceError{Op: "record actuals", Err: err}
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Task(ctx, id); err != nil {
			return err
		}
		return &hive.ConflictError{Resource: "task " + id, Reason: "actual hours already recorded"}
	}
	return nil
}

// ListUnassigned returns pending, unassigned tasks in assignment order.
func (s *Store) ListUnassigned(ctx context.Context) ([]hive.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		WHERE status = 'pending' AND assigned_to = ''
		ORDER BY priority_rank DESC, created_at ASC, id ASC`)
}

// Children returns the direct subtasks of parentID, oldest first.
func (s *Store) Children(ctx context.Context, parentID string) ([]hive.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE parent_id = $1 ORDER BY created_at ASC, id ASC`,
		parentID)
}

// TasksByBee returns tasks assigned to bee, optionally filtered by status.
func (s *Store) TasksByBee(ctx context.Context, bee string, statuses ...hive.TaskStatus) ([]hive.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE assigned_to = $1`
	args := []any{bee}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		query += ` AND status = ANY($2)`
		args = append(args, names)
	}
	query += ` ORDER BY priority_rank DESC, created_at ASC, id ASC`
	return s.queryTasks(ctx, query, args...)
}

// Tasks returns tasks filtered by status (empty = all).
func (s *Store) Tasks(ctx context.Context, status hive.TaskStatus, limit int) ([]hive.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY priority_rank DESC, created_at ASC, id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryTasks(ctx, query, args...)
}

// TaskStatusStats returns per-status counts with average actual hours.
func (s *Store) TaskStatusStats(ctx context.Context) ([]hive.StatusCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*), COALESCE(AVG(actual_hours), 0)
		FROM tasks GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "task stats", Err: err}
	}
	defer rows.Close()

	var out []hive.StatusCount
	for rows.Next() {
		var sc hive.StatusCount
		var status string
		if err := rows.Scan(&status, &sc.Count, &sc.AvgHours); err != nil {
			return nil, &hive.PersistenceError{Op: "scan task stats", Err: err}
		}
		sc.Status = hive.TaskStatus(status)
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, &hive.PersistenceError{Op: "iterate task stats", Err: err}
	}
	return out, nil
}

// LogActivity appends to the task activity trail.
func (s *Store) LogActivity(ctx context.Context, taskID, actor, activityType, description, metadata string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_activity (task_id, actor, activity_type, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		taskID, actor, activityType, description, metadata, s.stamp())
	if err != nil {
		return &hive.PersistenceError{Op: "log activity", Err: err}
	}
	return nil
}

// Activity returns recent activity entries, newest first.
func (s *Store) Activity(ctx context.Context, taskID string, limit int) ([]hive.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, task_id, actor, activity_type, description, metadata, created_at FROM task_activity`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = $1`
		args = append(args, taskID)
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "query activity", Err: err}
	}
	defer rows.Close()

	var out []hive.ActivityEntry
	for rows.Next() {
		var e hive.ActivityEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Actor, &e.Type, &e.Description, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, &hive.PersistenceError{Op: "scan activity", Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &hive.PersistenceError{Op: "iterate activity", Err: err}
	}
	return out, nil
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]hive.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "query tasks", Err: err}
	}
	defer rows.Close()

	var out []hive.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, &hive.PersistenceError{Op: "scan task", Err: err}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &hive.PersistenceError{Op: "iterate tasks", Err: err}
	}
	return out, nil
}

func scanTask(sc scanner) (hive.Task, error) {
	var t hive.Task
	var status, priority string
	err := sc.Scan(
		&t.ID, &t.Title, &t.Description, &status, &priority, &t.AssignedTo, &t.ParentID,
		&t.EstimatedHours, &t.ActualHours, &t.CreatedBy, &t.DueDate, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if err != nil {
		return hive.Task{}, err
	}
	t.Status = hive.TaskStatus(status)
	t.Priority = hive.Priority(priority)
	return t, nil
}
