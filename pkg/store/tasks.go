package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"hive/pkg/hive"
)

const taskColumns = `id, title, description, status, priority, assigned_to, parent_id,
	estimated_hours, actual_hours, created_by, COALESCE(due_date, ''),
	created_at, updated_at, COALESCE(completed_at, '')`

// ValidateSpec applies the ceilings before any insert. Both storage
// backends run the same checks.
func ValidateSpec(spec hive.TaskSpec, limits Limits) error {
	if strings.TrimSpace(spec.Title) == "" {
		return &hive.ValidationError{Field: "title", Value: spec.Title, Reason: "must not be empty"}
	}
	if len(spec.Title) > limits.MaxTitleLength {
		return &hive.ValidationError{
			Field: "title", Value: spec.Title[:20] + "...",
			Reason: fmt.Sprintf("exceeds %d characters", limits.MaxTitleLength),
		}
	}
	if len(spec.Description) > limits.MaxDescriptionLength {
		return &hive.ValidationError{
			Field: "description", Value: spec.Description[:20] + "...",
			Reason: fmt.Sprintf("exceeds %d characters", limits.MaxDescriptionLength),
		}
	}
	if spec.EstimatedHours < 0 {
		return &hive.ValidationError{
			Field: "estimated_hours", Value: fmt.Sprint(spec.EstimatedHours),
			Reason: "must not be negative",
		}
	}
	if spec.EstimatedHours > limits.MaxEstimatedHours {
		return &hive.ValidationError{
			Field: "estimated_hours", Value: fmt.Sprint(spec.EstimatedHours),
			Reason: fmt.Sprintf("exceeds %v hours", limits.MaxEstimatedHours),
		}
	}
	if spec.Priority != "" && !spec.Priority.Valid() {
		return &hive.ValidationError{
			Field: "priority", Value: string(spec.Priority),
			Reason: "must be one of low, medium, high, critical",
		}
	}
	return nil
}

func (s *Store) validateSpec(spec hive.TaskSpec) error {
	return ValidateSpec(spec, s.limits)
}

// CreateTask validates spec, assigns a UUID, and inserts the row with
// status pending. A non-empty ParentID must reference an existing task.
func (s *Store) CreateTask(ctx context.Context, spec hive.TaskSpec) (hive.Task, error) {
	if err := s.validateSpec(spec); err != nil {
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
	now := s.now().UTC()
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
		DueDate:        spec.DueDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var due any
	if t.DueDate != nil {
		due = fmtTime(*t.DueDate)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, status, priority, priority_rank,
			assigned_to, parent_id, estimated_hours, created_by, due_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.Priority.Rank(),
		t.AssignedTo, t.ParentID, t.EstimatedHours, t.CreatedBy, due, fmtTime(now), fmtTime(now))
	if err != nil {
		return hive.Task{}, &hive.PersistenceError{Op: "create task", Err: err}
	}

	_ = s.LogActivity(ctx, t.ID, t.CreatedBy, "created", "Task created: "+t.Title, "")
	return t, nil
}

// Task returns the task by ID.
func (s *Store) Task(ctx context.Context, id string) (hive.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
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

	now := s.fmtNow()
	var res sql.Result
	if status.Terminal() {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ?, completed_at = COALESCE(completed_at, ?)
			WHERE id = ? AND status = ?`,
			string(status), now, now, id, string(t.Status))
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(status), now, id, string(t.Status))
	}
	if err != nil {
		return &hive.PersistenceError{Op: "update task status", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
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

	now := s.fmtNow()
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET assigned_to = ?, updated_at = ?
		WHERE id = ? AND status = 'pending' AND (assigned_to = '' OR assigned_to = ?)`,
		bee, now, id, bee)
	if err != nil {
		return &hive.PersistenceError{Op: "assign task", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &hive.ConflictError{Resource: "task " + id, Reason: "claimed concurrently"}
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO task_assignments (task_id, assigned_to, assigned_by, notes, assigned_at)
		VALUES (?, ?, ?, ?, ?)`,
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET actual_hours = ?, updated_at = ? WHERE id = ? AND actual_hours IS NULL`,
		hours, s.fmtNow(), id)
	if err != nil {
		return &hive.PersistenceError{Op: "record actuals", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
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
		`SELECT `+taskColumns+` FROM tasks WHERE parent_id = ? ORDER BY created_at ASC, id ASC`,
		parentID)
}

// TasksByBee returns tasks assigned to bee, optionally filtered by status.
func (s *Store) TasksByBee(ctx context.Context, bee string, statuses ...hive.TaskStatus) ([]hive.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE assigned_to = ?`
	args := []any{bee}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY priority_rank DESC, created_at ASC, id ASC"
	return s.queryTasks(ctx, query, args...)
}

// Tasks returns tasks filtered by status (empty = all).
func (s *Store) Tasks(ctx context.Context, status hive.TaskStatus, limit int) ([]hive.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(AVG(actual_hours), 0)
		FROM tasks GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "task stats", Err: err}
	}
	defer func() { _ = rows.Close() }()

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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_activity (task_id, actor, activity_type, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		taskID, actor, activityType, description, metadata, s.fmtNow())
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
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "query activity", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []hive.ActivityEntry
	for rows.Next() {
		var e hive.ActivityEntry
		var created string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Actor, &e.Type, &e.Description, &e.Metadata, &created); err != nil {
			return nil, &hive.PersistenceError{Op: "scan activity", Err: err}
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
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
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "query tasks", Err: err}
	}
	defer func() { _ = rows.Close() }()

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

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (hive.Task, error) {
	var t hive.Task
	var status, priority, due, created, updated, completed string
	var actual sql.NullFloat64
	err := sc.Scan(
		&t.ID, &t.Title, &t.Description, &status, &priority, &t.AssignedTo, &t.ParentID,
		&t.EstimatedHours, &actual, &t.CreatedBy, &due, &created, &updated, &completed)
	if err != nil {
		return hive.Task{}, err
	}
	t.Status = hive.TaskStatus(status)
	t.Priority = hive.Priority(priority)
	if actual.Valid {
		v := actual.Float64
		t.ActualHours = &v
	}
	if due != "" {
		d, err := parseTime(due)
		if err != nil {
			return hive.Task{}, err
		}
		t.DueDate = &d
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return hive.Task{}, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return hive.Task{}, err
	}
	if completed != "" {
		c, err := parseTime(completed)
		if err != nil {
			return hive.Task{}, err
		}
		t.CompletedAt = &c
	}
	return t, nil
}
