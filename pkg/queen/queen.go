// Package queen implements the hive scheduler: task intake, decomposition,
// assignment, completion cascades, and the daemon loops that keep the
// colony moving. The queen holds no task state of its own; every decision
// reads the store and every coordination step goes through the message bus.
package queen

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"hive/pkg/channel"
	"hive/pkg/config"
	"hive/pkg/hive"
)

// Queen is the scheduler. Create one per process with New; it is safe for
// concurrent use by its own loops.
type Queen struct {
	cfg    config.Config
	tasks  hive.TaskStore
	bees   hive.BeeRegistry
	bus    hive.MessageBus
	events hive.EventLog
	ch     channel.Channel // optional; nil means bus-only coordination

	mu             sync.Mutex
	strategyWarned bool

	// watchDir, when set, is watched for changes as an assignment trigger.
	watchDir string

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates a Queen. It does not start any loops — call Run.
func New(cfg config.Config, tasks hive.TaskStore, bees hive.BeeRegistry, bus hive.MessageBus, events hive.EventLog, ch channel.Channel) *Queen {
	return &Queen{
		cfg:     cfg.WithDefaults(),
		tasks:   tasks,
		bees:    bees,
		bus:     bus,
		events:  events,
		ch:      ch,
		nowFunc: time.Now,
	}
}

// SetWatchDir sets the directory watched by the assignment loop. Typically
// the database directory: any write there may mean new work.
func (q *Queen) SetWatchDir(dir string) { q.watchDir = dir }

// Name returns the queen's bus identity.
func (q *Queen) Name() string { return q.cfg.QueenName }

// CreateTask validates and persists a new task. When spec.AssignedTo is
// set the task is created unassigned and then routed through Assign so the
// workload gate applies to direct assignments too.
func (q *Queen) CreateTask(ctx context.Context, spec hive.TaskSpec) (hive.Task, error) {
	assignTo := spec.AssignedTo
	spec.AssignedTo = ""
	if spec.CreatedBy == "" {
		spec.CreatedBy = q.cfg.QueenName
	}

	task, err := q.tasks.CreateTask(ctx, spec)
	if err != nil {
		return hive.Task{}, err
	}
	_ = q.events.LogEvent(ctx, "task_created", q.cfg.QueenName, task.ID, "", task.Title)

	if assignTo != "" {
		if err := q.Assign(ctx, task.ID, assignTo, "assigned at creation"); err != nil {
			return task, err
		}
	}
	return task, nil
}

// Decompose splits a task into subtasks. Creation is per-subtask: failures
// do not roll back siblings that already exist, and the aggregate error
// names each failed spec. When at least one subtask exists the parent
// moves to in_progress.
func (q *Queen) Decompose(ctx context.Context, parentID string, specs []hive.SubtaskSpec) ([]hive.Task, error) {
	parent, err := q.tasks.Task(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Status.Terminal() {
		return nil, &hive.WorkflowStateError{
			CurrentState: string(parent.Status),
			Operation:    "decompose",
			Reason:       "terminal tasks cannot be decomposed",
		}
	}
	if len(specs) == 0 {
		return nil, &hive.ValidationError{Field: "subtasks", Value: "", Reason: "at least one subtask is required"}
	}
	if len(specs) > q.cfg.MaxSubtasksPerTask {
		return nil, &hive.ValidationError{
			Field: "subtasks", Value: fmt.Sprint(len(specs)),
			Reason: fmt.Sprintf("exceeds %d subtasks per task", q.cfg.MaxSubtasksPerTask),
		}
	}

	var created []hive.Task
	var failures []string
	for i, sub := range specs {
		priority := sub.Priority
		if priority == "" {
			priority = hive.PriorityMedium
		}
		task, err := q.tasks.CreateTask(ctx, hive.TaskSpec{
			Title:          sub.Title,
			Description:    sub.Description,
			Priority:       priority,
			EstimatedHours: sub.EstimatedHours,
			ParentID:       parent.ID,
			CreatedBy:      q.cfg.QueenName,
		})
		if err != nil {
			failures = append(failures, fmt.Sprintf("subtask %d (%s): %v", i+1, sub.Title, err))
			continue
		}
		created = append(created, task)
	}

	if len(created) > 0 {
		note := fmt.Sprintf("Decomposed into %d subtasks", len(created))
		if err := q.tasks.UpdateTaskStatus(ctx, parent.ID, hive.StatusInProgress, note, q.cfg.QueenName); err != nil {
			failures = append(failures, fmt.Sprintf("parent status: %v", err))
		}
		_ = q.events.LogEvent(ctx, "task_decomposed", q.cfg.QueenName, parent.ID, "",
			fmt.Sprintf("%d subtasks", len(created)))
	}

	if len(failures) > 0 {
		return created, &hive.WorkflowError{
			Op:      "decompose",
			Reason:  fmt.Sprintf("%d of %d subtasks failed", len(failures), len(specs)),
			Details: failures,
		}
	}
	return created, nil
}

// Assign routes a task to a named agent: capacity gate, store claim, then
// a high-priority task_update over the bus. Terminal delivery failures are
// logged and swallowed; the bus row is the durable assignment record. The
// reason is recorded on the assignment row.
func (q *Queen) Assign(ctx context.Context, taskID, bee, reason string) error {
	if !q.cfg.KnownAgent(bee) {
		return &hive.NotFoundError{Kind: "bee", ID: bee, Available: q.cfg.AgentNames}
	}
	if reason == "" {
		reason = "assigned by queen"
	}
	task, err := q.tasks.Task(ctx, taskID)
	if err != nil {
		return err
	}

	if reason, loaded := q.overCapacity(ctx, bee); loaded {
		if q.cfg.StrictWorkloadEnforcement {
			return &hive.WorkflowError{
				Op:      "assign",
				Reason:  fmt.Sprintf("%s is at capacity", bee),
				Details: []string{reason},
			}
		}
		_ = q.events.LogEvent(ctx, "workload_warning", q.cfg.QueenName, taskID, bee, reason)
	}

	if err := q.tasks.AssignTask(ctx, taskID, bee, q.cfg.QueenName, reason); err != nil {
		return err
	}
	_ = q.events.LogEvent(ctx, "task_assigned", q.cfg.QueenName, taskID, bee, task.Title)

	content := task.Description
	if content == "" {
		content = task.Title
	}
	q.send(ctx, hive.Envelope{
		To:       bee,
		Type:     hive.MsgTaskUpdate,
		Subject:  "New task assigned: " + task.Title,
		Content:  fmt.Sprintf("%s\n\nPriority: %s | Estimate: %.1fh", content, task.Priority, task.EstimatedHours),
		Priority: hive.MsgHigh,
		TaskID:   task.ID,
	})
	return nil
}

// overCapacity reports whether bee is at or over its limits, with a
// human-readable reason.
func (q *Queen) overCapacity(ctx context.Context, bee string) (string, bool) {
	active, err := q.tasks.TasksByBee(ctx, bee, hive.StatusPending, hive.StatusInProgress)
	if err == nil && len(active) >= q.cfg.MaxTasksPerBee {
		return fmt.Sprintf("%d active tasks (limit %d)", len(active), q.cfg.MaxTasksPerBee), true
	}
	state, err := q.bees.Bee(ctx, bee)
	if err == nil && state.WorkloadScore >= q.cfg.MaxWorkloadThreshold {
		return fmt.Sprintf("workload %.0f%% (threshold %.0f%%)", state.WorkloadScore, q.cfg.MaxWorkloadThreshold), true
	}
	return "", false
}

// AutoAssignSweep assigns every unassigned pending task using the
// configured strategy. Per-task failures are logged and skipped; the sweep
// itself fails only when the backlog cannot be read.
func (q *Queen) AutoAssignSweep(ctx context.Context) (int, error) {
	backlog, err := q.tasks.ListUnassigned(ctx)
	if err != nil {
		return 0, err
	}
	assigned := 0
	for _, task := range backlog {
		bee, err := q.selectBee(ctx, task)
		if err != nil {
			_ = q.events.LogEvent(ctx, "assign_skipped", q.cfg.QueenName, task.ID, "", err.Error())
			continue
		}
		reason := fmt.Sprintf("Auto-assigned based on %s strategy", q.cfg.AssignmentStrategy)
		if err := q.Assign(ctx, task.ID, bee, reason); err != nil {
			// Lost races and capacity rejections leave the task for the
			// next sweep.
			_ = q.events.LogEvent(ctx, "assign_failed", q.cfg.QueenName, task.ID, bee, err.Error())
			continue
		}
		assigned++
	}
	return assigned, nil
}

// HandleCompletion reacts to a completed task: when every sibling under
// the same parent is complete, the parent auto-completes and a completion
// notice is enqueued for the parent's creator. The cascade climbs one
// level per completion event; the notice triggers the next level.
func (q *Queen) HandleCompletion(ctx context.Context, taskID string) error {
	task, err := q.tasks.Task(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != hive.StatusCompleted || task.ParentID == "" {
		return nil
	}

	siblings, err := q.tasks.Children(ctx, task.ParentID)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.Status != hive.StatusCompleted {
			return nil
		}
	}

	parent, err := q.tasks.Task(ctx, task.ParentID)
	if err != nil {
		return err
	}
	if parent.Status.Terminal() {
		// A sibling's completion event already cascaded.
		return nil
	}

	err = q.tasks.UpdateTaskStatus(ctx, task.ParentID, hive.StatusCompleted, "All subtasks completed", q.cfg.QueenName)
	if hive.IsConflict(err) {
		// Another completion event won the write race.
		return nil
	}
	if err != nil {
		return err
	}
	_ = q.events.LogEvent(ctx, "task_cascaded", q.cfg.QueenName, task.ParentID, "",
		fmt.Sprintf("%d subtasks complete", len(siblings)))

	notify := parent.CreatedBy
	if notify == "" {
		notify = q.cfg.QueenName
	}
	q.send(ctx, hive.Envelope{
		To:       notify,
		Type:     hive.MsgTaskUpdate,
		Subject:  "Task completed: " + parent.Title,
		Content:  fmt.Sprintf("All %d subtasks of %q are complete.", len(siblings), parent.Title),
		Priority: hive.MsgHigh,
		TaskID:   parent.ID,
	})
	return nil
}

// ProgressReport is a point-in-time view of the colony.
type ProgressReport struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Tasks       []hive.StatusCount  `json:"tasks"`
	Unassigned  int                 `json:"unassigned"`
	Overdue     int                 `json:"overdue"`
	Bees        []hive.BeeState     `json:"bees"`
	Compliance  hive.ComplianceStats `json:"compliance"`
}

// ReviewProgress assembles a progress report. Read-only.
func (q *Queen) ReviewProgress(ctx context.Context) (ProgressReport, error) {
	report := ProgressReport{GeneratedAt: q.nowFunc().UTC()}

	stats, err := q.tasks.TaskStatusStats(ctx)
	if err != nil {
		return ProgressReport{}, err
	}
	report.Tasks = stats

	backlog, err := q.tasks.ListUnassigned(ctx)
	if err != nil {
		return ProgressReport{}, err
	}
	report.Unassigned = len(backlog)

	open, err := q.tasks.Tasks(ctx, "", 0)
	if err != nil {
		return ProgressReport{}, err
	}
	now := q.nowFunc()
	for _, t := range open {
		if t.Overdue(now) {
			report.Overdue++
		}
	}

	bees, err := q.bees.Bees(ctx, q.cfg.AgentNames...)
	if err != nil {
		return ProgressReport{}, err
	}
	report.Bees = bees

	compliance, err := q.bus.ComplianceStats(ctx, q.cfg.ComplianceWindow)
	if err != nil {
		return ProgressReport{}, err
	}
	report.Compliance = compliance
	return report, nil
}

// RemindStalled sends a status request to the assignee of every
// in_progress task untouched for longer than olderThan. Returns the number
// of reminders sent.
func (q *Queen) RemindStalled(ctx context.Context, olderThan time.Duration) (int, error) {
	open, err := q.tasks.Tasks(ctx, hive.StatusInProgress, 0)
	if err != nil {
		return 0, err
	}
	cutoff := q.nowFunc().Add(-olderThan)
	sent := 0
	for _, t := range open {
		if t.AssignedTo == "" || !t.UpdatedAt.Before(cutoff) {
			continue
		}
		q.send(ctx, hive.Envelope{
			To:       t.AssignedTo,
			Type:     hive.MsgRequest,
			Subject:  "Status check: " + t.Title,
			Content:  fmt.Sprintf("No update on %q since %s. Please report progress.", t.Title, t.UpdatedAt.Format(time.RFC3339)),
			Priority: hive.MsgNormal,
			TaskID:   t.ID,
		})
		_ = q.events.LogEvent(ctx, "stall_reminder", q.cfg.QueenName, t.ID, t.AssignedTo, "")
		sent++
	}
	return sent, nil
}

// send enqueues an envelope from the queen and attempts terminal delivery.
// Enqueue failures and delivery failures are logged; neither interrupts
// the caller. Coordination that must not be lost uses the bus row written
// here.
func (q *Queen) send(ctx context.Context, env hive.Envelope) {
	env.From = q.cfg.QueenName
	env.ChannelCompliant = true
	msg, err := q.bus.Enqueue(ctx, env)
	if err != nil {
		_ = q.events.LogEvent(ctx, "enqueue_failed", q.cfg.QueenName, env.TaskID, env.To, err.Error())
		return
	}
	q.deliver(ctx, msg)
}

// deliver pushes a stored message through the terminal channel when one is
// wired. Delivery runs under the configured timeout; failures are advisory.
func (q *Queen) deliver(ctx context.Context, msg hive.Message) {
	if q.ch == nil || msg.To == q.cfg.QueenName {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, q.cfg.DeliveryTimeout)
	defer cancel()
	target := q.cfg.Window(msg.To)
	if err := q.ch.Deliver(dctx, target, channel.RenderMessage(msg)); err != nil {
		_ = q.events.LogEvent(ctx, "delivery_failed", q.cfg.QueenName, msg.TaskID, msg.To, err.Error())
	}
}

// warnUnknownStrategy logs the fallback once per process.
func (q *Queen) warnUnknownStrategy(ctx context.Context, strategy string) {
	q.mu.Lock()
	warned := q.strategyWarned
	q.strategyWarned = true
	q.mu.Unlock()
	if !warned {
		_ = q.events.LogEvent(ctx, "strategy_fallback", q.cfg.QueenName, "", "",
			fmt.Sprintf("unknown strategy %q, using balanced", strategy))
	}
}

// taskText is the lowercased haystack for keyword categorization.
func taskText(t hive.Task) string {
	return strings.ToLower(t.Title + " " + t.Description)
}
