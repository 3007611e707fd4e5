// Package worker implements the hive worker agent: a single-occupancy
// executor that accepts its assigned tasks, reports progress, and files a
// completion report over the message bus. All coordination goes through
// the bus; the terminal channel is a best-effort nudge on top.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hive/pkg/channel"
	"hive/pkg/config"
	"hive/pkg/hive"
)

// Agent is one worker bee. It executes at most one task at a time: Accept
// refuses a second task while one is in flight.
type Agent struct {
	name string
	role Role
	cfg  config.Config

	tasks  hive.TaskStore
	bees   hive.BeeRegistry
	bus    hive.MessageBus
	events hive.EventLog
	ch     channel.Channel // optional; nil means bus-only coordination

	mu            sync.Mutex
	currentTaskID string
	workStartedAt time.Time

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates an Agent. It does not register or start loops — call Run.
func New(name string, role Role, cfg config.Config, tasks hive.TaskStore, bees hive.BeeRegistry, bus hive.MessageBus, events hive.EventLog, ch channel.Channel) *Agent {
	return &Agent{
		name:    name,
		role:    role,
		cfg:     cfg.WithDefaults(),
		tasks:   tasks,
		bees:    bees,
		bus:     bus,
		events:  events,
		ch:      ch,
		nowFunc: time.Now,
	}
}

// Name returns the agent's bus identity.
func (a *Agent) Name() string { return a.name }

// Current returns the task in flight, if any.
func (a *Agent) Current() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentTaskID, a.currentTaskID != ""
}

// Completion carries the optional sections of a completion report.
type Completion struct {
	Deliverables []string
	Summary      string
	QualityNotes string
}

// Accept takes on an assigned task: it claims occupancy, moves the task to
// in_progress, and notifies the queen. Refusals return (false, nil): task
// missing, assigned elsewhere, occupancy taken, or the task no longer
// acceptable in the store. Errors are reserved for the store itself.
func (a *Agent) Accept(ctx context.Context, taskID string) (bool, error) {
	task, err := a.tasks.Task(ctx, taskID)
	if hive.IsNotFound(err) {
		_ = a.events.LogEvent(ctx, "accept_refused", a.name, taskID, a.name, "task not found")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if task.AssignedTo != a.name {
		_ = a.events.LogEvent(ctx, "accept_refused", a.name, taskID, a.name,
			fmt.Sprintf("assigned to %q", task.AssignedTo))
		return false, nil
	}

	a.mu.Lock()
	if a.currentTaskID != "" {
		busy := a.currentTaskID
		a.mu.Unlock()
		_ = a.events.LogEvent(ctx, "accept_refused", a.name, taskID, a.name,
			"already working on "+busy)
		return false, nil
	}
	// Claim occupancy before touching the store so a concurrent Accept
	// cannot slip in between.
	a.currentTaskID = taskID
	a.workStartedAt = a.nowFunc()
	a.mu.Unlock()

	if err := a.tasks.UpdateTaskStatus(ctx, taskID, hive.StatusInProgress, "Task accepted and work started", a.name); err != nil {
		a.release()
		var serr *hive.WorkflowStateError
		if hive.IsConflict(err) || errors.As(err, &serr) {
			_ = a.events.LogEvent(ctx, "accept_refused", a.name, taskID, a.name, err.Error())
			return false, nil
		}
		return false, err
	}

	if err := a.bees.UpsertBee(ctx, a.name, hive.BeeBusy, taskID, 50); err != nil {
		_ = a.events.LogEvent(ctx, "registry_error", a.name, taskID, a.name, err.Error())
	}

	content := fmt.Sprintf("Task %s has been accepted and work has started.", taskID)
	if task.EstimatedHours > 0 {
		eta := a.nowFunc().Add(time.Duration(task.EstimatedHours * float64(time.Hour)))
		content += "\nEstimated completion: " + eta.Format("2006-01-02 15:04")
	}
	a.send(ctx, hive.Envelope{
		To:       a.cfg.QueenName,
		Type:     hive.MsgTaskUpdate,
		Subject:  "Task accepted: " + task.Title,
		Content:  content,
		Priority: hive.MsgNormal,
		TaskID:   taskID,
	})
	_ = a.tasks.LogActivity(ctx, taskID, a.name, "accepted", "Task accepted by "+a.name, "")
	return true, nil
}

// ReportProgress updates the registry workload to percent and sends a
// progress message. Reporting for a task other than the current one is
// permitted but recorded as a warning. Priority is high when blocking
// issues are present.
func (a *Agent) ReportProgress(ctx context.Context, taskID string, percent int, note string, blocking []string) (bool, error) {
	if cur, _ := a.Current(); cur != taskID {
		_ = a.events.LogEvent(ctx, "progress_warning", a.name, taskID, a.name,
			"progress reported for non-current task")
	}

	task, err := a.tasks.Task(ctx, taskID)
	if hive.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if err := a.bees.UpsertBee(ctx, a.name, hive.BeeBusy, taskID, float64(percent)); err != nil {
		_ = a.events.LogEvent(ctx, "registry_error", a.name, taskID, a.name, err.Error())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Progress Update - %d%% complete\n\n", percent)
	fmt.Fprintf(&b, "Status: %s\n", note)
	fmt.Fprintf(&b, "Time elapsed: %.2f hours\n", a.elapsedHours())
	if len(blocking) > 0 {
		b.WriteString("\nBlocking Issues:\n")
		for _, issue := range blocking {
			b.WriteString("- " + issue + "\n")
		}
		b.WriteString("\nAssistance may be needed to resolve these issues.")
	}

	priority := hive.MsgNormal
	if len(blocking) > 0 {
		priority = hive.MsgHigh
	}
	a.send(ctx, hive.Envelope{
		To:       a.cfg.QueenName,
		Type:     hive.MsgTaskUpdate,
		Subject:  fmt.Sprintf("Progress %d%%: %s", percent, task.Title),
		Content:  b.String(),
		Priority: priority,
		TaskID:   taskID,
	})

	meta, _ := json.Marshal(map[string]any{"blocking_issues": blocking})
	_ = a.tasks.LogActivity(ctx, taskID, a.name, "progress_update",
		fmt.Sprintf("%d%% complete: %s", percent, note), string(meta))
	return true, nil
}

// Complete finishes the current task: terminal status first, then actual
// hours, then the completion report to the queen, then occupancy and
// registry reset. Returns (false, nil) when taskID is not the task in
// flight.
func (a *Agent) Complete(ctx context.Context, taskID, result string, extra Completion) (bool, error) {
	a.mu.Lock()
	if taskID != a.currentTaskID {
		a.mu.Unlock()
		_ = a.events.LogEvent(ctx, "complete_refused", a.name, taskID, a.name, "not the current task")
		return false, nil
	}
	started := a.workStartedAt
	a.mu.Unlock()

	task, err := a.tasks.Task(ctx, taskID)
	if hive.IsNotFound(err) {
		a.release()
		return false, nil
	}
	if err != nil {
		return false, err
	}

	hours := a.nowFunc().Sub(started).Hours()

	// Terminal status before actuals: completed_at must exist by the time
	// actual_hours does.
	if err := a.tasks.UpdateTaskStatus(ctx, taskID, hive.StatusCompleted, "Task completed successfully", a.name); err != nil {
		// A task cancelled under us still frees the worker.
		a.release()
		if regErr := a.bees.UpsertBee(ctx, a.name, hive.BeeIdle, "", 0); regErr != nil {
			_ = a.events.LogEvent(ctx, "registry_error", a.name, taskID, a.name, regErr.Error())
		}
		return false, err
	}
	if err := a.tasks.RecordActuals(ctx, taskID, hours); err != nil {
		_ = a.events.LogEvent(ctx, "actuals_error", a.name, taskID, a.name, err.Error())
	}

	a.send(ctx, hive.Envelope{
		To:       a.cfg.QueenName,
		Type:     hive.MsgTaskUpdate,
		Subject:  "Task completed: " + task.Title,
		Content:  completionReport(task, result, extra, hours, a.nowFunc()),
		Priority: hive.MsgHigh,
		TaskID:   taskID,
	})

	a.release()
	if err := a.bees.UpsertBee(ctx, a.name, hive.BeeIdle, "", 0); err != nil {
		_ = a.events.LogEvent(ctx, "registry_error", a.name, taskID, a.name, err.Error())
	}

	meta, _ := json.Marshal(map[string]any{
		"work_duration_hours": hours,
		"deliverables":        extra.Deliverables,
		"quality_notes":       extra.QualityNotes,
	})
	_ = a.tasks.LogActivity(ctx, taskID, a.name, "completed", "Task completed by "+a.name, string(meta))
	return true, nil
}

// RequestAssistance asks the queen for help on a task. Priority is urgent
// when the caller says so, high otherwise.
func (a *Agent) RequestAssistance(ctx context.Context, taskID, kind, details string, urgent bool) (bool, error) {
	task, err := a.tasks.Task(ctx, taskID)
	if hive.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Assistance Request - %s\n\n", kind)
	fmt.Fprintf(&b, "Task: %s\n", task.Title)
	fmt.Fprintf(&b, "Request Details: %s\n\n", details)
	fmt.Fprintf(&b, "Current progress: %d%%\n", a.estimateProgress(task))
	fmt.Fprintf(&b, "Time spent: %.2f hours\n\n", a.elapsedHours())
	b.WriteString("Please advise on how to proceed.")

	priority := hive.MsgHigh
	if urgent {
		priority = hive.MsgUrgent
	}
	a.send(ctx, hive.Envelope{
		To:       a.cfg.QueenName,
		Type:     hive.MsgRequest,
		Subject:  "Assistance needed: " + kind,
		Content:  b.String(),
		Priority: priority,
		TaskID:   taskID,
	})
	_ = a.tasks.LogActivity(ctx, taskID, a.name, "assistance_request",
		fmt.Sprintf("Requested %s: %s", kind, details), "")
	return true, nil
}

// release clears occupancy.
func (a *Agent) release() {
	a.mu.Lock()
	a.currentTaskID = ""
	a.workStartedAt = time.Time{}
	a.mu.Unlock()
}

// elapsedHours is the length of the current work session, zero when idle.
func (a *Agent) elapsedHours() float64 {
	a.mu.Lock()
	started := a.workStartedAt
	a.mu.Unlock()
	if started.IsZero() {
		return 0
	}
	return a.nowFunc().Sub(started).Hours()
}

// estimateProgress derives progress from session time against the task
// estimate, capped at 90. Without a session or an estimate it reports 50.
func (a *Agent) estimateProgress(task hive.Task) int {
	a.mu.Lock()
	started := a.workStartedAt
	a.mu.Unlock()
	if started.IsZero() || task.EstimatedHours <= 0 {
		return 50
	}
	p := int(a.nowFunc().Sub(started).Hours() / task.EstimatedHours * 100)
	if p > 90 {
		p = 90
	}
	if p < 0 {
		p = 0
	}
	return p
}

// completionReport renders the structured report sent with a completion.
func completionReport(task hive.Task, result string, extra Completion, hours float64, now time.Time) string {
	var b strings.Builder
	b.WriteString("Task Completion Report\n\n")
	fmt.Fprintf(&b, "Task: %s\n", task.Title)
	fmt.Fprintf(&b, "Duration: %.2f hours\n", hours)
	fmt.Fprintf(&b, "Completed: %s\n\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Result Summary:\n%s\n", result)

	if extra.Summary != "" {
		fmt.Fprintf(&b, "\nWork Summary:\n%s\n", extra.Summary)
	}
	if len(extra.Deliverables) > 0 {
		b.WriteString("\nDeliverables:\n")
		for _, item := range extra.Deliverables {
			b.WriteString("- " + item + "\n")
		}
	}
	if extra.QualityNotes != "" {
		fmt.Fprintf(&b, "\nQuality Notes:\n%s\n", extra.QualityNotes)
	}

	estimate := task.EstimatedHours
	if estimate <= 0 {
		estimate = hours
	}
	fmt.Fprintf(&b, "\nEfficiency: %.1f%% (Est: %.1fh, Actual: %.2fh)\n", efficiency(estimate, hours), estimate, hours)
	return b.String()
}

// efficiency is estimated over actual as a percentage. Zero actual hours
// reads as exactly on target.
func efficiency(estimated, actual float64) float64 {
	if actual == 0 {
		return 100
	}
	return estimated / actual * 100
}

// send enqueues an envelope from this agent and attempts terminal
// delivery under the configured timeout. Failures on either leg are
// logged; the caller never sees them.
func (a *Agent) send(ctx context.Context, env hive.Envelope) {
	env.From = a.name
	env.ChannelCompliant = true
	msg, err := a.bus.Enqueue(ctx, env)
	if err != nil {
		_ = a.events.LogEvent(ctx, "enqueue_failed", a.name, env.TaskID, env.To, err.Error())
		return
	}
	if a.ch == nil || msg.To == a.name {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, a.cfg.DeliveryTimeout)
	defer cancel()
	target := a.cfg.Window(msg.To)
	if err := a.ch.Deliver(dctx, target, channel.RenderMessage(msg)); err != nil {
		_ = a.events.LogEvent(ctx, "delivery_failed", a.name, msg.TaskID, msg.To, err.Error())
	}
}
