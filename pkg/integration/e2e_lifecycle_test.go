// Package integration_test provides end-to-end lifecycle tests for hive.
package integration_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"hive/pkg/config"
	"hive/pkg/gateway"
	"hive/pkg/hive"
	"hive/pkg/queen"
	"hive/pkg/store"
	"hive/pkg/worker"
)

// fakeChannel records delivery targets. The terminal channel is advisory,
// so tests only need to observe that forwarding was attempted.
type fakeChannel struct {
	mu      sync.Mutex
	targets []string
}

func (f *fakeChannel) Deliver(_ context.Context, target, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	return nil
}

func (f *fakeChannel) deliveries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.targets...)
}

// colony wires a queen, a gateway, and a worker fleet over one SQLite
// database, the way the daemons share state in production.
type colony struct {
	cfg   config.Config
	store *store.Store
	ch    *fakeChannel
	queen *queen.Queen
	gw    *gateway.Gateway
}

func newColony(t *testing.T, mutate func(*config.Config)) *colony {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hive.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st := store.New(db)
	if err := st.ApplySchema(); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	ch := &fakeChannel{}
	return &colony{
		cfg:   cfg,
		store: st,
		ch:    ch,
		queen: queen.New(cfg, st, st, st, st, ch),
		gw:    gateway.New(cfg, st, st, st, ch),
	}
}

// registerFleet upserts every configured agent as idle with its role
// capabilities, as `hive init` does.
func (c *colony) registerFleet(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, name := range c.cfg.AgentNames {
		if err := c.store.UpsertBee(ctx, name, hive.BeeIdle, "", 0); err != nil {
			t.Fatal(err)
		}
		if err := c.store.SetCapabilities(ctx, name, worker.RoleFor(name).Capabilities); err != nil {
			t.Fatal(err)
		}
	}
}

func (c *colony) agent(name string) *worker.Agent {
	return worker.New(name, worker.RoleFor(name), c.cfg, c.store, c.store, c.store, c.store, c.ch)
}

func (c *colony) task(t *testing.T, id string) hive.Task {
	t.Helper()
	task, err := c.store.Task(context.Background(), id)
	if err != nil {
		t.Fatalf("task %s: %v", id, err)
	}
	return task
}

func (c *colony) bee(t *testing.T, name string) hive.BeeState {
	t.Helper()
	state, err := c.store.Bee(context.Background(), name)
	if err != nil {
		t.Fatalf("bee %s: %v", name, err)
	}
	return state
}

// TestE2E_TaskLifecycle drives one task through the whole colony
// in-process:
//
//  1. An operator instruction intercepted at the gateway auto-creates a task
//  2. The queen's sweep assigns it to the least-loaded bee
//  3. The worker accepts: occupancy claimed, task in_progress, queen notified
//  4. A second assignment is refused while the first is in flight
//  5. A progress report moves the registry workload score
//  6. Completion records actual hours and frees the bee
//  7. The freed bee picks up the queued second task
func TestE2E_TaskLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	ctx := context.Background()
	c := newColony(t, nil)
	c.registerFleet(t)

	// --- Phase 1: Instruction enters through the gateway ---
	res, err := c.gw.Intercept(ctx, "Please implement the CSV export endpoint", gateway.Broadcast)
	if err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if res.Type != gateway.TaskAssignment {
		t.Fatalf("instruction classified %q, want %q", res.Type, gateway.TaskAssignment)
	}
	if res.Task == nil {
		t.Fatal("intercept did not auto-create a task")
	}
	taskID := res.Task.ID
	if res.Task.AssignedTo != "" {
		t.Fatalf("broadcast task pre-assigned to %q", res.Task.AssignedTo)
	}
	if got := len(c.ch.deliveries()); got != len(c.cfg.AgentNames) {
		t.Errorf("broadcast reached %d targets, want %d", got, len(c.cfg.AgentNames))
	}

	// --- Phase 2: Queen sweep assigns the backlog ---
	assigned, err := c.queen.AutoAssignSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if assigned != 1 {
		t.Fatalf("sweep assigned %d tasks, want 1", assigned)
	}
	// All workload scores are zero, so balanced keeps the first
	// configured agent.
	if got := c.task(t, taskID); got.AssignedTo != "developer" {
		t.Fatalf("task assigned to %q, want developer", got.AssignedTo)
	}
	inbox, err := c.store.Inbox(ctx, "developer", false)
	if err != nil {
		t.Fatalf("developer inbox: %v", err)
	}
	var noticed bool
	for _, msg := range inbox {
		if msg.Type == hive.MsgTaskUpdate && msg.TaskID == taskID && msg.From == c.cfg.QueenName {
			noticed = true
		}
	}
	if !noticed {
		t.Error("no assignment notice in the developer's inbox")
	}

	// --- Phase 3: Worker accepts ---
	dev := c.agent("developer")
	ok, err := dev.Accept(ctx, taskID)
	if err != nil || !ok {
		t.Fatalf("accept = (%v, %v), want (true, nil)", ok, err)
	}
	if got := c.task(t, taskID); got.Status != hive.StatusInProgress {
		t.Fatalf("task status = %q, want %q", got.Status, hive.StatusInProgress)
	}
	if state := c.bee(t, "developer"); state.Status != hive.BeeBusy || state.CurrentTaskID != taskID {
		t.Fatalf("developer = (%s, %q), want (busy, %s)", state.Status, state.CurrentTaskID, taskID)
	}

	// --- Phase 4: Single occupancy refuses a second task ---
	second, err := c.queen.CreateTask(ctx, hive.TaskSpec{
		Title:          "Backfill export fixtures",
		Priority:       hive.PriorityMedium,
		EstimatedHours: 1,
		CreatedBy:      c.cfg.GatewayName,
	})
	if err != nil {
		t.Fatalf("create second task: %v", err)
	}
	if err := c.queen.Assign(ctx, second.ID, "developer", "backlog for later"); err != nil {
		t.Fatalf("assign second task: %v", err)
	}
	ok, err = dev.Accept(ctx, second.ID)
	if err != nil {
		t.Fatalf("busy accept errored: %v", err)
	}
	if ok {
		t.Fatal("busy developer accepted a second task")
	}
	if got := c.task(t, second.ID); got.Status != hive.StatusPending {
		t.Fatalf("refused task status = %q, want %q", got.Status, hive.StatusPending)
	}

	// --- Phase 5: Progress report ---
	ok, err = dev.ReportProgress(ctx, taskID, 50, "endpoint scaffolding done", nil)
	if err != nil || !ok {
		t.Fatalf("progress = (%v, %v), want (true, nil)", ok, err)
	}
	if state := c.bee(t, "developer"); state.WorkloadScore != 50 {
		t.Fatalf("workload after progress = %.0f, want 50", state.WorkloadScore)
	}

	// --- Phase 6: Completion ---
	// Accept-to-complete wall time is the recorded actual; keep it nonzero.
	time.Sleep(10 * time.Millisecond)
	ok, err = dev.Complete(ctx, taskID, "Export endpoint shipped", worker.Completion{
		Deliverables: []string{"export endpoint", "request validation"},
	})
	if err != nil || !ok {
		t.Fatalf("complete = (%v, %v), want (true, nil)", ok, err)
	}
	done := c.task(t, taskID)
	if done.Status != hive.StatusCompleted {
		t.Fatalf("task status = %q, want %q", done.Status, hive.StatusCompleted)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed task has no completed_at")
	}
	if done.ActualHours == nil || *done.ActualHours <= 0 {
		t.Fatalf("actual hours = %v, want > 0", done.ActualHours)
	}
	if state := c.bee(t, "developer"); state.Status != hive.BeeIdle || state.CurrentTaskID != "" || state.WorkloadScore != 0 {
		t.Fatalf("developer after completion = (%s, %q, %.0f), want (idle, \"\", 0)",
			state.Status, state.CurrentTaskID, state.WorkloadScore)
	}

	// The queen heard every state change.
	qInbox, err := c.store.Inbox(ctx, c.cfg.QueenName, false)
	if err != nil {
		t.Fatalf("queen inbox: %v", err)
	}
	var accepted, progressed, completed bool
	for _, msg := range qInbox {
		if msg.TaskID != taskID || msg.Type != hive.MsgTaskUpdate {
			continue
		}
		switch {
		case strings.HasPrefix(msg.Subject, "Task accepted:"):
			accepted = true
		case strings.HasPrefix(msg.Subject, "Progress 50%:"):
			progressed = true
		case strings.HasPrefix(msg.Subject, "Task completed:"):
			completed = true
		}
	}
	if !accepted || !progressed || !completed {
		t.Errorf("queen inbox missing updates: accepted=%v progressed=%v completed=%v",
			accepted, progressed, completed)
	}

	// The activity trail survives as the audit record.
	activity, err := c.store.Activity(ctx, taskID, 50)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	kinds := make(map[string]bool, len(activity))
	for _, entry := range activity {
		kinds[entry.Type] = true
	}
	for _, want := range []string{"accepted", "progress_update", "completed"} {
		if !kinds[want] {
			t.Errorf("activity trail missing %q (got %v)", want, activity)
		}
	}

	// Every message in this scenario went over the bus.
	stats, err := c.store.ComplianceStats(ctx, c.cfg.ComplianceWindow)
	if err != nil {
		t.Fatalf("compliance stats: %v", err)
	}
	if stats.Total == 0 || stats.RatePct != 100 {
		t.Errorf("compliance = %d/%d (%.1f%%), want 100%%", stats.Compliant, stats.Total, stats.RatePct)
	}

	// --- Phase 7: The freed bee picks up the backlog ---
	ok, err = dev.Accept(ctx, second.ID)
	if err != nil || !ok {
		t.Fatalf("accept after completion = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = dev.Complete(ctx, second.ID, "Fixtures backfilled", worker.Completion{})
	if err != nil || !ok {
		t.Fatalf("complete second = (%v, %v), want (true, nil)", ok, err)
	}
	if got := c.task(t, second.ID); got.Status != hive.StatusCompleted {
		t.Fatalf("second task status = %q, want %q", got.Status, hive.StatusCompleted)
	}
}

// TestE2E_DecomposeCascade verifies that completing the last subtask
// auto-completes the parent and notifies its creator exactly once.
func TestE2E_DecomposeCascade(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	ctx := context.Background()
	c := newColony(t, nil)
	c.registerFleet(t)

	parent, err := c.queen.CreateTask(ctx, hive.TaskSpec{
		Title:          "Release 1.4 hardening",
		Priority:       hive.PriorityHigh,
		EstimatedHours: 6,
		CreatedBy:      c.cfg.GatewayName,
	})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	subs, err := c.queen.Decompose(ctx, parent.ID, []hive.SubtaskSpec{
		{Title: "Fix flaky session teardown", EstimatedHours: 2},
		{Title: "Verify the upgrade path", Priority: hive.PriorityHigh, EstimatedHours: 1},
	})
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("decompose created %d subtasks, want 2", len(subs))
	}
	for _, sub := range subs {
		if sub.ParentID != parent.ID {
			t.Fatalf("subtask %s parent = %q, want %s", sub.ID, sub.ParentID, parent.ID)
		}
	}

	if err := c.queen.Assign(ctx, subs[0].ID, "developer", ""); err != nil {
		t.Fatalf("assign first subtask: %v", err)
	}
	if err := c.queen.Assign(ctx, subs[1].ID, "qa", ""); err != nil {
		t.Fatalf("assign second subtask: %v", err)
	}

	dev := c.agent("developer")
	if ok, err := dev.Accept(ctx, subs[0].ID); err != nil || !ok {
		t.Fatalf("developer accept = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := dev.Complete(ctx, subs[0].ID, "Teardown race fixed", worker.Completion{}); err != nil || !ok {
		t.Fatalf("developer complete = (%v, %v), want (true, nil)", ok, err)
	}
	if err := c.queen.HandleCompletion(ctx, subs[0].ID); err != nil {
		t.Fatalf("handle first completion: %v", err)
	}
	// Decompose moved the parent to in_progress; one open subtask keeps
	// it there.
	if got := c.task(t, parent.ID); got.Status != hive.StatusInProgress {
		t.Fatalf("parent status = %q with one subtask open, want %q", got.Status, hive.StatusInProgress)
	}

	qa := c.agent("qa")
	if ok, err := qa.Accept(ctx, subs[1].ID); err != nil || !ok {
		t.Fatalf("qa accept = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := qa.Complete(ctx, subs[1].ID, "Upgrade path verified", worker.Completion{}); err != nil || !ok {
		t.Fatalf("qa complete = (%v, %v), want (true, nil)", ok, err)
	}
	if err := c.queen.HandleCompletion(ctx, subs[1].ID); err != nil {
		t.Fatalf("handle second completion: %v", err)
	}

	done := c.task(t, parent.ID)
	if done.Status != hive.StatusCompleted {
		t.Fatalf("parent status = %q, want %q", done.Status, hive.StatusCompleted)
	}
	if done.CompletedAt == nil {
		t.Fatal("cascaded parent has no completed_at")
	}

	countNotices := func() int {
		t.Helper()
		inbox, err := c.store.Inbox(ctx, c.cfg.GatewayName, false)
		if err != nil {
			t.Fatalf("creator inbox: %v", err)
		}
		n := 0
		for _, msg := range inbox {
			if msg.TaskID == parent.ID && strings.HasPrefix(msg.Subject, "Task completed:") {
				n++
			}
		}
		return n
	}
	if got := countNotices(); got != 1 {
		t.Fatalf("creator received %d completion notices, want 1", got)
	}

	// A replayed completion event must not cascade or notify again.
	if err := c.queen.HandleCompletion(ctx, subs[0].ID); err != nil {
		t.Fatalf("replayed completion errored: %v", err)
	}
	if got := countNotices(); got != 1 {
		t.Fatalf("replay duplicated the notice: %d, want 1", got)
	}
}
