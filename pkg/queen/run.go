package queen

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"hive/pkg/hive"
)

// inboxPollInterval is how often the queen drains its own inbox.
const inboxPollInterval = 2 * time.Second

// staleHeartbeats is how many missed heartbeat intervals mark an agent
// offline.
const staleHeartbeats = 3

// Run starts the queen daemon: the assignment sweep loop, the inbox loop,
// and the heartbeat monitor. Run blocks until ctx is cancelled, then marks
// the queen offline and returns.
func (q *Queen) Run(ctx context.Context) error {
	if err := q.bees.UpsertBee(ctx, q.cfg.QueenName, hive.BeeBusy, "", 0); err != nil {
		return err
	}
	_ = q.bees.SetCapabilities(ctx, q.cfg.QueenName, []string{"scheduling", "coordination"})
	_ = q.events.LogEvent(ctx, "queen_started", q.cfg.QueenName, "", q.cfg.QueenName, "")

	go q.sweepLoop(ctx)
	go q.inboxLoop(ctx)
	go q.heartbeatLoop(ctx)

	<-ctx.Done()

	// The run context is gone; use a short detached context for cleanup.
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = q.bees.SetStatus(stopCtx, q.cfg.QueenName, hive.BeeOffline)
	_ = q.events.LogEvent(stopCtx, "queen_stopped", q.cfg.QueenName, "", q.cfg.QueenName, "")
	return nil
}

// sweepLoop triggers assignment sweeps on database-directory changes, with
// interval polling as a safety net. When no watch directory is configured
// or the watcher cannot start, it degrades to pure polling.
func (q *Queen) sweepLoop(ctx context.Context) {
	q.sweep(ctx)

	if q.watchDir == "" {
		q.sweepLoopPoll(ctx)
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		q.sweepLoopPoll(ctx)
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(q.watchDir); err != nil {
		q.sweepLoopPoll(ctx)
		return
	}

	fallbackTicker := time.NewTicker(q.cfg.FallbackSweepInterval)
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-watcher.Events:
			q.sweep(ctx)
		case err := <-watcher.Errors:
			if err != nil {
				_ = q.events.LogEvent(ctx, "watcher_error", q.cfg.QueenName, "", "", err.Error())
			}
		case <-fallbackTicker.C:
			q.sweep(ctx)
		}
	}
}

// sweepLoopPoll is the fallback polling loop when fsnotify is unavailable.
func (q *Queen) sweepLoopPoll(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweep(ctx)
		}
	}
}

// sweep runs one assignment pass plus the stall check.
func (q *Queen) sweep(ctx context.Context) {
	if _, err := q.AutoAssignSweep(ctx); err != nil {
		_ = q.events.LogEvent(ctx, "sweep_error", q.cfg.QueenName, "", "", err.Error())
	}
	if _, err := q.RemindStalled(ctx, staleHeartbeats*q.cfg.SweepInterval); err != nil {
		_ = q.events.LogEvent(ctx, "sweep_error", q.cfg.QueenName, "", "", err.Error())
	}
}

// inboxLoop drains the queen's inbox. Every message is marked processed,
// whether or not its handler succeeded, so one bad message cannot wedge
// the loop.
func (q *Queen) inboxLoop(ctx context.Context) {
	ticker := time.NewTicker(inboxPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drainInbox(ctx)
		}
	}
}

func (q *Queen) drainInbox(ctx context.Context) {
	msgs, err := q.bus.Inbox(ctx, q.cfg.QueenName, false)
	if err != nil {
		_ = q.events.LogEvent(ctx, "inbox_error", q.cfg.QueenName, "", "", err.Error())
		return
	}
	for _, msg := range msgs {
		if err := q.handleMessage(ctx, msg); err != nil {
			_ = q.events.LogEvent(ctx, "handle_error", q.cfg.QueenName, msg.TaskID, msg.From, err.Error())
		}
		if err := q.bus.MarkProcessed(ctx, msg.ID); err != nil {
			_ = q.events.LogEvent(ctx, "mark_error", q.cfg.QueenName, msg.TaskID, msg.From, err.Error())
		}
	}
}

// handleMessage reacts to one inbox message.
func (q *Queen) handleMessage(ctx context.Context, msg hive.Message) error {
	switch msg.Type {
	case hive.MsgTaskUpdate:
		if msg.TaskID == "" {
			return nil
		}
		if err := q.HandleCompletion(ctx, msg.TaskID); err != nil {
			return err
		}
		// Completions free capacity; sweep immediately instead of
		// waiting for the next tick.
		_, err := q.AutoAssignSweep(ctx)
		return err
	case hive.MsgRequest:
		return q.answerStatusRequest(ctx, msg)
	default:
		// Alerts and notifications are informational.
		return nil
	}
}

// answerStatusRequest replies to a request with a one-line colony summary.
func (q *Queen) answerStatusRequest(ctx context.Context, msg hive.Message) error {
	report, err := q.ReviewProgress(ctx)
	if err != nil {
		return err
	}
	counts := map[hive.TaskStatus]int{}
	for _, sc := range report.Tasks {
		counts[sc.Status] = sc.Count
	}
	q.send(ctx, hive.Envelope{
		To:             msg.From,
		Type:           hive.MsgResponse,
		Subject:        "Re: " + msg.Subject,
		Content:        formatSummary(counts, report.Unassigned),
		ConversationID: msg.ConversationID,
		TaskID:         msg.TaskID,
	})
	return nil
}

func formatSummary(counts map[hive.TaskStatus]int, unassigned int) string {
	return fmt.Sprintf("Colony status: %d pending, %d in progress, %d completed, %d unassigned",
		counts[hive.StatusPending], counts[hive.StatusInProgress], counts[hive.StatusCompleted], unassigned)
}

// heartbeatLoop refreshes the queen's own heartbeat and marks agents whose
// heartbeats have gone stale as offline.
func (q *Queen) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.checkHeartbeats(ctx)
		}
	}
}

func (q *Queen) checkHeartbeats(ctx context.Context) {
	_ = q.bees.Heartbeat(ctx, q.cfg.QueenName)

	cutoff := q.nowFunc().Add(-staleHeartbeats * q.cfg.HeartbeatInterval)
	stale, err := q.bees.StaleBees(ctx, cutoff)
	if err != nil {
		_ = q.events.LogEvent(ctx, "heartbeat_error", q.cfg.QueenName, "", "", err.Error())
		return
	}
	for _, b := range stale {
		if b.Name == q.cfg.QueenName {
			continue
		}
		if err := q.bees.SetStatus(ctx, b.Name, hive.BeeOffline); err != nil {
			continue
		}
		_ = q.events.LogEvent(ctx, "bee_offline", q.cfg.QueenName, "", b.Name,
			"no heartbeat since "+b.LastHeartbeat.Format(time.RFC3339))
	}
}
