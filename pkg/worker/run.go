package worker

import (
	"context"
	"time"

	"hive/pkg/hive"
)

// inboxPollInterval is how often the agent drains its inbox and checks for
// pending assignments.
const inboxPollInterval = 2 * time.Second

// Run starts the worker daemon: registration, the heartbeat, and the inbox
// loop. Run blocks until ctx is cancelled, then marks the agent offline
// and returns.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.bees.UpsertBee(ctx, a.name, hive.BeeIdle, "", 0); err != nil {
		return err
	}
	_ = a.bees.SetCapabilities(ctx, a.name, a.role.Capabilities)
	_ = a.events.LogEvent(ctx, "worker_started", a.name, "", a.name, a.role.Specialty)

	heartbeat := time.NewTicker(a.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	inbox := time.NewTicker(inboxPollInterval)
	defer inbox.Stop()

	for {
		select {
		case <-ctx.Done():
			// The run context is gone; use a short detached context for
			// cleanup.
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = a.bees.SetStatus(stopCtx, a.name, hive.BeeOffline)
			_ = a.events.LogEvent(stopCtx, "worker_stopped", a.name, "", a.name, "")
			return nil
		case <-heartbeat.C:
			_ = a.bees.Heartbeat(ctx, a.name)
		case <-inbox.C:
			a.drainInbox(ctx)
			a.claimBacklog(ctx)
		}
	}
}

// drainInbox processes every unread message. Each one is marked processed
// whether or not its handler succeeded, so one bad message cannot wedge
// the loop.
func (a *Agent) drainInbox(ctx context.Context) {
	msgs, err := a.bus.Inbox(ctx, a.name, false)
	if err != nil {
		_ = a.events.LogEvent(ctx, "inbox_error", a.name, "", a.name, err.Error())
		return
	}
	for _, msg := range msgs {
		if err := a.handleMessage(ctx, msg); err != nil {
			_ = a.events.LogEvent(ctx, "handle_error", a.name, msg.TaskID, msg.From, err.Error())
		}
		if err := a.bus.MarkProcessed(ctx, msg.ID); err != nil {
			_ = a.events.LogEvent(ctx, "mark_error", a.name, msg.TaskID, msg.From, err.Error())
		}
	}
}

// handleMessage reacts to one inbox message.
func (a *Agent) handleMessage(ctx context.Context, msg hive.Message) error {
	switch msg.Type {
	case hive.MsgTaskUpdate:
		// Assignment notices from the queen are auto-accepted when idle.
		// A busy agent leaves the task in the store; claimBacklog picks
		// it up once occupancy frees.
		if msg.From != a.cfg.QueenName || msg.TaskID == "" {
			return nil
		}
		if _, busy := a.Current(); busy {
			return nil
		}
		_, err := a.Accept(ctx, msg.TaskID)
		return err
	case hive.MsgRequest:
		a.send(ctx, hive.Envelope{
			To:             msg.From,
			Type:           hive.MsgResponse,
			Subject:        "Re: " + msg.Subject,
			Content:        "Request acknowledged. I will prioritize this work.",
			Priority:       hive.MsgNormal,
			TaskID:         msg.TaskID,
			ConversationID: msg.ConversationID,
		})
		return nil
	case hive.MsgResponse:
		if cur, _ := a.Current(); msg.TaskID != "" && msg.TaskID == cur {
			_ = a.tasks.LogActivity(ctx, msg.TaskID, a.name, "guidance_received",
				"Guidance from "+msg.From+": "+msg.Content, "")
		}
		return nil
	default:
		// Alerts and notifications are informational.
		return nil
	}
}

// claimBacklog accepts the highest-priority pending assignment when idle.
// Assignment notices can arrive while the agent is busy; the store row,
// not the notice, is authoritative.
func (a *Agent) claimBacklog(ctx context.Context) {
	if _, busy := a.Current(); busy {
		return
	}
	pending, err := a.tasks.TasksByBee(ctx, a.name, hive.StatusPending)
	if err != nil || len(pending) == 0 {
		return
	}
	_, _ = a.Accept(ctx, pending[0].ID)
}
