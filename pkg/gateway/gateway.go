// Package gateway implements the conversation gateway: the boundary where
// operator input enters the hive. Every instruction is classified,
// recorded on the message bus, optionally turned into a task, and only
// then forwarded over the terminal channel. The recorded message is the
// durable outcome; forwarding is best-effort.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"hive/pkg/channel"
	"hive/pkg/config"
	"hive/pkg/hive"
)

// Broadcast is the target token addressing every configured agent.
const Broadcast = "all"

// Gateway records and forwards operator instructions.
type Gateway struct {
	cfg    config.Config
	tasks  hive.TaskStore
	bus    hive.MessageBus
	events hive.EventLog
	ch     channel.Channel // optional; nil means record-only

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates a Gateway.
func New(cfg config.Config, tasks hive.TaskStore, bus hive.MessageBus, events hive.EventLog, ch channel.Channel) *Gateway {
	return &Gateway{
		cfg:     cfg.WithDefaults(),
		tasks:   tasks,
		bus:     bus,
		events:  events,
		ch:      ch,
		nowFunc: time.Now,
	}
}

// Name returns the gateway's bus identity.
func (g *Gateway) Name() string { return g.cfg.GatewayName }

// InterceptResult reports what one intercept recorded.
type InterceptResult struct {
	Message   hive.Message    `json:"message"`
	Type      InstructionType `json:"type"`
	Task      *hive.Task      `json:"task,omitempty"` // set when the text auto-generated a task
	Delivered int             `json:"delivered"`      // targets reached over the terminal channel
}

// Intercept takes one operator instruction addressed to an agent or to
// Broadcast: classify, record on the bus, auto-create a task when the text
// asks for concrete work, then forward to each resolved target. Only a
// failure to record is an error; task creation and forwarding failures are
// logged and the intercept still counts.
func (g *Gateway) Intercept(ctx context.Context, text, target string) (InterceptResult, error) {
	if strings.TrimSpace(text) == "" {
		return InterceptResult{}, &hive.ValidationError{Field: "text", Value: "", Reason: "instruction must not be blank"}
	}
	if target == "" {
		target = Broadcast
	}

	kind := Classify(text)
	msg, err := g.bus.Enqueue(ctx, hive.Envelope{
		From:             g.cfg.GatewayName,
		To:               target,
		Type:             hive.MsgInstruction,
		Subject:          "Beekeeper Instruction",
		Content:          text,
		Priority:         derivePriority(text, kind),
		ChannelCompliant: true,
	})
	if err != nil {
		return InterceptResult{}, err
	}
	res := InterceptResult{Message: msg, Type: kind}

	if wantsTask(text) {
		res.Task = g.autoCreateTask(ctx, text, target, msg.ConversationID)
	}

	for _, bee := range g.resolveTargets(ctx, target) {
		if g.ch == nil {
			break
		}
		if err := g.deliver(ctx, g.cfg.Window(bee), msg); err != nil {
			_ = g.events.LogEvent(ctx, "delivery_failed", g.cfg.GatewayName, msg.TaskID, bee, err.Error())
			continue
		}
		res.Delivered++
	}
	return res, nil
}

// deliver forwards one message under the configured delivery timeout.
func (g *Gateway) deliver(ctx context.Context, window string, msg hive.Message) error {
	dctx, cancel := context.WithTimeout(ctx, g.cfg.DeliveryTimeout)
	defer cancel()
	return g.ch.Deliver(dctx, window, channel.RenderMessage(msg))
}

// autoCreateTask turns an actionable instruction into a medium-priority
// task. Failure is advisory: the instruction is already recorded.
func (g *Gateway) autoCreateTask(ctx context.Context, text, target, conversationID string) *hive.Task {
	assignTo := target
	if target == Broadcast {
		assignTo = ""
	}
	task, err := g.tasks.CreateTask(ctx, hive.TaskSpec{
		Title:       taskTitle(text),
		Description: text,
		Priority:    hive.PriorityMedium,
		AssignedTo:  assignTo,
		CreatedBy:   g.cfg.GatewayName,
	})
	if err != nil {
		_ = g.events.LogEvent(ctx, "autotask_failed", g.cfg.GatewayName, "", target, err.Error())
		return nil
	}

	meta, _ := json.Marshal(map[string]any{
		"auto_generated":  true,
		"conversation_id": conversationID,
		"source":          "beekeeper_instruction",
	})
	_ = g.tasks.LogActivity(ctx, task.ID, g.cfg.GatewayName, "auto_generated",
		"Task auto-generated from operator instruction", string(meta))
	_ = g.events.LogEvent(ctx, "task_autogenerated", g.cfg.GatewayName, task.ID, assignTo, task.Title)
	return &task
}

// resolveTargets expands Broadcast to the configured agents and drops
// unknown names with a logged event.
func (g *Gateway) resolveTargets(ctx context.Context, target string) []string {
	if target == Broadcast {
		return g.cfg.AgentNames
	}
	if !g.cfg.KnownAgent(target) {
		_ = g.events.LogEvent(ctx, "unknown_target", g.cfg.GatewayName, "", target, "instruction recorded, not forwarded")
		return nil
	}
	return []string{target}
}

// BeeTraffic counts one agent's share of recent bus traffic.
type BeeTraffic struct {
	Sent     int `json:"sent"`
	Received int `json:"received"`
}

// Summary is a point-in-time view of conversation traffic.
type Summary struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Compliance  hive.ComplianceStats  `json:"compliance"`
	PerBee      map[string]BeeTraffic `json:"per_bee"`
	RecentCount int                   `json:"recent_count"`
}

// Summarize assembles traffic statistics, optionally narrowed to one
// participant.
func (g *Gateway) Summarize(ctx context.Context, participant string) (Summary, error) {
	compliance, err := g.bus.ComplianceStats(ctx, g.cfg.ComplianceWindow)
	if err != nil {
		return Summary{}, err
	}

	msgs, err := g.bus.History(ctx, hive.HistoryFilter{
		Participant:   participant,
		IncludeSystem: true,
	})
	if err != nil {
		return Summary{}, err
	}

	perBee := make(map[string]BeeTraffic)
	for _, m := range msgs {
		sent := perBee[m.From]
		sent.Sent++
		perBee[m.From] = sent

		recv := perBee[m.To]
		recv.Received++
		perBee[m.To] = recv
	}

	return Summary{
		GeneratedAt: g.nowFunc().UTC(),
		Compliance:  compliance,
		PerBee:      perBee,
		RecentCount: len(msgs),
	}, nil
}
