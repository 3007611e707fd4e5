// Package monitor implements the compliance daemon: a fixed-interval
// auditor of message-bus traffic. Every check is advisory — the monitor
// alerts and logs but never blocks or rejects a message.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hive/pkg/channel"
	"hive/pkg/config"
	"hive/pkg/hive"
)

// identity is the monitor's bus name on alerts it sends.
const identity = "system"

// violationBatch caps how many violations one tick processes.
const violationBatch = 5

// maxPairMessages is the per-window message count between one ordered
// sender/recipient pair above which traffic is flagged as high frequency.
const maxPairMessages = 5

// maxSenderViolations is the per-window violation count for one sender
// above which the sender is flagged as a repeated violator.
const maxSenderViolations = 2

// statsEvery is how often a compliance_stats event is recorded.
const statsEvery = 5 * time.Minute

// Monitor audits bus traffic for channel compliance.
type Monitor struct {
	cfg    config.Config
	bus    hive.MessageBus
	events hive.EventLog
	ch     channel.Channel // optional; nil means bus-only alerts

	// lastViolationID is the high-water mark of alerted violations, so
	// each one is warned exactly once.
	lastViolationID int64
	lastStats       time.Time

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates a Monitor. It does not start the loop — call Run.
func New(cfg config.Config, bus hive.MessageBus, events hive.EventLog, ch channel.Channel) *Monitor {
	return &Monitor{
		cfg:     cfg.WithDefaults(),
		bus:     bus,
		events:  events,
		ch:      ch,
		nowFunc: time.Now,
	}
}

// Run audits on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	_ = m.events.LogEvent(ctx, "monitor_started", identity, "", "", "")

	ticker := time.NewTicker(m.cfg.ComplianceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = m.events.LogEvent(context.Background(), "monitor_stopped", identity, "", "", "")
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one audit pass. The read-only checks go first so the rate and
// patterns reflect the window before this tick's own alerts land. Failures
// in one check never stop the others.
func (m *Monitor) tick(ctx context.Context) {
	if err := m.checkRate(ctx); err != nil {
		_ = m.events.LogEvent(ctx, "monitor_error", identity, "", "", err.Error())
	}
	if err := m.checkPatterns(ctx); err != nil {
		_ = m.events.LogEvent(ctx, "monitor_error", identity, "", "", err.Error())
	}
	if err := m.checkViolations(ctx); err != nil {
		_ = m.events.LogEvent(ctx, "monitor_error", identity, "", "", err.Error())
	}
	m.recordStats(ctx)
}

// checkViolations warns each sender that bypassed the channel, once per
// violating message.
func (m *Monitor) checkViolations(ctx context.Context) error {
	violations, err := m.bus.Violations(ctx, m.cfg.GatewayName, m.lastViolationID, violationBatch)
	if err != nil {
		return err
	}
	for _, v := range violations {
		if v.ID > m.lastViolationID {
			m.lastViolationID = v.ID
		}
		_ = m.events.LogEvent(ctx, "violation_detected", identity, v.TaskID, v.From,
			fmt.Sprintf("message %d to %s", v.ID, v.To))

		m.alert(ctx, v.From, "Communication Protocol Violation", fmt.Sprintf(
			"Your message (ID: %d) to %s was sent without the coordination channel.\n"+
				"All agent communication must go through the message bus.\n"+
				"This violation has been logged for review.", v.ID, v.To))
	}
	return nil
}

// checkRate alerts the queen when rolling compliance drops below the
// configured threshold.
func (m *Monitor) checkRate(ctx context.Context) error {
	stats, err := m.bus.ComplianceStats(ctx, m.cfg.ComplianceWindow)
	if err != nil {
		return err
	}
	if stats.Total == 0 || stats.RatePct >= m.cfg.ComplianceThresholdPct {
		return nil
	}
	_ = m.events.LogEvent(ctx, "compliance_low", identity, "", "",
		fmt.Sprintf("%.1f%% over %d messages", stats.RatePct, stats.Total))

	m.alert(ctx, m.cfg.QueenName, "Communication Protocol Alert", fmt.Sprintf(
		"Compliance rate is %.1f%% over the last %d messages. Expected at least %.0f%%.",
		stats.RatePct, stats.Total, m.cfg.ComplianceThresholdPct))
	return nil
}

// checkPatterns scans the recent window for traffic anomalies: chatty
// ordered pairs and repeat violators.
func (m *Monitor) checkPatterns(ctx context.Context) error {
	msgs, err := m.bus.Recent(ctx, m.cfg.ComplianceWindow)
	if err != nil {
		return err
	}

	type pair struct{ from, to string }
	pairCounts := make(map[pair]int)
	violators := make(map[string]int)
	for _, msg := range msgs {
		// The monitor's own alerts and gateway traffic are not anomalies.
		if msg.From == identity || msg.From == m.cfg.GatewayName || msg.To == m.cfg.GatewayName {
			continue
		}
		pairCounts[pair{msg.From, msg.To}]++
		if !msg.ChannelCompliant {
			violators[msg.From]++
		}
	}

	for p, n := range pairCounts {
		if n <= maxPairMessages {
			continue
		}
		_ = m.events.LogEvent(ctx, "high_frequency", identity, "", p.from,
			fmt.Sprintf("%d messages %s -> %s in window", n, p.from, p.to))
		m.alert(ctx, m.cfg.QueenName, "High Frequency Traffic", fmt.Sprintf(
			"%d messages from %s to %s within the audit window.", n, p.from, p.to))
	}
	for sender, n := range violators {
		if n <= maxSenderViolations {
			continue
		}
		_ = m.events.LogEvent(ctx, "repeated_violator", identity, "", sender,
			fmt.Sprintf("%d violations in window", n))
		m.alert(ctx, m.cfg.QueenName, "Repeated Protocol Violator", fmt.Sprintf(
			"%s has %d channel violations within the audit window.", sender, n))
	}
	return nil
}

// recordStats writes a compliance_stats event at most once per statsEvery.
func (m *Monitor) recordStats(ctx context.Context) {
	now := m.nowFunc()
	if !m.lastStats.IsZero() && now.Sub(m.lastStats) < statsEvery {
		return
	}
	m.lastStats = now

	stats, err := m.bus.ComplianceStats(ctx, m.cfg.ComplianceWindow)
	if err != nil {
		return
	}
	payload, _ := json.Marshal(stats)
	_ = m.events.LogEvent(ctx, "compliance_stats", identity, "", "", string(payload))
}

// alert enqueues a high-priority alert and attempts terminal delivery.
// Failures on either leg are logged and swallowed.
func (m *Monitor) alert(ctx context.Context, to, subject, content string) {
	msg, err := m.bus.Enqueue(ctx, hive.Envelope{
		From:             identity,
		To:               to,
		Type:             hive.MsgAlert,
		Subject:          subject,
		Content:          content,
		Priority:         hive.MsgHigh,
		ChannelCompliant: true,
	})
	if err != nil {
		_ = m.events.LogEvent(ctx, "enqueue_failed", identity, "", to, err.Error())
		return
	}
	if m.ch == nil {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, m.cfg.DeliveryTimeout)
	defer cancel()
	if err := m.ch.Deliver(dctx, m.cfg.Window(to), channel.RenderMessage(msg)); err != nil {
		_ = m.events.LogEvent(ctx, "delivery_failed", identity, "", to, err.Error())
	}
}
