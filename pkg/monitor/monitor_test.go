package monitor //nolint:testpackage // internal white-box tests need access to unexported fields

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
	"hive/pkg/hive"
	"hive/pkg/store"
)

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

func newTestMonitor(t *testing.T) (*Monitor, *store.Store) {
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
	return New(config.Default(), st, st, &fakeChannel{}), st
}

func enqueue(t *testing.T, st *store.Store, from, to string, compliant bool) hive.Message {
	t.Helper()
	msg, err := st.Enqueue(context.Background(), hive.Envelope{
		From:             from,
		To:               to,
		Type:             hive.MsgConversation,
		Content:          "chatter",
		ChannelCompliant: compliant,
	})
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func inbox(t *testing.T, st *store.Store, to string) []hive.Message {
	t.Helper()
	msgs, err := st.Inbox(context.Background(), to, false)
	if err != nil {
		t.Fatal(err)
	}
	return msgs
}

func countEvents(t *testing.T, st *store.Store, evType string) int {
	t.Helper()
	evs, err := st.Events(context.Background(), "", 200)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, e := range evs {
		if e.Type == evType {
			n++
		}
	}
	return n
}

func TestTickWarnsViolatorOnce(t *testing.T) {
	m, st := newTestMonitor(t)
	ctx := context.Background()

	bad := enqueue(t, st, "developer", "qa", false)

	m.tick(ctx)

	alerts := inbox(t, st, "developer")
	if len(alerts) != 1 {
		t.Fatalf("developer alerts = %d, want 1", len(alerts))
	}
	warn := alerts[0]
	if warn.Type != hive.MsgAlert || warn.Priority != hive.MsgHigh || warn.From != "system" {
		t.Errorf("warning = %+v", warn)
	}
	if !strings.Contains(warn.Content, "qa") {
		t.Errorf("Content = %q, want the bypassed recipient named", warn.Content)
	}
	if countEvents(t, st, "violation_detected") != 1 {
		t.Error("no violation_detected event")
	}
	if m.lastViolationID != bad.ID {
		t.Errorf("watermark = %d, want %d", m.lastViolationID, bad.ID)
	}

	// The watermark keeps the second pass quiet.
	m.tick(ctx)
	if got := inbox(t, st, "developer"); len(got) != 1 {
		t.Errorf("developer alerts after second tick = %d, want still 1", len(got))
	}
}

func TestTickAlertsQueenOnLowCompliance(t *testing.T) {
	m, st := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		enqueue(t, st, "developer", "qa", true)
	}
	enqueue(t, st, "qa", "developer", false)

	m.tick(ctx)

	var rateAlert *hive.Message
	for _, msg := range inbox(t, st, "queen") {
		if strings.Contains(msg.Content, "Compliance rate") {
			found := msg
			rateAlert = &found
		}
	}
	if rateAlert == nil {
		t.Fatal("no compliance alert in queen inbox")
	}
	if !strings.Contains(rateAlert.Content, "75.0%") {
		t.Errorf("Content = %q, want the 75%% rate", rateAlert.Content)
	}
	if countEvents(t, st, "compliance_low") != 1 {
		t.Error("no compliance_low event")
	}
}

func TestTickQuietWhenCompliant(t *testing.T) {
	m, st := newTestMonitor(t)
	ctx := context.Background()

	enqueue(t, st, "developer", "queen", true)
	enqueue(t, st, "qa", "queen", true)

	m.tick(ctx)

	if n := len(inbox(t, st, "developer")); n != 0 {
		t.Errorf("developer alerts = %d, want 0", n)
	}
	for _, msg := range inbox(t, st, "queen") {
		if msg.Type == hive.MsgAlert {
			t.Errorf("unexpected alert: %+v", msg)
		}
	}
}

func TestTickFlagsHighFrequencyPair(t *testing.T) {
	m, st := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		enqueue(t, st, "developer", "qa", true)
	}

	m.tick(ctx)

	if countEvents(t, st, "high_frequency") != 1 {
		t.Fatal("no high_frequency event for six messages on one pair")
	}
	found := false
	for _, msg := range inbox(t, st, "queen") {
		if strings.Contains(msg.Subject, "High Frequency") {
			found = true
		}
	}
	if !found {
		t.Error("no high-frequency alert in queen inbox")
	}
}

func TestTickFlagsRepeatedViolator(t *testing.T) {
	m, st := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		enqueue(t, st, "qa", "developer", false)
	}

	m.tick(ctx)

	if countEvents(t, st, "repeated_violator") != 1 {
		t.Fatal("no repeated_violator event for three violations by one sender")
	}
	found := false
	for _, msg := range inbox(t, st, "queen") {
		if strings.Contains(msg.Subject, "Repeated Protocol Violator") {
			found = true
		}
	}
	if !found {
		t.Error("no repeat-violator alert in queen inbox")
	}
}

func TestTickIgnoresGatewayTraffic(t *testing.T) {
	m, st := newTestMonitor(t)
	ctx := context.Background()

	// Gateway legs are exempt from the violation sweep and patterns.
	for i := 0; i < 7; i++ {
		enqueue(t, st, "beekeeper", "developer", false)
	}

	m.tick(ctx)

	if n := len(inbox(t, st, "beekeeper")); n != 0 {
		t.Errorf("gateway alerts = %d, want 0", n)
	}
	if countEvents(t, st, "high_frequency") != 0 {
		t.Error("gateway traffic counted toward pair frequency")
	}
	if countEvents(t, st, "violation_detected") != 0 {
		t.Error("gateway traffic counted as violations")
	}
}

func TestRecordStatsThrottled(t *testing.T) {
	m, st := newTestMonitor(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return base }

	m.tick(ctx)
	m.tick(ctx)
	if n := countEvents(t, st, "compliance_stats"); n != 1 {
		t.Fatalf("compliance_stats events = %d, want 1 within the window", n)
	}

	m.nowFunc = func() time.Time { return base.Add(statsEvery) }
	m.tick(ctx)
	if n := countEvents(t, st, "compliance_stats"); n != 2 {
		t.Errorf("compliance_stats events = %d, want 2 after the window", n)
	}
}
