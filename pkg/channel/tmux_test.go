package channel //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"hive/pkg/hive"
)

// noopSleep is a no-op sleeper for tests to avoid real delays.
func noopSleep(time.Duration) {}

// fakeCmd records exec calls for testing without real tmux. Errors are
// injected per tmux subcommand because buffer names vary per call.
type fakeCmd struct {
	calls   [][]string // each call is [name, arg1, arg2, ...]
	failSub map[string]error
}

func newFakeCmd() *fakeCmd {
	return &fakeCmd{failSub: make(map[string]error)}
}

func (f *fakeCmd) Run(name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if len(args) > 0 {
		if err, ok := f.failSub[args[0]]; ok {
			return "", err
		}
	}
	return "", nil
}

// subCalls returns the recorded tmux calls matching the given subcommand.
func (f *fakeCmd) subCalls(subcmd string) [][]string {
	var out [][]string
	for _, call := range f.calls {
		if len(call) >= 2 && call[0] == "tmux" && call[1] == subcmd {
			out = append(out, call)
		}
	}
	return out
}

// callHasArgPair checks whether a call slice contains arg followed by val.
func callHasArgPair(call []string, arg, val string) bool {
	for i, a := range call {
		if a == arg && i+1 < len(call) && call[i+1] == val {
			return true
		}
	}
	return false
}

// memLog collects delivery entries in memory.
type memLog struct {
	entries []hive.DeliveryEntry
}

func (l *memLog) AppendDelivery(_ context.Context, e hive.DeliveryEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func newTestTmux(fake *fakeCmd, log *memLog) *Tmux {
	t := NewTmux("hive")
	t.Runner = fake
	t.Sleeper = noopSleep
	if log != nil {
		t.Log = log
	}
	return t
}

func TestDeliverPastesAndSubmits(t *testing.T) {
	fake := newFakeCmd()
	log := &memLog{}
	ch := newTestTmux(fake, log)

	err := ch.Deliver(context.Background(), "hive:developer", "do the thing")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if n := len(fake.subCalls("set-buffer")); n != 1 {
		t.Errorf("set-buffer calls = %d, want 1", n)
	}
	pastes := fake.subCalls("paste-buffer")
	if len(pastes) != 1 {
		t.Fatalf("paste-buffer calls = %d, want 1", len(pastes))
	}
	if !callHasArgPair(pastes[0], "-t", "hive:developer") {
		t.Errorf("paste-buffer call missing target: %v", pastes[0])
	}
	enters := fake.subCalls("send-keys")
	if len(enters) != 1 || enters[0][len(enters[0])-1] != "Enter" {
		t.Errorf("send-keys calls = %v, want one Enter", enters)
	}

	if len(log.entries) != 1 || !log.entries[0].Success {
		t.Errorf("delivery log = %+v, want one success entry", log.entries)
	}
}

func TestDeliverChunksLongPayloads(t *testing.T) {
	fake := newFakeCmd()
	ch := newTestTmux(fake, nil)
	ch.ChunkSize = 5

	// Multibyte text: chunks must split on rune boundaries.
	payload := "実装をお願いします" // 9 runes
	if err := ch.Deliver(context.Background(), "hive:developer", payload); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	sets := fake.subCalls("set-buffer")
	if len(sets) != 2 {
		t.Fatalf("set-buffer calls = %d, want 2 chunks", len(sets))
	}
	var rejoined string
	for _, call := range sets {
		rejoined += call[len(call)-1]
	}
	if rejoined != payload {
		t.Errorf("rejoined chunks = %q, want %q", rejoined, payload)
	}
	for _, call := range sets {
		if n := len([]rune(call[len(call)-1])); n > 5 {
			t.Errorf("chunk %q is %d runes, want <= 5", call[len(call)-1], n)
		}
	}

	// One Enter at the end, not one per chunk.
	if n := len(fake.subCalls("send-keys")); n != 1 {
		t.Errorf("send-keys calls = %d, want 1", n)
	}
}

func TestDeliverRetriesThenChannelError(t *testing.T) {
	fake := newFakeCmd()
	fake.failSub["paste-buffer"] = fmt.Errorf("no such window")
	log := &memLog{}
	ch := newTestTmux(fake, log)
	ch.MaxRetries = 2

	err := ch.Deliver(context.Background(), "hive:ghost", "hello")
	var cerr *hive.ChannelError
	if !errors.As(err, &cerr) {
		t.Fatalf("Deliver = %v, want *hive.ChannelError", err)
	}
	if cerr.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", cerr.Attempts)
	}
	if !hive.IsRetryable(err) {
		t.Error("IsRetryable = false, want true for channel errors")
	}

	if len(log.entries) != 2 {
		t.Fatalf("delivery log = %d entries, want 2 failures", len(log.entries))
	}
	for _, e := range log.entries {
		if e.Success || e.Error == "" {
			t.Errorf("entry = %+v, want recorded failure", e)
		}
	}
}

func TestDeliverMissingSession(t *testing.T) {
	fake := newFakeCmd()
	fake.failSub["has-session"] = fmt.Errorf("no server running")
	ch := newTestTmux(fake, nil)

	err := ch.Deliver(context.Background(), "hive:developer", "hello")
	var cerr *hive.ChannelError
	if !errors.As(err, &cerr) {
		t.Fatalf("Deliver = %v, want *hive.ChannelError", err)
	}
	// No paste must be attempted without a session.
	if n := len(fake.subCalls("paste-buffer")); n != 0 {
		t.Errorf("paste-buffer calls = %d, want 0", n)
	}
}

func TestDeliverHonorsCancellation(t *testing.T) {
	fake := newFakeCmd()
	ch := newTestTmux(fake, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ch.Deliver(ctx, "hive:developer", "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Deliver = %v, want context.Canceled", err)
	}
}

func TestEnsureSession(t *testing.T) {
	t.Run("creates one window per agent", func(t *testing.T) {
		fake := newFakeCmd()
		fake.failSub["has-session"] = fmt.Errorf("no session")
		ch := newTestTmux(fake, nil)

		if err := ch.EnsureSession([]string{"developer", "qa", "analyst"}); err != nil {
			t.Fatalf("EnsureSession: %v", err)
		}
		created := fake.subCalls("new-session")
		if len(created) != 1 || !callHasArgPair(created[0], "-n", "developer") {
			t.Errorf("new-session = %v, want first window developer", created)
		}
		windows := fake.subCalls("new-window")
		if len(windows) != 2 {
			t.Fatalf("new-window calls = %d, want 2", len(windows))
		}
		if !callHasArgPair(windows[0], "-n", "qa") || !callHasArgPair(windows[1], "-n", "analyst") {
			t.Errorf("new-window calls = %v", windows)
		}
	})

	t.Run("existing session untouched", func(t *testing.T) {
		fake := newFakeCmd()
		ch := newTestTmux(fake, nil)
		if err := ch.EnsureSession([]string{"developer"}); err != nil {
			t.Fatalf("EnsureSession: %v", err)
		}
		if n := len(fake.subCalls("new-session")); n != 0 {
			t.Errorf("new-session calls = %d, want 0", n)
		}
	})
}

func TestSanitizePayload(t *testing.T) {
	t.Parallel()
	got := sanitizePayload("line one\r\nline two\rline three\x00")
	want := "line one\nline two\nline three"
	if got != want {
		t.Errorf("sanitizePayload = %q, want %q", got, want)
	}
}

func TestRenderMessage(t *testing.T) {
	t.Parallel()
	m := hive.Message{
		From: "queen", To: "developer", Type: hive.MsgInstruction,
		Subject: "New assignment", Content: "Build the importer",
		Priority: hive.MsgHigh, TaskID: "task-1",
	}
	out := RenderMessage(m)
	for _, want := range []string{"[HIVE] INSTRUCTION from queen", "New assignment", "Priority: high", "Task: task-1", "Build the importer"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderMessage missing %q:\n%s", want, out)
		}
	}
}
