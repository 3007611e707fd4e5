package channel

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"hive/pkg/hive"
)

// interChunkDelay is the pause between pasted chunks so the receiving TUI
// drains its input buffer before the next chunk arrives.
const interChunkDelay = 500 * time.Millisecond

// settleDelay is the pause between the last chunk and Enter. Pasting and
// submitting in the same instant loses the tail of the paste on slow
// terminals.
const settleDelay = 1 * time.Second

// enterRetries is how many times Enter is re-sent before the attempt is
// abandoned.
const enterRetries = 3

// Tmux delivers payloads into tmux windows using set-buffer + paste-buffer.
// paste-buffer transfers text without key interpretation, so payloads with
// newlines and special characters arrive intact; only the final Enter
// submits.
type Tmux struct {
	Session    string
	Runner     CmdRunner
	Log        DeliveryLogger      // optional; attempts are recorded when set
	ChunkSize  int                 // payload split size in runes; 0 means 4000
	MaxRetries int                 // full delivery attempts; 0 means 3
	RetryDelay time.Duration       // pause between attempts; 0 means 1s
	Sleeper    func(time.Duration) // optional; overrides time.Sleep for testing

	bufSeq atomic.Int64
}

var _ Channel = (*Tmux)(nil)

// NewTmux returns a Tmux channel with the default ExecRunner.
func NewTmux(session string) *Tmux {
	return &Tmux{Session: session, Runner: &ExecRunner{}}
}

// Exists checks whether the channel's tmux session is running.
func (t *Tmux) Exists() bool {
	_, err := t.Runner.Run("tmux", "has-session", "-t", t.Session)
	return err == nil
}

// EnsureSession creates the session with one window per agent. Existing
// sessions are left untouched.
func (t *Tmux) EnsureSession(agents []string) error {
	if len(agents) == 0 {
		return &hive.ValidationError{Field: "agents", Value: "", Reason: "at least one window is required"}
	}
	if t.Exists() {
		return nil
	}
	if _, err := t.Runner.Run("tmux", "new-session", "-d", "-s", t.Session, "-n", agents[0]); err != nil {
		return fmt.Errorf("tmux new-session: %w", err)
	}
	for _, name := range agents[1:] {
		if _, err := t.Runner.Run("tmux", "new-window", "-t", t.Session, "-n", name); err != nil {
			return fmt.Errorf("tmux new-window %s: %w", name, err)
		}
	}
	return nil
}

// Kill destroys the channel's tmux session.
func (t *Tmux) Kill() error {
	if _, err := t.Runner.Run("tmux", "kill-session", "-t", t.Session); err != nil {
		return fmt.Errorf("tmux kill-session: %w", err)
	}
	return nil
}

// Deliver injects payload into the target window and submits it with
// Enter. Each full attempt is recorded in the delivery log; after
// MaxRetries failures the caller receives a ChannelError wrapping the last
// cause.
func (t *Tmux) Deliver(ctx context.Context, target, payload string) error {
	payload = sanitizePayload(payload)

	retries := t.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	delay := t.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			if err := t.sleep(ctx, delay); err != nil {
				return err
			}
		}
		err := t.deliverOnce(ctx, target, payload)
		t.logAttempt(ctx, target, payload, err)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return &hive.ChannelError{Target: target, Attempts: retries, Err: lastErr}
}

func (t *Tmux) deliverOnce(ctx context.Context, target, payload string) error {
	if _, err := t.Runner.Run("tmux", "has-session", "-t", t.Session); err != nil {
		return fmt.Errorf("tmux has-session %s: %w", t.Session, err)
	}

	chunkSize := t.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 4000
	}
	chunks := chunkPayload(payload, chunkSize)
	for i, chunk := range chunks {
		buf := fmt.Sprintf("hive-%d", t.bufSeq.Add(1))
		if _, err := t.Runner.Run("tmux", "set-buffer", "-b", buf, chunk); err != nil {
			return fmt.Errorf("tmux set-buffer: %w", err)
		}
		// -d frees the buffer after the paste.
		if _, err := t.Runner.Run("tmux", "paste-buffer", "-d", "-b", buf, "-t", target); err != nil {
			return fmt.Errorf("tmux paste-buffer to %s: %w", target, err)
		}
		if i < len(chunks)-1 {
			if err := t.sleep(ctx, interChunkDelay); err != nil {
				return err
			}
		}
	}

	if err := t.sleep(ctx, settleDelay); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < enterRetries; attempt++ {
		if attempt > 0 {
			if err := t.sleep(ctx, 200*time.Millisecond); err != nil {
				return err
			}
		}
		if _, err := t.Runner.Run("tmux", "send-keys", "-t", target, "Enter"); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("send Enter to %s after %d attempts: %w", target, enterRetries, lastErr)
}

func (t *Tmux) logAttempt(ctx context.Context, target, payload string, attemptErr error) {
	if t.Log == nil {
		return
	}
	e := hive.DeliveryEntry{Target: target, Payload: payload, Success: attemptErr == nil}
	if attemptErr != nil {
		e.Error = attemptErr.Error()
	}
	_ = t.Log.AppendDelivery(ctx, e)
}

// sleep pauses for d, honoring context cancellation. The Sleeper override
// makes delivery tests instantaneous.
func (t *Tmux) sleep(ctx context.Context, d time.Duration) error {
	if t.Sleeper != nil {
		t.Sleeper(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sanitizePayload strips carriage returns and NULs. Newlines stay: the
// paste path transfers them literally.
func sanitizePayload(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\x00", "")
}

// chunkPayload splits text into rune-bounded chunks so multibyte
// characters never straddle a paste.
func chunkPayload(text string, size int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
