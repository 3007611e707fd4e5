// Package channel implements the terminal delivery channel: rendered
// message payloads injected into each agent's tmux window. Delivery is
// best-effort and advisory; the message bus row is the durable record, so
// a failed delivery never loses coordination state.
package channel

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"hive/pkg/hive"
)

// Channel delivers a rendered payload to an agent's terminal target.
type Channel interface {
	Deliver(ctx context.Context, target, payload string) error
}

// CmdRunner abstracts command execution for testability.
type CmdRunner interface {
	Run(name string, args ...string) (string, error)
}

// ExecRunner implements CmdRunner using os/exec.
type ExecRunner struct{}

// Run executes a command and returns its combined output.
func (e *ExecRunner) Run(name string, args ...string) (string, error) {
	cmd := exec.CommandContext(context.Background(), name, args...)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// DeliveryLogger records delivery attempts. *store.Store satisfies it.
type DeliveryLogger interface {
	AppendDelivery(ctx context.Context, e hive.DeliveryEntry) error
}

// RenderMessage formats a message for terminal injection. The first line
// carries the routing header so a scrolled-back operator can still tell
// who sent what.
func RenderMessage(m hive.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[HIVE] %s from %s", strings.ToUpper(string(m.Type)), m.From)
	if m.Subject != "" {
		fmt.Fprintf(&b, ": %s", m.Subject)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Priority: %s", m.Priority)
	if m.TaskID != "" {
		fmt.Fprintf(&b, " | Task: %s", m.TaskID)
	}
	b.WriteString("\n\n")
	b.WriteString(m.Content)
	return b.String()
}
