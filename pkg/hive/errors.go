package hive

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents malformed input: the field, the offending
// value, and why it was rejected. It enables typed discrimination via
// errors.As and surfaces immediately to the caller — the input must be
// fixed, not retried.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// NotFoundError represents a missing task or agent. Available lists the
// known names when the lookup was against a closed set (agent names).
type NotFoundError struct {
	Kind      string // "task", "bee", "message"
	ID        string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) > 0 {
		return fmt.Sprintf("%s %s not found (available: %s)", e.Kind, e.ID, strings.Join(e.Available, ", "))
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError represents a lost write race or a double mutation: already
// assigned, already busy, actuals already recorded. The losing writer must
// abort its operation rather than overwrite.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Reason)
}

// WorkflowStateError represents an illegal task state transition. It names
// the current state, the attempted operation, and the reason.
type WorkflowStateError struct {
	CurrentState string
	Operation    string
	Reason       string
}

func (e *WorkflowStateError) Error() string {
	return fmt.Sprintf("workflow state error in %s (current state: %s): %s", e.Operation, e.CurrentState, e.Reason)
}

// WorkflowError represents a scheduler-level policy failure: a workload
// gate under strict enforcement, or an aggregated decompose failure.
// Details carries the per-item failures of an aggregate.
type WorkflowError struct {
	Op      string
	Reason  string
	Details []string
}

func (e *WorkflowError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s [%s]", e.Op, e.Reason, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// ChannelError represents a Terminal Channel delivery failure after all
// retries were exhausted. It is the only retryable kind in the taxonomy;
// callers degrade it to a logged "recorded but undelivered" outcome.
type ChannelError struct {
	Target   string
	Attempts int
	Err      error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel delivery to %s failed after %d attempts: %v", e.Target, e.Attempts, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// PersistenceError represents a store operation failure. It aborts the
// current operation entirely and is never silently swallowed — downstream
// state depends on the write having succeeded.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsRetryable reports whether err may be retried. Only channel delivery
// failures qualify; everything else requires the caller to fix input or
// state first.
func IsRetryable(err error) bool {
	var c *ChannelError
	return errors.As(err, &c)
}
