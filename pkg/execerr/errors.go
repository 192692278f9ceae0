// Package execerr classifies execution errors: configuration problems,
// action failures, timeouts, and engine-internal faults. Cancellation is
// deliberately absent; it is a terminal run status, not an error class.
package execerr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidDefinition marks configuration errors: invalid DAG shape,
	// dangling edges, unknown action types, malformed conditions. Detected
	// before execution starts and never retried.
	ErrInvalidDefinition = errors.New("invalid definition")

	// ErrActionTimeout marks an attempt that exceeded its deadline. Terminal
	// for that attempt; the retry policy does not apply.
	ErrActionTimeout = errors.New("action timed out")

	// ErrEngineInternal marks faults of the engine itself (storage
	// unavailable, executor missing at run time). The current run is failed
	// with this marker so it cannot be mistaken for a node failure.
	ErrEngineInternal = errors.New("engine internal error")
)

// ConfigError wraps a configuration problem with the definition it was
// found in.
type ConfigError struct {
	Entity string // "job" or "flow"
	ID     string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %s: %v", e.Entity, e.ID, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidDefinition || errors.Is(e.Err, target)
}

// NewConfigError wraps err as a configuration error for the given entity.
func NewConfigError(entity, id string, err error) *ConfigError {
	return &ConfigError{Entity: entity, ID: id, Err: err}
}

// ActionError wraps a failure reported by an action executor. Recoverable
// per the owning job's retry policy.
type ActionError struct {
	JobID      string
	ActionType string
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action of job %s failed: %v", e.ActionType, e.JobID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// NewActionError wraps err as an action failure.
func NewActionError(jobID, actionType string, err error) *ActionError {
	return &ActionError{JobID: jobID, ActionType: actionType, Err: err}
}

// NewTimeoutError builds the timeout marker for one attempt.
func NewTimeoutError(jobID string, err error) error {
	return fmt.Errorf("job %s: %w: %w", jobID, ErrActionTimeout, err)
}

// NewEngineError wraps an engine-internal fault with the failing operation.
func NewEngineError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrEngineInternal, op, err)
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrInvalidDefinition)
}

// IsTimeout reports whether err is a deadline overrun, either classified
// by an executor or raw from the context.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrActionTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsEngine reports whether err is an engine-internal fault.
func IsEngine(err error) bool {
	return errors.Is(err, ErrEngineInternal)
}

// IsCancelled reports whether err stems from cooperative cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
