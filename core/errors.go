package core

import (
	"fmt"
	"runtime/debug"

	"github.com/pkg/errors"
)

var (
	// ErrTaskPending is returned by Poll while the task has not finished.
	ErrTaskPending = errors.New("task is still pending")

	// ErrTaskCancelled is returned for tasks that were cancelled before or
	// while running. Cancellation is a terminal state, not a failure.
	ErrTaskCancelled = errors.New("task was cancelled")

	// ErrTaskDetached is returned when a detached handle is observed.
	ErrTaskDetached = errors.New("task handle was detached")

	// ErrPoolClosed is returned for work spawned after the pool was closed.
	ErrPoolClosed = errors.New("task pool is closed")

	// ErrScopeClosed is the panic value used when a scope is spawned into
	// after its body returned.
	ErrScopeClosed = errors.New("scope is closed")

	// ErrTickerInUse is returned when a scope executor's ticker is already held.
	ErrTickerInUse = errors.New("scope executor ticker is already in use")
)

// PanicError carries a panic captured inside a task. It is surfaced as an
// error value when the task is polled, awaited or joined by its scope.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(value any) *PanicError {
	return &PanicError{Value: value, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsPanic reports whether err carries a captured task panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// ConfigError reports an invalid pool configuration. It is returned before
// any task is accepted.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid task pool config: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
