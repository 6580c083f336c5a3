package taskpool

import (
	"context"

	"github.com/Swind/go-task-pool/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskpool package for most use cases.

// Func is a unit of work producing a T.
type Func[T any] = core.Func[T]

// Task is the handle of a spawned computation.
type Task[T any] = core.Task[T]

// Scope is the handle passed to a scope body.
type Scope[T any] = core.Scope[T]

// TaskPool is a single pool with its workers and executors.
type TaskPool = core.TaskPool

// Config configures a single TaskPool.
type Config = core.Config

// BackendKind selects the execution model.
type BackendKind = core.BackendKind

// Backend constants
const (
	BackendDefault     = core.BackendDefault
	BackendThreaded    = core.BackendThreaded
	BackendCooperative = core.BackendCooperative
	BackendManual      = core.BackendManual
)

// Errors
var (
	ErrTaskPending   = core.ErrTaskPending
	ErrTaskCancelled = core.ErrTaskCancelled
	ErrTaskDetached  = core.ErrTaskDetached
	ErrPoolClosed    = core.ErrPoolClosed
	ErrScopeClosed   = core.ErrScopeClosed
)

// PanicError carries a panic captured inside a task.
type PanicError = core.PanicError

// ConfigError reports an invalid configuration.
type ConfigError = core.ConfigError

// NewTaskPool creates a standalone pool outside a Runtime.
func NewTaskPool(cfg Config) (*TaskPool, error) {
	return core.NewTaskPool(cfg)
}

// Spawn runs fn on the pool's global executor.
func Spawn[T any](ctx context.Context, p *TaskPool, fn Func[T]) *Task[T] {
	return core.Spawn(ctx, p, fn)
}

// SpawnLocal runs fn on the caller's local executor.
func SpawnLocal[T any](ctx context.Context, p *TaskPool, fn Func[T]) *Task[T] {
	return core.SpawnLocal(ctx, p, fn)
}

// RunScope runs body and waits for every task it spawned.
func RunScope[T any](ctx context.Context, p *TaskPool, body func(*Scope[T])) ([]T, error) {
	return core.RunScope(ctx, p, body)
}

// RunScopeWithExecutor is RunScope with an explicit external executor.
func RunScopeWithExecutor[T any](ctx context.Context, p *TaskPool, tickGlobal bool, external *core.ScopeExecutor, body func(*Scope[T])) ([]T, error) {
	return core.RunScopeWithExecutor(ctx, p, tickGlobal, external, body)
}

// ParallelMap applies f to every element, preserving input order.
func ParallelMap[In, Out any](ctx context.Context, p *TaskPool, data []In, chunkSize int, f func(In) Out) ([]Out, error) {
	return core.ParallelMap(ctx, p, data, chunkSize, f)
}

// ParallelForEach calls f on every element in place.
func ParallelForEach[In any](ctx context.Context, p *TaskPool, data []In, chunkSize int, f func(int, *In)) error {
	return core.ParallelForEach(ctx, p, data, chunkSize, f)
}
