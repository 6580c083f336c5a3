package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// Func is a unit of work producing a T. The context carries the spawner's
// values and cancellation, plus the executing worker when there is one.
type Func[T any] func(ctx context.Context) (T, error)

// TaskState is the lifecycle state of a task.
type TaskState int32

const (
	// TaskPending: created, not yet handed to an executor.
	TaskPending TaskState = iota
	// TaskScheduled: sitting in exactly one queue.
	TaskScheduled
	// TaskRunning: popped and executing.
	TaskRunning
	// TaskCompleted: finished with a value, an error or a captured panic.
	TaskCompleted
	// TaskCancelled: discarded before running, or its result was dropped.
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskScheduled:
		return "scheduled"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Task is the handle of a spawned computation.
//
// Cancellation is cooperative: Cancel before the task starts discards it;
// Cancel while it runs lets it finish and drops the result. Detach gives up
// the handle and lets the task run unobserved.
type Task[T any] struct {
	j    *job
	done chan struct{}

	// written once before done is closed
	value     T
	err       error
	cancelled bool

	detached atomic.Bool

	// mu orders a Cancel on a running task against publishing its result.
	mu        sync.Mutex
	dropValue bool

	// helper drives the task's executor when the waiter is not a worker and
	// nothing else will (manual backend, zero-worker pools).
	helper helper
}

func newTask[T any](ctx context.Context, env *poolEnv, fn Func[T]) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	t.j = prepare(ctx, env, fn, &t.detached, t.complete)
	return t
}

func (t *Task[T]) complete(v T, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.dropValue:
		t.err, t.cancelled = ErrTaskCancelled, true
	case t.j.State() == TaskCancelled:
		t.err, t.cancelled = err, true
	default:
		t.value, t.err = v, err
	}
	close(t.done)
}

// State reports the current lifecycle state.
func (t *Task[T]) State() TaskState {
	select {
	case <-t.done:
		if t.cancelled {
			return TaskCancelled
		}
		return TaskCompleted
	default:
	}
	s := t.j.State()
	if s == TaskCompleted || s == TaskCancelled {
		// result is being published
		return TaskRunning
	}
	return s
}

// IsFinished reports whether the result (or cancellation) is observable.
func (t *Task[T]) IsFinished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done is closed once the task reaches a terminal state.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Poll returns the result without blocking. It returns ErrTaskPending while
// the task is unfinished, ErrTaskCancelled (or the cancelling error) for a
// cancelled task and a *PanicError when the computation panicked.
func (t *Task[T]) Poll() (T, error) {
	var zero T
	if t.detached.Load() {
		return zero, ErrTaskDetached
	}
	select {
	case <-t.done:
		return t.value, t.err
	default:
		return zero, ErrTaskPending
	}
}

// Await blocks until the task finishes or ctx is done. A worker awaiting a
// task keeps running other ready work of its pool in the meantime.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	var zero T
	if t.detached.Load() {
		return zero, ErrTaskDetached
	}
	if err := waitDone(ctx, t.done, t.helper); err != nil {
		return zero, err
	}
	return t.value, t.err
}

// Detach relinquishes the handle. The task still runs; a panic inside it
// goes to the pool's PanicHandler and is otherwise lost.
func (t *Task[T]) Detach() {
	t.detached.Store(true)
}

// Cancel requests cancellation. It reports true when the computation was
// prevented from starting. A running task completes but its result is
// replaced by ErrTaskCancelled.
func (t *Task[T]) Cancel() bool {
	if t.j.cancel(ErrTaskCancelled) {
		return true
	}
	t.mu.Lock()
	if !t.IsFinished() {
		t.dropValue = true
	}
	t.mu.Unlock()
	return false
}

// finishedTask returns a task already cancelled with err.
func finishedTask[T any](err error) *Task[T] {
	t := &Task[T]{done: make(chan struct{}), err: err, cancelled: true}
	t.j = &job{}
	t.j.state.Store(int32(TaskCancelled))
	close(t.done)
	return t
}

// waitDone blocks until done is closed, helping along the way: a worker
// runs its pool's ready jobs, other callers use the fallback helper.
func waitDone(ctx context.Context, done <-chan struct{}, fallback helper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if w := workerFrom(ctx); w != nil {
		return w.waitUntil(ctx, done)
	}
	for {
		select {
		case <-done:
			return nil
		default:
		}
		if fallback != nil && fallback.helpOnce() {
			continue
		}
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
