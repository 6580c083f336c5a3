package core

import (
	"context"
)

// ownedQueue is the queue shared by LocalExecutor and ScopeExecutor: a FIFO
// executed only by its owner, with a ready signal for an idle owner.
type ownedQueue struct {
	env   *poolEnv
	queue *jobQueue
	ready chan struct{}
	owner *Worker
}

func newOwnedQueue(env *poolEnv, owner *Worker) ownedQueue {
	return ownedQueue{
		env:   env,
		queue: newJobQueue(),
		ready: make(chan struct{}, 1),
		owner: owner,
	}
}

func (q *ownedQueue) push(j *job) {
	j.schedule()
	q.queue.Push(j)
	select {
	case q.ready <- struct{}{}:
	default:
	}
	if q.owner != nil {
		q.owner.parker.unpark()
	}
}

// tryTick runs one queued job. A popped job that was cancelled in the
// meantime still counts as progress.
func (q *ownedQueue) tryTick(w *Worker) bool {
	j, ok := q.queue.Pop()
	if !ok {
		return false
	}
	if w == nil {
		w = q.owner
	}
	j.execute(w)
	return true
}

func (q *ownedQueue) tickN(w *Worker, n int) int {
	ran := 0
	for ran < n && q.tryTick(w) {
		ran++
	}
	return ran
}

func (q *ownedQueue) cancelQueued(err error) int {
	n := 0
	for _, j := range q.queue.Clear() {
		if j.cancel(err) {
			n++
		}
	}
	return n
}

// LocalExecutor runs work that must stay on one goroutine. Workers tick
// their own executor in every loop iteration; the pool's main-thread
// executor only runs when the host ticks it.
type LocalExecutor struct {
	ownedQueue
}

// NewLocalExecutor creates a standalone executor driven by its caller.
func NewLocalExecutor() *LocalExecutor {
	return newLocalExecutor(standaloneEnv("local"), nil)
}

func newLocalExecutor(env *poolEnv, owner *Worker) *LocalExecutor {
	return &LocalExecutor{ownedQueue: newOwnedQueue(env, owner)}
}

func (e *LocalExecutor) submit(ctx context.Context, j *job) error {
	e.push(j)
	return nil
}

func (e *LocalExecutor) environment() *poolEnv { return e.env }

// Awaiting a local task never ticks the executor on the waiter's behalf;
// only the owner may run it.
func (e *LocalExecutor) waitHelper() helper { return nil }

// TryTick runs one ready task and reports whether there was one.
func (e *LocalExecutor) TryTick() bool {
	return e.tryTick(nil)
}

// TickN runs up to n ready tasks and returns how many ran.
func (e *LocalExecutor) TickN(n int) int {
	return e.tickN(nil, n)
}

// Run ticks the executor until ctx is done, blocking while it is empty.
func (e *LocalExecutor) Run(ctx context.Context) error {
	for {
		for e.tryTick(nil) {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		select {
		case <-e.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Len returns the number of queued tasks.
func (e *LocalExecutor) Len() int {
	return e.queue.Len()
}
