package core

import (
	"context"
	"sync/atomic"
)

// ScopeExecutor accepts work from any goroutine and runs it only on its
// owner: a worker, the goroutine joining a scope, or whoever holds its
// ticker (typically the application's main loop).
type ScopeExecutor struct {
	ownedQueue
	ticking atomic.Bool
}

// NewScopeExecutor creates a standalone executor. Its owner drives it through
// a ticker or by joining a scope that targets it.
func NewScopeExecutor() *ScopeExecutor {
	return newScopeExecutor(standaloneEnv("scope"), nil)
}

func newScopeExecutor(env *poolEnv, owner *Worker) *ScopeExecutor {
	return &ScopeExecutor{ownedQueue: newOwnedQueue(env, owner)}
}

func (e *ScopeExecutor) submit(ctx context.Context, j *job) error {
	e.push(j)
	return nil
}

func (e *ScopeExecutor) environment() *poolEnv { return e.env }

func (e *ScopeExecutor) waitHelper() helper { return nil }

// Len returns the number of queued tasks.
func (e *ScopeExecutor) Len() int {
	return e.queue.Len()
}

// Ready receives after submissions; an idle owner can block on it.
func (e *ScopeExecutor) Ready() <-chan struct{} {
	return e.ready
}

// Ticker claims exclusive tick rights. It fails with ErrTickerInUse while
// another ticker is held.
func (e *ScopeExecutor) Ticker() (*ScopeExecutorTicker, error) {
	if !e.ticking.CompareAndSwap(false, true) {
		return nil, ErrTickerInUse
	}
	return &ScopeExecutorTicker{ex: e}, nil
}

// ScopeExecutorTicker is the owner's handle for draining a ScopeExecutor.
type ScopeExecutorTicker struct {
	ex       *ScopeExecutor
	released atomic.Bool
}

// TryTick runs one ready task.
func (t *ScopeExecutorTicker) TryTick() bool {
	if t.released.Load() {
		return false
	}
	return t.ex.tryTick(nil)
}

// TickN runs up to n ready tasks and returns how many ran.
func (t *ScopeExecutorTicker) TickN(n int) int {
	if t.released.Load() {
		return 0
	}
	return t.ex.tickN(nil, n)
}

// Tick blocks until one task ran or ctx is done.
func (t *ScopeExecutorTicker) Tick(ctx context.Context) error {
	for {
		if t.TryTick() {
			return nil
		}
		if t.released.Load() {
			return ErrTickerInUse
		}
		select {
		case <-t.ex.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release gives the tick rights back.
func (t *ScopeExecutorTicker) Release() {
	if t.released.CompareAndSwap(false, true) {
		t.ex.ticking.Store(false)
	}
}
