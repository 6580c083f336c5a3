package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// ScopeState is the lifecycle of a scope.
type ScopeState int32

const (
	// ScopeOpen: the body is running and spawns are accepted.
	ScopeOpen ScopeState = iota
	// ScopeClosing: the body returned; the join waits for pending tasks.
	ScopeClosing
	// ScopeClosed: every task finished and results were handed back.
	ScopeClosed
)

func (s ScopeState) String() string {
	switch s {
	case ScopeOpen:
		return "open"
	case ScopeClosing:
		return "closing"
	case ScopeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Scope is the handle passed to a scope body. Every task spawned through it
// finishes before RunScope returns, so tasks may capture the caller's local
// variables. Tasks of the scope may keep spawning into it while they run,
// since their own pending count holds the join open. Once no task is pending
// after the body returned, Spawn panics with ErrScopeClosed.
type Scope[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	pool   *TaskPool

	local    *ScopeExecutor
	external *ScopeExecutor

	state   atomic.Int32
	pending atomic.Int64
	signal  chan struct{}

	mu      sync.Mutex
	results []T
	errs    []error
	jobs    []*job
}

// Spawn runs fn on the pool's GlobalExecutor.
func (s *Scope[T]) Spawn(fn Func[T]) {
	s.spawn(s.pool.global, fn)
}

// SpawnOnScope runs fn on the ScopeExecutor of the goroutine that opened the
// scope; the join drives it.
func (s *Scope[T]) SpawnOnScope(fn Func[T]) {
	s.spawn(s.local, fn)
}

// SpawnOnExternal runs fn on the scope's external executor. The scope only
// completes once that executor's owner ticks it.
func (s *Scope[T]) SpawnOnExternal(fn Func[T]) {
	s.spawn(s.external, fn)
}

// Context returns the scope's context. It is cancelled if the body panics.
func (s *Scope[T]) Context() context.Context { return s.ctx }

// Pending returns the number of spawned tasks that have not finished.
func (s *Scope[T]) Pending() int64 { return s.pending.Load() }

// State returns the scope's lifecycle state.
func (s *Scope[T]) State() ScopeState { return ScopeState(s.state.Load()) }

// reserve counts a new task against the join. A closing scope only accepts
// it while another task is still pending; the CAS keeps a spawn from landing
// after the join observed zero.
func (s *Scope[T]) reserve() bool {
	for {
		state := s.State()
		n := s.pending.Load()
		if state == ScopeClosed || (state == ScopeClosing && n == 0) {
			return false
		}
		if s.pending.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *Scope[T]) spawn(ex Executor, fn Func[T]) {
	if !s.reserve() {
		panic(ErrScopeClosed)
	}

	s.mu.Lock()
	idx := len(s.results)
	var zero T
	s.results = append(s.results, zero)
	s.errs = append(s.errs, nil)
	s.mu.Unlock()

	j := prepare(s.ctx, s.pool.env, fn, nil, func(v T, err error) {
		s.mu.Lock()
		s.results[idx] = v
		s.errs[idx] = err
		s.mu.Unlock()
		s.pending.Add(-1)
		select {
		case s.signal <- struct{}{}:
		default:
		}
	})

	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()

	if err := ex.submit(s.ctx, j); err != nil {
		j.cancel(err)
	}
}

// cancelUnstarted discards every task that has not begun running.
func (s *Scope[T]) cancelUnstarted() {
	s.mu.Lock()
	jobs := append([]*job(nil), s.jobs...)
	s.mu.Unlock()
	for _, j := range jobs {
		j.cancel(ErrTaskCancelled)
	}
	s.cancel()
}

// join blocks until pending reaches zero. The joiner drives its own
// ScopeExecutor and, when tickGlobal is set, helps with the pool's queue.
func (s *Scope[T]) join(tickGlobal bool) {
	w := workerFrom(s.ctx)
	ownPool := w != nil && w.global == s.pool.global
	done := func() bool { return s.pending.Load() == 0 }

	for !done() {
		if s.local.tryTick(w) {
			continue
		}
		if tickGlobal {
			if ownPool {
				// parks in the pool's lounge so new work still reaches us
				_ = w.waitFor(nil, func() bool { return done() || s.local.Len() > 0 }, s.signal)
				continue
			}
			if s.pool.global.helpOnce() {
				continue
			}
		}
		select {
		case <-s.signal:
		case <-s.local.ready:
		}
	}
}

// result returns values in spawn order with the first panic, or else the
// first error, in spawn order.
func (s *Scope[T]) result() ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, err := range s.errs {
		if err == nil {
			continue
		}
		if IsPanic(err) {
			return s.results, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return s.results, firstErr
}

// RunScope opens a scope, runs body, then blocks until every task spawned
// through the scope has finished, driving the caller's ScopeExecutor and
// the pool's global queue meanwhile. Results are returned in spawn order
// together with the first captured panic (or, failing that, the first
// error). If body panics, unstarted tasks are cancelled, running ones are
// awaited, and the panic is re-raised.
func RunScope[T any](ctx context.Context, pool *TaskPool, body func(*Scope[T])) ([]T, error) {
	return RunScopeWithExecutor(ctx, pool, true, nil, body)
}

// RunScopeWithExecutor is RunScope with explicit control: tickGlobal selects
// whether the joiner helps with the pool's global queue, and external is the
// target of Scope.SpawnOnExternal (the caller's ScopeExecutor when nil).
//
// The scope completes only when external is ticked by its owner. Targeting
// an executor that nobody drives deadlocks the caller; this is not detected.
func RunScopeWithExecutor[T any](ctx context.Context, pool *TaskPool, tickGlobal bool, external *ScopeExecutor, body func(*Scope[T])) ([]T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	local := pool.scopeExecutorFor(ctx)
	if external == nil {
		external = local
	}

	scopeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &Scope[T]{
		ctx:      scopeCtx,
		cancel:   cancel,
		pool:     pool,
		local:    local,
		external: external,
		signal:   make(chan struct{}, 1),
	}

	bodyPanic := runBody(s, body)
	s.state.Store(int32(ScopeClosing))
	if bodyPanic != nil {
		s.cancelUnstarted()
	}

	s.join(tickGlobal)
	s.state.Store(int32(ScopeClosed))

	if bodyPanic != nil {
		panic(bodyPanic)
	}
	return s.result()
}

func runBody[T any](s *Scope[T], body func(*Scope[T])) (recovered any) {
	defer func() {
		recovered = recover()
	}()
	body(s)
	return nil
}
