package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// helper drives one ready unit of work on behalf of a waiter.
type helper interface {
	helpOnce() bool
}

// Executor is a destination for spawned work: a GlobalExecutor, a
// LocalExecutor or a ScopeExecutor.
type Executor interface {
	submit(ctx context.Context, j *job) error
	environment() *poolEnv
	waitHelper() helper
}

// parker is the wake-up slot of a goroutine sleeping in a lounge.
type parker struct {
	wake   chan struct{}
	parked atomic.Bool
}

func newParker() *parker {
	return &parker{wake: make(chan struct{}, 1)}
}

func (p *parker) unpark() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// lounge tracks parked goroutines. Sleepers register before re-checking
// the queues and submitters publish work before reading the count, so with
// sequentially consistent atomics one side always sees the other.
type lounge struct {
	mu       sync.Mutex
	sleepers []*parker
	count    atomic.Int32
}

func (l *lounge) enter(p *parker) {
	l.mu.Lock()
	l.sleepers = append(l.sleepers, p)
	p.parked.Store(true)
	l.count.Add(1)
	l.mu.Unlock()
}

func (l *lounge) leave(p *parker) {
	if !p.parked.Load() {
		return
	}
	l.mu.Lock()
	for i, s := range l.sleepers {
		if s == p {
			l.sleepers = append(l.sleepers[:i], l.sleepers[i+1:]...)
			p.parked.Store(false)
			l.count.Add(-1)
			break
		}
	}
	l.mu.Unlock()
}

func (l *lounge) wakeOne() {
	if l.count.Load() == 0 {
		return
	}
	l.mu.Lock()
	n := len(l.sleepers)
	if n == 0 {
		l.mu.Unlock()
		return
	}
	p := l.sleepers[n-1]
	l.sleepers[n-1] = nil
	l.sleepers = l.sleepers[:n-1]
	p.parked.Store(false)
	l.count.Add(-1)
	l.mu.Unlock()
	p.unpark()
}

func (l *lounge) wakeAll() {
	l.mu.Lock()
	sleepers := l.sleepers
	l.sleepers = nil
	for _, p := range sleepers {
		p.parked.Store(false)
	}
	l.count.Store(0)
	l.mu.Unlock()
	for _, p := range sleepers {
		p.unpark()
	}
}

// GlobalExecutor is the work-stealing scheduler of one pool. Submissions go
// to the injector (or the submitting worker's own deque) and idle workers
// pull from their deque, the injector and their siblings in that order.
type GlobalExecutor struct {
	env      *poolEnv
	injector *jobQueue
	workers  []*Worker
	lounge   lounge

	// eager drains the injector on the submitting goroutine. Used by the
	// threaded backend when it has no workers.
	eager    bool
	draining atomic.Bool

	// loopOnly keeps every job on the workers; outside goroutines never
	// help. Used by the cooperative backend's single event loop.
	loopOnly bool

	rejected RejectedTaskHandler
	closed   atomic.Bool // rejects new submissions
	stopped  atomic.Bool // teardown in progress

	submitted atomic.Uint64
	stolen    atomic.Uint64
}

func newGlobalExecutor(env *poolEnv, rejected RejectedTaskHandler) *GlobalExecutor {
	return &GlobalExecutor{
		env:      env,
		injector: newJobQueue(),
		rejected: rejected,
	}
}

func (g *GlobalExecutor) environment() *poolEnv { return g.env }

func (g *GlobalExecutor) waitHelper() helper {
	if len(g.workers) == 0 {
		return g
	}
	return nil
}

func (g *GlobalExecutor) submit(ctx context.Context, j *job) error {
	if g.closed.Load() {
		g.reject("pool closed")
		return ErrPoolClosed
	}

	j.schedule()
	g.submitted.Add(1)

	if w := workerFrom(ctx); w != nil && w.global == g && w.deque.PushBack(j) {
		g.lounge.wakeOne()
	} else {
		g.injector.Push(j)
		g.env.metrics.RecordQueueDepth(g.env.name, g.injector.Len())
		g.lounge.wakeOne()
	}

	// Teardown may have drained the queues between the check above and the push.
	if g.stopped.Load() {
		g.cancelQueued()
		return nil
	}

	if g.eager {
		g.drain()
	}
	return nil
}

func (g *GlobalExecutor) reject(reason string) {
	g.rejected.HandleRejectedTask(g.env.name, reason)
	g.env.metrics.RecordTaskRejected(g.env.name, reason)
}

// drain runs queued jobs on the calling goroutine until the injector is
// empty. Only one goroutine drains at a time; nested submissions from a
// job being drained are picked up by the outer loop.
func (g *GlobalExecutor) drain() {
	for g.injector.Len() > 0 {
		if !g.draining.CompareAndSwap(false, true) {
			return
		}
		for g.helpOnce() {
		}
		g.draining.Store(false)
	}
}

// helpOnce runs one job on behalf of a goroutine that is not one of this
// executor's workers: the injector first, then any worker's deque.
func (g *GlobalExecutor) helpOnce() bool {
	if g.loopOnly {
		return false
	}
	if j, ok := g.injector.Pop(); ok {
		j.execute(nil)
		return true
	}
	for _, w := range g.workers {
		if j := w.deque.StealFront(); j != nil {
			g.stolen.Add(1)
			j.execute(nil)
			return true
		}
	}
	return false
}

// hasQueued reports whether any queue of this executor holds a job.
func (g *GlobalExecutor) hasQueued() bool {
	if g.injector.Len() > 0 {
		return true
	}
	for _, w := range g.workers {
		if w.deque.Len() > 0 {
			return true
		}
	}
	return false
}

// Len returns the number of queued jobs in the injector and all deques.
func (g *GlobalExecutor) Len() int {
	n := g.injector.Len()
	for _, w := range g.workers {
		n += w.deque.Len()
	}
	return n
}

// InjectorLen returns the number of jobs in the shared injector.
func (g *GlobalExecutor) InjectorLen() int {
	return g.injector.Len()
}

// Submitted returns the number of accepted submissions.
func (g *GlobalExecutor) Submitted() uint64 { return g.submitted.Load() }

// Stolen returns the number of jobs moved between workers.
func (g *GlobalExecutor) Stolen() uint64 { return g.stolen.Load() }

// close stops accepting work and wakes every parked goroutine.
func (g *GlobalExecutor) close() {
	g.closed.Store(true)
	g.stopped.Store(true)
	g.lounge.wakeAll()
}

// cancelQueued discards every queued job.
func (g *GlobalExecutor) cancelQueued() int {
	n := 0
	for _, j := range g.injector.Clear() {
		if j.cancel(ErrPoolClosed) {
			n++
		}
	}
	for _, w := range g.workers {
		for _, j := range w.deque.Drain() {
			if j.cancel(ErrPoolClosed) {
				n++
			}
		}
	}
	return n
}
