package core

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
)

const (
	// fairnessInterval: every this many iterations the injector is checked
	// before the worker's own deque so injected work is not starved.
	fairnessInterval = 61

	// runBatch: consecutive runs before the worker yields the processor.
	runBatch = 200
)

type workerKeyType struct{}

var workerKey workerKeyType

func withWorker(ctx context.Context, w *Worker) context.Context {
	if workerFrom(ctx) == w {
		return ctx
	}
	return context.WithValue(ctx, workerKey, w)
}

func workerFrom(ctx context.Context) *Worker {
	if ctx == nil {
		return nil
	}
	if w, ok := ctx.Value(workerKey).(*Worker); ok {
		return w
	}
	return nil
}

// CurrentWorkerID returns the ID of the worker executing the task that owns
// ctx, or -1 outside a worker.
func CurrentWorkerID(ctx context.Context) int {
	if w := workerFrom(ctx); w != nil {
		return w.id
	}
	return -1
}

// Worker drives one goroutine of a pool: its scope executor, its local
// executor, its deque, the injector and its siblings' deques.
type Worker struct {
	id     int
	name   string
	global *GlobalExecutor
	deque  workDeque
	local  *LocalExecutor
	scope  *ScopeExecutor
	parker *parker

	ticks        atomic.Uint32
	stealRetries int

	executed atomic.Uint64
	stolen   atomic.Uint64
}

func newWorker(id int, prefix string, g *GlobalExecutor, stealRetries int) *Worker {
	w := &Worker{
		id:           id,
		name:         fmt.Sprintf("%s-%d", prefix, id),
		global:       g,
		parker:       newParker(),
		stealRetries: stealRetries,
	}
	w.local = newLocalExecutor(g.env, w)
	w.scope = newScopeExecutor(g.env, w)
	return w
}

// ID returns the worker's index within its pool.
func (w *Worker) ID() int { return w.id }

// Name returns the worker's thread name.
func (w *Worker) Name() string { return w.name }

// RunOnce performs one drive-loop iteration: it runs at most one ready job
// and reports whether it found one.
func (w *Worker) RunOnce() bool {
	tick := w.ticks.Add(1)
	if w.scope.tryTick(w) {
		return true
	}
	if w.local.tryTick(w) {
		return true
	}
	if j := w.findJob(tick); j != nil {
		if j.execute(w) {
			w.executed.Add(1)
		}
		return true
	}
	return false
}

func (w *Worker) findJob(tick uint32) *job {
	if tick%fairnessInterval == 0 {
		if j := w.fromInjector(); j != nil {
			return j
		}
	}
	if j := w.deque.PopBack(); j != nil {
		return j
	}
	if j := w.fromInjector(); j != nil {
		return j
	}
	return w.stealFromSiblings()
}

// fromInjector moves a batch of injected jobs into the deque and returns
// the first one.
func (w *Worker) fromInjector() *job {
	n := max(w.deque.free()/2, 1)
	batch := w.global.injector.PopUpTo(n)
	if len(batch) == 0 {
		return nil
	}
	for _, j := range batch[1:] {
		if !w.deque.PushBack(j) {
			w.global.injector.Push(j)
		}
	}
	return batch[0]
}

func (w *Worker) stealFromSiblings() *job {
	workers := w.global.workers
	n := len(workers)
	if n < 2 {
		return nil
	}
	start := rand.IntN(n)
	for i := range n {
		victim := workers[(start+i)%n]
		if victim == w {
			continue
		}
		if j, k := victim.deque.StealHalf(&w.deque, w.global.injector); j != nil {
			w.stolen.Add(uint64(k))
			w.global.stolen.Add(uint64(k))
			w.global.env.metrics.RecordTaskStolen(w.global.env.name, k)
			return j
		}
	}
	return nil
}

// hasWork is the lock-free re-check made after entering the lounge.
func (w *Worker) hasWork() bool {
	return w.scope.Len() > 0 || w.local.Len() > 0 || w.global.hasQueued()
}

// loop runs until stop is closed. Idle policy: StealRetries empty sweeps
// separated by runtime.Gosched, then park until woken.
func (w *Worker) loop(stop <-chan struct{}) {
	runs := 0
	idle := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if w.RunOnce() {
			idle = 0
			runs++
			if runs >= runBatch {
				runs = 0
				runtime.Gosched()
			}
			continue
		}

		runs = 0
		if idle < w.stealRetries {
			idle++
			runtime.Gosched()
			continue
		}
		idle = 0
		w.park(stop)
	}
}

func (w *Worker) park(stop <-chan struct{}) {
	l := &w.global.lounge
	l.enter(w.parker)
	if w.hasWork() || w.global.stopped.Load() {
		l.leave(w.parker)
		return
	}
	select {
	case <-w.parker.wake:
	case <-stop:
	}
	l.leave(w.parker)
}

// waitUntil blocks the worker until done is closed, running other ready
// work meanwhile. When there is nothing to run it parks in the lounge so
// new submissions still reach it.
func (w *Worker) waitUntil(ctx context.Context, done <-chan struct{}) error {
	return w.waitFor(ctx, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, done)
}

// waitFor is waitUntil for an arbitrary condition; signal must receive (or
// be closed) whenever cond may have become true.
func (w *Worker) waitFor(ctx context.Context, cond func() bool, signal <-chan struct{}) error {
	var ctxDone <-chan struct{}
	if ctx != nil {
		ctxDone = ctx.Done()
	}
	l := &w.global.lounge
	for {
		if cond() {
			return nil
		}
		if w.RunOnce() {
			continue
		}
		l.enter(w.parker)
		if cond() || w.hasWork() {
			l.leave(w.parker)
			continue
		}
		select {
		case <-signal:
		case <-w.parker.wake:
		case <-ctxDone:
			l.leave(w.parker)
			return ctx.Err()
		}
		l.leave(w.parker)
	}
}

func (w *Worker) stats() WorkerStats {
	return WorkerStats{
		ID:       w.id,
		Name:     w.name,
		Queued:   w.deque.Len(),
		Local:    w.local.Len(),
		Scope:    w.scope.Len(),
		Executed: w.executed.Load(),
		Stolen:   w.stolen.Load(),
		Parked:   w.parker.parked.Load(),
	}
}
