package core

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// TaskPool owns a set of workers (none on single-threaded backends), one
// GlobalExecutor and the main-thread Local and Scope executors.
type TaskPool struct {
	cfg     Config
	env     *poolEnv
	backend backend

	global    *GlobalExecutor
	mainLocal *LocalExecutor
	mainScope *ScopeExecutor

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	running   atomic.Bool
}

// NewTaskPool validates cfg and starts the pool's workers.
func NewTaskPool(cfg Config) (*TaskPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	env := newPoolEnv(cfg)
	p := &TaskPool{
		cfg:       cfg,
		env:       env,
		backend:   newBackend(cfg.Backend),
		global:    newGlobalExecutor(env, cfg.RejectedTaskHandler),
		mainLocal: newLocalExecutor(env, nil),
		mainScope: newScopeExecutor(env, nil),
		stop:      make(chan struct{}),
	}
	p.backend.start(p)
	p.running.Store(true)

	env.logger.Info("task pool started",
		F("pool", cfg.Name),
		F("backend", cfg.Backend.String()),
		F("workers", p.ThreadNum()),
		F("stack_size", cfg.StackSize))
	return p, nil
}

func (p *TaskPool) startWorker(w *Worker) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if p.cfg.LockOSThread {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		if p.cfg.OnThreadSpawn != nil {
			p.cfg.OnThreadSpawn(w.id)
		}
		p.env.logger.Debug("worker started", F("pool", p.cfg.Name), F("worker", w.name))

		w.loop(p.stop)

		p.env.logger.Debug("worker exited", F("pool", p.cfg.Name), F("worker", w.name))
		if p.cfg.OnThreadDestroy != nil {
			p.cfg.OnThreadDestroy(w.id)
		}
	}()
}

// Name returns the pool name.
func (p *TaskPool) Name() string { return p.cfg.Name }

// Backend returns the resolved backend.
func (p *TaskPool) Backend() BackendKind { return p.cfg.Backend }

// Config returns the effective configuration.
func (p *TaskPool) Config() Config { return p.cfg }

// ThreadNum returns the number of goroutines executing pool work.
func (p *TaskPool) ThreadNum() int { return p.backend.threadNum(p) }

// GlobalExecutor returns the pool's work-stealing executor.
func (p *TaskPool) GlobalExecutor() *GlobalExecutor { return p.global }

// MainLocalExecutor returns the executor ticked by TickMainThread.
func (p *TaskPool) MainLocalExecutor() *LocalExecutor { return p.mainLocal }

// MainScopeExecutor returns the executor that scopes on the main thread
// drive. Hand it to RunScopeWithExecutor to send work to the main thread.
func (p *TaskPool) MainScopeExecutor() *ScopeExecutor { return p.mainScope }

// IsRunning reports whether the pool accepts work.
func (p *TaskPool) IsRunning() bool { return p.running.Load() }

// TickMainThread drives the main-thread executors up to n times. On the
// manual backend it also runs the global queue, since nothing else does.
// The cooperative backend drives everything from its event loop, so there
// it is a no-op.
func (p *TaskPool) TickMainThread(n int) int {
	return p.backend.tickMain(p, n)
}

func (p *TaskPool) tickMainExecutors(n int) int {
	ran := 0
	for ran < n {
		if p.mainLocal.tryTick(nil) || p.mainScope.tryTick(nil) {
			ran++
			continue
		}
		break
	}
	return ran
}

// Tick runs up to n ready units of work on the calling goroutine: the
// main-thread executors first, then the global queue. It is the entry point
// that drives a manual-backend pool.
func (p *TaskPool) Tick(n int) int {
	ran := 0
	for ran < n {
		if p.mainLocal.tryTick(nil) || p.mainScope.tryTick(nil) || p.global.helpOnce() {
			ran++
			continue
		}
		break
	}
	return ran
}

// MainThread marks ctx as running on the application's main thread, so
// scopes opened with it drive the pool's main ScopeExecutor.
func (p *TaskPool) MainThread(ctx context.Context) context.Context {
	return context.WithValue(ctx, mainThreadKey{p}, true)
}

type mainThreadKey struct{ p *TaskPool }

func (p *TaskPool) isMainThread(ctx context.Context) bool {
	v, _ := ctx.Value(mainThreadKey{p}).(bool)
	return v
}

// localFor returns the LocalExecutor owned by the caller.
func (p *TaskPool) localFor(ctx context.Context) *LocalExecutor {
	if w := workerFrom(ctx); w != nil && w.global == p.global {
		return w.local
	}
	return p.mainLocal
}

// scopeExecutorFor returns the ScopeExecutor the caller drives while joining.
func (p *TaskPool) scopeExecutorFor(ctx context.Context) *ScopeExecutor {
	if w := workerFrom(ctx); w != nil {
		return w.scope
	}
	if p.isMainThread(ctx) {
		return p.mainScope
	}
	return newScopeExecutor(p.env, nil)
}

// Spawn runs fn on the pool's GlobalExecutor.
func Spawn[T any](ctx context.Context, p *TaskPool, fn Func[T]) *Task[T] {
	return SpawnOn(ctx, p.global, fn)
}

// SpawnLocal runs fn on the caller's LocalExecutor: the current worker's
// when called from a task of this pool, the main-thread executor otherwise.
func SpawnLocal[T any](ctx context.Context, p *TaskPool, fn Func[T]) *Task[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	return SpawnOn(ctx, p.localFor(ctx), fn)
}

// SpawnOn runs fn on ex. A rejected spawn returns a task already cancelled
// with ErrPoolClosed.
func SpawnOn[T any](ctx context.Context, ex Executor, fn Func[T]) *Task[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	t := newTask(ctx, ex.environment(), fn)
	t.helper = ex.waitHelper()
	if err := ex.submit(ctx, t.j); err != nil {
		t.j.cancel(err)
	}
	return t
}

// Stats returns a snapshot of the pool state.
func (p *TaskPool) Stats() PoolStats {
	return PoolStats{
		Name:      p.cfg.Name,
		Backend:   p.cfg.Backend.String(),
		Workers:   p.ThreadNum(),
		StackSize: p.cfg.StackSize,
		Queued:    p.global.Len(),
		Local:     p.mainLocal.Len() + p.mainScope.Len(),
		Active:    int(p.env.active.Load()),
		Submitted: p.global.Submitted(),
		Executed:  p.env.executed.Load(),
		Stolen:    p.global.Stolen(),
		Cancelled: p.env.cancelled.Load(),
		Panicked:  p.env.panicked.Load(),
		Running:   p.running.Load(),
	}
}

// Workers returns per-worker stats.
func (p *TaskPool) Workers() []WorkerStats {
	out := make([]WorkerStats, 0, len(p.global.workers))
	for _, w := range p.global.workers {
		out = append(out, w.stats())
	}
	return out
}

// RecentTasks returns up to limit execution records, newest first.
func (p *TaskPool) RecentTasks(limit int) []TaskExecutionRecord {
	return p.env.history.Recent(limit)
}

// LastTask returns the most recent execution record.
func (p *TaskPool) LastTask() (TaskExecutionRecord, bool) {
	return p.env.history.Last()
}

// Close stops the workers, joins them and cancels every queued task.
// Repeated calls are safe.
func (p *TaskPool) Close() error {
	p.closeOnce.Do(p.shutdown)
	return nil
}

func (p *TaskPool) shutdown() {
	p.global.close()
	close(p.stop)
	cancelled := p.cancelQueued()
	p.wg.Wait()
	cancelled += p.cancelQueued()
	p.running.Store(false)

	p.env.logger.Info("task pool stopped",
		F("pool", p.cfg.Name),
		F("executed", p.env.executed.Load()),
		F("cancelled", cancelled))
}

func (p *TaskPool) cancelQueued() int {
	n := p.global.cancelQueued()
	n += p.mainLocal.cancelQueued(ErrPoolClosed)
	n += p.mainScope.cancelQueued(ErrPoolClosed)
	for _, w := range p.global.workers {
		n += w.local.cancelQueued(ErrPoolClosed)
		n += w.scope.cancelQueued(ErrPoolClosed)
	}
	return n
}

// queuedLocal counts the work waiting in local and scope executors.
func (p *TaskPool) queuedLocal() int {
	n := p.mainLocal.Len() + p.mainScope.Len()
	for _, w := range p.global.workers {
		n += w.local.Len() + w.scope.Len()
	}
	return n
}

// Shutdown stops accepting new work, waits for queued and running tasks to
// finish, then closes the pool. Queued work includes the local and scope
// executors. Pools without workers are drained on the calling goroutine, and
// on the threaded backend the caller also drains the main-thread executors,
// so call it from the goroutine that owns them. If ctx ends first the
// remaining work is cancelled and the context error is returned.
func (p *TaskPool) Shutdown(ctx context.Context) error {
	p.global.closed.Store(true)

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if len(p.global.workers) == 0 {
			p.Tick(runBatch)
		} else {
			p.backend.tickMain(p, runBatch)
		}
		if p.global.Len() == 0 && p.queuedLocal() == 0 && p.env.active.Load() == 0 {
			return p.Close()
		}
		select {
		case <-ctx.Done():
			_ = p.Close()
			return errors.Wrap(ctx.Err(), "task pool shutdown")
		case <-ticker.C:
		}
	}
}
