package core

import (
	"context"
	"sync/atomic"
)

// job is the type-erased unit every queue holds. Exactly one queue owns a
// job at a time; the Scheduled->Running CAS in execute guarantees it runs at
// most once even if a stale reference survives somewhere.
type job struct {
	state atomic.Int32

	// run executes the computation and publishes its result. w is the
	// executing worker, nil when driven from outside a worker.
	run func(w *Worker)

	// abort publishes a terminal error without running the computation.
	abort func(err error)
}

func (j *job) State() TaskState {
	return TaskState(j.state.Load())
}

// schedule marks the job as queued. Called before the job is pushed.
func (j *job) schedule() {
	j.state.CompareAndSwap(int32(TaskPending), int32(TaskScheduled))
}

// execute runs the job if nobody else started or cancelled it.
func (j *job) execute(w *Worker) bool {
	if !j.state.CompareAndSwap(int32(TaskScheduled), int32(TaskRunning)) {
		return false
	}
	j.run(w)
	return true
}

// cancel discards a job that has not started. It reports whether the
// computation was prevented from running.
func (j *job) cancel(err error) bool {
	for {
		s := TaskState(j.state.Load())
		if s != TaskPending && s != TaskScheduled {
			return false
		}
		if j.state.CompareAndSwap(int32(s), int32(TaskCancelled)) {
			j.abort(err)
			return true
		}
	}
}

// prepare wraps fn into a job. finish receives the outcome exactly once,
// either from run or from abort. detached, when non-nil, decides whether a
// panic is reported to the pool's PanicHandler because no handle will see it.
func prepare[T any](ctx context.Context, env *poolEnv, fn Func[T], detached *atomic.Bool, finish func(T, error)) *job {
	j := &job{}
	j.abort = func(err error) {
		env.cancelled.Add(1)
		env.metrics.RecordTaskCancelled(env.name)
		var zero T
		finish(zero, err)
	}
	j.run = func(w *Worker) {
		var zero T
		if err := ctx.Err(); err != nil {
			j.state.Store(int32(TaskCancelled))
			env.cancelled.Add(1)
			env.metrics.RecordTaskCancelled(env.name)
			finish(zero, err)
			return
		}

		runCtx := ctx
		workerID := -1
		if w != nil {
			runCtx = withWorker(ctx, w)
			workerID = w.id
		}

		env.active.Add(1)
		startedAt := env.clock.Now()
		v, err, pe := callGuarded(runCtx, fn)
		finishedAt := env.clock.Now()
		env.active.Add(-1)
		env.executed.Add(1)

		duration := finishedAt.Sub(startedAt)
		env.metrics.RecordTaskDuration(env.name, duration)

		panicked := pe != nil
		if panicked {
			env.panicked.Add(1)
			env.metrics.RecordTaskPanic(env.name, pe.Value)
			if detached != nil && detached.Load() {
				env.panicHandler.HandlePanic(runCtx, env.name, workerID, pe.Value, pe.Stack)
			}
		}

		env.history.Add(TaskExecutionRecord{
			TaskID:     env.nextTaskID(),
			Name:       resolveTaskName(fn),
			PoolName:   env.name,
			WorkerID:   workerID,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   duration,
			Panicked:   panicked,
		})

		j.state.Store(int32(TaskCompleted))
		if panicked {
			finish(zero, pe)
			return
		}
		finish(v, err)
	}
	return j
}

// callGuarded runs fn and captures a panic instead of letting it unwind
// through the executing goroutine.
func callGuarded[T any](ctx context.Context, fn Func[T]) (v T, err error, pe *PanicError) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err, pe = zero, nil, newPanicError(r)
		}
	}()
	v, err = fn(ctx)
	return v, err, nil
}
