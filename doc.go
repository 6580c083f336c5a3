// Package taskpool provides an embeddable task-execution runtime for
// frame-based applications that need fork-join parallelism.
//
// A Runtime owns three pools that differ only in how many workers they get:
// compute (per-frame CPU work), async-compute (long-running CPU work) and IO
// (work that blocks on external events). Each pool has a work-stealing
// global executor shared by its workers, a local executor per worker, and
// main-thread executors that the application ticks once per frame.
//
// # Quick Start
//
//	rt, err := taskpool.NewRuntime(taskpool.DefaultRuntimeConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rt.Close()
//
//	task := taskpool.Spawn(ctx, rt.Compute(), func(ctx context.Context) (int, error) {
//		return 42, nil
//	})
//	v, err := task.Await(ctx)
//
// # Scopes
//
// RunScope blocks until every task spawned through the scope has finished,
// so tasks may read and write the caller's local variables:
//
//	sums := make([]int, len(rows))
//	_, err := taskpool.RunScope(ctx, rt.Compute(), func(s *taskpool.Scope[struct{}]) {
//		for i, row := range rows {
//			s.Spawn(func(ctx context.Context) (struct{}, error) {
//				sums[i] = sum(row)
//				return struct{}{}, nil
//			})
//		}
//	})
//
// A panic inside a task is captured and returned as a *PanicError from
// Await or from the scope join. Panics of detached tasks go to the pool's
// PanicHandler only.
//
// # Backends
//
// The execution model is chosen at build time:
//
//   - threaded (default): a fixed set of worker goroutines with work stealing
//   - cooperative (js/wasm): a single event-loop goroutine runs everything
//   - manual (-tags taskpool_manual): nothing runs until the host calls
//     TaskPool.Tick or Runtime.TickMainThread
//
// Config.Backend overrides the build default.
//
// # Main Loop
//
//	for running {
//		rt.TickMainThread()
//		update()
//		render()
//	}
package taskpool
