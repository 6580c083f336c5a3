package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTaskPool_ResultsAcrossWorkerCounts verifies K tasks on N workers
// Given: Pools with 1, 2, 4 and 8 workers
// When: 500 tasks computing i*i are spawned and awaited
// Then: Every task returns its own result
func TestTaskPool_ResultsAcrossWorkerCounts(t *testing.T) {
	for _, workers := range []int{1, 2, 4, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			// Arrange
			pool := newTestPool(t, Config{ThreadCount: workers})
			ctx := testContext(t)
			const k = 500

			// Act
			tasks := make([]*Task[int], k)
			for i := range k {
				tasks[i] = Spawn(ctx, pool, func(context.Context) (int, error) { return i * i, nil })
			}

			// Assert
			for i, task := range tasks {
				v, err := task.Await(ctx)
				require.NoError(t, err)
				require.Equal(t, i*i, v)
			}
			assert.Equal(t, workers, pool.ThreadNum())
		})
	}
}

// TestTaskPool_CounterIncrements verifies no increment is lost
// Given: A pool with 4 workers
// When: 100 tasks each increment a shared counter
// Then: The counter reads 100 after all tasks complete
func TestTaskPool_CounterIncrements(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 4})
	ctx := testContext(t)
	var counter atomic.Int64

	tasks := make([]*Task[struct{}], 100)
	for i := range tasks {
		tasks[i] = Spawn(ctx, pool, func(context.Context) (struct{}, error) {
			counter.Add(1)
			return struct{}{}, nil
		})
	}
	for _, task := range tasks {
		_, err := task.Await(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(100), counter.Load())
}

// TestTaskPool_ProducersExactlyOnce verifies every task runs exactly once
// Given: 4 producer goroutines and a pool with 4 workers
// When: Each producer spawns 250 tasks concurrently
// Then: Every one of the 1000 tasks runs exactly once
func TestTaskPool_ProducersExactlyOnce(t *testing.T) {
	// Arrange
	pool := newTestPool(t, Config{ThreadCount: 4})
	ctx := testContext(t)
	const producers, perProducer = 4, 250
	runs := make([]atomic.Int32, producers*perProducer)

	// Act
	var wg sync.WaitGroup
	var mu sync.Mutex
	var tasks []*Task[int]
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				id := p*perProducer + i
				task := Spawn(ctx, pool, func(context.Context) (int, error) {
					runs[id].Add(1)
					return id, nil
				})
				mu.Lock()
				tasks = append(tasks, task)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, task := range tasks {
		_, err := task.Await(ctx)
		require.NoError(t, err)
	}

	// Assert
	for id := range runs {
		if n := runs[id].Load(); n != 1 {
			t.Fatalf("task %d ran %d times, want 1", id, n)
		}
	}
}

// TestTaskPool_NestedAwaitHelps verifies a worker awaiting a task keeps working
// Given: A pool with a single worker
// When: A task spawns 20 children and awaits them
// Then: The children run on the same worker and the parent completes
func TestTaskPool_NestedAwaitHelps(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 1})
	ctx := testContext(t)

	parent := Spawn(ctx, pool, func(ctx context.Context) (int, error) {
		children := make([]*Task[int], 20)
		for i := range children {
			children[i] = Spawn(ctx, pool, func(context.Context) (int, error) { return i, nil })
		}
		sum := 0
		for _, c := range children {
			v, err := c.Await(ctx)
			if err != nil {
				return 0, err
			}
			sum += v
		}
		return sum, nil
	})

	sum, err := parent.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 190, sum)
}

// TestTaskPool_WorkStealing verifies idle workers take queued work
// Given: A pool with 4 workers and one task that fans out 200 children
// When: The children block briefly
// Then: More than one worker executes children
func TestTaskPool_WorkStealing(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 4})
	ctx := testContext(t)

	var mu sync.Mutex
	workers := make(map[int]bool)
	parent := Spawn(ctx, pool, func(ctx context.Context) (struct{}, error) {
		children := make([]*Task[struct{}], 200)
		for i := range children {
			children[i] = Spawn(ctx, pool, func(ctx context.Context) (struct{}, error) {
				time.Sleep(100 * time.Microsecond)
				mu.Lock()
				workers[CurrentWorkerID(ctx)] = true
				mu.Unlock()
				return struct{}{}, nil
			})
		}
		for _, c := range children {
			if _, err := c.Await(ctx); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})

	_, err := parent.Await(ctx)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, len(workers), 1, "children ran on %v", workers)
}

// TestTaskPool_ZeroWorkersRunsInline verifies the degenerate threaded pool
// Given: A threaded pool with ThreadCount 0
// When: A task is spawned
// Then: It has already finished when Spawn returns
func TestTaskPool_ZeroWorkersRunsInline(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 0})

	task := Spawn(context.Background(), pool, func(context.Context) (int, error) { return 3, nil })

	require.True(t, task.IsFinished())
	v, err := task.Poll()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, 0, pool.ThreadNum())
}

// TestTaskPool_Cooperative verifies the single event-loop backend
// Given: A cooperative pool
// When: Global and main-thread local tasks are spawned from outside
// Then: The event loop runs both and reports a single thread
func TestTaskPool_Cooperative(t *testing.T) {
	pool := newTestPool(t, Config{Backend: BackendCooperative})
	ctx := testContext(t)

	g := Spawn(ctx, pool, func(ctx context.Context) (int, error) { return CurrentWorkerID(ctx), nil })
	l := SpawnLocal(ctx, pool, func(ctx context.Context) (int, error) { return CurrentWorkerID(ctx), nil })

	gid, err := g.Await(ctx)
	require.NoError(t, err)
	lid, err := l.Await(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, gid)
	assert.Equal(t, 0, lid)
	assert.Equal(t, 1, pool.ThreadNum())
	assert.Equal(t, 0, pool.TickMainThread(10))
}

// TestTaskPool_SpawnLocalStaysOnWorker verifies local tasks run on their owner
func TestTaskPool_SpawnLocalStaysOnWorker(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 4})
	ctx := testContext(t)

	type ids struct{ outer, inner int }
	task := Spawn(ctx, pool, func(ctx context.Context) (ids, error) {
		inner := SpawnLocal(ctx, pool, func(ctx context.Context) (int, error) {
			return CurrentWorkerID(ctx), nil
		})
		id, err := inner.Await(ctx)
		return ids{outer: CurrentWorkerID(ctx), inner: id}, err
	})

	got, err := task.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, got.outer, got.inner)
}

// TestTaskPool_TickMainThread verifies main-thread tasks wait for the host
// Given: A threaded pool and a task spawned locally from outside any worker
// When: The host calls TickMainThread
// Then: The task runs only then, on the calling goroutine
func TestTaskPool_TickMainThread(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 2})

	task := SpawnLocal(context.Background(), pool, func(ctx context.Context) (int, error) {
		return CurrentWorkerID(ctx), nil
	})
	time.Sleep(10 * time.Millisecond)
	_, err := task.Poll()
	require.ErrorIs(t, err, ErrTaskPending)

	assert.Equal(t, 1, pool.TickMainThread(100))
	id, err := task.Poll()
	require.NoError(t, err)
	assert.Equal(t, -1, id)
}

// TestTaskPool_CloseCancelsQueued verifies teardown cancels queued work
func TestTaskPool_CloseCancelsQueued(t *testing.T) {
	pool := newTestPool(t, Config{Backend: BackendManual})
	tasks := make([]*Task[int], 5)
	for i := range tasks {
		tasks[i] = Spawn(context.Background(), pool, func(context.Context) (int, error) { return i, nil })
	}
	local := SpawnLocal(context.Background(), pool, func(context.Context) (int, error) { return 0, nil })

	require.NoError(t, pool.Close())

	for _, task := range append(tasks, local) {
		_, err := task.Poll()
		assert.ErrorIs(t, err, ErrPoolClosed)
	}
	assert.False(t, pool.IsRunning())
	assert.Equal(t, uint64(6), pool.Stats().Cancelled)
}

// TestTaskPool_Shutdown verifies graceful shutdown drains queued work
// Given: A pool with 2 workers and 50 queued tasks
// When: Shutdown is called
// Then: Every task completes and later spawns are rejected
func TestTaskPool_Shutdown(t *testing.T) {
	// Arrange
	pool := newTestPool(t, Config{ThreadCount: 2})
	ctx := testContext(t)
	var done atomic.Int32
	tasks := make([]*Task[struct{}], 50)
	for i := range tasks {
		tasks[i] = Spawn(ctx, pool, func(context.Context) (struct{}, error) {
			time.Sleep(time.Millisecond)
			done.Add(1)
			return struct{}{}, nil
		})
	}

	// Act
	require.NoError(t, pool.Shutdown(ctx))

	// Assert
	assert.Equal(t, int32(50), done.Load())
	for _, task := range tasks {
		_, err := task.Poll()
		assert.NoError(t, err)
	}
	_, err := Spawn(ctx, pool, func(context.Context) (int, error) { return 0, nil }).Poll()
	assert.ErrorIs(t, err, ErrPoolClosed)
}

// TestTaskPool_ShutdownTimeout verifies an expired context cancels the rest
func TestTaskPool_ShutdownTimeout(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 1})
	started := make(chan struct{})
	release := make(chan struct{})

	blocker := Spawn(context.Background(), pool, func(context.Context) (int, error) {
		close(started)
		<-release
		return 9, nil
	})
	<-started
	queued := Spawn(context.Background(), pool, func(context.Context) (int, error) { return 1, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- pool.Shutdown(ctx) }()

	// the queued task is cancelled once the deadline passes; the running
	// one is joined
	<-queued.Done()
	_, qerr := queued.Poll()
	assert.ErrorIs(t, qerr, ErrPoolClosed)
	close(release)

	err := <-errCh
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	v, berr := blocker.Poll()
	assert.NoError(t, berr)
	assert.Equal(t, 9, v)
}

// TestTaskPool_ShutdownDrainsLocalExecutors verifies local work is not cut off
// Given: A threaded pool with work on the main-thread executor and children
// queued on a worker's local executor
// When: Shutdown runs on the host goroutine
// Then: Every task completes instead of being cancelled with ErrPoolClosed
func TestTaskPool_ShutdownDrainsLocalExecutors(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 2})
	ctx := testContext(t)

	onMain := SpawnLocal(ctx, pool, func(context.Context) (int, error) { return 1, nil })

	var mu sync.Mutex
	var children []*Task[int]
	parent := Spawn(ctx, pool, func(ctx context.Context) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		for i := range 20 {
			children = append(children, SpawnLocal(ctx, pool, func(context.Context) (int, error) {
				time.Sleep(time.Millisecond)
				return i, nil
			}))
		}
		return 0, nil
	})
	_, err := parent.Await(ctx)
	require.NoError(t, err)

	require.NoError(t, pool.Shutdown(ctx))

	v, err := onMain.Poll()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	mu.Lock()
	defer mu.Unlock()
	for i, child := range children {
		v, err := child.Poll()
		require.NoError(t, err, "child %d", i)
		assert.Equal(t, i, v)
	}
}

// TestTaskPool_ManualTickMainThreadRunsGlobal verifies the manual host drives
// spawned work through TickMainThread
func TestTaskPool_ManualTickMainThreadRunsGlobal(t *testing.T) {
	pool := newTestPool(t, Config{Backend: BackendManual})
	ctx := testContext(t)

	task := Spawn(ctx, pool, func(context.Context) (int, error) { return 5, nil })
	_, err := task.Poll()
	require.ErrorIs(t, err, ErrTaskPending)

	assert.Equal(t, 1, pool.TickMainThread(10))
	v, err := task.Poll()
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

// TestTaskPool_ThreadHooks verifies lifecycle hooks run once per worker
func TestTaskPool_ThreadHooks(t *testing.T) {
	var spawned, destroyed atomic.Int32
	pool, err := NewTaskPool(Config{
		Backend:         BackendThreaded,
		ThreadCount:     3,
		Logger:          NewNoOpLogger(),
		OnThreadSpawn:   func(int) { spawned.Add(1) },
		OnThreadDestroy: func(int) { destroyed.Add(1) },
	})
	require.NoError(t, err)

	require.NoError(t, pool.Close())

	assert.Equal(t, int32(3), spawned.Load())
	assert.Equal(t, int32(3), destroyed.Load())
}

// TestTaskPool_StatsAndHistory verifies observability snapshots
func TestTaskPool_StatsAndHistory(t *testing.T) {
	pool := newTestPool(t, Config{Name: "stats", ThreadCount: 2, ThreadName: "cpu", HistoryCapacity: 4})
	ctx := testContext(t)

	for i := range 10 {
		_, err := Spawn(ctx, pool, namedTestTask(i)).Await(ctx)
		require.NoError(t, err)
	}

	stats := pool.Stats()
	assert.Equal(t, "stats", stats.Name)
	assert.Equal(t, "threaded", stats.Backend)
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, uint64(10), stats.Submitted)
	assert.Equal(t, uint64(10), stats.Executed)
	assert.True(t, stats.Running)

	workers := pool.Workers()
	require.Len(t, workers, 2)
	assert.Equal(t, "cpu-0", workers[0].Name)

	recent := pool.RecentTasks(0)
	assert.Len(t, recent, 4)
	last, ok := pool.LastTask()
	require.True(t, ok)
	assert.Equal(t, "stats", last.PoolName)
	assert.GreaterOrEqual(t, last.WorkerID, 0)
}

func namedTestTask(i int) Func[int] {
	return func(context.Context) (int, error) { return i, nil }
}
