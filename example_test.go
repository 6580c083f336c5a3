package taskpool_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	taskpool "github.com/Swind/go-task-pool"
)

// ExampleSpawn demonstrates spawning a task and awaiting its value.
func ExampleSpawn() {
	pool, err := taskpool.NewTaskPool(taskpool.Config{Backend: taskpool.BackendThreaded, ThreadCount: 2})
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	ctx := context.Background()
	task := taskpool.Spawn(ctx, pool, func(ctx context.Context) (int, error) {
		return 6 * 7, nil
	})

	v, err := task.Await(ctx)
	fmt.Println(v, err)

	// Output:
	// 42 <nil>
}

// ExampleRunScope demonstrates borrowing local data from scoped tasks.
// Results come back in spawn order.
func ExampleRunScope() {
	pool, err := taskpool.NewTaskPool(taskpool.Config{Backend: taskpool.BackendThreaded, ThreadCount: 4})
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	words := []string{"alpha", "beta", "gamma"}
	upper, err := taskpool.RunScope(context.Background(), pool, func(s *taskpool.Scope[string]) {
		for _, w := range words {
			s.Spawn(func(context.Context) (string, error) {
				return strings.ToUpper(w), nil
			})
		}
	})

	fmt.Println(upper, err)

	// Output:
	// [ALPHA BETA GAMMA] <nil>
}

// ExampleParallelMap demonstrates an order-preserving parallel map.
func ExampleParallelMap() {
	pool, err := taskpool.NewTaskPool(taskpool.Config{Backend: taskpool.BackendThreaded, ThreadCount: 4})
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	squares, err := taskpool.ParallelMap(context.Background(), pool, []int{1, 2, 3, 4, 5}, 2, func(v int) int {
		return v * v
	})

	fmt.Println(squares, err)

	// Output:
	// [1 4 9 16 25] <nil>
}

// ExampleRuntime_TickMainThread demonstrates main-thread tasks on a manual
// runtime: nothing runs until the frame loop ticks.
func ExampleRuntime_TickMainThread() {
	rt, err := taskpool.NewRuntime(taskpool.RuntimeConfig{Backend: taskpool.BackendManual})
	if err != nil {
		panic(err)
	}
	defer rt.Close()

	ctx := context.Background()
	task := taskpool.SpawnLocal(ctx, rt.Compute(), func(context.Context) (string, error) {
		return "ran on the main thread", nil
	})

	_, err = task.Poll()
	fmt.Println(errors.Is(err, taskpool.ErrTaskPending))

	rt.TickMainThread()
	v, _ := task.Poll()
	fmt.Println(v)

	// Output:
	// true
	// ran on the main thread
}

// Example_panic demonstrates how a panic inside a task is returned.
func Example_panic() {
	pool, err := taskpool.NewTaskPool(taskpool.Config{Backend: taskpool.BackendManual})
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	ctx := context.Background()
	_, err = taskpool.Spawn(ctx, pool, func(context.Context) (int, error) {
		panic("out of range")
	}).Await(ctx)

	var pe *taskpool.PanicError
	fmt.Println(errors.As(err, &pe), pe.Value)

	// Output:
	// true out of range
}
