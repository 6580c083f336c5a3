package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a detached task panics. Panics of tasks that
// still have a live handle are returned to that handle instead.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a detached task panics.
	//
	// Parameters:
	// - ctx: The context the task ran with
	// - poolName: The name of the task pool
	// - workerID: The ID of the executing worker, -1 when run outside a worker
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through Logger, or stdout when Logger is nil.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic and its stack.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte) {
	if h.Logger != nil {
		h.Logger.Error("detached task panicked",
			F("pool", poolName),
			F("worker", workerID),
			F("panic", panicInfo),
			F("stack", string(stackTrace)))
		return
	}
	if workerID >= 0 {
		fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
			workerID, poolName, panicInfo, stackTrace)
	} else {
		fmt.Printf("[Pool %s] Panic: %v\nStack trace:\n%s",
			poolName, panicInfo, stackTrace)
	}
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Methods should be non-blocking and fast; they run on worker goroutines.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(poolName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(poolName string, panicInfo any)

	// RecordQueueDepth records the injector depth observed at submission.
	RecordQueueDepth(poolName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., after close).
	RecordTaskRejected(poolName string, reason string)

	// RecordTaskStolen records n jobs moved from a sibling worker's deque.
	RecordTaskStolen(poolName string, n int)

	// RecordTaskCancelled records a task discarded before it could run.
	RecordTaskCancelled(poolName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(poolName string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(poolName string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(poolName string, reason string)          {}
func (m *NilMetrics) RecordTaskStolen(poolName string, n int)                    {}
func (m *NilMetrics) RecordTaskCancelled(poolName string)                        {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a spawn is rejected because the pool
// is closed.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(poolName string, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks at warn level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(poolName string, reason string) {
	if h.Logger != nil {
		h.Logger.Warn("task rejected", F("pool", poolName), F("reason", reason))
		return
	}
	fmt.Printf("[Pool %s] Task rejected: %s\n", poolName, reason)
}

// =============================================================================
// Clock: elapsed-time source
// =============================================================================

// Clock is the monotonic time source used for task duration metrics and
// execution history. The manual backend requires one when Metrics is set.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// =============================================================================
// Config: Configuration for TaskPool
// =============================================================================

// MaxThreadCount bounds Config.ThreadCount.
const MaxThreadCount = 10000

const (
	defaultMinChunkSize = 16
	defaultStealRetries = 2
)

// Config holds the options for a TaskPool.
// Handlers are optional; nil fields are replaced by defaults.
type Config struct {
	// Name identifies the pool in logs, metrics and stats.
	Name string

	// Backend overrides the build-time default backend.
	Backend BackendKind

	// ThreadCount is the number of workers. Zero on the threaded backend
	// degrades to synchronous draining by waiters. Must be zero on the
	// single-threaded backends.
	ThreadCount int

	// StackSize is the requested per-worker stack size in bytes. Go grows
	// goroutine stacks on demand, so the value is validated and reported only.
	StackSize int

	// LockOSThread pins every worker goroutine to its own OS thread.
	LockOSThread bool

	// ThreadName prefixes worker names in logs and stats. Defaults to Name.
	ThreadName string

	// OnThreadSpawn runs on each worker goroutine before it takes work.
	OnThreadSpawn func(workerID int)

	// OnThreadDestroy runs on each worker goroutine after its loop exits.
	OnThreadDestroy func(workerID int)

	// MinChunkSize is the smallest chunk the parallel helpers will schedule.
	MinChunkSize int

	// StealRetries is the number of full steal sweeps an idle worker makes
	// before parking.
	StealRetries int

	// HistoryCapacity bounds the recent-task ring buffer.
	HistoryCapacity int

	Logger              Logger
	Metrics             Metrics
	PanicHandler        PanicHandler
	RejectedTaskHandler RejectedTaskHandler
	Clock               Clock
}

// DefaultConfig returns a config for the build's default backend, sized to
// the available parallelism when that backend is threaded.
func DefaultConfig() Config {
	cfg := Config{Name: "taskpool"}
	if defaultBackend == BackendThreaded {
		cfg.ThreadCount = AvailableParallelism()
	}
	return cfg
}

// Validate reports the first invalid option as a *ConfigError.
func (c Config) Validate() error {
	backend := c.Backend.resolve()
	switch {
	case c.ThreadCount < 0:
		return configErrorf("ThreadCount", "must not be negative, got %d", c.ThreadCount)
	case c.ThreadCount > MaxThreadCount:
		return configErrorf("ThreadCount", "must not exceed %d, got %d", MaxThreadCount, c.ThreadCount)
	case c.StackSize < 0:
		return configErrorf("StackSize", "must not be negative, got %d", c.StackSize)
	case c.MinChunkSize < 0:
		return configErrorf("MinChunkSize", "must not be negative, got %d", c.MinChunkSize)
	case c.StealRetries < 0:
		return configErrorf("StealRetries", "must not be negative, got %d", c.StealRetries)
	case !backend.Valid():
		return configErrorf("Backend", "unknown backend %d", c.Backend)
	case backend != BackendThreaded && c.ThreadCount > 0:
		return configErrorf("ThreadCount", "%s backend has no worker threads, got %d", backend, c.ThreadCount)
	case backend == BackendManual && c.Metrics != nil && c.Clock == nil:
		return configErrorf("Clock", "manual backend needs a Clock when Metrics is set")
	}
	return nil
}

func (c Config) withDefaults() Config {
	c.Backend = c.Backend.resolve()
	if c.Name == "" {
		c.Name = "taskpool"
	}
	if c.ThreadName == "" {
		c.ThreadName = c.Name
	}
	if c.MinChunkSize == 0 {
		c.MinChunkSize = defaultMinChunkSize
	}
	if c.StealRetries == 0 {
		c.StealRetries = defaultStealRetries
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = defaultTaskHistoryCapacity
	}
	if c.Logger == nil {
		c.Logger = NewDefaultLogger()
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.PanicHandler == nil {
		c.PanicHandler = &DefaultPanicHandler{Logger: c.Logger}
	}
	if c.RejectedTaskHandler == nil {
		c.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: c.Logger}
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	return c
}
