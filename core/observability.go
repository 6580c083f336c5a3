package core

import (
	"sync/atomic"
	"time"
)

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID     uint64
	Name       string
	PoolName   string
	WorkerID   int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// WorkerStats represents runtime observability state for one worker.
type WorkerStats struct {
	ID       int
	Name     string
	Queued   int
	Local    int
	Scope    int
	Executed uint64
	Stolen   uint64
	Parked   bool
}

// PoolStats represents runtime observability state for a task pool.
type PoolStats struct {
	Name      string
	Backend   string
	Workers   int
	StackSize int
	Queued    int // injector plus worker deques
	Local     int // main-thread local and scope executors
	Active    int
	Submitted uint64
	Executed  uint64
	Stolen    uint64
	Cancelled uint64
	Panicked  uint64
	Running   bool
}

// poolEnv is the state shared by every executor of one pool.
type poolEnv struct {
	name         string
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler
	clock        Clock
	history      *executionHistory

	taskSeq   atomic.Uint64
	active    atomic.Int64
	executed  atomic.Uint64
	cancelled atomic.Uint64
	panicked  atomic.Uint64
}

func newPoolEnv(cfg Config) *poolEnv {
	return &poolEnv{
		name:         cfg.Name,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		panicHandler: cfg.PanicHandler,
		clock:        cfg.Clock,
		history:      newExecutionHistory(cfg.HistoryCapacity),
	}
}

// standaloneEnv serves executors created outside a pool.
func standaloneEnv(name string) *poolEnv {
	return newPoolEnv(Config{Name: name, Logger: NewNoOpLogger()}.withDefaults())
}

func (e *poolEnv) nextTaskID() uint64 {
	return e.taskSeq.Add(1)
}
