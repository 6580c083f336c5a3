package taskpool

import (
	"context"
	"fmt"
	"math"

	"github.com/Swind/go-task-pool/core"
	"go.uber.org/multierr"
)

// mainThreadTickBudget is how many tasks TickMainThread runs per pool.
const mainThreadTickBudget = 100

// SizingPolicy decides how many workers a named pool gets.
type SizingPolicy struct {
	// ThreadCount, when positive, overrides the computed size.
	ThreadCount int `mapstructure:"thread_count" toml:"thread_count" yaml:"thread_count"`
	// ReservedCores are subtracted from the core count first.
	ReservedCores int `mapstructure:"reserved_cores" toml:"reserved_cores" yaml:"reserved_cores"`
	// Multiplier scales the remaining cores. Values above 1 oversubscribe.
	Multiplier float64 `mapstructure:"multiplier" toml:"multiplier" yaml:"multiplier"`
	// MinThreads and MaxThreads clamp the result; MaxThreads 0 means no cap.
	MinThreads int `mapstructure:"min_threads" toml:"min_threads" yaml:"min_threads"`
	MaxThreads int `mapstructure:"max_threads" toml:"max_threads" yaml:"max_threads"`
}

// Resolve returns the worker count for a host with the given core count.
func (p SizingPolicy) Resolve(cores int) int {
	if p.ThreadCount > 0 {
		return p.ThreadCount
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	n := int(math.Ceil(float64(cores-p.ReservedCores) * multiplier))
	if n < p.MinThreads {
		n = p.MinThreads
	}
	if p.MaxThreads > 0 && n > p.MaxThreads {
		n = p.MaxThreads
	}
	return max(n, 0)
}

// ComputePolicy sizes the per-frame compute pool: every core but the main
// thread's.
func ComputePolicy() SizingPolicy {
	return SizingPolicy{ReservedCores: 1, Multiplier: 1, MinThreads: 1}
}

// AsyncComputePolicy sizes the pool for long-running work that must not
// starve per-frame compute.
func AsyncComputePolicy() SizingPolicy {
	return SizingPolicy{ReservedCores: 1, Multiplier: 1, MinThreads: 1}
}

// IOPolicy oversizes the IO pool since its tasks mostly wait.
func IOPolicy() SizingPolicy {
	return SizingPolicy{Multiplier: 2, MinThreads: 2}
}

// RuntimeConfig configures the three named pools of a Runtime.
type RuntimeConfig struct {
	Backend core.BackendKind

	// Cores overrides the detected core count used by the sizing policies.
	Cores int

	Compute      SizingPolicy
	AsyncCompute SizingPolicy
	IO           SizingPolicy

	StackSize       int
	LockOSThread    bool
	MinChunkSize    int
	OnThreadSpawn   func(pool string, workerID int)
	OnThreadDestroy func(pool string, workerID int)

	Logger       core.Logger
	Metrics      core.Metrics
	PanicHandler core.PanicHandler
	Clock        core.Clock
}

// DefaultRuntimeConfig returns the default policies for the build's backend.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Compute:      ComputePolicy(),
		AsyncCompute: AsyncComputePolicy(),
		IO:           IOPolicy(),
	}
}

// Pool names used for logs, metrics and thread names.
const (
	ComputePoolName      = "compute"
	AsyncComputePoolName = "async_compute"
	IOPoolName           = "io"
)

// Runtime owns the compute, async-compute and IO pools. Build one at
// startup, pass it to the code that spawns work and Close it at exit.
type Runtime struct {
	compute      *core.TaskPool
	asyncCompute *core.TaskPool
	io           *core.TaskPool
}

// NewRuntime validates cfg and starts the three pools. On the threaded
// backend every pool must resolve to at least one worker.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	cores := cfg.Cores
	if cores <= 0 {
		cores = core.AvailableParallelism()
	}
	threaded := cfg.Backend == core.BackendThreaded ||
		(cfg.Backend == core.BackendDefault && core.DefaultBackend() == core.BackendThreaded)

	specs := []struct {
		name   string
		policy SizingPolicy
	}{
		{ComputePoolName, cfg.Compute},
		{AsyncComputePoolName, cfg.AsyncCompute},
		{IOPoolName, cfg.IO},
	}

	pools := make([]*core.TaskPool, 0, len(specs))
	for _, spec := range specs {
		threads := 0
		if threaded {
			threads = spec.policy.Resolve(cores)
			if threads < 1 {
				return nil, multierr.Append(
					&core.ConfigError{Field: spec.name + ".ThreadCount", Reason: "workers are mandatory"},
					closeAll(pools))
			}
		}

		pool, err := core.NewTaskPool(cfg.poolConfig(spec.name, threads))
		if err != nil {
			return nil, multierr.Append(err, closeAll(pools))
		}
		pools = append(pools, pool)
	}

	return &Runtime{compute: pools[0], asyncCompute: pools[1], io: pools[2]}, nil
}

func (cfg RuntimeConfig) poolConfig(name string, threads int) core.Config {
	pc := core.Config{
		Name:         name,
		Backend:      cfg.Backend,
		ThreadCount:  threads,
		StackSize:    cfg.StackSize,
		LockOSThread: cfg.LockOSThread,
		ThreadName:   fmt.Sprintf("%s-worker", name),
		MinChunkSize: cfg.MinChunkSize,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
		PanicHandler: cfg.PanicHandler,
		Clock:        cfg.Clock,
	}
	if cfg.OnThreadSpawn != nil {
		pc.OnThreadSpawn = func(id int) { cfg.OnThreadSpawn(name, id) }
	}
	if cfg.OnThreadDestroy != nil {
		pc.OnThreadDestroy = func(id int) { cfg.OnThreadDestroy(name, id) }
	}
	return pc
}

// Compute returns the pool for short, per-frame CPU work.
func (r *Runtime) Compute() *core.TaskPool { return r.compute }

// AsyncCompute returns the pool for long-running CPU work.
func (r *Runtime) AsyncCompute() *core.TaskPool { return r.asyncCompute }

// IO returns the pool for work that blocks on external events.
func (r *Runtime) IO() *core.TaskPool { return r.io }

// Pools returns the three pools in compute, async-compute, IO order.
func (r *Runtime) Pools() []*core.TaskPool {
	return []*core.TaskPool{r.compute, r.asyncCompute, r.io}
}

// TickMainThread runs up to 100 main-thread tasks per pool. Call it once
// per frame from the application's main loop. On the manual backend it is
// the only driver, so spawned work runs there too.
func (r *Runtime) TickMainThread() int {
	ran := 0
	for _, p := range r.Pools() {
		ran += p.TickMainThread(mainThreadTickBudget)
	}
	return ran
}

// Close tears down every pool, cancelling queued work.
func (r *Runtime) Close() error {
	return closeAll(r.Pools())
}

// Shutdown drains every pool before closing it, bounded by ctx.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var err error
	for _, p := range r.Pools() {
		err = multierr.Append(err, p.Shutdown(ctx))
	}
	return err
}

func closeAll(pools []*core.TaskPool) error {
	var err error
	for _, p := range pools {
		err = multierr.Append(err, p.Close())
	}
	return err
}
