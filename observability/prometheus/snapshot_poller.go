package prometheus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Swind/go-task-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// WorkerSnapshotProvider provides per-worker stats. *core.TaskPool
// implements it alongside PoolSnapshotProvider.
type WorkerSnapshotProvider interface {
	Workers() []core.WorkerStats
}

// NamedPool is a pool that knows its own name, such as *core.TaskPool.
type NamedPool interface {
	PoolSnapshotProvider
	Name() string
}

// SnapshotPoller periodically exports pool and worker Stats() snapshots into
// Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	poolQueued    *prom.GaugeVec
	poolLocal     *prom.GaugeVec
	poolActive    *prom.GaugeVec
	poolWorkers   *prom.GaugeVec
	poolRunning   *prom.GaugeVec
	poolSubmitted *prom.GaugeVec
	poolExecuted  *prom.GaugeVec
	poolCancelled *prom.GaugeVec
	poolPanicked  *prom.GaugeVec

	workerQueued   *prom.GaugeVec
	workerExecuted *prom.GaugeVec
	workerStolen   *prom.GaugeVec
	workerParked   *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func poolGauge(name, help string) *prom.GaugeVec {
	return prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      name,
		Help:      help,
	}, []string{"pool"})
}

func workerGauge(name, help string) *prom.GaugeVec {
	return prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      name,
		Help:      help,
	}, []string{"pool", "worker"})
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	p := &SnapshotPoller{
		interval:      interval,
		pools:         make(map[string]PoolSnapshotProvider),
		poolQueued:    poolGauge("pool_queued", "Tasks queued in the global executor per pool."),
		poolLocal:     poolGauge("pool_local_queued", "Tasks queued on the main-thread executors per pool."),
		poolActive:    poolGauge("pool_active", "Tasks executing per pool."),
		poolWorkers:   poolGauge("pool_workers", "Worker count per pool."),
		poolRunning:   poolGauge("pool_running", "Pool running state (1=running, 0=stopped)."),
		poolSubmitted: poolGauge("pool_submitted_total", "Pool submitted task count snapshot."),
		poolExecuted:  poolGauge("pool_executed_total", "Pool executed task count snapshot."),
		poolCancelled: poolGauge("pool_cancelled_total", "Pool cancelled task count snapshot."),
		poolPanicked:  poolGauge("pool_panicked_total", "Pool panicked task count snapshot."),

		workerQueued:   workerGauge("worker_queued", "Tasks in each worker's deque."),
		workerExecuted: workerGauge("worker_executed_total", "Worker executed task count snapshot."),
		workerStolen:   workerGauge("worker_stolen_total", "Worker stolen task count snapshot."),
		workerParked:   workerGauge("worker_parked", "Worker parked state (1=parked, 0=busy)."),
	}

	for _, g := range []**prom.GaugeVec{
		&p.poolQueued, &p.poolLocal, &p.poolActive, &p.poolWorkers, &p.poolRunning,
		&p.poolSubmitted, &p.poolExecuted, &p.poolCancelled, &p.poolPanicked,
		&p.workerQueued, &p.workerExecuted, &p.workerStolen, &p.workerParked,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddPools adds every pool under its own name.
func (p *SnapshotPoller) AddPools(pools ...NamedPool) {
	for _, pool := range pools {
		if pool != nil {
			p.AddPool(pool.Name(), pool)
		}
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (p *SnapshotPoller) collectOnce() {
	p.poolsMu.RLock()
	defer p.poolsMu.RUnlock()

	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolLocal.WithLabelValues(name).Set(float64(stats.Local))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
		p.poolSubmitted.WithLabelValues(name).Set(float64(stats.Submitted))
		p.poolExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		p.poolCancelled.WithLabelValues(name).Set(float64(stats.Cancelled))
		p.poolPanicked.WithLabelValues(name).Set(float64(stats.Panicked))

		wp, ok := provider.(WorkerSnapshotProvider)
		if !ok {
			continue
		}
		for _, w := range wp.Workers() {
			id := strconv.Itoa(w.ID)
			p.workerQueued.WithLabelValues(name, id).Set(float64(w.Queued))
			p.workerExecuted.WithLabelValues(name, id).Set(float64(w.Executed))
			p.workerStolen.WithLabelValues(name, id).Set(float64(w.Stolen))
			p.workerParked.WithLabelValues(name, id).Set(boolGauge(w.Parked))
		}
	}
}
