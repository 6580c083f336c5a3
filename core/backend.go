package core

import (
	"strings"

	"github.com/pkg/errors"
)

// BackendKind selects the execution model of a pool.
type BackendKind int

const (
	// BackendDefault resolves to the build's default backend.
	BackendDefault BackendKind = iota
	// BackendThreaded runs a fixed set of worker goroutines with work stealing.
	BackendThreaded
	// BackendCooperative runs everything on one event-loop goroutine.
	BackendCooperative
	// BackendManual runs nothing until the host ticks the pool.
	BackendManual
)

func (k BackendKind) String() string {
	switch k {
	case BackendDefault:
		return "default"
	case BackendThreaded:
		return "threaded"
	case BackendCooperative:
		return "cooperative"
	case BackendManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Valid reports whether k names a backend.
func (k BackendKind) Valid() bool {
	return k >= BackendDefault && k <= BackendManual
}

func (k BackendKind) resolve() BackendKind {
	if k == BackendDefault {
		return defaultBackend
	}
	return k
}

// DefaultBackend returns the backend selected by build tags.
func DefaultBackend() BackendKind {
	return defaultBackend
}

// ParseBackend parses a backend name as written in config files.
func ParseBackend(s string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return BackendDefault, nil
	case "threaded", "std", "standard":
		return BackendThreaded, nil
	case "cooperative", "web", "wasm":
		return BackendCooperative, nil
	case "manual", "bare-metal", "baremetal":
		return BackendManual, nil
	}
	return BackendDefault, errors.Errorf("unknown backend %q", s)
}

// backend is the capability set that differs between execution models.
type backend interface {
	// start spawns the pool's workers, if any.
	start(p *TaskPool)
	// threadNum is the number of goroutines executing pool work.
	threadNum(p *TaskPool) int
	// tickMain drives the main-thread executors up to n times.
	tickMain(p *TaskPool, n int) int
	// parallel reports whether chunked helpers should fan out.
	parallel(p *TaskPool) bool
}

func newBackend(kind BackendKind) backend {
	switch kind {
	case BackendCooperative:
		return cooperativeBackend{}
	case BackendManual:
		return manualBackend{}
	default:
		return threadedBackend{}
	}
}

// threadedBackend: ThreadCount workers. With zero workers submissions are
// drained synchronously by the submitter.
type threadedBackend struct{}

func (threadedBackend) start(p *TaskPool) {
	n := p.cfg.ThreadCount
	workers := make([]*Worker, n)
	for i := range n {
		workers[i] = newWorker(i, p.cfg.ThreadName, p.global, p.cfg.StealRetries)
	}
	p.global.workers = workers
	p.global.eager = n == 0
	for _, w := range workers {
		p.startWorker(w)
	}
}

func (threadedBackend) threadNum(p *TaskPool) int { return len(p.global.workers) }

func (threadedBackend) tickMain(p *TaskPool, n int) int {
	return p.tickMainExecutors(n)
}

func (threadedBackend) parallel(p *TaskPool) bool { return len(p.global.workers) > 0 }

// cooperativeBackend: one event-loop goroutine runs the global queue and the
// main-thread local and scope executors, so the host never ticks.
type cooperativeBackend struct{}

func (cooperativeBackend) start(p *TaskPool) {
	w := newWorker(0, p.cfg.ThreadName+"-event-loop", p.global, p.cfg.StealRetries)
	w.local = p.mainLocal
	p.mainLocal.owner = w
	w.scope = p.mainScope
	p.mainScope.owner = w
	p.global.workers = []*Worker{w}
	p.global.loopOnly = true
	p.startWorker(w)
}

func (cooperativeBackend) threadNum(p *TaskPool) int { return 1 }

func (cooperativeBackend) tickMain(p *TaskPool, n int) int { return 0 }

func (cooperativeBackend) parallel(p *TaskPool) bool { return false }

// manualBackend: no goroutines. Work runs only inside Tick, TickMainThread,
// Await and scope joins on the caller's goroutine. There is no separate main
// thread to protect, so TickMainThread drains the global queue too.
type manualBackend struct{}

func (manualBackend) start(p *TaskPool) {}

func (manualBackend) threadNum(p *TaskPool) int { return 0 }

func (manualBackend) tickMain(p *TaskPool, n int) int {
	return p.Tick(n)
}

func (manualBackend) parallel(p *TaskPool) bool { return false }
