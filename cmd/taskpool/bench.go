package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	taskpool "github.com/Swind/go-task-pool"
	"github.com/Swind/go-task-pool/core"
	obs "github.com/Swind/go-task-pool/observability/prometheus"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	"github.com/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func BenchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "run a fan-out benchmark on one pool and report latency percentiles",
		Flags: append(runtimeFlags(),
			&cli.StringFlag{
				Name:  "pool",
				Value: taskpool.ComputePoolName,
				Usage: "pool to benchmark (compute, async_compute, io)",
			},
			&cli.IntFlag{
				Name:  "tasks",
				Value: 10000,
				Usage: "tasks per round",
			},
			&cli.IntFlag{
				Name:  "rounds",
				Value: 5,
				Usage: "number of rounds",
			},
			&cli.DurationFlag{
				Name:  "work",
				Value: 20 * time.Microsecond,
				Usage: "busy time per task",
			},
			&cli.BoolFlag{
				Name:  "baseline",
				Value: true,
				Usage: "also run the same load through an errgroup",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve Prometheus metrics on this address while running",
			},
			&cli.DurationFlag{
				Name:  "hold",
				Usage: "keep the metrics endpoint up this long after the run",
			},
		),
		Action: benchAction,
	}
}

// benchResult is one row of the report.
type benchResult struct {
	subject string
	tasks   int
	wall    time.Duration
	latency *hdrhistogram.Histogram
}

func benchAction(c *cli.Context) error {
	tasks, rounds := c.Int("tasks"), c.Int("rounds")
	if tasks < 1 || rounds < 1 {
		return cli.Exit("tasks and rounds must be positive", 1)
	}

	f, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	rc, err := f.RuntimeConfig()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	rc.Logger = core.NewNoOpLogger()

	var poller *obs.SnapshotPoller
	if addr := c.String("metrics-addr"); addr != "" {
		reg := prom.NewRegistry()
		exporter, err := obs.NewMetricsExporter("taskpool", reg, obs.ExporterOptions{})
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		rc.Metrics = exporter
		if poller, err = obs.NewSnapshotPoller(reg, 100*time.Millisecond); err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}

		stop, err := serveMetrics(addr, reg)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		defer stop()
		fmt.Fprintf(c.App.Writer, "metrics on http://%s/metrics\n", addr)
	}

	rt, err := taskpool.NewRuntime(rc)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer rt.Close()

	pool, err := pickPool(rt, c.String("pool"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if poller != nil {
		for _, p := range rt.Pools() {
			poller.AddPool(p.Name(), p)
		}
		poller.Start(c.Context)
		defer poller.Stop()
	}

	work := c.Duration("work")
	results := []benchResult{runPool(c.Context, pool, tasks, rounds, work)}
	if c.Bool("baseline") {
		results = append(results, runErrgroup(c.Context, max(pool.ThreadNum(), 1), tasks, rounds, work))
	}

	writeReport(c, results)

	if hold := c.Duration("hold"); hold > 0 && poller != nil {
		select {
		case <-time.After(hold):
		case <-c.Context.Done():
		}
	}
	return nil
}

func pickPool(rt *taskpool.Runtime, name string) (*core.TaskPool, error) {
	for _, p := range rt.Pools() {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, errors.Errorf("unknown pool %q", name)
}

func serveMetrics(addr string, reg *prom.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.Serve(ln)
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}

// busy spins for d so the measured work is CPU time rather than sleep.
func busy(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}

func newLatencyHistogram() *hdrhistogram.Histogram {
	// 1µs to 60s at 3 significant figures.
	return hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3)
}

// runPool spawns every task of a round into a scope, recording the time
// from spawn until the task finished.
func runPool(ctx context.Context, pool *core.TaskPool, tasks, rounds int, work time.Duration) benchResult {
	res := benchResult{subject: "taskpool/" + pool.Name(), tasks: tasks * rounds, latency: newLatencyHistogram()}
	latencies := make([]time.Duration, tasks)

	for range rounds {
		start := time.Now()
		_, _ = taskpool.RunScope(ctx, pool, func(s *taskpool.Scope[struct{}]) {
			for i := range tasks {
				spawned := time.Now()
				s.Spawn(func(context.Context) (struct{}, error) {
					busy(work)
					latencies[i] = time.Since(spawned)
					return struct{}{}, nil
				})
			}
		})
		res.wall += time.Since(start)
		recordAll(res.latency, latencies)
	}
	return res
}

func runErrgroup(ctx context.Context, limit, tasks, rounds int, work time.Duration) benchResult {
	res := benchResult{subject: fmt.Sprintf("errgroup/limit=%d", limit), tasks: tasks * rounds, latency: newLatencyHistogram()}
	latencies := make([]time.Duration, tasks)

	for range rounds {
		start := time.Now()
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for i := range tasks {
			spawned := time.Now()
			g.Go(func() error {
				busy(work)
				latencies[i] = time.Since(spawned)
				return nil
			})
		}
		_ = g.Wait()
		res.wall += time.Since(start)
		recordAll(res.latency, latencies)
	}
	return res
}

func recordAll(h *hdrhistogram.Histogram, latencies []time.Duration) {
	for _, d := range latencies {
		_ = h.RecordValue(max(d.Microseconds(), 1))
	}
}

func writeReport(c *cli.Context, results []benchResult) {
	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row{"subject", "tasks", "wall", "tasks/s", "p50", "p99", "max"})
	for _, r := range results {
		us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
		t.AppendRow(table.Row{
			r.subject,
			r.tasks,
			r.wall.Round(time.Microsecond),
			fmt.Sprintf("%.0f", float64(r.tasks)/r.wall.Seconds()),
			us(r.latency.ValueAtQuantile(50)),
			us(r.latency.ValueAtQuantile(99)),
			us(r.latency.Max()),
		})
	}
	t.Render()
}
