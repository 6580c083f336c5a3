package main

import (
	"fmt"

	taskpool "github.com/Swind/go-task-pool"
	"github.com/Swind/go-task-pool/core"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	"github.com/urfave/cli/v2"
)

func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:   "info",
		Usage:  "print host parallelism and the resolved pool sizes",
		Flags:  runtimeFlags(),
		Action: infoAction,
	}
}

func infoAction(c *cli.Context) error {
	f, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	rc, err := f.RuntimeConfig()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	rc.Logger = core.NewNoOpLogger()

	rt, err := taskpool.NewRuntime(rc)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer rt.Close()

	host := table.NewWriter()
	host.SetOutputMirror(c.App.Writer)
	host.Style().Format.Header = text.FormatDefault
	host.AppendHeader(table.Row{"logical cores", "physical cores", "sizing cores", "default backend"})
	sizing := f.Cores
	if sizing <= 0 {
		sizing = core.AvailableParallelism()
	}
	host.AppendRow(table.Row{core.AvailableParallelism(), core.PhysicalCores(), sizing, core.DefaultBackend()})
	host.Render()

	pools := table.NewWriter()
	pools.SetOutputMirror(c.App.Writer)
	pools.Style().Format.Header = text.FormatDefault
	pools.AppendHeader(table.Row{"pool", "backend", "workers", "reserved", "multiplier", "min", "max"})
	policies := []taskpool.SizingPolicy{rc.Compute, rc.AsyncCompute, rc.IO}
	for i, p := range rt.Pools() {
		policy := policies[i]
		pools.AppendRow(table.Row{
			p.Name(), p.Backend(), p.ThreadNum(),
			policy.ReservedCores, policy.Multiplier, policy.MinThreads, policy.MaxThreads,
		})
	}
	pools.Render()
	return nil
}
