// Command taskpool inspects and exercises the task pool runtime: it prints
// the resolved pool sizes for a host, runs a fan-out benchmark and emits the
// default configuration.
package main

import (
	"fmt"
	"os"

	"github.com/Swind/go-task-pool/config"
	"github.com/Swind/go-task-pool/core"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "taskpool",
		Usage: "inspect and benchmark the task pool runtime",
		Commands: []*cli.Command{
			InfoCommand(),
			BenchCommand(),
			ConfigCommand(),
		},
	}
}

// Flags shared by commands that build a runtime.
func runtimeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "TOML or YAML config file",
			EnvVars: []string{config.EnvPrefix + "_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "override the backend (threaded, cooperative, manual)",
		},
		&cli.IntFlag{
			Name:  "cores",
			Usage: "override the core count used for sizing",
		},
	}
}

// loadConfig reads --config and applies the --backend and --cores overrides.
func loadConfig(c *cli.Context) (config.File, error) {
	f, err := config.Load(c.String("config"))
	if err != nil {
		return config.File{}, err
	}
	if c.IsSet("backend") {
		f.Backend = c.String("backend")
	}
	if c.IsSet("cores") {
		f.Cores = c.Int("cores")
	}
	if err := f.Validate(); err != nil {
		return config.File{}, err
	}

	if logger, err := config.NewLogger(f.LogLevel); err == nil {
		logger.Info("config loaded",
			core.F("path", c.String("config")),
			core.F("backend", f.Backend),
			core.F("cores", f.Cores))
		_ = logger.Sync()
	}
	return f, nil
}
