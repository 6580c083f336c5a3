package main

import (
	"fmt"

	"github.com/Swind/go-task-pool/config"
	"github.com/urfave/cli/v2"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the effective configuration",
		Flags: append(runtimeFlags(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "toml",
				Usage:   "output format (toml or yaml)",
			},
		),
		Action: configAction,
	}
}

func configAction(c *cli.Context) error {
	format := c.String("format")
	if format != "toml" && format != "yaml" {
		return cli.Exit("format must be toml or yaml", 1)
	}

	f, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	if err := config.Encode(c.App.Writer, f, format); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	return nil
}
