package main

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"
)

// ProjectsCmd lists the relay's projects
type ProjectsCmd struct {
	Format string `default:"table" help:"Output format (table, json)"`
}

// Run executes the projects command
func (c *ProjectsCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, createCLILogger(cfg, cli.LogLevel))
	if err != nil {
		return err
	}

	projects, err := client.ListProjects(context.Background())
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	switch c.Format {
	case "json":
		return printJSON(projects)
	case "table":
		fmt.Print(newRenderer(cfg).Projects(projects))
		return nil
	default:
		return fmt.Errorf("invalid format: %s", c.Format)
	}
}
