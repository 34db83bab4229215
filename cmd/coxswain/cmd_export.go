package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/spf13/afero"

	"github.com/quayside/coxswain/src/app"
	"github.com/quayside/coxswain/src/config"
	"github.com/quayside/coxswain/src/exporter"
	"github.com/quayside/coxswain/src/relayclient"
)

// ExportCmd writes a session's transcript and patches to disk
type ExportCmd struct {
	ID              string `arg:"" optional:"" help:"Session id (default: last selected)"`
	Dir             string `short:"d" help:"Output directory (default from config)"`
	IncludeThoughts bool   `help:"Include reasoning and activity rows"`
}

// Run executes the export command
func (c *ExportCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}
	logger := createCLILogger(cfg, cli.LogLevel)
	ctx := context.Background()

	a, err := app.New(app.Options{Config: cfg, Logger: logger, WithoutStream: true})
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.ResolveSession(ctx, c.ID)
	if err != nil {
		return err
	}

	a.Engine.Select(ctx, id)
	if err := a.Engine.Refresh(ctx); err != nil {
		if errors.Is(err, relayclient.ErrSessionGone) {
			a.ForgetSession(ctx, id)
		}
		return err
	}

	dir := c.Dir
	if dir == "" {
		dir = cfg.Export.Dir
	}
	if dir == "" {
		dir = config.GetDefaultExportPath()
	}

	exp := exporter.New(afero.NewOsFs(), logger)
	res, err := exp.Export(a.Engine.Snapshot(), exporter.Options{
		Dir:             dir,
		IncludeThoughts: c.IncludeThoughts || cfg.Export.IncludeThoughts,
	})
	if err != nil {
		return fmt.Errorf("export session: %w", err)
	}

	fmt.Printf("wrote %d file(s) to %s\n", len(res.Files), res.Dir)
	return nil
}
