package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/quayside/coxswain/src/config"
)

// DoctorCmd checks the local setup and the relay connection
type DoctorCmd struct {
	Timeout time.Duration `default:"5s" help:"Health check timeout"`
}

// Run executes the doctor command
func (c *DoctorCmd) Run(kctx *kong.Context, cli *CLI) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "Configuration:")
	for _, loc := range config.Locations(config.GetConfigPaths()) {
		mark := " "
		if loc.Present {
			mark = "*"
		}
		fmt.Fprintf(w, "  %s %s\t(%s)\n", mark, loc.Path, loc.Source)
	}

	cfg, err := setupConfig(cli)
	if err != nil {
		fmt.Fprintf(w, "  load failed:\t%v\n", err)
		return err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		fmt.Fprintf(w, "  invalid:\t%v\n", err)
	}

	fmt.Fprintln(w, "\nServer:")
	fmt.Fprintf(w, "  base url:\t%s\n", cfg.Server.BaseURL)
	switch {
	case cfg.Server.Token != "":
		fmt.Fprintln(w, "  token:\tset")
	case cfg.Server.TokenEnvVar != "":
		fmt.Fprintf(w, "  token:\tnot set (%s is empty)\n", cfg.Server.TokenEnvVar)
	default:
		fmt.Fprintln(w, "  token:\tnot set")
	}

	paths := config.DefaultStoragePaths(cfg)
	exportDir := cfg.Export.Dir
	if exportDir == "" {
		exportDir = config.GetDefaultExportPath()
	}
	fmt.Fprintln(w, "\nStorage:")
	fmt.Fprintf(w, "  database:\t%s\n", paths.DatabasePath)
	fmt.Fprintf(w, "  logs:\t%s\n", paths.LogDir)
	fmt.Fprintf(w, "  exports:\t%s\n", exportDir)

	fmt.Fprintln(w, "\nRelay:")
	var healthErr error
	client, err := newClient(cfg, createCLILogger(cfg, cli.LogLevel))
	if err != nil {
		healthErr = err
		fmt.Fprintf(w, "  client:\t%v\n", err)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
		defer cancel()
		start := time.Now()
		health, err := client.Health(ctx)
		if err != nil {
			healthErr = err
			fmt.Fprintf(w, "  health:\tunreachable (%v)\n", err)
		} else {
			fmt.Fprintf(w, "  health:\t%s (%s)\n", health.Status, time.Since(start).Round(time.Millisecond))
		}
	}

	fmt.Fprintln(w, "\nHost:")
	platform := runtime.GOOS
	if info, err := host.Info(); err == nil {
		platform = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
	}
	fmt.Fprintf(w, "  platform:\t%s (%s)\n", platform, runtime.GOARCH)
	fmt.Fprintf(w, "  go:\t%s\n", runtime.Version())
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := p.MemoryInfo(); err == nil {
			fmt.Fprintf(w, "  rss:\t%.1f MB\n", float64(mem.RSS)/(1024*1024))
		}
	}

	return healthErr
}
