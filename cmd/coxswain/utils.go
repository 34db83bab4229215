package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/term"

	"github.com/quayside/coxswain/src/config"
	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/relayclient"
	"github.com/quayside/coxswain/src/render"
	"github.com/quayside/coxswain/src/storage"
	"github.com/quayside/coxswain/src/theme"
	"github.com/quayside/coxswain/src/turns"
)

// loadConfig loads the configuration from the specified path or default locations
func loadConfig(path string) (*config.Config, error) {
	precedence := config.GetConfigPaths()
	if path != "" {
		// Override with specific path
		precedence.UserConfig = path
	}

	loader := config.NewLoader(precedence)
	cfg, err := loader.Load()
	if err != nil {
		return nil, configErr(err)
	}
	return cfg, nil
}

// overrideConfigFromCLI overrides configuration values with CLI flags
func overrideConfigFromCLI(cfg *config.Config, cli *CLI) {
	if cli.Server != "" {
		cfg.Server.BaseURL = cli.Server
	}
	if cli.Token != "" {
		cfg.Server.Token = cli.Token
	}
	if cli.Plain {
		cfg.UI.Plain = true
	}
	if cli.NoColor {
		cfg.UI.NoColor = true
	}
}

// setupConfig loads the effective configuration for a command run.
func setupConfig(cli *CLI) (*config.Config, error) {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return nil, err
	}
	overrideConfigFromCLI(cfg, cli)
	return cfg, nil
}

// newClient builds a relay REST client from the server configuration.
func newClient(cfg *config.Config, logger *slog.Logger) (*relayclient.Client, error) {
	return relayclient.NewClient(relayclient.Config{
		BaseURL:    cfg.Server.BaseURL,
		Token:      cfg.Server.Token,
		Logger:     logger,
		Timeout:    cfg.Server.Timeout,
		RetryCount: cfg.Server.Retry.Count,
		RetryDelay: cfg.Server.Retry.Delay,
		UserAgent:  cfg.Server.UserAgent,
	})
}

// newRenderer builds a renderer from UI preferences and the terminal width.
func newRenderer(cfg *config.Config) *render.Renderer {
	return render.New(render.Options{
		Width:      terminalWidth(),
		Theme:      theme.ByName(cfg.UI.Theme),
		Plain:      cfg.UI.Plain,
		NoColor:    cfg.UI.NoColor,
		Compact:    cfg.UI.CompactMode,
		TimeFormat: cfg.UI.TimestampFormat,
	})
}

// openStore opens the local preferences database, creating its directory on
// first use.
func openStore(cfg *config.Config) (*storage.DB, error) {
	paths := config.DefaultStoragePaths(cfg)
	if err := os.MkdirAll(filepath.Dir(paths.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return storage.Open(paths.DatabasePath)
}

// terminalWidth reports the current width of stdout, or 0 when stdout is not
// a terminal so the renderer falls back to its default.
func terminalWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 0
}

// openAll opens every turn's activity panel. Observe runs first so the
// auto-open bookkeeping stays consistent when the renderer observes the same
// groups again.
func openAll(snap conversation.Snapshot, view *turns.ViewState) {
	groups := turns.Build(snap)
	view.Observe(groups)
	for _, g := range groups {
		view.SetOpen(g.Key, true)
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
