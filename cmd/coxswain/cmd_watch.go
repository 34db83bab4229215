package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/quayside/coxswain/src/app"
	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/relayclient"
	"github.com/quayside/coxswain/src/stream"
	"github.com/quayside/coxswain/src/turns"
)

// clearScreen moves the cursor home and wipes the terminal before a repaint.
const clearScreen = "\x1b[2J\x1b[H"

// WatchCmd follows a session live: every engine update repaints the
// transcript, pending actions, plan, and connection state
type WatchCmd struct {
	ID   string `arg:"" optional:"" help:"Session id (default: last selected)"`
	Full bool   `help:"Keep every turn's activity open"`
}

// Run executes the watch command
func (c *WatchCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}
	// The terminal belongs to the renderer; logs go to a file.
	logger := createWatchLogger(cfg, cli.LogLevel)

	a, err := app.New(app.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, err := a.ResolveSession(ctx, c.ID)
	if err != nil {
		return err
	}

	a.Engine.Select(ctx, id)
	if err := a.Engine.Refresh(ctx); err != nil {
		if errors.Is(err, relayclient.ErrSessionGone) {
			a.ForgetSession(ctx, id)
			return fmt.Errorf("session %s: %w", id, relayclient.ErrSessionGone)
		}
		// A partial baseline still renders; the push channel fills the
		// gaps and the failure is already visible as a notice.
		logger.Warn("baseline refresh incomplete", "error", err)
	}

	r := newRenderer(cfg)
	view := turns.NewViewState()

	paint := func(snap conversation.Snapshot) {
		if c.Full {
			openAll(snap, view)
		}
		if !cfg.UI.Plain {
			fmt.Print(clearScreen)
		}
		fmt.Print(r.Snapshot(snap, view))
	}

	paint(a.Engine.Snapshot())

	sawDrop := false
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-a.Engine.Updates():
			snap := a.Engine.Snapshot()

			if snap.Meta.Deleted {
				paint(snap)
				a.ForgetSession(context.Background(), id)
				return fmt.Errorf("session %s: %w", id, relayclient.ErrSessionGone)
			}

			switch snap.Connection.Status {
			case string(stream.StateDisconnected):
				sawDrop = true
			case string(stream.StateConnected):
				if sawDrop {
					sawDrop = false
					// Events during the outage are gone; pull fresh
					// baselines while the view stays on stale state.
					go func() {
						if err := a.Engine.Refresh(ctx); err != nil {
							logger.Warn("refresh after reconnect failed", "error", err)
						}
					}()
				}
			}

			paint(snap)
		}
	}
}
