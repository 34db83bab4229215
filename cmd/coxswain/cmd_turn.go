package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/quayside/coxswain/src/app"
	"github.com/quayside/coxswain/src/relayclient"
)

// InterruptCmd stops a session's active turn
type InterruptCmd struct {
	ID string `arg:"" help:"Session id"`
}

// Run executes the interrupt command
func (c *InterruptCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, createCLILogger(cfg, cli.LogLevel))
	if err != nil {
		return err
	}
	ctx := context.Background()

	turnID, err := activeTurn(ctx, client, c.ID)
	if err != nil {
		return err
	}

	if err := client.Interrupt(ctx, c.ID, turnID); err != nil {
		return fmt.Errorf("interrupt turn: %w", err)
	}
	fmt.Printf("interrupted %s\n", turnID)
	return nil
}

// SteerCmd injects guidance into a session's active turn
type SteerCmd struct {
	ID   string   `arg:"" help:"Session id"`
	Text []string `arg:"" help:"Guidance for the running turn"`
}

// Run executes the steer command
func (c *SteerCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, createCLILogger(cfg, cli.LogLevel))
	if err != nil {
		return err
	}
	ctx := context.Background()

	turnID, err := activeTurn(ctx, client, c.ID)
	if err != nil {
		return err
	}

	if err := client.Steer(ctx, c.ID, turnID, strings.Join(c.Text, " ")); err != nil {
		return fmt.Errorf("steer turn: %w", err)
	}
	fmt.Printf("steered %s\n", turnID)
	return nil
}

// activeTurn looks up the session's in-progress turn.
func activeTurn(ctx context.Context, client *relayclient.Client, sessionID string) (string, error) {
	detail, err := client.GetSession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	turnID := detail.ActiveTurnID()
	if turnID == "" {
		return "", fmt.Errorf("session %s: %w", sessionID, relayclient.ErrNoActiveTurn)
	}
	return turnID, nil
}

// SuggestCmd asks the relay to draft the user's next reply
type SuggestCmd struct {
	ID      string        `arg:"" optional:"" help:"Session id (default: last selected)"`
	Draft   string        `help:"Draft text to improve"`
	Timeout time.Duration `default:"2m" help:"Give up after this long"`
}

// Run executes the suggest command
func (c *SuggestCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}
	logger := createCLILogger(cfg, cli.LogLevel)

	a, err := app.New(app.Options{Config: cfg, Logger: logger, WithoutStream: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	id, err := a.ResolveSession(ctx, c.ID)
	if err != nil {
		return err
	}

	a.Engine.Select(ctx, id)
	a.Engine.SuggestReply(ctx, c.Draft)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.Engine.Updates():
			s := a.Engine.Snapshot().Suggestion
			if s.Pending {
				continue
			}
			if s.Err != "" {
				return fmt.Errorf("suggest reply: %s", s.Err)
			}
			if s.Text == "" {
				fmt.Println("no suggestion")
				return nil
			}
			fmt.Print(newRenderer(cfg).Markdown(s.Text))
			return nil
		}
	}
}
