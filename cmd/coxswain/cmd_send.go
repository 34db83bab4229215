package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/quayside/coxswain/src/app"
	"github.com/quayside/coxswain/src/config"
	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/protocol"
	"github.com/quayside/coxswain/src/relayclient"
	"github.com/quayside/coxswain/src/turns"
)

// SendCmd sends a message to a session
type SendCmd struct {
	ID      string        `arg:"" help:"Session id"`
	Text    []string      `arg:"" help:"Message text"`
	Model   string        `short:"m" help:"Model override for this turn"`
	Effort  string        `help:"Reasoning effort override for this turn"`
	Wait    bool          `short:"w" help:"Wait for the turn to finish and print the answer"`
	Timeout time.Duration `default:"10m" help:"Give up waiting after this long"`
}

// Run executes the send command
func (c *SendCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}
	logger := createCLILogger(cfg, cli.LogLevel)
	text := strings.Join(c.Text, " ")

	req := protocol.SendMessageRequest{
		Text:   text,
		Model:  c.Model,
		Effort: c.Effort,
	}

	if !c.Wait {
		client, err := newClient(cfg, logger)
		if err != nil {
			return err
		}
		resp, err := client.SendMessage(context.Background(), c.ID, req)
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		fmt.Println(resp.TurnID)
		return nil
	}

	a, err := app.New(app.Options{Config: cfg, Logger: logger})
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

	// Subscribe before sending so the turn's pushes are not missed.
	a.Engine.Select(ctx, c.ID)
	if err := a.Engine.Refresh(ctx); err != nil {
		if errors.Is(err, relayclient.ErrSessionGone) {
			a.ForgetSession(ctx, c.ID)
		}
		return err
	}

	resp, err := a.Client.SendMessage(ctx, c.ID, req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	turnID := resp.TurnID

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.Engine.Updates():
			snap := a.Engine.Snapshot()
			if g := finishedTurn(snap, turnID); g != nil {
				return printTurnOutcome(cfg, *g)
			}
		}
	}
}

// finishedTurn returns the turn's group once it has settled: it is no longer
// the active turn and none of its rows are still streaming.
func finishedTurn(snap conversation.Snapshot, turnID string) *turns.Group {
	if turnID == "" || snap.Meta.ActiveTurnID == turnID {
		return nil
	}
	for _, g := range turns.Build(snap) {
		if g.TurnID != turnID {
			continue
		}
		if g.ThinkingActive {
			return nil
		}
		if g.FinalAssistant != nil && g.FinalAssistant.Status == protocol.StatusStreaming {
			return nil
		}
		for _, m := range g.ThoughtMessages {
			if m.Status == protocol.StatusStreaming {
				return nil
			}
		}
		return &g
	}
	return nil
}

// printTurnOutcome prints the settled turn's answer, or its failure.
func printTurnOutcome(cfg *config.Config, g turns.Group) error {
	for _, m := range g.ThoughtMessages {
		if m.Type == conversation.TypeTurnFailure && m.Content != "" {
			fmt.Fprintln(os.Stderr, m.Content)
			return fmt.Errorf("turn %s failed", g.TurnID)
		}
	}
	if g.FinalAssistant != nil && g.FinalAssistant.Content != "" {
		fmt.Print(newRenderer(cfg).Markdown(g.FinalAssistant.Content))
		return nil
	}
	fmt.Printf("turn %s finished\n", g.TurnID)
	return nil
}
