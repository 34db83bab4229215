package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/quayside/coxswain/src/app"
	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/protocol"
	"github.com/quayside/coxswain/src/schema"
)

// ApprovalsCmd lists pending approvals and tool-input requests
type ApprovalsCmd struct {
	ID     string `arg:"" optional:"" help:"Session id (default: last selected)"`
	Format string `default:"table" help:"Output format (table, json)"`
}

// Run executes the approvals command
func (c *ApprovalsCmd) Run(kctx *kong.Context, cli *CLI) error {
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

	approvals, err := a.Client.ListApprovals(ctx, id)
	if err != nil {
		return fmt.Errorf("list approvals: %w", err)
	}
	toolInputs, err := a.Client.ListToolInput(ctx, id)
	if err != nil {
		return fmt.Errorf("list tool-input requests: %w", err)
	}

	if c.Format == "json" {
		return printJSON(struct {
			Approvals  []protocol.Approval         `json:"approvals"`
			ToolInputs []protocol.ToolInputRequest `json:"toolInputs"`
		}{approvals, toolInputs})
	}

	out := newRenderer(cfg).Pending(conversation.Snapshot{
		Approvals:  approvals,
		ToolInputs: toolInputs,
	})
	if out == "" {
		fmt.Println("nothing pending")
		return nil
	}
	fmt.Print(out)
	return nil
}

// ApproveCmd decides one pending approval
type ApproveCmd struct {
	ApprovalID string `arg:"" help:"Approval id"`
	Decline    bool   `help:"Decline instead of accept"`
	Scope      string `default:"turn" enum:"turn,session" help:"How far an accept reaches (turn, session)"`
}

// Run executes the approve command
func (c *ApproveCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, createCLILogger(cfg, cli.LogLevel))
	if err != nil {
		return err
	}

	req := protocol.ApprovalDecisionRequest{Decision: protocol.DecisionAccept}
	verb := "accepted"
	if c.Decline {
		req.Decision = protocol.DecisionDecline
		verb = "declined"
	} else {
		req.Scope = protocol.ApprovalScope(c.Scope)
	}

	if err := client.DecideApproval(context.Background(), c.ApprovalID, req); err != nil {
		return fmt.Errorf("decide approval: %w", err)
	}
	fmt.Printf("%s %s\n", verb, c.ApprovalID)
	return nil
}

// RespondCmd answers one pending tool-input request
type RespondCmd struct {
	RequestID string   `arg:"" help:"Tool-input request id"`
	Session   string   `help:"Session id holding the request (default: last selected)"`
	Answer    []string `short:"a" help:"Answer as questionId=value, repeatable"`
	Decline   bool     `help:"Decline the request instead of answering"`
}

// Run executes the respond command
func (c *RespondCmd) Run(kctx *kong.Context, cli *CLI) error {
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

	if c.Decline {
		req := protocol.ToolInputDecisionRequest{Decision: protocol.DecisionDecline}
		if err := a.Client.DecideToolInput(ctx, c.RequestID, req); err != nil {
			return fmt.Errorf("decide tool input: %w", err)
		}
		fmt.Printf("declined %s\n", c.RequestID)
		return nil
	}

	answers, err := parseAnswers(c.Answer)
	if err != nil {
		return err
	}

	id, err := a.ResolveSession(ctx, c.Session)
	if err != nil {
		return err
	}

	// Check the answers against the request's questions before submitting.
	reqs, err := a.Client.ListToolInput(ctx, id)
	if err != nil {
		return fmt.Errorf("list tool-input requests: %w", err)
	}
	found := false
	for _, r := range reqs {
		if r.RequestID != c.RequestID {
			continue
		}
		found = true
		if err := schema.ValidateAnswers(r.Questions, answers); err != nil {
			return fmt.Errorf("invalid answers: %w", err)
		}
	}
	if !found {
		return fmt.Errorf("request %s: %w", c.RequestID, conversation.ErrNotPending)
	}

	req := protocol.ToolInputDecisionRequest{
		Decision: protocol.DecisionAccept,
		Answers:  answers,
	}
	if err := a.Client.DecideToolInput(ctx, c.RequestID, req); err != nil {
		return fmt.Errorf("decide tool input: %w", err)
	}
	fmt.Printf("answered %s\n", c.RequestID)
	return nil
}

// parseAnswers turns repeated questionId=value flags into the answers map.
// Repeating an id collects multiple values for multi-select questions.
func parseAnswers(pairs []string) (map[string][]string, error) {
	answers := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		id, value, ok := strings.Cut(p, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid answer %q, want questionId=value", p)
		}
		answers[id] = append(answers[id], value)
	}
	return answers, nil
}
