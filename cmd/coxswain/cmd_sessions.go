package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/alecthomas/kong"

	"github.com/quayside/coxswain/src/app"
	"github.com/quayside/coxswain/src/config"
	"github.com/quayside/coxswain/src/protocol"
	"github.com/quayside/coxswain/src/relayclient"
	"github.com/quayside/coxswain/src/storage"
	"github.com/quayside/coxswain/src/turns"
)

// SessionsCmd manages relay sessions
type SessionsCmd struct {
	List      SessionsListCmd      `cmd:"" default:"1" help:"List sessions"`
	Show      SessionsShowCmd      `cmd:"" help:"Show a session transcript"`
	New       SessionsNewCmd       `cmd:"" help:"Create a session"`
	Rename    SessionsRenameCmd    `cmd:"" help:"Rename a session"`
	Archive   SessionsArchiveCmd   `cmd:"" help:"Archive a session"`
	Unarchive SessionsUnarchiveCmd `cmd:"" help:"Unarchive a session"`
	Assign    SessionsAssignCmd    `cmd:"" help:"Assign a session to a project"`
	Forget    SessionsForgetCmd    `cmd:"" help:"Drop a session from local history"`
}

// SessionsListCmd lists sessions from the relay or the local recents table
type SessionsListCmd struct {
	Archived bool   `help:"List archived sessions instead of active ones"`
	Recent   bool   `help:"List locally remembered recent sessions"`
	Cursor   string `help:"Opaque page cursor from a previous listing"`
	Limit    int    `default:"50" help:"Page size"`
	Format   string `default:"table" help:"Output format (table, json)"`
}

// Run executes the sessions list command
func (c *SessionsListCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}
	ctx := context.Background()

	if c.Recent {
		return c.listRecent(ctx, cfg)
	}

	client, err := newClient(cfg, createCLILogger(cfg, cli.LogLevel))
	if err != nil {
		return err
	}

	archived := c.Archived
	page, err := client.ListSessions(ctx, relayclient.ListSessionsOptions{
		Archived: &archived,
		Cursor:   c.Cursor,
		Limit:    c.Limit,
	})
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	switch c.Format {
	case "json":
		return printJSON(page)
	case "table":
		fmt.Print(newRenderer(cfg).Sessions(page.Items))
		if page.NextCursor != "" {
			fmt.Printf("\nnext page: coxswain sessions --cursor %s\n", page.NextCursor)
		}
		return nil
	default:
		return fmt.Errorf("invalid format: %s", c.Format)
	}
}

// listRecent lists sessions the user has watched from this machine,
// most recent first. Works offline.
func (c *SessionsListCmd) listRecent(ctx context.Context, cfg *config.Config) error {
	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer db.Close()

	recents, err := storage.Recents(ctx, db.DB(), c.Limit)
	if err != nil {
		return fmt.Errorf("list recent sessions: %w", err)
	}

	if c.Format == "json" {
		return printJSON(recents)
	}

	if len(recents) == 0 {
		fmt.Println("no recent sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tTITLE\tLAST SELECTED\tTIMES")
	for _, s := range recents {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
			s.ID, title, s.LastSelectedAt.Local().Format("2006-01-02 15:04"), s.TimesSelected)
	}
	return nil
}

// SessionsShowCmd renders one session's transcript and pending work
type SessionsShowCmd struct {
	ID   string `arg:"" optional:"" help:"Session id (default: last selected)"`
	Full bool   `help:"Open every turn's activity"`
}

// Run executes the sessions show command
func (c *SessionsShowCmd) Run(kctx *kong.Context, cli *CLI) error {
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

	snap := a.Engine.Snapshot()
	view := turns.NewViewState()
	if c.Full {
		openAll(snap, view)
	}

	fmt.Print(newRenderer(cfg).Snapshot(snap, view))
	return nil
}

// SessionsNewCmd creates a session on the relay
type SessionsNewCmd struct {
	Cwd   string `help:"Working directory for the session (default: current)"`
	Model string `short:"m" help:"Model for the session"`
}

// Run executes the sessions new command
func (c *SessionsNewCmd) Run(kctx *kong.Context, cli *CLI) error {
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

	cwd := c.Cwd
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	created, err := a.Client.CreateSession(ctx, protocol.CreateSessionRequest{
		Cwd:   cwd,
		Model: c.Model,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	// The new session becomes the default for watch and send.
	if err := a.Store.RecordSelected(ctx, created.ID); err != nil {
		logger.Warn("failed to record new session locally", "error", err)
	}

	fmt.Println(newRenderer(cfg).SessionLine(*created))
	return nil
}

// SessionsRenameCmd retitles a session
type SessionsRenameCmd struct {
	ID    string `arg:"" help:"Session id"`
	Title string `arg:"" help:"New title"`
}

// Run executes the sessions rename command
func (c *SessionsRenameCmd) Run(kctx *kong.Context, cli *CLI) error {
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

	if err := a.Client.Rename(ctx, c.ID, c.Title); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	// Keep the local recents listing in step with the relay.
	if err := storage.SetSessionTitle(ctx, a.Store.DB(), c.ID, c.Title); err != nil {
		logger.Warn("failed to update local title", "error", err)
	}

	fmt.Printf("renamed %s\n", c.ID)
	return nil
}

// SessionsArchiveCmd archives a session
type SessionsArchiveCmd struct {
	ID string `arg:"" help:"Session id"`
}

// Run executes the sessions archive command
func (c *SessionsArchiveCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, createCLILogger(cfg, cli.LogLevel))
	if err != nil {
		return err
	}

	if err := client.Archive(context.Background(), c.ID); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	fmt.Printf("archived %s\n", c.ID)
	return nil
}

// SessionsUnarchiveCmd restores an archived session
type SessionsUnarchiveCmd struct {
	ID string `arg:"" help:"Session id"`
}

// Run executes the sessions unarchive command
func (c *SessionsUnarchiveCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, createCLILogger(cfg, cli.LogLevel))
	if err != nil {
		return err
	}

	if err := client.Unarchive(context.Background(), c.ID); err != nil {
		return fmt.Errorf("unarchive session: %w", err)
	}
	fmt.Printf("unarchived %s\n", c.ID)
	return nil
}

// SessionsAssignCmd moves a session into a project, or out of all of them
type SessionsAssignCmd struct {
	ID      string `arg:"" help:"Session id"`
	Project string `arg:"" optional:"" help:"Project id"`
	None    bool   `help:"Clear the project assignment"`
}

// Run executes the sessions assign command
func (c *SessionsAssignCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}

	var projectID *string
	switch {
	case c.None:
		projectID = nil
	case c.Project != "":
		projectID = &c.Project
	default:
		return fmt.Errorf("invalid usage: a project id or --none is required")
	}

	client, err := newClient(cfg, createCLILogger(cfg, cli.LogLevel))
	if err != nil {
		return err
	}

	if err := client.SetProject(context.Background(), c.ID, projectID); err != nil {
		return fmt.Errorf("assign project: %w", err)
	}

	if projectID == nil {
		fmt.Printf("cleared project for %s\n", c.ID)
	} else {
		fmt.Printf("assigned %s to %s\n", c.ID, *projectID)
	}
	return nil
}

// SessionsForgetCmd removes a session from the local recents table
type SessionsForgetCmd struct {
	ID string `arg:"" help:"Session id"`
}

// Run executes the sessions forget command
func (c *SessionsForgetCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := setupConfig(cli)
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer db.Close()

	if err := storage.ForgetSession(context.Background(), db.DB(), c.ID); err != nil {
		return fmt.Errorf("forget session: %w", err)
	}
	fmt.Printf("forgot %s\n", c.ID)
	return nil
}
