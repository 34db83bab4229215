// Package app wires the client's services together: relay REST client,
// preferences store, stream manager, reconciliation engine, and frame
// dispatcher.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/quayside/coxswain/src/config"
	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/relayclient"
	"github.com/quayside/coxswain/src/storage"
	"github.com/quayside/coxswain/src/stream"
)

// ErrNoDefaultSession means no session id was given and none was ever
// selected before.
var ErrNoDefaultSession = errors.New("no session specified and none previously selected")

// App holds the wired services for one running command.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Client *relayclient.Client
	Store  *storage.DB
	Stream *stream.Manager
	Engine *conversation.Engine

	dispatch *conversation.Dispatcher
}

// Options configures New. Config is required; Logger defaults to a text
// handler on stderr.
type Options struct {
	Config *config.Config
	Logger *slog.Logger

	// WithoutStream skips the push channel, for one-shot commands that only
	// need REST and the local store.
	WithoutStream bool
}

// New builds the service graph. Nothing dials until the engine selects a
// session.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	paths := config.DefaultStoragePaths(opts.Config)
	if err := os.MkdirAll(filepath.Dir(paths.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := storage.Open(paths.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open preferences database: %w", err)
	}

	client, err := relayclient.NewClient(relayclient.Config{
		BaseURL:    opts.Config.Server.BaseURL,
		Token:      opts.Config.Server.Token,
		Logger:     logger,
		Timeout:    opts.Config.Server.Timeout,
		RetryCount: opts.Config.Server.Retry.Count,
		RetryDelay: opts.Config.Server.Retry.Delay,
		UserAgent:  opts.Config.Server.UserAgent,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create relay client: %w", err)
	}

	a := &App{Config: opts.Config, Logger: logger, Client: client, Store: store}

	if !opts.WithoutStream {
		streamURL, err := stream.EndpointURL(opts.Config.Server.BaseURL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("derive stream endpoint: %w", err)
		}
		// The callbacks run only after Subscribe, by which point every
		// field below is assigned.
		a.Stream = stream.NewManager(stream.Config{
			URL:          streamURL,
			Token:        opts.Config.Server.Token,
			Logger:       logger,
			PingInterval: opts.Config.Stream.PingInterval,
			AckTimeout:   opts.Config.Stream.AckTimeout,
			OnFrame:      func(raw []byte) { a.dispatch.Dispatch(raw) },
			OnState: func(st stream.State, attempt int) {
				a.Engine.SetConnState(string(st), attempt)
			},
			OnSendTimeout: func(threadID, turnID string) {
				a.Engine.HandleSendTimeout(threadID, turnID)
			},
		})
	}

	// A nil *Manager must not become a non-nil Link.
	var link conversation.Link
	if a.Stream != nil {
		link = a.Stream
	}
	a.Engine = conversation.NewEngine(conversation.EngineConfig{
		API:      client,
		Link:     link,
		Recorder: store,
		Logger:   logger,
	})
	a.dispatch = conversation.NewDispatcher(a.Engine, logger)

	return a, nil
}

// ResolveSession picks the session to operate on: the explicit id when
// given, otherwise the last selected one.
func (a *App) ResolveSession(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	id, err := storage.LastSelected(ctx, a.Store.DB())
	if err != nil {
		return "", fmt.Errorf("read last selected session: %w", err)
	}
	if id == "" {
		return "", ErrNoDefaultSession
	}
	return id, nil
}

// ForgetSession drops local references to a session the relay reports gone.
func (a *App) ForgetSession(ctx context.Context, threadID string) {
	if err := storage.ForgetSession(ctx, a.Store.DB(), threadID); err != nil {
		a.Logger.Warn("failed to forget session", "thread_id", threadID, "error", err)
	}
}

// Close releases the push channel and the preferences database.
func (a *App) Close() error {
	if a.Stream != nil {
		a.Stream.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
