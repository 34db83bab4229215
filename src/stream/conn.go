// Package stream owns the push-channel lifecycle: dialing and subscribing,
// epoch-based reconnects with capped exponential backoff, app-level pings,
// and the send-acknowledgement watchdog that catches open-but-silent
// connections.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State describes the perceived liveness of the push channel.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

const (
	backoffInitial = 500 * time.Millisecond
	backoffMax     = 10 * time.Second
	backoffJitter  = 250 * time.Millisecond

	defaultPingInterval = 15 * time.Second
	defaultAckTimeout   = 12 * time.Second
	dialTimeout         = 10 * time.Second
)

// Conn is the subset of a websocket connection the manager uses. Satisfied
// by *websocket.Conn.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// DialFunc opens a websocket connection to the relay stream endpoint.
type DialFunc func(ctx context.Context, rawURL string, header http.Header) (Conn, error)

// Config holds the manager's wiring. OnFrame is invoked from the read loop,
// one frame at a time; OnState and OnSendTimeout are invoked without any
// manager lock held.
type Config struct {
	URL          string // stream endpoint, ws:// or wss://
	Token        string
	Logger       *slog.Logger
	PingInterval time.Duration
	AckTimeout   time.Duration
	Dial         DialFunc

	OnFrame       func(raw []byte)
	OnState       func(state State, attempt int)
	OnSendTimeout func(threadID, turnID string)
}

// Manager maintains exactly one live push channel for the selected thread
// and recovers from drops. Reconnection works by bumping a monotonic epoch:
// loops belonging to an older epoch notice and exit without side effects.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	attempt  int
	epoch    uint64
	threadID string
	conn     Conn
	backoff  *time.Timer
	closed   bool

	watch ackWatch
}

// NewManager creates a stream manager. It does not dial until Subscribe is
// called.
func NewManager(cfg Config) *Manager {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	if cfg.Dial == nil {
		cfg.Dial = gorillaDial
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With("component", "stream"),
		state:  StateDisconnected,
	}
}

// State returns the current perceived connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe tears down any existing channel and dials for the given thread.
func (m *Manager) Subscribe(threadID string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.threadID = threadID
	m.attempt = 0
	epoch := m.restartLocked()
	m.state = StateConnecting
	m.mu.Unlock()

	m.notifyState(StateConnecting, 0)
	go m.run(epoch, threadID)
}

// Reconnect is the explicit user-triggered path: it cancels any pending
// backoff, clears the watchdog, and dials fresh.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.closed || m.threadID == "" {
		m.mu.Unlock()
		return
	}
	threadID := m.threadID
	epoch := m.restartLocked()
	m.state = StateConnecting
	m.mu.Unlock()

	m.watch.disarm("")
	m.notifyState(StateConnecting, 0)
	go m.run(epoch, threadID)
}

// Close tears the channel down for good.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.restartLocked()
	m.mu.Unlock()
	m.watch.disarm("")
}

// restartLocked bumps the epoch, stops timers, and closes the current
// connection. Returns the new epoch.
func (m *Manager) restartLocked() uint64 {
	m.epoch++
	if m.backoff != nil {
		m.backoff.Stop()
		m.backoff = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return m.epoch
}

// ArmSendWatch starts the send-acknowledgement watchdog for a submitted
// message. If no activity signal for the thread arrives within the ack
// timeout, the connection is declared dead even though the transport never
// reported a failure.
func (m *Manager) ArmSendWatch(threadID, turnID string) {
	m.watch.arm(threadID, turnID, m.cfg.AckTimeout, m.sendTimedOut)
}

// AckActivity disarms the watchdog when any activity signal for the thread
// is observed.
func (m *Manager) AckActivity(threadID string) {
	m.watch.disarm(threadID)
}

func (m *Manager) sendTimedOut(threadID, turnID string) {
	m.logger.Warn("no response to submitted message, declaring connection dead",
		"thread_id", threadID, "turn_id", turnID)

	m.mu.Lock()
	m.state = StateDisconnected
	attempt := m.attempt
	m.mu.Unlock()

	// The socket is left in place: frames that still arrive keep merging
	// into the stores, but the state stays disconnected until the user
	// explicitly reconnects.
	if m.cfg.OnState != nil {
		m.cfg.OnState(StateDisconnected, attempt)
	}
	if m.cfg.OnSendTimeout != nil {
		m.cfg.OnSendTimeout(threadID, turnID)
	}
}

// run dials, subscribes, and consumes frames until the connection dies or
// the epoch moves on.
func (m *Manager) run(epoch uint64, threadID string) {
	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	header := http.Header{}
	if m.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+m.cfg.Token)
	}

	conn, err := m.cfg.Dial(dialCtx, m.cfg.URL, header)
	if err != nil {
		m.logger.Debug("stream dial failed", "error", err)
		m.connectionLost(epoch, threadID, err)
		return
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.attempt = 0
	m.state = StateConnected
	m.mu.Unlock()

	if err := conn.WriteJSON(subscribeFrame(threadID)); err != nil {
		m.connectionLost(epoch, threadID, fmt.Errorf("subscribe: %w", err))
		return
	}
	m.notifyState(StateConnected, 0)
	m.logger.Info("stream connected", "thread_id", threadID)

	done := make(chan struct{})
	defer close(done)
	go m.pingLoop(conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(epoch, threadID, err)
			return
		}
		m.mu.Lock()
		stale := m.epoch != epoch
		m.mu.Unlock()
		if stale {
			return
		}
		if m.cfg.OnFrame != nil {
			m.cfg.OnFrame(raw)
		}
	}
}

// pingLoop writes the app-level ping frame until the connection goes away.
// Only this goroutine writes after the subscribe frame, so writes never
// race.
func (m *Manager) pingLoop(conn Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(pingFrame()); err != nil {
				return
			}
		}
	}
}

// connectionLost records a drop and schedules the next attempt. Errors from
// an epoch that has already been superseded are ignored: that channel was
// deliberately torn down.
func (m *Manager) connectionLost(epoch uint64, threadID string, err error) {
	m.mu.Lock()
	if m.epoch != epoch || m.closed {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.attempt++
	attempt := m.attempt
	delay := BackoffDelay(attempt)

	m.backoff = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.epoch != epoch || m.closed {
			m.mu.Unlock()
			return
		}
		next := m.restartLocked()
		m.state = StateConnecting
		m.mu.Unlock()
		m.notifyState(StateConnecting, attempt)
		go m.run(next, threadID)
	})
	m.mu.Unlock()

	m.logger.Warn("stream connection lost",
		"thread_id", threadID, "attempt", attempt, "retry_in", delay, "error", err)
	m.notifyState(StateDisconnected, attempt)
}

func (m *Manager) notifyState(state State, attempt int) {
	if m.cfg.OnState != nil {
		m.cfg.OnState(state, attempt)
	}
}

// BackoffBase returns the undithered reconnect delay for a 1-based attempt:
// 500 ms doubling per attempt, capped at 10 s.
func BackoffBase(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := backoffInitial
	for i := 1; i < attempt; i++ {
		base *= 2
		if base >= backoffMax {
			return backoffMax
		}
	}
	return base
}

// BackoffDelay adds up to 250 ms of uniform jitter to the base delay.
func BackoffDelay(attempt int) time.Duration {
	return BackoffBase(attempt) + time.Duration(rand.Int64N(int64(backoffJitter)))
}

// EndpointURL derives the stream endpoint from the REST base URL.
func EndpointURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/stream"
	return u.String(), nil
}

func subscribeFrame(threadID string) any {
	return struct {
		Type     string `json:"type"`
		ThreadID string `json:"threadId"`
	}{Type: "subscribe", ThreadID: threadID}
}

func pingFrame() any {
	return struct {
		Type string `json:"type"`
	}{Type: "ping"}
}

func gorillaDial(ctx context.Context, rawURL string, header http.Header) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("dial stream: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	return conn, nil
}
