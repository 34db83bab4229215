package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnClosed = errors.New("connection closed")

type fakeConn struct {
	mu     sync.Mutex
	frames chan []byte
	writes []string
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case raw := <-c.frames:
		return websocket.TextMessage, raw, nil
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.writes = append(c.writes, string(data))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	failing int
	headers []http.Header
}

func (d *fakeDialer) dial(_ context.Context, _ string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.headers = append(d.headers, header)
	if d.failing > 0 {
		d.failing--
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.headers)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < len(d.conns) {
		return d.conns[i]
	}
	return nil
}

func (d *fakeDialer) header(i int) http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < len(d.headers) {
		return d.headers[i]
	}
	return nil
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(state State, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return ""
	}
	return r.states[len(r.states)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackoffBase(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 8 * time.Second},
		{6, 10 * time.Second},
		{7, 10 * time.Second},
		{40, 10 * time.Second},
		{0, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BackoffBase(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffDelayJitterRange(t *testing.T) {
	base := BackoffBase(3)
	for i := 0; i < 100; i++ {
		delay := BackoffDelay(3)
		assert.GreaterOrEqual(t, delay, base)
		assert.Less(t, delay, base+250*time.Millisecond)
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{name: "https", base: "https://relay.example.com", want: "wss://relay.example.com/stream"},
		{name: "http", base: "http://localhost:8787", want: "ws://localhost:8787/stream"},
		{name: "already wss", base: "wss://relay.example.com", want: "wss://relay.example.com/stream"},
		{name: "drops existing path", base: "https://relay.example.com/api", want: "wss://relay.example.com/stream"},
		{name: "bad scheme", base: "ftp://relay.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EndpointURL(tt.base)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubscribeDialsAndDeliversFrames(t *testing.T) {
	dialer := &fakeDialer{}
	frames := make(chan []byte, 16)
	rec := &stateRecorder{}

	mgr := NewManager(Config{
		URL:          "ws://relay.test/stream",
		Token:        "tok-123",
		Logger:       quietLogger(),
		PingInterval: time.Hour,
		Dial:         dialer.dial,
		OnFrame:      func(raw []byte) { frames <- raw },
		OnState:      rec.record,
	})
	defer mgr.Close()

	mgr.Subscribe("sess-1")

	require.Eventually(t, func() bool { return dialer.dialCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	conn := dialer.conn(0)
	require.NotNil(t, conn)

	require.Eventually(t, func() bool { return len(conn.written()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"type":"subscribe","threadId":"sess-1"}`, conn.written()[0])
	assert.Equal(t, "Bearer tok-123", dialer.header(0).Get("Authorization"))

	conn.frames <- []byte(`{"type":"pong"}`)
	select {
	case raw := <-frames:
		assert.JSONEq(t, `{"type":"pong"}`, string(raw))
	case <-time.After(2 * time.Second):
		t.Fatal("frame never delivered")
	}

	assert.Equal(t, StateConnected, mgr.State())
}

func TestReconnectsAfterDrop(t *testing.T) {
	dialer := &fakeDialer{}
	rec := &stateRecorder{}

	mgr := NewManager(Config{
		URL:          "ws://relay.test/stream",
		Logger:       quietLogger(),
		PingInterval: time.Hour,
		Dial:         dialer.dial,
		OnState:      rec.record,
	})
	defer mgr.Close()

	mgr.Subscribe("sess-1")
	require.Eventually(t, func() bool { return mgr.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	// Server side drops the connection.
	dialer.conn(0).Close()

	require.Eventually(t, func() bool { return dialer.dialCount() == 2 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return mgr.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	seen := append([]State(nil), rec.states...)
	rec.mu.Unlock()
	assert.Contains(t, seen, StateDisconnected)

	// The replacement connection re-subscribes to the same thread.
	conn := dialer.conn(1)
	require.NotNil(t, conn)
	require.Eventually(t, func() bool { return len(conn.written()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"type":"subscribe","threadId":"sess-1"}`, conn.written()[0])
}

func TestDialFailureRetries(t *testing.T) {
	dialer := &fakeDialer{failing: 1}

	mgr := NewManager(Config{
		URL:          "ws://relay.test/stream",
		Logger:       quietLogger(),
		PingInterval: time.Hour,
		Dial:         dialer.dial,
	})
	defer mgr.Close()

	mgr.Subscribe("sess-1")
	require.Eventually(t, func() bool { return dialer.dialCount() == 2 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return mgr.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)
}

func TestPingLoopWritesFrames(t *testing.T) {
	dialer := &fakeDialer{}

	mgr := NewManager(Config{
		URL:          "ws://relay.test/stream",
		Logger:       quietLogger(),
		PingInterval: 20 * time.Millisecond,
		Dial:         dialer.dial,
	})
	defer mgr.Close()

	mgr.Subscribe("sess-1")
	require.Eventually(t, func() bool { return mgr.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	conn := dialer.conn(0)
	require.Eventually(t, func() bool {
		for _, w := range conn.written() {
			if w == `{"type":"ping"}` {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSendWatchFiresWithoutActivity(t *testing.T) {
	dialer := &fakeDialer{}
	var timedOut sync.Map
	frames := make(chan []byte, 1)

	mgr := NewManager(Config{
		URL:          "ws://relay.test/stream",
		Logger:       quietLogger(),
		PingInterval: time.Hour,
		AckTimeout:   30 * time.Millisecond,
		Dial:         dialer.dial,
		OnFrame:      func(raw []byte) { frames <- raw },
		OnSendTimeout: func(threadID, turnID string) {
			timedOut.Store(threadID, turnID)
		},
	})
	defer mgr.Close()

	mgr.Subscribe("sess-1")
	require.Eventually(t, func() bool { return mgr.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	mgr.ArmSendWatch("sess-1", "turn-9")

	require.Eventually(t, func() bool {
		turn, ok := timedOut.Load("sess-1")
		return ok && turn == "turn-9"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateDisconnected, mgr.State())

	// The socket stays up: late frames still reach the consumer even
	// though the state reads disconnected.
	dialer.conn(0).frames <- []byte(`{"type":"pong"}`)
	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("late frame dropped after watchdog fired")
	}
}

func TestSendWatchDisarmedByActivity(t *testing.T) {
	dialer := &fakeDialer{}
	fired := make(chan struct{}, 1)

	mgr := NewManager(Config{
		URL:          "ws://relay.test/stream",
		Logger:       quietLogger(),
		PingInterval: time.Hour,
		AckTimeout:   40 * time.Millisecond,
		Dial:         dialer.dial,
		OnSendTimeout: func(_, _ string) {
			fired <- struct{}{}
		},
	})
	defer mgr.Close()

	mgr.Subscribe("sess-1")
	require.Eventually(t, func() bool { return mgr.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	mgr.ArmSendWatch("sess-1", "")
	mgr.AckActivity("sess-1")

	select {
	case <-fired:
		t.Fatal("watchdog fired after activity disarmed it")
	case <-time.After(120 * time.Millisecond):
	}
	assert.Equal(t, StateConnected, mgr.State())
}

func TestSendWatchIgnoresOtherThreadActivity(t *testing.T) {
	var w ackWatch
	fired := make(chan string, 1)

	w.arm("sess-1", "", 30*time.Millisecond, func(threadID, _ string) {
		fired <- threadID
	})
	assert.False(t, w.disarm("sess-other"))

	select {
	case threadID := <-fired:
		assert.Equal(t, "sess-1", threadID)
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never fired")
	}
}

func TestSendWatchRearmReplacesDeadline(t *testing.T) {
	var w ackWatch
	var mu sync.Mutex
	var fires []string

	record := func(threadID, turnID string) {
		mu.Lock()
		fires = append(fires, threadID+"/"+turnID)
		mu.Unlock()
	}

	w.arm("sess-1", "turn-1", 60*time.Millisecond, record)
	time.Sleep(20 * time.Millisecond)
	w.arm("sess-1", "turn-2", 60*time.Millisecond, record)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fires) > 0
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"sess-1/turn-2"}, fires)
}

func TestManualReconnectAfterWatchdog(t *testing.T) {
	dialer := &fakeDialer{}

	mgr := NewManager(Config{
		URL:          "ws://relay.test/stream",
		Logger:       quietLogger(),
		PingInterval: time.Hour,
		AckTimeout:   20 * time.Millisecond,
		Dial:         dialer.dial,
	})
	defer mgr.Close()

	mgr.Subscribe("sess-1")
	require.Eventually(t, func() bool { return mgr.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	mgr.ArmSendWatch("sess-1", "")
	require.Eventually(t, func() bool { return mgr.State() == StateDisconnected }, 2*time.Second, 5*time.Millisecond)

	// No automatic dial happens after a send timeout.
	assert.Equal(t, 1, dialer.dialCount())

	mgr.Reconnect()
	require.Eventually(t, func() bool { return dialer.dialCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return mgr.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)
}

func TestSubscribeSwitchTearsDownOldConnection(t *testing.T) {
	dialer := &fakeDialer{}

	mgr := NewManager(Config{
		URL:          "ws://relay.test/stream",
		Logger:       quietLogger(),
		PingInterval: time.Hour,
		Dial:         dialer.dial,
	})
	defer mgr.Close()

	mgr.Subscribe("sess-1")
	require.Eventually(t, func() bool { return mgr.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	mgr.Subscribe("sess-2")
	require.Eventually(t, func() bool { return dialer.dialCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	first := dialer.conn(0)
	select {
	case <-first.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("previous connection never closed")
	}

	second := dialer.conn(1)
	require.Eventually(t, func() bool { return len(second.written()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"type":"subscribe","threadId":"sess-2"}`, second.written()[0])
}
