package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ichat-sync/internal/models"
	"ichat-sync/internal/wire"
)

// fakeConn is an in-memory Conn fed by the test.
type fakeConn struct {
	mu      sync.Mutex
	inbound chan []byte
	written [][]byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("connection lost")
	}
	return 1, data, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed conn")
	}
	c.written = append(c.written, append([]byte{}, data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

func (c *fakeConn) writtenEvents(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var events []string
	for _, frame := range c.written {
		var env wire.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		events = append(events, env.Event)
	}
	return events
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fails int
}

func (d *fakeDialer) dial(_ context.Context, _, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fails > 0 {
		d.fails--
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func newTestManager(d *fakeDialer) *Manager {
	return NewManager(Config{
		URL:             "ws://test/ws",
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Dial:            d.dial,
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestConnectDispatchesCanonicalEvents(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	var got []models.InboundEvent
	var mu sync.Mutex
	m.On(models.EventMessageNew, func(ev models.InboundEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	require.NoError(t, m.Connect(context.Background(), "token"))
	require.Equal(t, StateConnected, m.State())

	// Canonical and legacy alias frames for the same logical event type.
	frame := []byte(`{"event":"message:new","payload":{"chatId":"c1","message":{"id":"m1","sender_id":"bob","created_at":"2025-03-01T12:00:00Z"}}}`)
	legacy := []byte(`{"event":"receiveMessage","payload":{"chatId":"c1","message":{"id":"m2","sender_id":"bob","created_at":"2025-03-01T12:00:01Z"}}}`)
	dialer.conn(0).inbound <- frame
	dialer.conn(0).inbound <- legacy

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, models.EventMessageNew, got[0].Name)
	assert.Equal(t, "m1", got[0].MessageID)
	assert.Equal(t, models.EventMessageNew, got[1].Name, "alias must arrive canonicalized")
	assert.Equal(t, "m2", got[1].MessageID)
}

func TestRoomMembershipReplayedOnReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background(), "token"))
	require.NoError(t, m.JoinRoom(models.ChatRef("c1")))
	require.NoError(t, m.JoinRoom(models.GroupRef("g1")))

	var reconnects int32
	var mu sync.Mutex
	m.OnConnected(func() {
		mu.Lock()
		reconnects++
		mu.Unlock()
	})

	// Kill the live connection; the manager must redial and replay joins.
	dialer.conn(0).Close()
	waitFor(t, func() bool { return dialer.count() >= 2 })
	waitFor(t, func() bool { return m.State() == StateConnected })

	events := dialer.conn(1).writtenEvents(t)
	assert.ElementsMatch(t, []string{models.CommandJoinChat, models.CommandJoinGroup}, events,
		"joined rooms must be re-subscribed before the connected state is surfaced")

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, reconnects, int32(1))
}

func TestReconnectRetriesThroughDialFailures(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background(), "token"))

	dialer.mu.Lock()
	dialer.fails = 3
	dialer.mu.Unlock()
	dialer.conn(0).Close()

	waitFor(t, func() bool { return m.State() == StateConnected && dialer.count() >= 2 })
}

func TestEmitWhileDisconnectedDropsSilently(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	// Never connected: sends are best-effort drops, not errors.
	assert.NoError(t, m.Emit(models.CommandTyping, map[string]string{"chatId": "c1"}))
	assert.NoError(t, m.EmitTyping(models.ChatRef("c1")))
}

func TestLeaveRoomStopsReplay(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background(), "token"))
	require.NoError(t, m.JoinRoom(models.ChatRef("c1")))
	require.NoError(t, m.LeaveRoom(models.ChatRef("c1")))
	assert.Empty(t, m.Rooms())

	dialer.conn(0).Close()
	waitFor(t, func() bool { return m.State() == StateConnected && dialer.count() >= 2 })

	assert.Empty(t, dialer.conn(1).writtenEvents(t), "left rooms must not be replayed")
}

func TestConnectTwiceIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background(), "token"))
	require.NoError(t, m.Connect(context.Background(), "token"))
	assert.Equal(t, 1, dialer.count(), "at most one active connection per session")
}

func TestCloseStopsReconnecting(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)

	require.NoError(t, m.Connect(context.Background(), "token"))
	require.NoError(t, m.Close())
	assert.Equal(t, StateDisconnected, m.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, dialer.count(), "no redial after Close")
}
