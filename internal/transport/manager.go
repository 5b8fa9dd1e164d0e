// Package transport owns the single live bidirectional channel of a client
// session: connect/reconnect with backoff, room subscription bookkeeping and
// a typed publish/subscribe surface over canonical event names.
package transport

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"ichat-sync/internal/models"
	"ichat-sync/internal/observability"
	"ichat-sync/internal/wire"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Handler receives decoded canonical events. Handlers run synchronously on
// the read loop so per-conversation arrival order is preserved.
type Handler func(models.InboundEvent)

// Conn is the subset of *websocket.Conn the manager needs; tests substitute
// an in-memory implementation.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc establishes a connection for the given bearer credential.
type DialFunc func(ctx context.Context, url, credential string) (Conn, error)

func gorillaDial(ctx context.Context, url, credential string) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config tunes the manager.
type Config struct {
	URL             string
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Dial            DialFunc
}

func (c *Config) defaults() {
	if c.InitialInterval == 0 {
		c.InitialInterval = time.Second
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.Dial == nil {
		c.Dial = gorillaDial
	}
}

// ErrNotConnected is returned by operations that require a live channel.
var ErrNotConnected = errors.New("transport not connected")

// Manager maintains at most one active connection per session.
type Manager struct {
	cfg Config

	mu         sync.Mutex
	state      State
	conn       Conn
	credential string
	rooms      map[string]models.ConversationRef
	closed     bool
	cancel     context.CancelFunc

	writeMu sync.Mutex

	handlerMu    sync.RWMutex
	handlers     map[string][]Handler
	onConnected  []func()
	onDisconnect []func(error)
}

// NewManager builds a manager; Connect starts it.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{
		cfg:      cfg,
		state:    StateDisconnected,
		rooms:    make(map[string]models.ConversationRef),
		handlers: make(map[string][]Handler),
	}
}

// On registers a handler for a canonical event name.
func (m *Manager) On(event string, h Handler) {
	m.handlerMu.Lock()
	m.handlers[wire.Canonical(event)] = append(m.handlers[wire.Canonical(event)], h)
	m.handlerMu.Unlock()
}

// OnConnected registers a callback fired after room membership has been
// replayed on a fresh connection.
func (m *Manager) OnConnected(fn func()) {
	m.handlerMu.Lock()
	m.onConnected = append(m.onConnected, fn)
	m.handlerMu.Unlock()
}

// OnDisconnected registers a callback for connection loss.
func (m *Manager) OnDisconnected(fn func(error)) {
	m.handlerMu.Lock()
	m.onDisconnect = append(m.onDisconnect, fn)
	m.handlerMu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect establishes the connection and keeps it alive with exponential
// backoff until Close or context cancellation. Events lost during a gap are
// not replayed: the reconciliation engine re-hydrates over REST on every
// conversation activation.
func (m *Manager) Connect(ctx context.Context, credential string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("transport closed")
	}
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.credential = credential
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	if err := m.dialOnce(runCtx); err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		cancel()
		return err
	}
	return nil
}

func (m *Manager) dialOnce(ctx context.Context) error {
	m.mu.Lock()
	credential := m.credential
	m.mu.Unlock()

	conn, err := m.cfg.Dial(ctx, m.cfg.URL, credential)
	if err != nil {
		return err
	}

	// Replay room membership before surfacing the connected state, so
	// dependents never observe a connection without its subscriptions.
	m.mu.Lock()
	rooms := make([]models.ConversationRef, 0, len(m.rooms))
	for _, ref := range m.rooms {
		rooms = append(rooms, ref)
	}
	m.mu.Unlock()

	for _, ref := range rooms {
		frame, err := wire.JoinCommand(ref)
		if err != nil {
			continue
		}
		if err := m.write(conn, frame); err != nil {
			conn.Close()
			return err
		}
	}

	m.mu.Lock()
	m.conn = conn
	m.state = StateConnected
	m.mu.Unlock()

	m.handlerMu.RLock()
	connected := append([]func(){}, m.onConnected...)
	m.handlerMu.RUnlock()
	for _, fn := range connected {
		fn()
	}

	go m.readLoop(ctx, conn)
	return nil
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(ctx, conn, err)
			return
		}

		ev, err := wire.Decode(data)
		if err != nil {
			log.Printf("transport: dropping frame: %v", err)
			continue
		}
		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev models.InboundEvent) {
	m.handlerMu.RLock()
	handlers := append([]Handler{}, m.handlers[ev.Name]...)
	m.handlerMu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (m *Manager) handleDisconnect(ctx context.Context, conn Conn, cause error) {
	conn.Close()

	m.mu.Lock()
	if m.conn != conn {
		// A newer connection already replaced this one.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	closed := m.closed
	if closed || ctx.Err() != nil {
		m.state = StateDisconnected
	} else {
		m.state = StateReconnecting
	}
	m.mu.Unlock()

	m.handlerMu.RLock()
	disconnected := append([]func(error){}, m.onDisconnect...)
	m.handlerMu.RUnlock()
	for _, fn := range disconnected {
		fn(cause)
	}

	if closed || ctx.Err() != nil {
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.cfg.InitialInterval
	policy.MaxInterval = m.cfg.MaxInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return m.dialOnce(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		log.Printf("transport: reconnect abandoned: %v", err)
	}
}

// JoinRoom subscribes to a conversation's room. Membership is remembered and
// replayed on every reconnect.
func (m *Manager) JoinRoom(ref models.ConversationRef) error {
	if ref.IsZero() {
		return errors.New("empty conversation ref")
	}
	m.mu.Lock()
	m.rooms[ref.Key()] = ref
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	frame, err := wire.JoinCommand(ref)
	if err != nil {
		return err
	}
	return m.write(conn, frame)
}

// LeaveRoom cancels interest in a conversation's room. In-flight hydrate
// requests are not cancelled; stale responses are discarded downstream.
func (m *Manager) LeaveRoom(ref models.ConversationRef) error {
	m.mu.Lock()
	delete(m.rooms, ref.Key())
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	frame, err := wire.LeaveCommand(ref)
	if err != nil {
		return err
	}
	return m.write(conn, frame)
}

// Rooms returns the currently subscribed conversations.
func (m *Manager) Rooms() []models.ConversationRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ConversationRef, 0, len(m.rooms))
	for _, ref := range m.rooms {
		out = append(out, ref)
	}
	return out
}

// Emit sends an event best-effort. While disconnected the frame is dropped
// and counted; callers must not block on delivery.
func (m *Manager) Emit(event string, payload any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		observability.IncTransportDroppedSend()
		return nil
	}

	frame, err := wire.Encode(event, payload)
	if err != nil {
		return err
	}
	return m.write(conn, frame)
}

// EmitFrame sends a pre-encoded frame with the same best-effort semantics.
func (m *Manager) EmitFrame(frame []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		observability.IncTransportDroppedSend()
		return nil
	}
	return m.write(conn, frame)
}

// EmitTyping implements typing.Emitter. The server stamps the user id from
// the authenticated connection.
func (m *Manager) EmitTyping(ref models.ConversationRef) error {
	frame, err := wire.TypingCommand(false, ref, "")
	if err != nil {
		return err
	}
	return m.EmitFrame(frame)
}

// EmitStopTyping implements typing.Emitter.
func (m *Manager) EmitStopTyping(ref models.ConversationRef) error {
	frame, err := wire.TypingCommand(true, ref, "")
	if err != nil {
		return err
	}
	return m.EmitFrame(frame)
}

func (m *Manager) write(conn Conn, frame []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Close tears the connection down for good.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
