package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ichat-sync/internal/models"
	"ichat-sync/internal/observability"
	"ichat-sync/internal/wire"
)

// Client is one websocket connection. A single connection can sit in any
// number of rooms; writes are serialized per connection.
type Client struct {
	conn    *websocket.Conn
	info    ConnInfo
	writeMu sync.Mutex
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{conn: conn, info: info}
}

// Info returns the connection metadata captured at handshake time.
func (c *Client) Info() ConnInfo { return c.info }

func (c *Client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Hub maintains active websocket rooms, keyed by conversation reference.
type Hub struct {
	rooms map[string]map[*Client]bool
	// joined tracks the reverse mapping for disconnect cleanup.
	joined map[*Client]map[string]models.ConversationRef
	mu     sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]bool),
		joined: make(map[*Client]map[string]models.ConversationRef),
	}
}

// Join registers a client in a conversation's room.
func (h *Hub) Join(ref models.ConversationRef, c *Client) {
	key := ref.Key()
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[*Client]bool)
	}
	h.rooms[key][c] = true
	if _, ok := h.joined[c]; !ok {
		h.joined[c] = make(map[string]models.ConversationRef)
	}
	h.joined[c][key] = ref
}

// Leave removes a client from a conversation's room.
func (h *Hub) Leave(ref models.ConversationRef, c *Client) {
	key := ref.Key()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(key, c)
}

func (h *Hub) leaveLocked(key string, c *Client) {
	if conns, ok := h.rooms[key]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, key)
		}
	}
	if refs, ok := h.joined[c]; ok {
		delete(refs, key)
		if len(refs) == 0 {
			delete(h.joined, c)
		}
	}
}

// RemoveClient drops a client from every room it joined.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key := range h.joined[c] {
		h.leaveLocked(key, c)
	}
	delete(h.joined, c)
}

// RoomSize reports the number of clients in a conversation's room.
func (h *Hub) RoomSize(ref models.ConversationRef) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[ref.Key()])
}

// Broadcast sends a canonical event to every client in the event's
// conversation room, except the optional sender.
func (h *Hub) Broadcast(ev models.InboundEvent, except *Client) {
	frame, err := wire.EventFrame(ev)
	if err != nil {
		log.Printf("hub: cannot encode %s: %v", ev.Name, err)
		return
	}

	key := ev.Conversation.Key()
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[key]))
	for c := range h.rooms[key] {
		if c != except {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(frame); err != nil {
			log.Printf("websocket write error: %v", err)
			c.conn.Close()
			h.RemoveClient(c)
			h.publishWSError(ev.Conversation, c, err)
		}
	}
}

func (h *Hub) publishWSError(ref models.ConversationRef, c *Client, err error) {
	info := c.info
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"room":        ref.Key(),
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.sync", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("sync", "ws_error")
}
