package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"ichat-sync/internal/auth"
	"ichat-sync/internal/models"
	"ichat-sync/internal/observability"
	"ichat-sync/internal/server/store"
	"ichat-sync/internal/wire"
)

// Handler owns the single /ws endpoint. A connection carries every
// conversation the client joins; rooms are commands, not URLs.
type Handler struct {
	hub       *Hub
	convRepo  store.ConversationRepository
	validator auth.TokenValidator
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, convRepo store.ConversationRepository, validator auth.TokenValidator) *Handler {
	return &Handler{hub: hub, convRepo: convRepo, validator: validator}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and serves its command loop.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("ichat-sync/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.validateToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)

	observability.IncWSActive("sync")
	observability.IncWSEvent("sync", "ws_connect")
	h.publishLifecycle(ctx, info, "ws_connect", 0, "")

	go h.serve(ctx, client)
}

func (h *Handler) serve(ctx context.Context, client *Client) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(client)
		observability.DecWSActive("sync")
		observability.IncWSEvent("sync", "ws_disconnect")
		h.publishLifecycle(ctx, client.info, "ws_disconnect",
			time.Since(client.info.ConnectedAt).Milliseconds(), closeReason)
		client.conn.Close()
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("sync", "ws_error")
				h.publishLifecycle(ctx, client.info, "ws_error",
					time.Since(client.info.ConnectedAt).Milliseconds(), closeReason)
			}
			return
		}
		h.handleCommand(ctx, client, data)
	}
}

func (h *Handler) handleCommand(ctx context.Context, client *Client, data []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("ws: dropping malformed command: %v", err)
		return
	}

	command, ref, err := wire.DecodeCommand(env)
	if err != nil || ref.IsZero() {
		log.Printf("ws: dropping command %q: %v", env.Event, err)
		return
	}

	switch command {
	case models.CommandJoinChat, models.CommandJoinGroup:
		member, err := h.convRepo.IsMember(ctx, ref, client.info.UserID)
		if err != nil || !member {
			log.Printf("ws: join refused room=%s user=%s", ref.Key(), client.info.UserID)
			return
		}
		h.hub.Join(ref, client)
	case models.CommandLeaveChat, models.CommandLeaveGroup:
		h.hub.Leave(ref, client)
	case models.CommandTyping, models.CommandStopTyping:
		// Relay to the room, stamping the authenticated sender.
		name := models.EventTyping
		if command == models.CommandStopTyping {
			name = models.EventStopTyping
		}
		h.hub.Broadcast(models.InboundEvent{
			Name:         name,
			Conversation: ref,
			UserID:       client.info.UserID,
		}, client)
	}
}

func (h *Handler) publishLifecycle(ctx context.Context, info ConnInfo, event string, durationMS int64, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.sync", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": durationMS,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func (h *Handler) validateToken(ctx context.Context, header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return h.validator.ValidateToken(ctx, parts[1])
	}
	return "", fmt.Errorf("invalid token")
}
