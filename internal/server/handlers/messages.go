package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ichat-sync/internal/models"
	"ichat-sync/internal/rabbitmq"
	"ichat-sync/internal/server/store"
	"ichat-sync/internal/server/ws"
)

// MessageHandler manages message endpoints for both conversation kinds.
// Every successful write broadcasts its canonical event to the room and, for
// new messages, relays a push payload for offline recipients.
type MessageHandler struct {
	convRepo    store.ConversationRepository
	messageRepo store.MessageRepository
	hub         *ws.Hub
	publisher   rabbitmq.Publisher
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(convRepo store.ConversationRepository, messageRepo store.MessageRepository, hub *ws.Hub, publisher rabbitmq.Publisher) *MessageHandler {
	return &MessageHandler{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		hub:         hub,
		publisher:   publisher,
	}
}

func refFromParams(c *gin.Context) (models.ConversationRef, bool) {
	if chatID := c.Param("chat_id"); chatID != "" {
		return models.ChatRef(chatID), true
	}
	if groupID := c.Param("group_id"); groupID != "" {
		return models.GroupRef(groupID), true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "missing conversation id"})
	return models.ConversationRef{}, false
}

func (h *MessageHandler) requireMember(c *gin.Context, ref models.ConversationRef, userID string) bool {
	member, err := h.convRepo.IsMember(c.Request.Context(), ref, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return false
	}
	return true
}

// GetMessages returns the hydrate snapshot for a conversation.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	ref, ok := refFromParams(c)
	if !ok {
		return
	}
	userID := c.GetString("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	msgs, err := h.messageRepo.ListForUser(c.Request.Context(), ref, userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// PostMessage stores a message, returns the stored record to the sender and
// broadcasts message:new. The REST response and the broadcast carry the same
// id, which is what lets clients deduplicate the two arrivals.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	ref, ok := refFromParams(c)
	if !ok {
		return
	}
	userID := c.GetString("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	var req struct {
		Content  string             `json:"content" binding:"required"`
		Type     models.MessageType `json:"type"`
		Priority models.Priority    `json:"priority"`
		Tags     []string           `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messageRepo.Create(c.Request.Context(), ref, userID, store.MessageDraft{
		Content:  req.Content,
		Type:     req.Type,
		Priority: req.Priority,
		Tags:     req.Tags,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.hub.Broadcast(models.InboundEvent{
		Name:         models.EventMessageNew,
		Conversation: ref,
		Message:      &msg,
		MessageID:    msg.ID,
	}, nil)
	h.relayPush(c.Request.Context(), ref, msg)

	c.JSON(http.StatusCreated, msg)
}

// relayPush hands the message to the push relay, one payload per recipient.
// Best effort: the live broadcast already happened and a missed push is the
// accepted worst case.
func (h *MessageHandler) relayPush(ctx context.Context, ref models.ConversationRef, msg models.Message) {
	members, err := h.convRepo.Members(ctx, ref)
	if err != nil {
		log.Printf("push relay: cannot resolve members for %s: %v", ref.Key(), err)
		return
	}

	payload := models.PushPayload{
		Title: msg.SenderID,
		Body:  msg.Content,
		Data: models.PushData{
			ChatID:  ref.ChatID,
			GroupID: ref.GroupID,
			URL:     ref.URL(),
		},
		Tag:       pushTag(ref),
		MessageID: msg.ID,
	}

	for _, member := range members {
		if member == msg.SenderID {
			continue
		}
		if err := h.publisher.Publish(ctx, "push."+member, payload, nil); err != nil {
			log.Printf("push relay: publish for %s failed: %v", member, err)
		}
	}
}

func pushTag(ref models.ConversationRef) string {
	if ref.IsGroup() {
		return "group-" + ref.GroupID
	}
	return "chat-" + ref.ChatID
}

// EditMessage replaces a message's content and broadcasts message:updated.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	ref, ok := refFromParams(c)
	if !ok {
		return
	}
	userID := c.GetString("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messageRepo.UpdateContent(c.Request.Context(), c.Param("message_id"), userID, req.Content)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not edit message"})
		return
	}

	h.hub.Broadcast(models.InboundEvent{
		Name:         models.EventMessageUpdated,
		Conversation: ref,
		Message:      &msg,
		MessageID:    msg.ID,
	}, nil)
	c.JSON(http.StatusOK, msg)
}

// DeleteMessageForMe hides a message for the caller only. No broadcast: the
// caller's other devices pick it up on their next hydrate.
func (h *MessageHandler) DeleteMessageForMe(c *gin.Context) {
	ref, ok := refFromParams(c)
	if !ok {
		return
	}
	userID := c.GetString("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	err := h.messageRepo.DeleteForUser(c.Request.Context(), c.Param("message_id"), userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete message"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteMessageForAll tombstones a message and broadcasts the delete event.
func (h *MessageHandler) DeleteMessageForAll(c *gin.Context) {
	ref, ok := refFromParams(c)
	if !ok {
		return
	}
	userID := c.GetString("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	messageID := c.Param("message_id")
	err := h.messageRepo.DeleteForEveryone(c.Request.Context(), messageID, userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete message"})
		return
	}

	h.hub.Broadcast(models.InboundEvent{
		Name:         models.EventDeleteEveryone,
		Conversation: ref,
		MessageID:    messageID,
		UserID:       userID,
	}, nil)
	c.Status(http.StatusNoContent)
}

// AddReaction attaches an emoji reaction and broadcasts reaction:added.
func (h *MessageHandler) AddReaction(c *gin.Context) {
	ref, ok := refFromParams(c)
	if !ok {
		return
	}
	userID := c.GetString("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messageID := c.Param("message_id")
	err := h.messageRepo.AddReaction(c.Request.Context(), messageID, models.Reaction{
		Emoji:  req.Emoji,
		UserID: userID,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not add reaction"})
		return
	}

	h.hub.Broadcast(models.InboundEvent{
		Name:         models.EventReactionAdded,
		Conversation: ref,
		MessageID:    messageID,
		UserID:       userID,
		Emoji:        req.Emoji,
	}, nil)
	c.Status(http.StatusNoContent)
}

// MarkRead marks a batch of messages read and fans out one receipt event for
// the ids that actually changed.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	var req struct {
		ChatID     string   `json:"chatId"`
		GroupID    string   `json:"groupId"`
		MessageIDs []string `json:"messageIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref := models.ConversationRef{ChatID: req.ChatID, GroupID: req.GroupID}
	if ref.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing conversation id"})
		return
	}
	userID := c.GetString("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	updated, err := h.messageRepo.MarkRead(c.Request.Context(), ref, req.MessageIDs, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark messages read"})
		return
	}

	if len(updated) > 0 {
		h.hub.Broadcast(models.InboundEvent{
			Name:         models.EventReadReceipts,
			Conversation: ref,
			MessageIDs:   updated,
			UserID:       userID,
			ReadBy:       []string{userID},
		}, nil)
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// SetPriority changes a message's priority and broadcasts the change.
func (h *MessageHandler) SetPriority(c *gin.Context) {
	ref, ok := refFromParams(c)
	if !ok {
		return
	}
	userID := c.GetString("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	var req struct {
		Priority models.Priority `json:"priority" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Priority {
	case models.PriorityNormal, models.PriorityImportant, models.PriorityUrgent:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
		return
	}

	messageID := c.Param("message_id")
	if err := h.messageRepo.SetPriority(c.Request.Context(), messageID, req.Priority); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not set priority"})
		return
	}

	h.hub.Broadcast(models.InboundEvent{
		Name:         models.EventPriorityChanged,
		Conversation: ref,
		MessageID:    messageID,
		UserID:       userID,
		Priority:     req.Priority,
	}, nil)
	c.Status(http.StatusNoContent)
}

// SetTags replaces a message's tags and broadcasts the change.
func (h *MessageHandler) SetTags(c *gin.Context) {
	ref, ok := refFromParams(c)
	if !ok {
		return
	}
	userID := c.GetString("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	var req struct {
		Tags []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messageID := c.Param("message_id")
	if err := h.messageRepo.SetTags(c.Request.Context(), messageID, req.Tags); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not set tags"})
		return
	}

	h.hub.Broadcast(models.InboundEvent{
		Name:         models.EventTagChanged,
		Conversation: ref,
		MessageID:    messageID,
		UserID:       userID,
		Tags:         req.Tags,
	}, nil)
	c.Status(http.StatusNoContent)
}
