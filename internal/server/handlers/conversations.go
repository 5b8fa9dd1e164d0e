package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ichat-sync/internal/server/store"
)

// ConversationHandler manages conversation endpoints.
type ConversationHandler struct {
	convRepo store.ConversationRepository
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(convRepo store.ConversationRepository) *ConversationHandler {
	return &ConversationHandler{convRepo: convRepo}
}

// List returns the conversations visible to the authenticated user.
func (h *ConversationHandler) List(c *gin.Context) {
	userID := c.GetString("userID")

	conversations, err := h.convRepo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// StartChat creates or returns the private chat with another user.
func (h *ConversationHandler) StartChat(c *gin.Context) {
	var req struct {
		FriendID string `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if userID == req.FriendID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	chat, err := h.convRepo.CreateChat(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}
	c.JSON(http.StatusOK, chat)
}

// CreateGroup creates a group containing the caller and the given members.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name      string   `json:"name" binding:"required"`
		MemberIDs []string `json:"member_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	members := req.MemberIDs
	included := false
	for _, id := range members {
		if id == userID {
			included = true
			break
		}
	}
	if !included {
		members = append(members, userID)
	}

	group, err := h.convRepo.CreateGroup(c.Request.Context(), req.Name, members)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}
	c.JSON(http.StatusCreated, group)
}
