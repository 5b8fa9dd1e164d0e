package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ichat-sync/internal/models"
	"ichat-sync/internal/server/store"
)

// PushHandler manages push subscription endpoints.
type PushHandler struct {
	subRepo   store.SubscriptionRepository
	publicKey string
}

// NewPushHandler builds a PushHandler with the relay's public key.
func NewPushHandler(subRepo store.SubscriptionRepository, publicKey string) *PushHandler {
	return &PushHandler{subRepo: subRepo, publicKey: publicKey}
}

// GetKey returns the public key clients subscribe with.
func (h *PushHandler) GetKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": h.publicKey})
}

// Subscribe registers or refreshes a push subscription for the caller.
func (h *PushHandler) Subscribe(c *gin.Context) {
	var req models.PushSubscriptionRecord
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing endpoint"})
		return
	}

	userID := c.GetString("userID")
	saved, err := h.subRepo.Save(c.Request.Context(), userID, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save subscription"})
		return
	}
	c.JSON(http.StatusCreated, saved)
}
