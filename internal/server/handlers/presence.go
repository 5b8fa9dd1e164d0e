package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// PresenceHandler records client-reported presence. Reports are fire and
// forget on the client side, so this endpoint never does more than an
// in-memory write.
type PresenceHandler struct {
	mu     sync.RWMutex
	status map[string]presenceRecord
}

type presenceRecord struct {
	Status     string    `json:"status"`
	ReportedAt time.Time `json:"reported_at"`
}

// NewPresenceHandler builds a PresenceHandler.
func NewPresenceHandler() *PresenceHandler {
	return &PresenceHandler{status: make(map[string]presenceRecord)}
}

// Report stores the caller's presence status.
func (h *PresenceHandler) Report(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Status {
	case "online", "away", "offline":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	userID := c.GetString("userID")
	h.mu.Lock()
	h.status[userID] = presenceRecord{Status: req.Status, ReportedAt: time.Now()}
	h.mu.Unlock()

	c.Status(http.StatusNoContent)
}

// Get returns a user's last reported presence.
func (h *PresenceHandler) Get(c *gin.Context) {
	h.mu.RLock()
	record, ok := h.status[c.Param("user_id")]
	h.mu.RUnlock()

	if !ok {
		record = presenceRecord{Status: "offline"}
	}
	c.JSON(http.StatusOK, record)
}
