package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rentals/server/internal/models"
)

type MessageRequest struct {
	ReceiverID string  `json:"receiver_id" binding:"required"`
	Content    string  `json:"content" binding:"required"`
	PropertyID *string `json:"property_id"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	sender, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		h.fail(c, http.StatusBadRequest, "Message cannot be empty", nil)
		return
	}
	if req.ReceiverID == sender.ID {
		h.fail(c, http.StatusBadRequest, "Cannot send a message to yourself", nil)
		return
	}
	if _, err := h.db.GetUserByID(req.ReceiverID); err != nil {
		h.failStore(c, err, "find receiver")
		return
	}
	if req.PropertyID != nil {
		if _, err := h.db.GetProperty(*req.PropertyID); err != nil {
			h.failStore(c, err, "find property")
			return
		}
	}

	m := &models.Message{
		SenderID:   sender.ID,
		ReceiverID: req.ReceiverID,
		SenderName: sender.Name,
		Content:    content,
		PropertyID: req.PropertyID,
	}
	if err := h.db.CreateMessage(m); err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to send message", err)
		return
	}

	c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetConversations(c *gin.Context) {
	conversations, err := h.db.GetConversations(currentClaims(c).UserID())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get conversations", err)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

func (h *Handler) GetThread(c *gin.Context) {
	thread, err := h.db.GetThread(currentClaims(c).UserID(), c.Param("userId"))
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get messages", err)
		return
	}
	c.JSON(http.StatusOK, thread)
}
