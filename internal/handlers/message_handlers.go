package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/auth"
	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/hub"
	"github.com/paperminder/paperminder/internal/wire"
)

type testMessageRequest struct {
	RecipientID uuid.UUID `json:"recipient_id" binding:"required"`
	SenderName  string    `json:"sender_name"`
	Message     string    `json:"message" binding:"required,min=1,max=500"`
}

// SendTestMessageHandler routes a message through the same path as
// websocket traffic: sanitized, numbered, logged, delivered or cached.
func SendTestMessageHandler(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req testMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message request"})
		return
	}
	if req.SenderName == "" {
		req.SenderName = "system"
	}

	err := hub.GetHub().RouteMessage(user.ID, &wire.Message{
		Type:        wire.KindMessage,
		RecipientID: req.RecipientID,
		SenderName:  req.SenderName,
		Message:     req.Message,
	})
	switch {
	case errors.Is(err, database.ErrPrinterNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipient not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to route message"})
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "routed"})
	}
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ReceivedMessagesHandler lists messages delivered to a printer
func ReceivedMessagesHandler(c *gin.Context) {
	printerID, err := uuid.Parse(c.Query("printer_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "printer_id query parameter is required"})
		return
	}

	limit, offset := pagination(c)
	logs, err := database.NewMessageService(database.GetDB()).Received(printerID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": logs})
}

// SentMessagesHandler lists messages sent by the caller
func SentMessagesHandler(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	limit, offset := pagination(c)
	logs, err := database.NewMessageService(database.GetDB()).Sent(user.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": logs})
}
