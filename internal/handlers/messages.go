package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/service"
)

// MessageService is the message store and conversation aggregator surface
// used by the REST handlers.
type MessageService interface {
	Send(ctx context.Context, input service.SendInput) (models.Message, error)
	ListForPair(ctx context.Context, jobID, userID, otherUserID string) ([]models.Message, error)
	MarkRead(ctx context.Context, jobID, recipientID, senderID string) (int64, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
}

// MessageHandler manages message and conversation endpoints.
type MessageHandler struct {
	messages MessageService
	logger   zerolog.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages MessageService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		logger:   logger.With().Str("component", "message_handler").Logger(),
	}
}

// PostMessage sends a message from the authenticated user.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req struct {
		JobID       string `json:"jobId" binding:"required"`
		RecipientID string `json:"recipientId" binding:"required"`
		Content     string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "jobId, recipientId and content are required"})
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), service.SendInput{
		JobID:       req.JobID,
		SenderID:    c.GetString(middleware.UserIDKey),
		RecipientID: req.RecipientID,
		Content:     req.Content,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// GetMessages returns the thread between the caller and otherUserId on a job.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	jobID := c.Query("jobId")
	otherUserID := c.Query("otherUserId")
	if jobID == "" || otherUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "jobId and otherUserId are required"})
		return
	}

	msgs, err := h.messages.ListForPair(c.Request.Context(), jobID, c.GetString(middleware.UserIDKey), otherUserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkRead marks the caller's unread messages on a job read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	var req struct {
		JobID       string `json:"jobId" binding:"required"`
		OtherUserID string `json:"otherUserId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "jobId is required"})
		return
	}

	updated, err := h.messages.MarkRead(c.Request.Context(), req.JobID, c.GetString(middleware.UserIDKey), req.OtherUserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// ListConversations returns the caller's conversations, most recent first.
func (h *MessageHandler) ListConversations(c *gin.Context) {
	convs, err := h.messages.ListConversations(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}
