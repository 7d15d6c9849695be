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

// NotificationService is the notification emitter surface used by the REST handlers.
type NotificationService interface {
	Create(ctx context.Context, input service.NotificationInput) (models.Notification, error)
	List(ctx context.Context, userID string) ([]models.Notification, error)
	Lookup(ctx context.Context, id int64) (models.Notification, error)
	ToggleAlerts(ctx context.Context, userID string, id int64) (models.Notification, error)
	Hide(ctx context.Context, userID string, id int64, requestID string) error
	MarkRead(ctx context.Context, userID string, id int64) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// NotificationHandler manages the caller's notifications.
type NotificationHandler struct {
	notifications NotificationService
	logger        zerolog.Logger
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(notifications NotificationService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logger.With().Str("component", "notification_handler").Logger(),
	}
}

// List returns visible notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	list, err := h.notifications.List(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// ToggleAlerts flips the alert flag of one notification.
func (h *NotificationHandler) ToggleAlerts(c *gin.Context) {
	id, ok := notificationIDParam(c)
	if !ok {
		return
	}
	updated, err := h.notifications.ToggleAlerts(c.Request.Context(), c.GetString(middleware.UserIDKey), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// MarkRead marks one notification read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := notificationIDParam(c)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), c.GetString(middleware.UserIDKey), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// MarkAllRead marks every visible notification read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// Delete hides a notification. The record is kept.
func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := notificationIDParam(c)
	if !ok {
		return
	}
	if err := h.notifications.Hide(c.Request.Context(), c.GetString(middleware.UserIDKey), id, requestIDFromContext(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// InternalGet returns any notification, hidden ones included.
func (h *NotificationHandler) InternalGet(c *gin.Context) {
	id, ok := notificationIDParam(c)
	if !ok {
		return
	}
	found, err := h.notifications.Lookup(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

// InternalCreate records a notification raised by another service.
func (h *NotificationHandler) InternalCreate(c *gin.Context) {
	var input service.NotificationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification payload"})
		return
	}
	created, err := h.notifications.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}
