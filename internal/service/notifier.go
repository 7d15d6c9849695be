package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/apperr"
	"messaging-service/internal/directory"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

const notificationListLimit = 100

// Domain event routing keys.
const (
	RoutingMessageSent         = "messaging.message.sent"
	RoutingNotificationCreated = "messaging.notification.created"
)

// Broadcaster pushes realtime events to a user's room.
type Broadcaster interface {
	Emit(userID, event string, data any) (int, error)
}

// EventPublisher publishes domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// NotificationInput is the shape accepted from the job and application
// services when their state changes.
type NotificationInput struct {
	UserID        string `json:"userId" validate:"required"`
	Type          string `json:"type" validate:"required,oneof=message jobAccepted jobRejected newJob applicationSubmitted"`
	JobID         string `json:"jobId" validate:"required"`
	JobTitle      string `json:"jobTitle"`
	SenderID      string `json:"senderId" validate:"required_if=Type message"`
	Content       string `json:"content" validate:"required_if=Type message"`
	EmployerName  string `json:"employerName"`
	WorkerID      string `json:"workerId"`
	ApplicantID   string `json:"applicantId"`
	ApplicantName string `json:"applicantName"`
	SendAlerts    *bool  `json:"sendAlerts"`
}

// DomainEvent is published to the broker after persistence.
type DomainEvent struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Notifier writes notification records and pushes realtime events.
type Notifier struct {
	repo      repositories.NotificationRepository
	directory directory.Directory
	realtime  Broadcaster
	events    EventPublisher
	audit     *telemetry.AuditEmitter
	validate  *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewNotifier constructs a Notifier. events and audit may be nil.
func NewNotifier(repo repositories.NotificationRepository, dir directory.Directory, realtime Broadcaster, events EventPublisher, audit *telemetry.AuditEmitter, validate *validator.Validate, logger zerolog.Logger) *Notifier {
	return &Notifier{
		repo:      repo,
		directory: dir,
		realtime:  realtime,
		events:    events,
		audit:     audit,
		validate:  validate,
		logger:    logger.With().Str("component", "notifier").Logger(),
		tracer:    otel.Tracer("messaging-service/service/notifier"),
	}
}

// NotifyMessage records a message notification for the recipient and pushes
// the message to their room. The record is written before any push, and push
// or broker failures never undo it. The returned error only reports the write.
func (n *Notifier) NotifyMessage(ctx context.Context, msg models.Message, senderName, jobTitle string) (models.Notification, error) {
	ctx, span := n.tracer.Start(ctx, "notifications.message", trace.WithAttributes(
		attribute.Int64("message.id", msg.ID),
		attribute.String("message.recipient_id", msg.RecipientID),
	))
	defer span.End()

	created, err := n.repo.CreateNotification(ctx, models.Notification{
		UserID:     msg.RecipientID,
		Type:       models.NotificationMessage,
		Visible:    true,
		SendAlerts: true,
		JobID:      msg.JobID,
		Payload: models.MessagePayload{
			MessageID: msg.ID,
			SenderID:  msg.SenderID,
			Content:   msg.Content,
		},
	})
	if err != nil {
		span.RecordError(err)
		n.logger.Error().Err(err).Int64("message_id", msg.ID).Msg("failed to persist message notification")
	} else {
		observability.IncNotificationCreated(string(created.Type))
	}

	n.push(msg.RecipientID, models.EventNewMessage, models.NewMessageEvent{Message: msg, SenderName: senderName, JobTitle: jobTitle})
	if err == nil && created.SendAlerts {
		created.JobTitle = jobTitle
		if p, ok := created.Payload.(models.MessagePayload); ok {
			p.SenderName = senderName
			created.Payload = p
		}
		n.push(msg.RecipientID, models.EventNewNotification, created)
	}
	n.publish(ctx, RoutingMessageSent, msg)

	if err != nil {
		return models.Notification{}, apperr.Internal("failed to store notification", err)
	}
	return created, nil
}

// Create accepts an externally triggered notification.
func (n *Notifier) Create(ctx context.Context, input NotificationInput) (models.Notification, error) {
	if err := n.validate.Struct(input); err != nil {
		return models.Notification{}, apperr.Validation("invalid notification: %v", err)
	}
	t, err := models.ParseNotificationType(input.Type)
	if err != nil {
		return models.Notification{}, apperr.Validation("%v", err)
	}

	ctx, span := n.tracer.Start(ctx, "notifications.create", trace.WithAttributes(
		attribute.String("notification.user_id", input.UserID),
		attribute.String("notification.type", input.Type),
	))
	defer span.End()

	jobTitle := input.JobTitle
	if jobTitle == "" {
		titles, err := n.directory.JobTitles(ctx, []string{input.JobID})
		if err != nil {
			n.logger.Warn().Err(err).Str("job_id", input.JobID).Msg("job title lookup failed")
		}
		jobTitle = titles[input.JobID]
	}

	sendAlerts := true
	if input.SendAlerts != nil {
		sendAlerts = *input.SendAlerts
	}

	created, err := n.repo.CreateNotification(ctx, models.Notification{
		UserID:     input.UserID,
		Type:       t,
		Visible:    true,
		SendAlerts: sendAlerts,
		JobID:      input.JobID,
		Payload:    payloadFor(t, input),
	})
	if err != nil {
		span.RecordError(err)
		return models.Notification{}, apperr.Internal("failed to store notification", err)
	}
	created.JobTitle = jobTitle
	observability.IncNotificationCreated(string(created.Type))

	if created.SendAlerts {
		n.push(created.UserID, models.EventNewNotification, created)
	}
	if status, ok := created.Payload.(models.JobStatusPayload); ok {
		workerID := status.WorkerID
		if workerID == "" {
			workerID = created.UserID
		}
		n.push(created.UserID, models.EventApplicationStatusUpdated, models.ApplicationStatusEvent{
			JobID:    created.JobID,
			JobTitle: jobTitle,
			WorkerID: workerID,
			Status:   string(status.Status),
		})
	}
	n.publish(ctx, RoutingNotificationCreated, created)

	return created, nil
}

func payloadFor(t models.NotificationType, input NotificationInput) models.NotificationPayload {
	switch t {
	case models.NotificationMessage:
		return models.MessagePayload{SenderID: input.SenderID, Content: input.Content}
	case models.NotificationJobAccepted, models.NotificationJobRejected:
		return models.JobStatusPayload{Status: t, EmployerName: input.EmployerName, WorkerID: input.WorkerID}
	case models.NotificationNewJob:
		return models.NewJobPayload{EmployerName: input.EmployerName}
	case models.NotificationApplicationSubmitted:
		return models.ApplicationPayload{ApplicantID: input.ApplicantID, ApplicantName: input.ApplicantName}
	default:
		return nil
	}
}

// List returns the caller's visible notifications, newest first.
func (n *Notifier) List(ctx context.Context, userID string) ([]models.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Auth("missing user")
	}
	list, err := n.repo.ListVisible(ctx, userID, notificationListLimit)
	if err != nil {
		return nil, apperr.Internal("failed to load notifications", err)
	}
	return n.resolveDisplay(ctx, list), nil
}

// Get returns one of the caller's notifications, hidden ones included.
func (n *Notifier) Get(ctx context.Context, userID string, id int64) (models.Notification, error) {
	found, err := n.Lookup(ctx, id)
	if err != nil {
		return models.Notification{}, err
	}
	if found.UserID != userID {
		return models.Notification{}, apperr.NotFound("notification %d not found", id)
	}
	return found, nil
}

// Lookup returns any notification by id regardless of owner or visibility.
func (n *Notifier) Lookup(ctx context.Context, id int64) (models.Notification, error) {
	found, err := n.repo.GetNotification(ctx, id)
	if err != nil {
		return models.Notification{}, notificationError(id, err)
	}
	return n.resolveDisplay(ctx, []models.Notification{found})[0], nil
}

// ToggleAlerts flips the per-notification mute flag.
func (n *Notifier) ToggleAlerts(ctx context.Context, userID string, id int64) (models.Notification, error) {
	updated, err := n.repo.ToggleAlerts(ctx, userID, id)
	if err != nil {
		return models.Notification{}, notificationError(id, err)
	}
	return n.resolveDisplay(ctx, []models.Notification{updated})[0], nil
}

// Hide soft-deletes a notification; the row is kept for audit.
func (n *Notifier) Hide(ctx context.Context, userID string, id int64, requestID string) error {
	if err := n.repo.Hide(ctx, userID, id); err != nil {
		return notificationError(id, err)
	}
	n.audit.Emit(ctx, "INFO", "notification hidden", requestID, &userID, map[string]string{
		"notification_id": strconv.FormatInt(id, 10),
	})
	return nil
}

// MarkRead marks one notification read.
func (n *Notifier) MarkRead(ctx context.Context, userID string, id int64) error {
	if err := n.repo.MarkRead(ctx, userID, id); err != nil {
		return notificationError(id, err)
	}
	return nil
}

// MarkAllRead marks every visible notification of the user read.
func (n *Notifier) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := n.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, apperr.Internal("failed to mark notifications read", err)
	}
	return count, nil
}

// MarkThreadRead marks message notifications of one thread read.
func (n *Notifier) MarkThreadRead(ctx context.Context, userID, jobID, counterpartID string) (int64, error) {
	return n.repo.MarkMessageNotificationsRead(ctx, userID, jobID, counterpartID)
}

// resolveDisplay fills job titles and sender names with one batch lookup per
// kind. Lookup failures leave the fields empty.
func (n *Notifier) resolveDisplay(ctx context.Context, list []models.Notification) []models.Notification {
	if len(list) == 0 {
		return list
	}

	jobIDs := lo.Map(list, func(item models.Notification, _ int) string { return item.JobID })
	senderIDs := lo.FilterMap(list, func(item models.Notification, _ int) (string, bool) {
		p, ok := item.Payload.(models.MessagePayload)
		return p.SenderID, ok
	})

	titles, err := n.directory.JobTitles(ctx, jobIDs)
	if err != nil {
		n.logger.Warn().Err(err).Msg("job title lookup failed")
	}
	var users map[string]models.UserDisplay
	if len(senderIDs) > 0 {
		users, err = n.directory.Users(ctx, senderIDs)
		if err != nil {
			n.logger.Warn().Err(err).Msg("sender lookup failed")
		}
	}

	for i := range list {
		if title, ok := titles[list[i].JobID]; ok {
			list[i].JobTitle = title
		}
		if p, ok := list[i].Payload.(models.MessagePayload); ok {
			if user, found := users[p.SenderID]; found {
				p.SenderName = user.Name
				list[i].Payload = p
			}
		}
	}
	return list
}

func (n *Notifier) push(userID, event string, data any) {
	if n.realtime == nil {
		return
	}
	if _, err := n.realtime.Emit(userID, event, data); err != nil {
		// Offline users catch up on their next poll.
		n.logger.Debug().Err(err).Str("user_id", userID).Str("event", event).Msg("realtime push skipped")
	}
}

func (n *Notifier) publish(ctx context.Context, routingKey string, data any) {
	if n.events == nil {
		return
	}
	event := DomainEvent{Type: routingKey, OccurredAt: time.Now().UTC(), Data: data}
	if err := n.events.Publish(ctx, routingKey, event); err != nil {
		observability.IncAMQPPublishError()
		n.logger.Warn().Err(err).Str("routing_key", routingKey).Msg("failed to publish domain event")
	}
}

func notificationError(id int64, err error) error {
	if errors.Is(err, repositories.ErrNotificationNotFound) {
		return apperr.NotFound("notification %d not found", id)
	}
	return apperr.Internal("notification update failed", err)
}
