package service

import (
	"context"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
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
)

const (
	defaultMaxMessageLength = 4000
	maxSanitizePasses       = 8
)

// SendInput is a request to send one message.
type SendInput struct {
	JobID       string `json:"jobId" validate:"required"`
	SenderID    string `json:"-" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required,nefield=SenderID"`
	Content     string `json:"content" validate:"required"`
}

// MessageNotifier receives every stored message.
type MessageNotifier interface {
	NotifyMessage(ctx context.Context, msg models.Message, senderName, jobTitle string) (models.Notification, error)
	MarkThreadRead(ctx context.Context, userID, jobID, counterpartID string) (int64, error)
}

// MessageService owns job-scoped direct messages and the conversations
// derived from them.
type MessageService struct {
	repo      repositories.MessageRepository
	directory directory.Directory
	notifier  MessageNotifier
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
	maxLength int
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewMessageService constructs a MessageService. maxLength <= 0 uses the default cap.
func NewMessageService(repo repositories.MessageRepository, dir directory.Directory, notifier MessageNotifier, validate *validator.Validate, maxLength int, logger zerolog.Logger) *MessageService {
	if maxLength <= 0 {
		maxLength = defaultMaxMessageLength
	}
	return &MessageService{
		repo:      repo,
		directory: dir,
		notifier:  notifier,
		validate:  validate,
		sanitizer: bluemonday.StrictPolicy(),
		maxLength: maxLength,
		logger:    logger.With().Str("component", "message_service").Logger(),
		tracer:    otel.Tracer("messaging-service/service/messages"),
	}
}

// Send validates, persists and announces a message. Notification failures
// are logged and never fail the send.
func (s *MessageService) Send(ctx context.Context, input SendInput) (models.Message, error) {
	input.JobID = strings.TrimSpace(input.JobID)
	input.RecipientID = strings.TrimSpace(input.RecipientID)
	input.Content = strings.TrimSpace(s.sanitizeContent(input.Content))

	if input.SenderID != "" && input.SenderID == input.RecipientID {
		return models.Message{}, apperr.Validation("cannot send a message to yourself")
	}
	if err := s.validate.Struct(input); err != nil {
		return models.Message{}, apperr.Validation("jobId, recipientId and content are required")
	}
	if utf8.RuneCountInString(input.Content) > s.maxLength {
		return models.Message{}, apperr.Validation("content exceeds %d characters", s.maxLength)
	}

	ctx, span := s.tracer.Start(ctx, "messages.send", trace.WithAttributes(
		attribute.String("message.job_id", input.JobID),
		attribute.String("message.sender_id", input.SenderID),
		attribute.String("message.recipient_id", input.RecipientID),
	))
	defer span.End()

	titles, err := s.directory.JobTitles(ctx, []string{input.JobID})
	if err != nil {
		span.RecordError(err)
		return models.Message{}, apperr.Transient("job lookup failed", err)
	}
	jobTitle, ok := titles[input.JobID]
	if !ok {
		return models.Message{}, apperr.NotFound("job %s not found", input.JobID)
	}

	users, err := s.directory.Users(ctx, []string{input.SenderID, input.RecipientID})
	if err != nil {
		span.RecordError(err)
		return models.Message{}, apperr.Transient("user lookup failed", err)
	}
	if _, ok := users[input.RecipientID]; !ok {
		return models.Message{}, apperr.NotFound("recipient %s not found", input.RecipientID)
	}

	msg, err := s.repo.CreateMessage(ctx, input.JobID, input.SenderID, input.RecipientID, input.Content)
	if err != nil {
		span.RecordError(err)
		return models.Message{}, apperr.Internal("failed to store message", err)
	}
	observability.IncMessagesSent()
	span.SetAttributes(attribute.Int64("message.id", msg.ID))

	if s.notifier != nil {
		// Outlives the request context.
		if _, err := s.notifier.NotifyMessage(context.WithoutCancel(ctx), msg, users[input.SenderID].Name, jobTitle); err != nil {
			s.logger.Error().Err(err).Int64("message_id", msg.ID).Msg("message notification failed")
		}
	}

	return msg, nil
}

// sanitizeContent strips markup, including markup written as entities, and
// returns plain text. Input that keeps changing is returned escaped.
func (s *MessageService) sanitizeContent(content string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		clean := html.UnescapeString(s.sanitizer.Sanitize(content))
		if clean == content {
			return content
		}
		content = clean
	}
	return s.sanitizer.Sanitize(content)
}

// ListForPair returns the thread between userID and otherUserID on a job.
func (s *MessageService) ListForPair(ctx context.Context, jobID, userID, otherUserID string) ([]models.Message, error) {
	if strings.TrimSpace(jobID) == "" || strings.TrimSpace(otherUserID) == "" {
		return nil, apperr.Validation("jobId and otherUserId are required")
	}
	msgs, err := s.repo.ListForPair(ctx, jobID, userID, otherUserID)
	if err != nil {
		return nil, apperr.Internal("failed to load messages", err)
	}
	models.SortMessages(msgs)
	return msgs, nil
}

// MarkRead marks every unread message addressed to recipientID on the job
// read, narrowed to one counterpart when senderID is set. Messages stored
// after the update statement stay unread.
func (s *MessageService) MarkRead(ctx context.Context, jobID, recipientID, senderID string) (int64, error) {
	if strings.TrimSpace(jobID) == "" {
		return 0, apperr.Validation("jobId is required")
	}

	ctx, span := s.tracer.Start(ctx, "messages.mark_read", trace.WithAttributes(
		attribute.String("message.job_id", jobID),
		attribute.String("message.recipient_id", recipientID),
	))
	defer span.End()

	updated, err := s.repo.MarkRead(ctx, jobID, recipientID, senderID)
	if err != nil {
		span.RecordError(err)
		return 0, apperr.Internal("failed to mark messages read", err)
	}
	if s.notifier != nil {
		if _, err := s.notifier.MarkThreadRead(ctx, recipientID, jobID, senderID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to mark message notifications read")
		}
	}
	return updated, nil
}

// ListConversations derives the user's conversation list from their messages.
func (s *MessageService) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "conversations.list", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	msgs, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Internal("failed to load messages", err)
	}
	convs := Aggregate(userID, msgs)

	userIDs := append([]string{userID}, lo.Map(convs, func(c models.Conversation, _ int) string { return c.OtherUser.ID })...)
	users, err := s.directory.Users(ctx, userIDs)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Transient("user lookup failed", err)
	}
	if _, ok := users[userID]; !ok {
		return nil, apperr.NotFound("user %s not found", userID)
	}
	if len(convs) == 0 {
		return convs, nil
	}

	titles, err := s.directory.JobTitles(ctx, lo.Map(convs, func(c models.Conversation, _ int) string { return c.JobID }))
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Transient("job lookup failed", err)
	}

	for i := range convs {
		convs[i].JobTitle = titles[convs[i].JobID]
		if user, ok := users[convs[i].OtherUser.ID]; ok {
			convs[i].OtherUser = user
		}
	}
	span.SetAttributes(attribute.Int("conversations.count", len(convs)))
	return convs, nil
}
