package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/directory"
	"messaging-service/internal/models"
	"messaging-service/internal/service"
)

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) Send(ctx context.Context, input service.SendInput) (models.Message, error) {
	args := m.Called(ctx, input)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) ListForPair(ctx context.Context, jobID, userID, otherUserID string) ([]models.Message, error) {
	args := m.Called(ctx, jobID, userID, otherUserID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageServiceMock) MarkRead(ctx context.Context, jobID, recipientID, senderID string) (int64, error) {
	args := m.Called(ctx, jobID, recipientID, senderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageServiceMock) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

type NotificationServiceMock struct {
	mock.Mock
}

func (m *NotificationServiceMock) Create(ctx context.Context, input service.NotificationInput) (models.Notification, error) {
	args := m.Called(ctx, input)
	var n models.Notification
	if val := args.Get(0); val != nil {
		n = val.(models.Notification)
	}
	return n, args.Error(1)
}

func (m *NotificationServiceMock) List(ctx context.Context, userID string) ([]models.Notification, error) {
	args := m.Called(ctx, userID)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *NotificationServiceMock) Lookup(ctx context.Context, id int64) (models.Notification, error) {
	args := m.Called(ctx, id)
	var n models.Notification
	if val := args.Get(0); val != nil {
		n = val.(models.Notification)
	}
	return n, args.Error(1)
}

func (m *NotificationServiceMock) ToggleAlerts(ctx context.Context, userID string, id int64) (models.Notification, error) {
	args := m.Called(ctx, userID, id)
	var n models.Notification
	if val := args.Get(0); val != nil {
		n = val.(models.Notification)
	}
	return n, args.Error(1)
}

func (m *NotificationServiceMock) Hide(ctx context.Context, userID string, id int64, requestID string) error {
	args := m.Called(ctx, userID, id, requestID)
	return args.Error(0)
}

func (m *NotificationServiceMock) MarkRead(ctx context.Context, userID string, id int64) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *NotificationServiceMock) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) JobTitles(ctx context.Context, ids []string) (map[string]string, error) {
	args := m.Called(ctx, ids)
	var out map[string]string
	if val := args.Get(0); val != nil {
		out = val.(map[string]string)
	}
	return out, args.Error(1)
}

func (m *DirectoryMock) Users(ctx context.Context, ids []string) (map[string]models.UserDisplay, error) {
	args := m.Called(ctx, ids)
	var out map[string]models.UserDisplay
	if val := args.Get(0); val != nil {
		out = val.(map[string]models.UserDisplay)
	}
	return out, args.Error(1)
}

func (m *DirectoryMock) Invalidate(ctx context.Context, kind directory.Kind, id string) error {
	args := m.Called(ctx, kind, id)
	return args.Error(0)
}
