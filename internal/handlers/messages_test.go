package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperr"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/service"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "wrk")
		c.Next()
	})
	r.POST("/messages", handler.PostMessage)
	r.GET("/messages", handler.GetMessages)
	r.PUT("/messages/read", handler.MarkRead)
	r.GET("/conversations", handler.ListConversations)
	return r
}

func TestPostMessageSuccess(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(messages, zerolog.Nop()))

	input := service.SendInput{JobID: "job-1", SenderID: "wrk", RecipientID: "emp", Content: "hello"}
	stored := models.Message{ID: 4, JobID: "job-1", SenderID: "wrk", RecipientID: "emp", Content: "hello", CreatedAt: time.Now().UTC()}
	messages.On("Send", mock.Anything, input).Return(stored, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"jobId":"job-1","recipientId":"emp","content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.EqualValues(t, 4, resp.ID)
	assert.False(t, resp.Read)
	messages.AssertExpectations(t)
}

func TestPostMessageMissingFields(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(messages, zerolog.Nop()))

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"jobId":"job-1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messages.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestPostMessageMapsErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"self message", apperr.Validation("cannot send a message to yourself"), http.StatusBadRequest, "cannot send a message to yourself"},
		{"unknown job", apperr.NotFound("job job-1 not found"), http.StatusNotFound, "job job-1 not found"},
		{"directory down", apperr.Transient("job lookup failed", assert.AnError), http.StatusServiceUnavailable, "job lookup failed"},
		{"db failure", apperr.Internal("failed to store message", assert.AnError), http.StatusInternalServerError, "failed to store message"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			messages := new(mocks.MessageServiceMock)
			router := setupMessageRouter(NewMessageHandler(messages, zerolog.Nop()))
			messages.On("Send", mock.Anything, mock.Anything).Return(nil, tc.err).Once()

			req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"jobId":"job-1","recipientId":"emp","content":"x"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			var resp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tc.body, resp["error"])
		})
	}
}

func TestGetMessagesRequiresQuery(t *testing.T) {
	router := setupMessageRouter(NewMessageHandler(new(mocks.MessageServiceMock), zerolog.Nop()))

	req := httptest.NewRequest(http.MethodGet, "/messages?jobId=job-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMessagesSuccess(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(messages, zerolog.Nop()))

	messages.On("ListForPair", mock.Anything, "job-1", "wrk", "emp").Return([]models.Message{{ID: 1}, {ID: 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages?jobId=job-1&otherUserId=emp", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Messages, 2)
	messages.AssertExpectations(t)
}

func TestMarkReadUsesCallerAsRecipient(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(messages, zerolog.Nop()))

	messages.On("MarkRead", mock.Anything, "job-1", "wrk", "").Return(int64(3), nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/messages/read", bytes.NewBufferString(`{"jobId":"job-1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":3}`, rec.Body.String())
	messages.AssertExpectations(t)
}

func TestListConversationsSuccess(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(messages, zerolog.Nop()))

	messages.On("ListConversations", mock.Anything, "wrk").Return([]models.Conversation{{JobID: "job-1", UnreadCount: 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, 2, resp.Conversations[0].UnreadCount)
}

func TestListConversationsUnknownUser(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(messages, zerolog.Nop()))

	messages.On("ListConversations", mock.Anything, "wrk").Return(nil, apperr.NotFound("user wrk not found")).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
