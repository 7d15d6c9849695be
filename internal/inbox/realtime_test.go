package inbox

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperr"
	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/ws"
)

func realtimeServer(t *testing.T) (*httptest.Server, *ws.Hub, *auth.JWTValidator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator := auth.NewJWTValidator("test-secret", "messaging-service")
	hub := ws.NewHub(zerolog.Nop())
	router := gin.New()
	router.GET("/ws", ws.NewUserWebSocketHandler(hub, validator, 8, time.Second, zerolog.Nop()).Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub, validator
}

func TestWebsocketURL(t *testing.T) {
	u, err := websocketURL("https://api.example.com/chat/")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/chat/ws", u)

	u, err = websocketURL("http://localhost:8083")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8083/ws", u)
}

func TestRealtimeJoinsAndReceivesPushes(t *testing.T) {
	srv, hub, validator := realtimeServer(t)
	token, err := validator.Issue("wrk", time.Minute)
	require.NoError(t, err)

	rt, err := NewRealtime(srv.URL, Session{UserID: "wrk", Token: token}, zerolog.Nop())
	require.NoError(t, err)

	events := make(chan Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx, func(ev Event) { events <- ev }) }()

	select {
	case ev := <-events:
		assert.Equal(t, models.EventJoined, ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no joined frame")
	}
	require.Equal(t, 1, hub.RoomSize("wrk"))

	_, err = hub.Emit("wrk", models.EventNewMessage, models.NewMessageEvent{
		Message:    models.Message{ID: 4, JobID: "job-1", SenderID: "emp", RecipientID: "wrk", Content: "hi", CreatedAt: t0},
		SenderName: "Amina",
	})
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.Equal(t, models.EventNewMessage, ev.Name)
		require.NotNil(t, ev.Message)
		assert.EqualValues(t, 4, ev.Message.ID)
		assert.Equal(t, "Amina", ev.Message.SenderName)
	case <-time.After(2 * time.Second):
		t.Fatal("no pushed message")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("realtime did not stop")
	}
}

func TestRealtimeRejectedToken(t *testing.T) {
	srv, _, _ := realtimeServer(t)
	rt, err := NewRealtime(srv.URL, Session{UserID: "wrk", Token: "garbage"}, zerolog.Nop())
	require.NoError(t, err)

	err = rt.Run(context.Background(), func(Event) {})
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent([]byte(`{"event":"new_notification","data":{"id":3,"type":"newJob","visible":true,"employerName":"Amina"}}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Notification)
	assert.Equal(t, models.NewJobPayload{EmployerName: "Amina"}, ev.Notification.Payload)

	ev, err = decodeEvent([]byte(`{"event":"error","data":{"message":"cannot join another user's room"}}`))
	require.NoError(t, err)
	assert.Equal(t, "cannot join another user's room", ev.Error)

	_, err = decodeEvent([]byte(`not json`))
	assert.Error(t, err)
}
