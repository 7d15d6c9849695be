package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/observability"
)

// UserWebSocketHandler upgrades authenticated connections into the caller's room.
type UserWebSocketHandler struct {
	hub          *Hub
	validator    auth.TokenValidator
	sendBuffer   int
	pingInterval time.Duration
	logger       zerolog.Logger
}

// NewUserWebSocketHandler constructs a UserWebSocketHandler.
func NewUserWebSocketHandler(hub *Hub, validator auth.TokenValidator, sendBuffer int, pingInterval time.Duration, logger zerolog.Logger) *UserWebSocketHandler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &UserWebSocketHandler{
		hub:          hub,
		validator:    validator,
		sendBuffer:   sendBuffer,
		pingInterval: pingInterval,
		logger:       logger.With().Str("component", "ws_handler").Logger(),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades and serves one realtime connection.
func (h *UserWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	userID, err := h.validator.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	info := h.info(c.Request, userID, span.SpanContext().TraceID().String())
	cl := newClient(conn, info, h.sendBuffer, h.logger)
	h.hub.Register(cl)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publish(ctx, info, "ws_connect", "")

	go cl.writeLoop(h.pingInterval)
	go func() {
		var closeReason string
		defer func() {
			h.hub.Unregister(cl)
			cl.close()
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			h.publish(context.Background(), info, "ws_disconnect", closeReason)
		}()
		if err := cl.readLoop(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publish(context.Background(), info, "ws_error", closeReason)
			}
		}
	}()
}

func (h *UserWebSocketHandler) info(r *http.Request, userID, traceID string) ConnInfo {
	client := observability.ClientInfoFromRequest(r)
	return ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    client.DeviceID,
		IP:          client.IP,
		RequestID:   client.RequestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

func (h *UserWebSocketHandler) publish(ctx context.Context, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(ctx, observability.WSRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: observability.WSEventPayload{
			Event:      event,
			ConnID:     info.ConnID,
			UserID:     info.UserID,
			DeviceID:   info.DeviceID,
			IP:         info.IP,
			DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
			Reason:     reason,
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
