package ws

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// ErrNoSubscribers is returned by Emit when the user has no open connection.
var ErrNoSubscribers = errors.New("no realtime subscribers")

// Hub maintains one room per user id.
type Hub struct {
	rooms  map[string]map[*Client]struct{}
	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register adds the client to its user's room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := client.info.UserID
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	h.logger.Debug().Str("user_id", room).Str("conn_id", client.info.ConnID).Msg("realtime client joined")
}

// Unregister removes the client from its room.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := client.info.UserID
	if clients, ok := h.rooms[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	h.logger.Debug().Str("user_id", room).Str("conn_id", client.info.ConnID).Msg("realtime client left")
}

// RoomSize returns the number of open connections for the user.
func (h *Hub) RoomSize(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Emit pushes an event to every connection of the user and returns how many
// connections accepted it. Delivery is best effort; nothing is replayed.
func (h *Hub) Emit(userID, event string, data any) (int, error) {
	envelope, err := models.NewEnvelope(event, data)
	if err != nil {
		return 0, err
	}
	frame, err := json.Marshal(envelope)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := h.rooms[userID]
	if len(clients) == 0 {
		observability.IncRealtimePush(event, "no_subscribers")
		return 0, ErrNoSubscribers
	}

	delivered := 0
	for client := range clients {
		if client.enqueue(frame) {
			delivered++
			continue
		}
		h.logger.Warn().Str("user_id", userID).Str("conn_id", client.info.ConnID).Str("event", event).Msg("dropping realtime event for slow client")
		observability.IncRealtimePush(event, "dropped")
	}
	if delivered > 0 {
		observability.IncRealtimePush(event, "delivered")
	}
	return delivered, nil
}
