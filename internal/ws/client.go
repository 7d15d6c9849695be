package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"messaging-service/internal/models"
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 8 * 1024
	defaultBufSize = 32
)

// Client is one realtime connection inside a user's room.
type Client struct {
	conn   *websocket.Conn
	info   ConnInfo
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func newClient(conn *websocket.Conn, info ConnInfo, buffer int, logger zerolog.Logger) *Client {
	if buffer <= 0 {
		buffer = defaultBufSize
	}
	return &Client{
		conn:   conn,
		info:   info,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
		logger: logger.With().Str("conn_id", info.ConnID).Str("user_id", info.UserID).Logger(),
	}
}

// enqueue never blocks; a full buffer drops the frame for this client only.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) reply(event string, data any) {
	envelope, err := models.NewEnvelope(event, data)
	if err != nil {
		return
	}
	frame, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// readLoop handles client frames until the connection fails.
// Bad frames are answered with an error event and never end the loop.
func (c *Client) readLoop() error {
	c.conn.SetReadLimit(maxFrameSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var envelope models.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Event == "" {
		c.reply(models.EventError, models.ErrorEvent{Message: "malformed frame"})
		return
	}

	switch envelope.Event {
	case models.EventJoin:
		var userID string
		if err := json.Unmarshal(envelope.Data, &userID); err != nil {
			c.reply(models.EventError, models.ErrorEvent{Message: "join expects a user id"})
			return
		}
		// The room is fixed by the authenticated token; join only confirms it.
		if userID != c.info.UserID {
			c.logger.Warn().Str("requested_user_id", userID).Msg("rejected join for foreign room")
			c.reply(models.EventError, models.ErrorEvent{Message: "cannot join another user's room"})
			return
		}
		c.reply(models.EventJoined, c.info.UserID)
	case models.EventPing:
		c.reply(models.EventPong, nil)
	default:
		c.reply(models.EventError, models.ErrorEvent{Message: "unsupported event " + envelope.Event})
	}
}

func (c *Client) writeLoop(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.closed)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
