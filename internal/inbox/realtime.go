package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"messaging-service/internal/apperr"
	"messaging-service/internal/models"
)

// Event is one decoded realtime frame. Exactly one payload field is set for
// the data-carrying events.
type Event struct {
	Name         string
	Message      *models.NewMessageEvent
	Notification *models.Notification
	Status       *models.ApplicationStatusEvent
	Error        string
}

// EventSource delivers realtime events until ctx ends.
type EventSource interface {
	Run(ctx context.Context, handle func(Event)) error
}

// Realtime is a reconnecting websocket subscriber for the session user's room.
type Realtime struct {
	endpoint   string
	session    Session
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

// NewRealtime builds a subscriber. baseURL is the HTTP base of the service;
// the websocket endpoint is derived from it.
func NewRealtime(baseURL string, session Session, logger zerolog.Logger) (*Realtime, error) {
	endpoint, err := websocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Realtime{
		endpoint: endpoint,
		session:  session,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		logger: logger.With().Str("component", "inbox_realtime").Logger(),
	}, nil
}

func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	return u.String(), nil
}

// Run connects, joins the user's room and delivers events to handle,
// reconnecting with exponential backoff until ctx ends. A rejected token
// stops the loop with an auth error.
func (r *Realtime) Run(ctx context.Context, handle func(Event)) error {
	b := r.newBackOff()
	for {
		conn, resp, err := r.dialer.DialContext(ctx, r.endpoint, http.Header{"Authorization": {"Bearer " + r.session.Token}})
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return apperr.Auth("realtime token rejected")
			}
			wait := b.NextBackOff()
			r.logger.Debug().Err(err).Dur("retry_in", wait).Msg("realtime connect failed")
			if !sleepContext(ctx, wait) {
				return nil
			}
			continue
		}

		b.Reset()
		err = r.serve(ctx, conn, handle)
		if ctx.Err() != nil {
			return nil
		}
		wait := b.NextBackOff()
		r.logger.Debug().Err(err).Dur("retry_in", wait).Msg("realtime connection lost")
		if !sleepContext(ctx, wait) {
			return nil
		}
	}
}

func (r *Realtime) serve(ctx context.Context, conn *websocket.Conn, handle func(Event)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	join, err := json.Marshal(models.Envelope{Event: models.EventJoin, Data: mustJSON(r.session.UserID)})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return err
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		event, err := decodeEvent(data)
		if err != nil {
			r.logger.Debug().Err(err).Msg("skipping undecodable frame")
			continue
		}
		if event.Name == models.EventError {
			r.logger.Warn().Str("message", event.Error).Msg("realtime server error")
		}
		handle(event)
	}
}

func decodeEvent(data []byte) (Event, error) {
	var envelope models.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Event{}, err
	}
	if envelope.Event == "" {
		return Event{}, errors.New("frame without event name")
	}

	event := Event{Name: envelope.Event}
	var err error
	switch envelope.Event {
	case models.EventNewMessage:
		event.Message = &models.NewMessageEvent{}
		err = json.Unmarshal(envelope.Data, event.Message)
	case models.EventNewNotification:
		event.Notification = &models.Notification{}
		err = json.Unmarshal(envelope.Data, event.Notification)
	case models.EventApplicationStatusUpdated:
		event.Status = &models.ApplicationStatusEvent{}
		err = json.Unmarshal(envelope.Data, event.Status)
	case models.EventError:
		var payload models.ErrorEvent
		err = json.Unmarshal(envelope.Data, &payload)
		event.Error = payload.Message
	}
	return event, err
}

func mustJSON(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
