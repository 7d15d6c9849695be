package models

import "encoding/json"

// Realtime event names.
const (
	EventJoin                     = "join"
	EventJoined                   = "joined"
	EventPing                     = "ping"
	EventPong                     = "pong"
	EventError                    = "error"
	EventNewMessage               = "new_message"
	EventNewNotification          = "new_notification"
	EventApplicationStatusUpdated = "application_status_updated"
)

// Envelope is the frame exchanged over the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes data under the given event name.
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// NewMessageEvent is pushed to the recipient when a message is stored.
type NewMessageEvent struct {
	Message
	SenderName string `json:"senderName"`
	JobTitle   string `json:"jobTitle"`
}

// ApplicationStatusEvent is pushed when an application is accepted or rejected.
type ApplicationStatusEvent struct {
	JobID    string `json:"jobId"`
	JobTitle string `json:"jobTitle"`
	WorkerID string `json:"workerId"`
	Status   string `json:"status"`
}

// ErrorEvent answers malformed or rejected client frames.
type ErrorEvent struct {
	Message string `json:"message"`
}
