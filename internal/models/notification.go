package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType tags the payload variant carried by a Notification.
type NotificationType string

const (
	NotificationMessage              NotificationType = "message"
	NotificationJobAccepted          NotificationType = "jobAccepted"
	NotificationJobRejected          NotificationType = "jobRejected"
	NotificationNewJob               NotificationType = "newJob"
	NotificationApplicationSubmitted NotificationType = "applicationSubmitted"
)

// NotificationPayload is implemented only by the payload variants in this package.
type NotificationPayload interface {
	Kind() NotificationType
	isNotificationPayload()
}

// MessagePayload belongs to NotificationMessage.
type MessagePayload struct {
	MessageID  int64  `json:"messageId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	Content    string `json:"content"`
}

// JobStatusPayload belongs to NotificationJobAccepted and NotificationJobRejected.
type JobStatusPayload struct {
	Status       NotificationType `json:"-"`
	EmployerName string           `json:"employerName"`
	WorkerID     string           `json:"workerId,omitempty"`
}

// NewJobPayload belongs to NotificationNewJob.
type NewJobPayload struct {
	EmployerName string `json:"employerName"`
}

// ApplicationPayload belongs to NotificationApplicationSubmitted.
type ApplicationPayload struct {
	ApplicantID   string `json:"applicantId,omitempty"`
	ApplicantName string `json:"applicantName"`
}

func (MessagePayload) Kind() NotificationType     { return NotificationMessage }
func (p JobStatusPayload) Kind() NotificationType { return p.Status }
func (NewJobPayload) Kind() NotificationType      { return NotificationNewJob }
func (ApplicationPayload) Kind() NotificationType { return NotificationApplicationSubmitted }

func (MessagePayload) isNotificationPayload()     {}
func (JobStatusPayload) isNotificationPayload()   {}
func (NewJobPayload) isNotificationPayload()      {}
func (ApplicationPayload) isNotificationPayload() {}

// Notification is a durable per-user notification record.
type Notification struct {
	ID         int64
	UserID     string
	Type       NotificationType
	Read       bool
	Visible    bool
	SendAlerts bool
	JobID      string
	JobTitle   string
	CreatedAt  time.Time
	Payload    NotificationPayload
}

type notificationHeader struct {
	ID         int64            `json:"id"`
	UserID     string           `json:"userId"`
	Type       NotificationType `json:"type"`
	Read       bool             `json:"read"`
	Visible    bool             `json:"visible"`
	SendAlerts bool             `json:"sendAlerts"`
	JobID      string           `json:"jobId"`
	JobTitle   string           `json:"jobTitle"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// ParseNotificationType validates a raw type tag.
func ParseNotificationType(raw string) (NotificationType, error) {
	switch t := NotificationType(raw); t {
	case NotificationMessage, NotificationJobAccepted, NotificationJobRejected, NotificationNewJob, NotificationApplicationSubmitted:
		return t, nil
	default:
		return "", fmt.Errorf("unknown notification type %q", raw)
	}
}

// EncodePayload serializes the variant fields for storage.
func EncodePayload(p NotificationPayload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// DecodePayload rebuilds the variant for t from its stored fields.
func DecodePayload(t NotificationType, data []byte) (NotificationPayload, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	switch t {
	case NotificationMessage:
		var p MessagePayload
		err := json.Unmarshal(data, &p)
		return p, err
	case NotificationJobAccepted, NotificationJobRejected:
		p := JobStatusPayload{Status: t}
		err := json.Unmarshal(data, &p)
		return p, err
	case NotificationNewJob:
		var p NewJobPayload
		err := json.Unmarshal(data, &p)
		return p, err
	case NotificationApplicationSubmitted:
		var p ApplicationPayload
		err := json.Unmarshal(data, &p)
		return p, err
	default:
		return nil, fmt.Errorf("unknown notification type %q", t)
	}
}

// Summary renders a one line description used for toasts and logs.
func (n Notification) Summary() string {
	switch p := n.Payload.(type) {
	case MessagePayload:
		from := p.SenderName
		if from == "" {
			from = p.SenderID
		}
		return fmt.Sprintf("New message from %s: %s", from, p.Content)
	case JobStatusPayload:
		if p.Status == NotificationJobRejected {
			return fmt.Sprintf("%s declined your application for %s", p.EmployerName, n.JobTitle)
		}
		return fmt.Sprintf("%s accepted your application for %s", p.EmployerName, n.JobTitle)
	case NewJobPayload:
		return fmt.Sprintf("%s posted a new job: %s", p.EmployerName, n.JobTitle)
	case ApplicationPayload:
		return fmt.Sprintf("%s applied for %s", p.ApplicantName, n.JobTitle)
	default:
		return string(n.Type)
	}
}

// MarshalJSON flattens the payload fields next to the common fields.
func (n Notification) MarshalJSON() ([]byte, error) {
	head, err := json.Marshal(notificationHeader{
		ID:         n.ID,
		UserID:     n.UserID,
		Type:       n.Type,
		Read:       n.Read,
		Visible:    n.Visible,
		SendAlerts: n.SendAlerts,
		JobID:      n.JobID,
		JobTitle:   n.JobTitle,
		CreatedAt:  n.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	if n.Payload == nil {
		return head, nil
	}
	body, err := json.Marshal(n.Payload)
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(head, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes the common fields and the variant selected by type.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var head notificationHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	t, err := ParseNotificationType(string(head.Type))
	if err != nil {
		return err
	}
	payload, err := DecodePayload(t, data)
	if err != nil {
		return err
	}
	*n = Notification{
		ID:         head.ID,
		UserID:     head.UserID,
		Type:       t,
		Read:       head.Read,
		Visible:    head.Visible,
		SendAlerts: head.SendAlerts,
		JobID:      head.JobID,
		JobTitle:   head.JobTitle,
		CreatedAt:  head.CreatedAt,
		Payload:    payload,
	}
	return nil
}
