package models

import "time"

// Message is a single message between two users scoped to a job.
type Message struct {
	ID          int64     `db:"id" json:"id"`
	JobID       string    `db:"job_id" json:"jobId"`
	SenderID    string    `db:"sender_id" json:"senderId"`
	RecipientID string    `db:"recipient_id" json:"recipientId"`
	Content     string    `db:"content" json:"content"`
	Read        bool      `db:"read" json:"read"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Counterpart returns the participant that is not userID.
func (m Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// Involves reports whether userID is the sender or the recipient.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// Mark returns the ordering position of the message.
func (m Message) Mark() Mark {
	return Mark{At: m.CreatedAt, ID: m.ID}
}

// Mark orders messages by creation time, then by id when timestamps collide.
type Mark struct {
	At time.Time `json:"at"`
	ID int64     `json:"id"`
}

// After reports whether m sorts strictly after o.
func (m Mark) After(o Mark) bool {
	if m.At.Equal(o.At) {
		return m.ID > o.ID
	}
	return m.At.After(o.At)
}

// IsZero reports whether the mark was never set.
func (m Mark) IsZero() bool {
	return m.ID == 0 && m.At.IsZero()
}

// MaxMark returns the later of the two marks.
func MaxMark(a, b Mark) Mark {
	if b.After(a) {
		return b
	}
	return a
}
