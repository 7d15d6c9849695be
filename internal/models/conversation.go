package models

import (
	"sort"
	"time"
)

// ConversationKey identifies a conversation from the viewer's side.
type ConversationKey struct {
	JobID       string `json:"jobId"`
	OtherUserID string `json:"otherUserId"`
}

// UserDisplay is the public subset of a user profile.
type UserDisplay struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Email  string `db:"email" json:"email"`
	Avatar string `db:"avatar" json:"avatar"`
}

// Conversation is the per (job, counterpart) summary derived from messages.
type Conversation struct {
	JobID         string      `json:"jobId"`
	JobTitle      string      `json:"jobTitle"`
	OtherUser     UserDisplay `json:"otherUser"`
	LastMessage   string      `json:"lastMessage"`
	LastMessageID int64       `json:"lastMessageId"`
	LastSenderID  string      `json:"lastSenderId"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	UnreadCount   int         `json:"unreadCount"`
}

// Key returns the conversation key.
func (c Conversation) Key() ConversationKey {
	return ConversationKey{JobID: c.JobID, OtherUserID: c.OtherUser.ID}
}

// Mark returns the position of the last message.
func (c Conversation) Mark() Mark {
	return Mark{At: c.UpdatedAt, ID: c.LastMessageID}
}

// SortConversations orders by most recent activity first. Ties fall back to
// the conversation key so the order is deterministic.
func SortConversations(list []Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Mark().After(b.Mark()) {
			return true
		}
		if b.Mark().After(a.Mark()) {
			return false
		}
		if a.JobID != b.JobID {
			return a.JobID < b.JobID
		}
		return a.OtherUser.ID < b.OtherUser.ID
	})
}

// SortMessages orders a thread oldest first.
func SortMessages(list []Message) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[j].Mark().After(list[i].Mark())
	})
}
