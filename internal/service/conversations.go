package service

import "messaging-service/internal/models"

// Aggregate derives one conversation per (job, counterpart) from the messages
// userID sent or received. Display fields other than the counterpart id are
// left for the caller to resolve. The result is sorted for display.
func Aggregate(userID string, msgs []models.Message) []models.Conversation {
	byKey := make(map[models.ConversationKey]*models.Conversation)
	for _, m := range msgs {
		if !m.Involves(userID) || m.SenderID == m.RecipientID {
			continue
		}
		key := models.ConversationKey{JobID: m.JobID, OtherUserID: m.Counterpart(userID)}
		conv, ok := byKey[key]
		if !ok {
			conv = &models.Conversation{JobID: key.JobID, OtherUser: models.UserDisplay{ID: key.OtherUserID}}
			byKey[key] = conv
		}
		if conv.LastMessageID == 0 || m.Mark().After(conv.Mark()) {
			conv.LastMessage = m.Content
			conv.LastMessageID = m.ID
			conv.LastSenderID = m.SenderID
			conv.UpdatedAt = m.CreatedAt
		}
		if m.RecipientID == userID && !m.Read {
			conv.UnreadCount++
		}
	}

	result := make([]models.Conversation, 0, len(byKey))
	for _, conv := range byKey {
		result = append(result, *conv)
	}
	models.SortConversations(result)
	return result
}
