// Package inbox keeps a client-side view of a user's conversations and
// notifications consistent across REST snapshots and realtime pushes.
package inbox

import "messaging-service/internal/models"

// Session identifies the signed-in user for every inbox component.
type Session struct {
	UserID string
	Token  string
}

// keyFor returns the conversation key of msg as seen by userID.
func keyFor(userID string, msg models.Message) models.ConversationKey {
	return models.ConversationKey{JobID: msg.JobID, OtherUserID: msg.Counterpart(userID)}
}
