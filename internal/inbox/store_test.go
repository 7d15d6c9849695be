package inbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

var (
	t0      = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	thread1 = models.ConversationKey{JobID: "job-1", OtherUserID: "emp"}
)

func incoming(id int64, offset time.Duration, content string) models.NewMessageEvent {
	return models.NewMessageEvent{
		Message: models.Message{
			ID:          id,
			JobID:       "job-1",
			SenderID:    "emp",
			RecipientID: "wrk",
			Content:     content,
			CreatedAt:   t0.Add(offset),
		},
		SenderName: "Amina",
		JobTitle:   "Plumbing fix",
	}
}

func snapshot(id int64, offset time.Duration, content string, unread int) models.Conversation {
	return models.Conversation{
		JobID:         "job-1",
		JobTitle:      "Plumbing fix",
		OtherUser:     models.UserDisplay{ID: "emp", Name: "Amina"},
		LastMessage:   content,
		LastMessageID: id,
		LastSenderID:  "emp",
		UpdatedAt:     t0.Add(offset),
		UnreadCount:   unread,
	}
}

func only(t *testing.T, s *Store) models.Conversation {
	t.Helper()
	list := s.Conversations()
	require.Len(t, list, 1)
	return list[0]
}

func TestApplyMessageIsIdempotent(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(1, 0, "hi", 1)})

	assert.True(t, s.ApplyMessage(incoming(2, time.Minute, "start monday")))
	assert.False(t, s.ApplyMessage(incoming(2, time.Minute, "start monday")))

	c := only(t, s)
	assert.Equal(t, 2, c.UnreadCount)
	assert.Equal(t, "start monday", c.LastMessage)
	assert.EqualValues(t, 2, c.LastMessageID)
}

func TestPollThenPushCountsOnce(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(1, 0, "hi", 1)})

	s.MergeConversations([]models.Conversation{snapshot(2, time.Minute, "start monday", 2)})
	s.ApplyMessage(incoming(2, time.Minute, "start monday"))

	assert.Equal(t, 2, only(t, s).UnreadCount)
}

func TestPushAndPollCommute(t *testing.T) {
	base := []models.Conversation{snapshot(1, 0, "hi", 1)}
	poll := []models.Conversation{snapshot(2, time.Minute, "start monday", 2)}
	push := incoming(2, time.Minute, "start monday")

	a := NewStore(Session{UserID: "wrk"})
	a.ReplaceConversations(base)
	a.ApplyMessage(push)
	a.MergeConversations(poll)

	b := NewStore(Session{UserID: "wrk"})
	b.ReplaceConversations(base)
	b.MergeConversations(poll)
	b.ApplyMessage(push)

	assert.Equal(t, a.Conversations(), b.Conversations())
	assert.Equal(t, 2, only(t, a).UnreadCount)
}

func TestPushBeforeFirstSnapshotCommutes(t *testing.T) {
	push := incoming(5, time.Minute, "new thread")
	poll := []models.Conversation{snapshot(5, time.Minute, "new thread", 1)}

	a := NewStore(Session{UserID: "wrk"})
	a.ApplyMessage(push)
	a.MergeConversations(poll)

	b := NewStore(Session{UserID: "wrk"})
	b.MergeConversations(poll)
	b.ApplyMessage(push)

	assert.Equal(t, a.Conversations(), b.Conversations())
	assert.Equal(t, 1, only(t, a).UnreadCount)
}

func TestStalePollIsIgnored(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(2, time.Minute, "start monday", 2)})

	assert.False(t, s.MergeConversations([]models.Conversation{snapshot(1, 0, "hi", 1)}))
	c := only(t, s)
	assert.Equal(t, "start monday", c.LastMessage)
	assert.Equal(t, 2, c.UnreadCount)
}

func TestSameWatermarkNeverRaisesUnread(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(2, time.Minute, "m", 1)})

	s.MergeConversations([]models.Conversation{snapshot(2, time.Minute, "m", 3)})
	assert.Equal(t, 1, only(t, s).UnreadCount)

	s.MergeConversations([]models.Conversation{snapshot(2, time.Minute, "m", 0)})
	assert.Equal(t, 0, only(t, s).UnreadCount)
}

func TestPollKeepsPushesNewerThanWatermark(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(1, 0, "hi", 1)})
	s.ApplyMessage(incoming(2, time.Minute, "two"))
	s.ApplyMessage(incoming(3, 2*time.Minute, "three"))

	// The poll was taken after message 2 but before message 3.
	s.MergeConversations([]models.Conversation{snapshot(2, time.Minute, "two", 2)})

	c := only(t, s)
	assert.Equal(t, 3, c.UnreadCount)
	assert.Equal(t, "three", c.LastMessage)
}

func TestPartialPollKeepsAbsentEntries(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	other := models.Conversation{JobID: "job-2", OtherUser: models.UserDisplay{ID: "emp-2"}, LastMessageID: 7, UpdatedAt: t0}
	s.ReplaceConversations([]models.Conversation{snapshot(1, 0, "hi", 1), other})

	s.MergeConversations([]models.Conversation{snapshot(2, time.Minute, "again", 2)})
	assert.Len(t, s.Conversations(), 2)
}

func TestOwnAndReadMessagesDoNotCount(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(1, 0, "hi", 0)})

	own := incoming(2, time.Minute, "my reply")
	own.SenderID, own.RecipientID = "wrk", "emp"
	s.ApplyMessage(own)

	read := incoming(3, 2*time.Minute, "already read")
	read.Read = true
	s.ApplyMessage(read)

	c := only(t, s)
	assert.Zero(t, c.UnreadCount)
	assert.Equal(t, "already read", c.LastMessage)
}

func TestForeignMessageIgnored(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	foreign := incoming(9, 0, "not mine")
	foreign.RecipientID = "someone"
	assert.False(t, s.ApplyMessage(foreign))
	assert.Empty(t, s.Conversations())
}

func TestOpenThreadZeroesUnreadOptimistically(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(2, time.Minute, "m", 2)})
	s.ApplyMessage(incoming(3, 2*time.Minute, "three"))

	s.OpenThread(thread1)
	assert.Zero(t, only(t, s).UnreadCount)

	// A poll taken before the server processed markRead.
	s.MergeConversations([]models.Conversation{snapshot(3, 2*time.Minute, "three", 3)})
	assert.Zero(t, only(t, s).UnreadCount)

	// Pushes into the open thread do not count either.
	s.ApplyMessage(incoming(4, 3*time.Minute, "four"))
	assert.Zero(t, only(t, s).UnreadCount)
	assert.Len(t, s.Thread(), 1)

	s.ConfirmRead(thread1, s.ReadPosition(thread1))
	s.CloseThread()
	assert.Zero(t, only(t, s).UnreadCount)

	// A poll taken after message four but before markRead reached the server.
	s.MergeConversations([]models.Conversation{snapshot(4, 3*time.Minute, "four", 4)})
	assert.Zero(t, only(t, s).UnreadCount)

	s.ApplyMessage(incoming(5, 4*time.Minute, "five"))
	assert.Equal(t, 1, only(t, s).UnreadCount)
}

func TestClosingUnconfirmedThreadKeepsServerCount(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(2, time.Minute, "m", 2)})

	s.OpenThread(thread1)
	assert.Zero(t, only(t, s).UnreadCount)
	s.ApplyMessage(incoming(3, 2*time.Minute, "three"))

	s.CloseThread()
	assert.Equal(t, 3, only(t, s).UnreadCount)

	s.MergeConversations([]models.Conversation{snapshot(3, 2*time.Minute, "three", 3)})
	assert.Equal(t, 3, only(t, s).UnreadCount)
}

func TestConfirmReadAfterClose(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(2, time.Minute, "m", 2)})

	s.OpenThread(thread1)
	upTo := s.ReadPosition(thread1)
	s.CloseThread()
	assert.Equal(t, 2, only(t, s).UnreadCount)

	s.ConfirmRead(thread1, upTo)
	assert.Zero(t, only(t, s).UnreadCount)
}

func TestRevertThreadRestoresPreviousThread(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(1, 0, "hi", 1)})

	first := s.OpenThread(thread1)
	require.True(t, s.ReplaceThread(first, []models.Message{incoming(1, 0, "hi").Message}))

	second := s.OpenThread(models.ConversationKey{JobID: "job-2", OtherUserID: "emp"})
	require.True(t, s.RevertThread(second))
	assert.False(t, s.RevertThread(first))

	key, open := s.OpenKey()
	require.True(t, open)
	assert.Equal(t, thread1, key)
	assert.Len(t, s.Thread(), 1)

	gen := s.Generation()
	require.True(t, s.MergeThread(gen, nil))

	s.CloseThread()
	assert.Equal(t, 1, only(t, s).UnreadCount)
}

func TestRevertThreadWithNothingOpenBefore(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(1, 0, "hi", 1)})

	gen := s.OpenThread(thread1)
	require.True(t, s.RevertThread(gen))
	_, open := s.OpenKey()
	assert.False(t, open)
	assert.Equal(t, 1, only(t, s).UnreadCount)
}

func TestThreadResponsesFromOlderGenerationAreDropped(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	gen := s.OpenThread(thread1)
	s.CloseThread()
	s.OpenThread(models.ConversationKey{JobID: "job-2", OtherUserID: "emp"})

	assert.False(t, s.ReplaceThread(gen, []models.Message{incoming(1, 0, "stale").Message}))
	assert.Empty(t, s.Thread())
}

func TestThreadReadFlagIsMonotonic(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	gen := s.OpenThread(thread1)
	msg := incoming(1, 0, "hi").Message
	require.True(t, s.ReplaceThread(gen, []models.Message{msg}))

	s.ConfirmRead(thread1, s.ReadPosition(thread1))
	require.True(t, s.MergeThread(gen, []models.Message{msg}))
	thread := s.Thread()
	require.Len(t, thread, 1)
	assert.True(t, thread[0].Read)

	require.True(t, s.ReplaceThread(gen, []models.Message{msg}))
	assert.True(t, s.Thread()[0].Read)
}

func notification(id int64, read, visible bool) models.Notification {
	return models.Notification{
		ID:        id,
		UserID:    "wrk",
		Type:      models.NotificationNewJob,
		Read:      read,
		Visible:   visible,
		CreatedAt: t0.Add(time.Duration(id) * time.Minute),
		Payload:   models.NewJobPayload{EmployerName: "Amina"},
	}
}

func TestNotificationFlagsAreMonotonic(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceNotifications([]models.Notification{notification(1, false, true), notification(2, false, true)})
	assert.Equal(t, 2, s.Badge())

	s.MarkNotificationRead(1)
	s.HideNotification(2)
	// A poll taken before either change reached the server.
	s.MergeNotifications([]models.Notification{notification(1, false, true), notification(2, false, true)})

	list := s.Notifications()
	require.Len(t, list, 1)
	assert.True(t, list[0].Read)
	assert.Zero(t, s.Badge())
}

func TestNotificationPushDeduplicates(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	assert.True(t, s.ApplyNotification(notification(3, false, true)))
	assert.False(t, s.ApplyNotification(notification(3, false, true)))
	assert.False(t, s.MergeNotifications([]models.Notification{notification(3, false, true)}))
	assert.Equal(t, 1, s.Badge())

	s.ApplyNotification(notification(4, false, true))
	list := s.Notifications()
	require.Len(t, list, 2)
	assert.EqualValues(t, 4, list[0].ID)

	s.MarkAllNotificationsRead()
	assert.Zero(t, s.Badge())
}

func TestResetClearsEverything(t *testing.T) {
	s := NewStore(Session{UserID: "wrk"})
	s.ReplaceConversations([]models.Conversation{snapshot(1, 0, "hi", 1)})
	s.ReplaceNotifications([]models.Notification{notification(1, false, true)})
	s.OpenThread(thread1)

	s.Reset()
	assert.Empty(t, s.Conversations())
	assert.Zero(t, s.Badge())
	_, open := s.OpenKey()
	assert.False(t, open)
}
