package inbox

import (
	"sort"
	"sync"

	"messaging-service/internal/models"
)

// conversationState tracks one conversation. Unread is derived, never stored:
// the server count applies while the confirmed read position is behind the
// server watermark, and pushed unread messages count only when they are
// newer than both. readMark only moves after the server accepted a markRead.
type conversationState struct {
	view         models.Conversation
	serverMark   models.Mark
	serverUnread int
	readMark     models.Mark
	pushed       map[int64]models.Mark
}

func newConversationState(c models.Conversation) *conversationState {
	return &conversationState{
		view:         c,
		serverMark:   c.Mark(),
		serverUnread: c.UnreadCount,
		pushed:       make(map[int64]models.Mark),
	}
}

func (st *conversationState) unread() int {
	count := 0
	if st.serverMark.After(st.readMark) {
		count = st.serverUnread
	}
	for _, mark := range st.pushed {
		if mark.After(st.serverMark) && mark.After(st.readMark) {
			count++
		}
	}
	return count
}

func (st *conversationState) confirmRead(upTo models.Mark) {
	st.readMark = models.MaxMark(st.readMark, upTo)
	for id, mark := range st.pushed {
		if !mark.After(st.readMark) {
			delete(st.pushed, id)
		}
	}
}

// Store is the reconciled client state. It is safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	session       Session
	conversations map[models.ConversationKey]*conversationState
	open          *models.ConversationKey
	thread        map[int64]models.Message
	prevOpen      *models.ConversationKey
	prevThread    map[int64]models.Message
	notifications map[int64]models.Notification
	generation    uint64
}

// NewStore returns an empty store for the session user.
func NewStore(session Session) *Store {
	return &Store{
		session:       session,
		conversations: make(map[models.ConversationKey]*conversationState),
		thread:        make(map[int64]models.Message),
		notifications: make(map[int64]models.Notification),
	}
}

// Session returns the user the store belongs to.
func (s *Store) Session() Session {
	return s.session
}

// Reset drops all state, used when the session is no longer valid.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = make(map[models.ConversationKey]*conversationState)
	s.thread = make(map[int64]models.Message)
	s.notifications = make(map[int64]models.Notification)
	s.open = nil
	s.prevOpen, s.prevThread = nil, nil
	s.generation++
}

// ReplaceConversations installs a full snapshot.
func (s *Store) ReplaceConversations(list []models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = make(map[models.ConversationKey]*conversationState, len(list))
	for _, c := range list {
		s.conversations[c.Key()] = newConversationState(c)
	}
}

// MergeConversations folds a poll result into the store. Entries missing from
// the result are kept. It reports whether anything visible changed.
func (s *Store) MergeConversations(list []models.Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, in := range list {
		key := in.Key()
		st, ok := s.conversations[key]
		if !ok {
			s.conversations[key] = newConversationState(in)
			changed = true
			continue
		}

		before := st.snapshot()
		mark := in.Mark()
		switch {
		case st.serverMark.After(mark):
			// Stale snapshot.
			continue
		case mark.After(st.serverMark):
			st.serverMark = mark
			st.serverUnread = in.UnreadCount
			for id, pushedMark := range st.pushed {
				if !pushedMark.After(mark) {
					delete(st.pushed, id)
				}
			}
		default:
			st.serverUnread = min(st.serverUnread, in.UnreadCount)
		}

		if !st.view.Mark().After(mark) {
			st.view.LastMessage = in.LastMessage
			st.view.LastMessageID = in.LastMessageID
			st.view.LastSenderID = in.LastSenderID
			st.view.UpdatedAt = in.UpdatedAt
		}
		if in.JobTitle != "" {
			st.view.JobTitle = in.JobTitle
		}
		if in.OtherUser.Name != "" {
			st.view.OtherUser = in.OtherUser
		}
		if st.snapshot() != before {
			changed = true
		}
	}
	return changed
}

// ApplyMessage folds a pushed message into the conversation list and the
// open thread. Applying the same message again has no effect.
func (s *Store) ApplyMessage(event models.NewMessageEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := event.Message
	user := s.session.UserID
	if !msg.Involves(user) || msg.SenderID == msg.RecipientID {
		return false
	}

	key := keyFor(user, msg)
	st, ok := s.conversations[key]
	if !ok {
		st = &conversationState{
			view:   models.Conversation{JobID: key.JobID, OtherUser: models.UserDisplay{ID: key.OtherUserID}},
			pushed: make(map[int64]models.Mark),
		}
		s.conversations[key] = st
	}
	before := st.snapshot()

	if st.view.LastMessageID == 0 || msg.Mark().After(st.view.Mark()) {
		st.view.LastMessage = msg.Content
		st.view.LastMessageID = msg.ID
		st.view.LastSenderID = msg.SenderID
		st.view.UpdatedAt = msg.CreatedAt
	}
	if st.view.JobTitle == "" && event.JobTitle != "" {
		st.view.JobTitle = event.JobTitle
	}
	if st.view.OtherUser.Name == "" && msg.SenderID == key.OtherUserID && event.SenderName != "" {
		st.view.OtherUser.Name = event.SenderName
	}

	if s.isOpen(key) {
		s.mergeThreadMessage(msg)
	}
	if s.countsAsUnread(st, msg) {
		st.pushed[msg.ID] = msg.Mark()
	}

	return !ok || st.snapshot() != before
}

func (s *Store) countsAsUnread(st *conversationState, msg models.Message) bool {
	if msg.RecipientID != s.session.UserID || msg.Read {
		return false
	}
	if _, seen := st.pushed[msg.ID]; seen {
		return false
	}
	mark := msg.Mark()
	return mark.After(st.serverMark) && mark.After(st.readMark)
}

// OpenThread marks the conversation as being viewed. Its unread count shows
// as zero while it stays open. The returned generation tags thread fetches.
func (s *Store) OpenThread(key models.ConversationKey) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prevOpen, s.prevThread = s.open, s.thread
	s.open = &key
	s.thread = make(map[int64]models.Message)
	s.generation++
	return s.generation
}

// RevertThread undoes the OpenThread call that returned generation, as long
// as nothing navigated since. The previously open thread comes back.
func (s *Store) RevertThread(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return false
	}
	s.open, s.thread = s.prevOpen, s.prevThread
	if s.thread == nil {
		s.thread = make(map[int64]models.Message)
	}
	s.prevOpen, s.prevThread = nil, nil
	s.generation++
	return true
}

// CloseThread leaves the open thread. Messages the server has not confirmed
// as read count as unread again.
func (s *Store) CloseThread() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = nil
	s.thread = make(map[int64]models.Message)
	s.prevOpen, s.prevThread = nil, nil
	s.generation++
}

// OpenKey returns the open conversation, if any.
func (s *Store) OpenKey() (models.ConversationKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return models.ConversationKey{}, false
	}
	return *s.open, true
}

// Generation returns the current navigation generation.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// ReplaceThread installs the open thread's messages. Responses for an older
// generation are discarded and false is returned.
func (s *Store) ReplaceThread(generation uint64, msgs []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation || s.open == nil {
		return false
	}
	previous := s.thread
	s.thread = make(map[int64]models.Message, len(msgs))
	for _, m := range msgs {
		if old, ok := previous[m.ID]; ok && old.Read {
			m.Read = true
		}
		s.thread[m.ID] = m
	}
	// Pushed messages newer than the snapshot survive it.
	for id, m := range previous {
		if _, ok := s.thread[id]; !ok {
			s.thread[id] = m
		}
	}
	return true
}

// MergeThread adds messages to the open thread without dropping any.
func (s *Store) MergeThread(generation uint64, msgs []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation || s.open == nil {
		return false
	}
	for _, m := range msgs {
		s.mergeThreadMessage(m)
	}
	return true
}

func (s *Store) mergeThreadMessage(m models.Message) {
	if old, ok := s.thread[m.ID]; ok {
		m.Read = m.Read || old.Read
	}
	s.thread[m.ID] = m
}

// ReadPosition is the newest message known for key. Capture it before
// sending markRead and hand it to ConfirmRead once the server accepted.
func (s *Store) ReadPosition(key models.ConversationKey) models.Mark {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pos models.Mark
	if st, ok := s.conversations[key]; ok {
		pos = models.MaxMark(st.view.Mark(), st.serverMark)
	}
	if s.isOpen(key) {
		for _, m := range s.thread {
			pos = models.MaxMark(pos, m.Mark())
		}
	}
	return pos
}

// ConfirmRead records that the server marked key read up to upTo. Incoming
// messages of the open thread up to that point are flagged read.
func (s *Store) ConfirmRead(key models.ConversationKey, upTo models.Mark) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.conversations[key]; ok {
		st.confirmRead(upTo)
	}
	if !s.isOpen(key) {
		return
	}
	for id, m := range s.thread {
		if m.RecipientID == s.session.UserID && !m.Read && !m.Mark().After(upTo) {
			m.Read = true
			s.thread[id] = m
		}
	}
}

// Thread returns the open thread, oldest first.
func (s *Store) Thread() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, 0, len(s.thread))
	for _, m := range s.thread {
		out = append(out, m)
	}
	models.SortMessages(out)
	return out
}

// Conversations returns the display list with derived unread counts.
func (s *Store) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, 0, len(s.conversations))
	for key, st := range s.conversations {
		c := st.view
		c.UnreadCount = st.unread()
		if s.isOpen(key) {
			c.UnreadCount = 0
		}
		out = append(out, c)
	}
	models.SortConversations(out)
	return out
}

// Conversation returns one conversation with its derived unread count.
func (s *Store) Conversation(key models.ConversationKey) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.conversations[key]
	if !ok {
		return models.Conversation{}, false
	}
	c := st.view
	c.UnreadCount = st.unread()
	if s.isOpen(key) {
		c.UnreadCount = 0
	}
	return c, true
}

// UnreadMessages sums unread counts across conversations.
func (s *Store) UnreadMessages() int {
	total := 0
	for _, c := range s.Conversations() {
		total += c.UnreadCount
	}
	return total
}

// ReplaceNotifications installs a full snapshot.
func (s *Store) ReplaceNotifications(list []models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = make(map[int64]models.Notification, len(list))
	for _, n := range list {
		s.notifications[n.ID] = n
	}
}

// MergeNotifications folds a poll result in. Read and hidden are one-way flags.
func (s *Store) MergeNotifications(list []models.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, n := range list {
		if s.mergeNotification(n) {
			changed = true
		}
	}
	return changed
}

// ApplyNotification folds a pushed notification in.
func (s *Store) ApplyNotification(n models.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeNotification(n)
}

func (s *Store) mergeNotification(n models.Notification) bool {
	old, ok := s.notifications[n.ID]
	if ok {
		n.Read = n.Read || old.Read
		n.Visible = n.Visible && old.Visible
		if n.JobTitle == "" {
			n.JobTitle = old.JobTitle
		}
		if old.Read == n.Read && old.Visible == n.Visible && old.SendAlerts == n.SendAlerts && old.JobTitle == n.JobTitle {
			s.notifications[n.ID] = n
			return false
		}
	}
	s.notifications[n.ID] = n
	return true
}

// MarkNotificationRead flags one notification read locally.
func (s *Store) MarkNotificationRead(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notifications[id]; ok {
		n.Read = true
		s.notifications[id] = n
	}
}

// MarkAllNotificationsRead flags every notification read locally.
func (s *Store) MarkAllNotificationsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.notifications {
		n.Read = true
		s.notifications[id] = n
	}
}

// HideNotification removes a notification from the visible list for good.
func (s *Store) HideNotification(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notifications[id]; ok {
		n.Visible = false
		s.notifications[id] = n
	}
}

// Notifications returns visible notifications, newest first.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if n.Visible {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Badge counts unread visible notifications.
func (s *Store) Badge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.notifications {
		if n.Visible && !n.Read {
			count++
		}
	}
	return count
}

func (s *Store) isOpen(key models.ConversationKey) bool {
	return s.open != nil && *s.open == key
}

type conversationSnapshot struct {
	lastMessageID int64
	lastMessage   string
	jobTitle      string
	otherName     string
	unread        int
}

func (st *conversationState) snapshot() conversationSnapshot {
	return conversationSnapshot{
		lastMessageID: st.view.LastMessageID,
		lastMessage:   st.view.LastMessage,
		jobTitle:      st.view.JobTitle,
		otherName:     st.view.OtherUser.Name,
		unread:        st.unread(),
	}
}
