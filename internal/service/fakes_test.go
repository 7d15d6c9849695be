package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type memoryMessages struct {
	mu     sync.Mutex
	nextID int64
	clock  time.Time
	rows   []models.Message
}

func newMemoryMessages() *memoryMessages {
	return &memoryMessages{clock: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (m *memoryMessages) CreateMessage(_ context.Context, jobID, senderID, recipientID, content string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.clock = m.clock.Add(time.Second)
	msg := models.Message{
		ID:          m.nextID,
		JobID:       jobID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   m.clock,
	}
	m.rows = append(m.rows, msg)
	return msg, nil
}

func (m *memoryMessages) insertAt(msg models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, msg)
	if msg.ID > m.nextID {
		m.nextID = msg.ID
	}
}

func (m *memoryMessages) ListForPair(_ context.Context, jobID, userA, userB string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Message{}
	for _, msg := range m.rows {
		if msg.JobID != jobID {
			continue
		}
		if (msg.SenderID == userA && msg.RecipientID == userB) || (msg.SenderID == userB && msg.RecipientID == userA) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryMessages) ListForUser(_ context.Context, userID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Message{}
	for _, msg := range m.rows {
		if msg.Involves(userID) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryMessages) MarkRead(_ context.Context, jobID, recipientID, senderID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.rows {
		msg := &m.rows[i]
		if msg.JobID == jobID && msg.RecipientID == recipientID && !msg.Read && (senderID == "" || msg.SenderID == senderID) {
			msg.Read = true
			n++
		}
	}
	return n, nil
}

type memoryNotifications struct {
	mu     sync.Mutex
	nextID int64
	rows   []models.Notification
	fail   error
}

func (m *memoryNotifications) CreateNotification(_ context.Context, n models.Notification) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return models.Notification{}, m.fail
	}
	m.nextID++
	n.ID = m.nextID
	n.CreatedAt = time.Date(2024, 5, 1, 9, 0, int(m.nextID), 0, time.UTC)
	m.rows = append(m.rows, n)
	return n, nil
}

func (m *memoryNotifications) find(id int64) *models.Notification {
	for i := range m.rows {
		if m.rows[i].ID == id {
			return &m.rows[i]
		}
	}
	return nil
}

func (m *memoryNotifications) GetNotification(_ context.Context, id int64) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.find(id); n != nil {
		return *n, nil
	}
	return models.Notification{}, repositories.ErrNotificationNotFound
}

func (m *memoryNotifications) ListVisible(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Notification{}
	for _, n := range m.rows {
		if n.UserID == userID && n.Visible {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryNotifications) owned(userID string, id int64) (*models.Notification, error) {
	n := m.find(id)
	if n == nil || n.UserID != userID {
		return nil, repositories.ErrNotificationNotFound
	}
	return n, nil
}

func (m *memoryNotifications) ToggleAlerts(_ context.Context, userID string, id int64) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.owned(userID, id)
	if err != nil {
		return models.Notification{}, err
	}
	n.SendAlerts = !n.SendAlerts
	return *n, nil
}

func (m *memoryNotifications) Hide(_ context.Context, userID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.owned(userID, id)
	if err != nil {
		return err
	}
	n.Visible = false
	return nil
}

func (m *memoryNotifications) MarkRead(_ context.Context, userID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.owned(userID, id)
	if err != nil {
		return err
	}
	n.Read = true
	return nil
}

func (m *memoryNotifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for i := range m.rows {
		if m.rows[i].UserID == userID && m.rows[i].Visible && !m.rows[i].Read {
			m.rows[i].Read = true
			count++
		}
	}
	return count, nil
}

func (m *memoryNotifications) MarkMessageNotificationsRead(_ context.Context, userID, jobID, counterpartID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for i := range m.rows {
		n := &m.rows[i]
		p, ok := n.Payload.(models.MessagePayload)
		if !ok || n.UserID != userID || n.JobID != jobID || n.Read {
			continue
		}
		if counterpartID != "" && p.SenderID != counterpartID {
			continue
		}
		n.Read = true
		count++
	}
	return count, nil
}

type staticDirectory struct {
	jobs  map[string]string
	users map[string]models.UserDisplay
	err   error
	calls int
}

func newStaticDirectory() *staticDirectory {
	return &staticDirectory{
		jobs: map[string]string{"job-1": "Plumbing fix", "job-2": "Garden work"},
		users: map[string]models.UserDisplay{
			"emp":   {ID: "emp", Name: "Amina Employer"},
			"wrk":   {ID: "wrk", Name: "Otieno Worker"},
			"wrk-2": {ID: "wrk-2", Name: "Njeri Worker"},
		},
	}
}

func (d *staticDirectory) JobTitles(_ context.Context, ids []string) (map[string]string, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	out := map[string]string{}
	for _, id := range ids {
		if title, ok := d.jobs[id]; ok {
			out[id] = title
		}
	}
	return out, nil
}

func (d *staticDirectory) Users(_ context.Context, ids []string) (map[string]models.UserDisplay, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	out := map[string]models.UserDisplay{}
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type pushed struct {
	UserID string
	Event  string
	Data   any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []pushed
	fail   bool
}

func (b *recordingBroadcaster) Emit(userID, event string, data any) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return 0, errors.New("no subscribers")
	}
	b.events = append(b.events, pushed{UserID: userID, Event: event, Data: data})
	return 1, nil
}

func (b *recordingBroadcaster) named(event string) []pushed {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []pushed
	for _, e := range b.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
