package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"messaging-service/internal/apperr"
	"messaging-service/internal/models"
)

// API is the REST surface the controller drives. *Client implements it.
type API interface {
	Conversations(ctx context.Context) ([]models.Conversation, error)
	Thread(ctx context.Context, key models.ConversationKey) ([]models.Message, error)
	Send(ctx context.Context, key models.ConversationKey, content string) (models.Message, error)
	MarkRead(ctx context.Context, key models.ConversationKey) (int64, error)
	Notifications(ctx context.Context) ([]models.Notification, error)
	HideNotification(ctx context.Context, id int64) error
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Options tunes polling. Zero values use the defaults.
type Options struct {
	ConversationPoll time.Duration
	ThreadPoll       time.Duration
	NotificationPoll time.Duration
	// OnChange runs after any visible state change. It must not block.
	OnChange func()
	// OnStatus receives application status pushes.
	OnStatus func(models.ApplicationStatusEvent)
}

const (
	defaultConversationPoll = 10 * time.Second
	defaultThreadPoll       = 5 * time.Second
	defaultNotificationPoll = 30 * time.Second
)

// Controller keeps a Store warm from polls and realtime pushes and runs the
// user actions against the API.
type Controller struct {
	api      API
	store    *Store
	realtime EventSource
	opts     Options
	logger   zerolog.Logger
}

// NewController wires a controller. realtime may be nil for polling only.
func NewController(api API, store *Store, realtime EventSource, opts Options, logger zerolog.Logger) *Controller {
	if opts.ConversationPoll <= 0 {
		opts.ConversationPoll = defaultConversationPoll
	}
	if opts.ThreadPoll <= 0 {
		opts.ThreadPoll = defaultThreadPoll
	}
	if opts.NotificationPoll <= 0 {
		opts.NotificationPoll = defaultNotificationPoll
	}
	return &Controller{
		api:      api,
		store:    store,
		realtime: realtime,
		opts:     opts,
		logger:   logger.With().Str("component", "inbox").Str("user_id", store.Session().UserID).Logger(),
	}
}

// Store returns the controlled store.
func (c *Controller) Store() *Store {
	return c.store
}

// Mount performs the initial load. On failure the store is left untouched
// and the error is returned.
func (c *Controller) Mount(ctx context.Context) error {
	convs, err := c.api.Conversations(ctx)
	if err != nil {
		return c.surface(err)
	}
	notifications, err := c.api.Notifications(ctx)
	if err != nil {
		return c.surface(err)
	}
	c.store.ReplaceConversations(convs)
	c.store.ReplaceNotifications(notifications)
	c.changed()
	return nil
}

// Run polls and listens for pushes until ctx ends. Background failures are
// logged only; an auth failure stops the controller and is returned.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		once    sync.Once
		authErr error
	)
	fail := func(err error) {
		once.Do(func() {
			authErr = err
			c.store.Reset()
			c.changed()
			cancel()
		})
	}

	poll := func(interval time.Duration, tick func(context.Context) error) {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := tick(ctx); err != nil {
					if apperr.Is(err, apperr.KindAuth) {
						fail(err)
						return
					}
					if ctx.Err() == nil {
						c.logger.Debug().Err(err).Msg("background poll failed")
					}
				}
			}
		}
	}

	wg.Add(3)
	go poll(c.opts.ConversationPoll, c.pollConversations)
	go poll(c.opts.ThreadPoll, c.pollThread)
	go poll(c.opts.NotificationPoll, c.pollNotifications)

	if c.realtime != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.realtime.Run(ctx, func(ev Event) { c.handleEvent(ctx, ev) }); err != nil {
				if apperr.Is(err, apperr.KindAuth) {
					fail(err)
					return
				}
				c.logger.Warn().Err(err).Msg("realtime listener stopped")
			}
		}()
	}

	wg.Wait()
	return authErr
}

func (c *Controller) pollConversations(ctx context.Context) error {
	convs, err := c.api.Conversations(ctx)
	if err != nil {
		return err
	}
	if c.store.MergeConversations(convs) {
		c.changed()
	}
	return nil
}

func (c *Controller) pollThread(ctx context.Context) error {
	key, ok := c.store.OpenKey()
	if !ok {
		return nil
	}
	generation := c.store.Generation()
	msgs, err := c.api.Thread(ctx, key)
	if err != nil {
		return err
	}
	if !c.store.MergeThread(generation, msgs) {
		return nil
	}
	c.changed()
	// Messages that only arrived by poll still need the server told.
	if hasUnreadFor(c.store.Session().UserID, msgs) {
		return c.markRead(ctx, key)
	}
	return nil
}

func hasUnreadFor(userID string, msgs []models.Message) bool {
	for _, m := range msgs {
		if m.RecipientID == userID && !m.Read {
			return true
		}
	}
	return false
}

// markRead tells the server key was read and moves the local read position
// once it accepted.
func (c *Controller) markRead(ctx context.Context, key models.ConversationKey) error {
	upTo := c.store.ReadPosition(key)
	if _, err := c.api.MarkRead(ctx, key); err != nil {
		return err
	}
	c.store.ConfirmRead(key, upTo)
	c.changed()
	return nil
}

func (c *Controller) pollNotifications(ctx context.Context) error {
	list, err := c.api.Notifications(ctx)
	if err != nil {
		return err
	}
	if c.store.MergeNotifications(list) {
		c.changed()
	}
	return nil
}

func (c *Controller) handleEvent(ctx context.Context, ev Event) {
	switch ev.Name {
	case models.EventNewMessage:
		if ev.Message == nil {
			return
		}
		if c.store.ApplyMessage(*ev.Message) {
			c.changed()
		}
		if key, ok := c.store.OpenKey(); ok && ev.Message.RecipientID == c.store.Session().UserID && keyFor(c.store.Session().UserID, ev.Message.Message) == key {
			if err := c.markRead(ctx, key); err != nil {
				c.logger.Debug().Err(err).Msg("mark read after push failed")
			}
		}
	case models.EventNewNotification:
		if ev.Notification != nil && c.store.ApplyNotification(*ev.Notification) {
			c.changed()
		}
	case models.EventApplicationStatusUpdated:
		if ev.Status != nil && c.opts.OnStatus != nil {
			c.opts.OnStatus(*ev.Status)
		}
	}
}

// OpenThread shows a conversation: its unread count shows as zero at once,
// the thread is loaded and the server is told the messages were read. If the
// thread cannot be loaded the previous view is restored.
func (c *Controller) OpenThread(ctx context.Context, key models.ConversationKey) error {
	generation := c.store.OpenThread(key)
	c.changed()

	msgs, err := c.api.Thread(ctx, key)
	if err != nil {
		if c.store.RevertThread(generation) {
			c.changed()
		}
		return c.surface(err)
	}
	if !c.store.ReplaceThread(generation, msgs) {
		return nil
	}
	c.changed()
	if err := c.markRead(ctx, key); err != nil {
		// Unconfirmed reads count again once the thread closes; the thread
		// poll retries while it stays open.
		c.logger.Warn().Err(err).Msg("mark read failed")
	}
	return nil
}

// CloseThread leaves the open thread; in-flight thread responses are dropped.
func (c *Controller) CloseThread() {
	c.store.CloseThread()
	c.changed()
}

// Send posts to the open thread. Nothing is shown until the server accepts it.
func (c *Controller) Send(ctx context.Context, content string) (models.Message, error) {
	key, ok := c.store.OpenKey()
	if !ok {
		return models.Message{}, apperr.Validation("no conversation is open")
	}
	msg, err := c.api.Send(ctx, key, content)
	if err != nil {
		return models.Message{}, c.surface(err)
	}
	c.store.ApplyMessage(models.NewMessageEvent{Message: msg})
	c.changed()
	return msg, nil
}

// DeleteNotification hides a notification on the server, then locally.
func (c *Controller) DeleteNotification(ctx context.Context, id int64) error {
	if err := c.api.HideNotification(ctx, id); err != nil {
		return c.surface(err)
	}
	c.store.HideNotification(id)
	c.changed()
	return nil
}

// ReadNotification marks one notification read.
func (c *Controller) ReadNotification(ctx context.Context, id int64) error {
	if err := c.api.MarkNotificationRead(ctx, id); err != nil {
		return c.surface(err)
	}
	c.store.MarkNotificationRead(id)
	c.changed()
	return nil
}

// MarkAllNotificationsRead clears the badge.
func (c *Controller) MarkAllNotificationsRead(ctx context.Context) error {
	if err := c.api.MarkAllNotificationsRead(ctx); err != nil {
		return c.surface(err)
	}
	c.store.MarkAllNotificationsRead()
	c.changed()
	return nil
}

func (c *Controller) surface(err error) error {
	if apperr.Is(err, apperr.KindAuth) {
		c.store.Reset()
		c.changed()
	}
	return err
}

func (c *Controller) changed() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}
