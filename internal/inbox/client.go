package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"messaging-service/internal/apperr"
	"messaging-service/internal/models"
)

// Client calls the messaging REST API on behalf of a session.
type Client struct {
	baseURL string
	session Session
	http    *http.Client
}

// NewClient builds a Client. A nil httpClient uses a client with a 10s timeout.
func NewClient(baseURL string, session Session, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		http:    httpClient,
	}
}

// Conversations loads the full conversation list.
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var resp struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// Thread loads the messages exchanged with otherUserID on a job.
func (c *Client) Thread(ctx context.Context, key models.ConversationKey) ([]models.Message, error) {
	q := url.Values{}
	q.Set("jobId", key.JobID)
	q.Set("otherUserId", key.OtherUserID)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Send posts a message to the counterpart of key.
func (c *Client) Send(ctx context.Context, key models.ConversationKey, content string) (models.Message, error) {
	body := map[string]string{"jobId": key.JobID, "recipientId": key.OtherUserID, "content": content}
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, "/messages", body, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// MarkRead marks the caller's incoming messages in the conversation read.
func (c *Client) MarkRead(ctx context.Context, key models.ConversationKey) (int64, error) {
	body := map[string]string{"jobId": key.JobID, "otherUserId": key.OtherUserID}
	var resp struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPut, "/messages/read", body, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// Notifications loads visible notifications.
func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	var resp struct {
		Notifications []models.Notification `json:"notifications"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Notifications, nil
}

// HideNotification soft deletes one notification.
func (c *Client) HideNotification(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/notifications/%d", id), nil, nil)
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/notifications/%d/read", id), nil, nil)
}

// MarkAllNotificationsRead marks every visible notification read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperr.Internal("encode request", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperr.Internal("build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.session.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Transient("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = resp.Status
		}
		return &apperr.Error{Kind: apperr.FromStatus(resp.StatusCode), Message: payload.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Transient("decode response", err)
	}
	return nil
}
