package inbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperr"
	"messaging-service/internal/models"
)

func TestClientSendsBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/messages":
			assert.Equal(t, "job-1", r.URL.Query().Get("jobId"))
			assert.Equal(t, "emp", r.URL.Query().Get("otherUserId"))
			_ = json.NewEncoder(w).Encode(map[string]any{"messages": []models.Message{{ID: 1}, {ID: 2}}})
		case r.Method == http.MethodPost && r.URL.Path == "/messages":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, map[string]string{"jobId": "job-1", "recipientId": "emp", "content": "hello"}, body)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(models.Message{ID: 3, Content: "hello"})
		case r.Method == http.MethodDelete && r.URL.Path == "/notifications/7":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", Session{UserID: "wrk", Token: "tok"}, nil)
	ctx := context.Background()

	msgs, err := client.Thread(ctx, thread1)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	sent, err := client.Send(ctx, thread1, "hello")
	require.NoError(t, err)
	assert.EqualValues(t, 3, sent.ID)

	require.NoError(t, client.HideNotification(ctx, 7))
}

func TestClientMapsStatusToKind(t *testing.T) {
	cases := []struct {
		status int
		kind   apperr.Kind
	}{
		{http.StatusBadRequest, apperr.KindValidation},
		{http.StatusUnauthorized, apperr.KindAuth},
		{http.StatusNotFound, apperr.KindNotFound},
		{http.StatusServiceUnavailable, apperr.KindTransient},
		{http.StatusInternalServerError, apperr.KindTransient},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
		}))
		client := NewClient(srv.URL, Session{Token: "tok"}, nil)
		_, err := client.Conversations(context.Background())
		srv.Close()

		require.Error(t, err)
		assert.Equal(t, tc.kind, apperr.KindOf(err), tc.status)
		assert.Equal(t, "boom", apperr.Message(err))
	}
}

func TestClientNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, Session{Token: "tok"}, nil).Notifications(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
}
