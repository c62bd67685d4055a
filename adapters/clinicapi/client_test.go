package clinicapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
)

var (
	_ repositories.InferenceChannel  = &Client{}
	_ repositories.MessageRepository = &MessageRepository{}
	_ repositories.SegmentRepository = &SegmentRepository{}
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "secret"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func TestValidateConfig(t *testing.T) {
	assert.Error(t, ValidateConfig(Config{}))
	assert.Error(t, ValidateConfig(Config{BaseURL: "ftp://clinic"}))
	assert.Error(t, ValidateConfig(Config{BaseURL: "https://clinic", TimeoutSeconds: -1}))
	assert.NoError(t, ValidateConfig(Config{BaseURL: "https://clinic.example/api"}))
}

func TestStream_ReturnsBodyAsItArrives(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req repositories.InferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, entities.TriageStateIntake, req.TriageState)
		assert.Len(t, req.Messages, 1)

		flusher := w.(http.Flusher)
		w.Write([]byte("Bună ziua, "))
		flusher.Flush()
		time.Sleep(10 * time.Millisecond)
		w.Write([]byte("de când vă doare?"))
	})

	body, err := client.Stream(context.Background(), repositories.InferenceRequest{
		Messages:    []repositories.ChatMessage{{Role: repositories.UserRole, Content: "Mă doare un dinte"}},
		TriageState: entities.TriageStateIntake,
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "Bună ziua, de când vă doare?", string(data))
}

func TestStream_StatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.Stream(context.Background(), repositories.InferenceRequest{})
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "model overloaded", statusErr.Body)
}

func TestRecords_CreateAndList(t *testing.T) {
	var stored []repositories.MessageRecord
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/conversations/conv-1/messages":
			var rec repositories.MessageRecord
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
			stored = append(stored, rec)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && r.URL.Path == "/conversations/conv-1/messages":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(stored)
		case r.URL.Path == "/conversations/conv-1/segments":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"id":"s1","text":"notă","startTs":"2026-03-01T09:00:00Z","endTs":"2026-03-01T09:01:00Z"}]`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	messages := NewMessageRepository(client)
	require.NoError(t, messages.Create(ctx, "conv-1", repositories.MessageRecord{ID: "m1", Role: entities.MessageRoleUser, Content: "Mă doare"}))
	require.NoError(t, messages.Create(ctx, "conv-1", repositories.MessageRecord{ID: "m2", Role: entities.MessageRoleAssistant, Content: "De când?", OutputType: entities.OutputTypeText}))

	got, err := messages.ListByConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, entities.OutputTypeText, got[1].OutputType)

	segments, err := NewSegmentRepository(client).ListByConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, time.Minute, segments[0].EndTs.Sub(segments[0].StartTs))

	_, err = NewMessageRepository(client).ListByConversation(ctx, "missing")
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	assert.Error(t, messages.Create(ctx, "", repositories.MessageRecord{ID: "x"}))
}
