package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Parley/internal/core/sse"
	"github.com/markdave123-py/Parley/internal/models"
)

type scriptedEvent struct {
	Type    models.StreamEventType
	Payload any
}

// streamServer answers every chat turn by calling script with the request.
func streamServer(t *testing.T, script func(w http.ResponseWriter, r *http.Request, req sendRequest)) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		script(w, r, req)
	})
	mux.HandleFunc("GET /api/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"conversations": []models.Conversation{}})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	c := NewClient(ts.URL)
	c.SetToken("token")
	return c
}

func writeEvents(w http.ResponseWriter, events ...scriptedEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	enc := sse.NewEncoder(w)
	for _, ev := range events {
		_ = enc.Encode(string(ev.Type), ev.Payload)
		w.(http.Flusher).Flush()
	}
}

func userMessage(id, convID, content string) *models.Message {
	return &models.Message{ID: id, ConversationID: convID, Content: content, Role: models.RoleUser, CreatedAt: time.Now()}
}

func TestSendNewConversationTurn(t *testing.T) {
	client := streamServer(t, func(w http.ResponseWriter, _ *http.Request, req sendRequest) {
		assert.Empty(t, req.ConversationID)
		writeEvents(w,
			scriptedEvent{models.EventInitial, models.InitialEvent{ConversationID: "c1", UserMessage: userMessage("server-u1", "c1", req.Content)}},
			scriptedEvent{models.EventMessage, models.MessageEvent{ID: "a1", Chunk: "Hel", ConversationID: "c1"}},
			scriptedEvent{models.EventMessage, models.MessageEvent{ID: "a1", Chunk: "lo", ConversationID: "c1"}},
			scriptedEvent{models.EventDone, models.DoneEvent{ConversationID: "c1"}},
			scriptedEvent{models.EventTitleUpdate, models.TitleUpdateEvent{ConversationID: "c1", NewTitle: "Greeting"}},
		)
	})
	cache := NewCache(client)

	var (
		navigated     []string
		composingAt   []bool
		sawGenerating bool
	)
	sess := NewSession(client, cache,
		WithNavigator(func(id string) {
			navigated = append(navigated, id)
			conv, ok := cache.Conversation(id)
			sawGenerating = ok && conv.IsTitleGenerating
		}),
		WithOnChange(func(s Snapshot) { composingAt = append(composingAt, s.Composing) }),
	)

	require.NoError(t, sess.Send(context.Background(), "Hello"))

	snap := sess.Snapshot()
	assert.Equal(t, "c1", snap.ConversationID)
	assert.False(t, snap.Composing)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "server-u1", snap.Messages[0].ID)
	assert.Equal(t, "a1", snap.Messages[1].ID)
	assert.Equal(t, "Hello", snap.Messages[1].Content)
	assert.Equal(t, models.RoleAssistant, snap.Messages[1].Role)

	assert.Equal(t, []string{"c1"}, navigated)
	assert.True(t, sawGenerating)
	conv, ok := cache.Conversation("c1")
	require.True(t, ok)
	assert.Equal(t, "Greeting", conv.Title)
	assert.False(t, conv.IsTitleGenerating)

	// composing is on from the optimistic append until the first fragment
	require.GreaterOrEqual(t, len(composingAt), 3)
	assert.True(t, composingAt[0])
	assert.True(t, composingAt[1])
	assert.False(t, composingAt[2])

	assert.True(t, cache.IsStale(ConversationsKey))
	assert.True(t, cache.IsStale(MessagesKey("c1")))
}

func TestSendErrorEventReplacesProvisional(t *testing.T) {
	client := streamServer(t, func(w http.ResponseWriter, _ *http.Request, req sendRequest) {
		assert.Equal(t, "foreign", req.ConversationID)
		writeEvents(w, scriptedEvent{models.EventError, models.ErrorEvent{Content: "Conversation not found"}})
	})
	sess := NewSession(client, NewCache(client))
	sess.Open("foreign", nil)

	require.NoError(t, sess.Send(context.Background(), "Hi"))

	snap := sess.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, models.RoleAssistant, snap.Messages[0].Role)
	assert.Equal(t, "Conversation not found", snap.Messages[0].Content)
	assert.False(t, snap.Composing)
}

func TestSendProviderErrorKeepsConfirmedUserMessage(t *testing.T) {
	client := streamServer(t, func(w http.ResponseWriter, _ *http.Request, req sendRequest) {
		writeEvents(w,
			scriptedEvent{models.EventInitial, models.InitialEvent{ConversationID: "c1", UserMessage: userMessage("u1", "c1", req.Content)}},
			scriptedEvent{models.EventMessage, models.MessageEvent{ID: "a1", Chunk: "Hel", ConversationID: "c1"}},
			scriptedEvent{models.EventError, models.ErrorEvent{Content: "fallback"}},
		)
	})
	sess := NewSession(client, NewCache(client))

	require.NoError(t, sess.Send(context.Background(), "Hello"))

	msgs := sess.Snapshot().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "u1", msgs[0].ID)
	assert.Equal(t, "Hel", msgs[1].Content)
	assert.Equal(t, "fallback", msgs[2].Content)
}

func TestSendNetworkFailureUsesGenericText(t *testing.T) {
	client := streamServer(t, func(w http.ResponseWriter, _ *http.Request, _ sendRequest) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	cache := NewCache(client)
	sess := NewSession(client, cache)

	err := sess.Send(context.Background(), "Hello")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)

	snap := sess.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, GenericErrorText, snap.Messages[0].Content)
	assert.False(t, snap.Composing)
	assert.True(t, cache.IsStale(ConversationsKey))
}

func TestSendTruncatedStreamIsFailure(t *testing.T) {
	client := streamServer(t, func(w http.ResponseWriter, _ *http.Request, req sendRequest) {
		writeEvents(w,
			scriptedEvent{models.EventInitial, models.InitialEvent{ConversationID: "c1", UserMessage: userMessage("u1", "c1", req.Content)}},
			scriptedEvent{models.EventMessage, models.MessageEvent{ID: "a1", Chunk: "partial", ConversationID: "c1"}},
		)
	})
	sess := NewSession(client, NewCache(client))

	err := sess.Send(context.Background(), "Hello")

	assert.ErrorIs(t, err, ErrStreamIncomplete)
	msgs := sess.Snapshot().Messages
	assert.Equal(t, GenericErrorText, msgs[len(msgs)-1].Content)
}

func TestNewTurnSupersedesInFlightTurn(t *testing.T) {
	started := make(chan struct{})
	client := streamServer(t, func(w http.ResponseWriter, r *http.Request, req sendRequest) {
		if req.Content == "first" {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			close(started)
			<-r.Context().Done()
			return
		}
		writeEvents(w,
			scriptedEvent{models.EventInitial, models.InitialEvent{ConversationID: "c2", UserMessage: userMessage("u2", "c2", req.Content)}},
			scriptedEvent{models.EventMessage, models.MessageEvent{ID: "a2", Chunk: "second reply", ConversationID: "c2"}},
			scriptedEvent{models.EventDone, models.DoneEvent{ConversationID: "c2"}},
		)
	})
	sess := NewSession(client, NewCache(client))

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = sess.Send(context.Background(), "first")
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first turn never reached the server")
	}

	require.NoError(t, sess.Send(context.Background(), "second"))
	wg.Wait()

	assert.True(t, errors.Is(firstErr, context.Canceled), "got %v", firstErr)
	snap := sess.Snapshot()
	assert.False(t, snap.Composing)
	for _, m := range snap.Messages {
		assert.NotEqual(t, GenericErrorText, m.Content)
	}
	assert.Equal(t, "second reply", snap.Messages[len(snap.Messages)-1].Content)
}

func TestMalformedEventIsSkipped(t *testing.T) {
	client := streamServer(t, func(w http.ResponseWriter, _ *http.Request, req sendRequest) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("event: message\ndata: {broken\n\n"))
		enc := sse.NewEncoder(w)
		_ = enc.Encode("message", models.MessageEvent{ID: "a1", Chunk: "ok", ConversationID: "c1"})
		_ = enc.Encode("done", models.DoneEvent{ConversationID: "c1"})
	})
	sess := NewSession(client, NewCache(client))
	sess.Open("c1", nil)

	require.NoError(t, sess.Send(context.Background(), "Hi"))

	msgs := sess.Snapshot().Messages
	assert.Equal(t, "ok", msgs[len(msgs)-1].Content)
}
