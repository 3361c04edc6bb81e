package app

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/Parley/internal/config"
	"github.com/markdave123-py/Parley/internal/metrics"
	"github.com/markdave123-py/Parley/internal/models"
	"github.com/markdave123-py/Parley/internal/testutil"
)

type echoGenerator struct{}

func (echoGenerator) StreamReply(_ context.Context, _ []models.HistoryEntry, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, word := range strings.Fields(prompt) {
			if !yield(word+" ", nil) {
				return
			}
		}
	}
}

func (echoGenerator) GenerateTitle(context.Context, string) (string, error) {
	return "Echo Chamber", nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		JWTSecret:      "server-secret",
		JWTTTL:         time.Hour,
		BcryptCost:     4,
		AllowedOrigins: []string{"http://localhost:5173"},
		RequestTimeout: 5 * time.Second,
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	exporter := metrics.NewExporter(metrics.DefaultConfig())
	srv := NewServer(testConfig(), testutil.NewMemDB(), echoGenerator{}, exporter, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat/messages", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestChatTurnOverRealServer(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/auth/register", "application/json",
		strings.NewReader(`{"email":"ada@example.com","password":"secret1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&auth))

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/chat/messages", strings.NewReader(`{"content":"hello there"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+auth.Token)
	req.Header.Set("Content-Type", "application/json")

	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	body, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	raw := string(body)
	for _, ev := range []string{"event: initial", "event: message", "event: done", "event: titleUpdate"} {
		assert.Contains(t, raw, ev)
	}
	assert.Less(t, strings.Index(raw, "event: done"), strings.Index(raw, "event: titleUpdate"))

	listReq, err := http.NewRequest(http.MethodGet, ts.URL+"/api/chat/conversations", http.NoBody)
	require.NoError(t, err)
	listReq.Header.Set("Authorization", "Bearer "+auth.Token)
	list, err := http.DefaultClient.Do(listReq)
	require.NoError(t, err)
	defer list.Body.Close()

	var convs struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&convs))
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, "Echo Chamber", convs.Conversations[0].Title)
}
