package chatclient

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Parley/internal/models"
)

func TestTitleStorePersistsSynchronously(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "typed-titles.json")

	store, err := LoadTitleStore(path)
	require.NoError(t, err)
	assert.False(t, store.Typed("c1"))

	require.NoError(t, store.MarkTyped("c1"))
	require.NoError(t, store.MarkTyped("c1"))

	reloaded, err := LoadTitleStore(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Typed("c1"))
	assert.False(t, reloaded.Typed("c2"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `["c1"]`, string(raw))
}

func TestTitleStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typed-titles.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))

	_, err := LoadTitleStore(path)
	assert.Error(t, err)
}

func TestTitleRendererTypesOnce(t *testing.T) {
	store, err := LoadTitleStore(filepath.Join(t.TempDir(), "typed-titles.json"))
	require.NoError(t, err)

	var out bytes.Buffer
	r := NewTitleRenderer(&out, store, time.Millisecond)
	var sleeps int
	r.sleep = func(time.Duration) { sleeps++ }

	conv := models.Conversation{ID: "c1", Title: "Trip"}
	require.NoError(t, r.Render(conv))
	assert.Equal(t, "Trip\n", out.String())
	assert.Equal(t, 4, sleeps)
	assert.True(t, store.Typed("c1"))

	out.Reset()
	require.NoError(t, r.Render(conv))
	assert.Equal(t, "Trip\n", out.String())
	assert.Equal(t, 4, sleeps)
}

func TestTitleRendererSkipsPlaceholder(t *testing.T) {
	store, err := LoadTitleStore(filepath.Join(t.TempDir(), "typed-titles.json"))
	require.NoError(t, err)
	r := NewTitleRenderer(&bytes.Buffer{}, store, 0)

	require.NoError(t, r.Render(models.Conversation{ID: "c1", Title: models.SentinelTitle}))
	require.NoError(t, r.Render(models.Conversation{ID: "c2", Title: "Soon", IsTitleGenerating: true}))

	assert.False(t, store.Typed("c1"))
	assert.False(t, store.Typed("c2"))
}
