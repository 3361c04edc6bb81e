package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "Sock Startup Names", want: "Sock Startup Names"},
		{name: "whitespace and quotes", raw: "  \"Midnight Ramen Quest\"\n", want: "Midnight Ramen Quest"},
		{name: "only one quote kept", raw: `"Quoted start`, want: `"Quoted start`},
		{name: "too many words", raw: "one two three four five six seven eight nine", want: "one two three four five six seven..."},
		{name: "seven words untouched", raw: "one two three four five six seven", want: "one two three four five six seven"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanTitle(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanTitleEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", `""`, "\" \""} {
		_, err := CleanTitle(raw)
		assert.ErrorIs(t, err, ErrEmptyTitle, "raw=%q", raw)
	}
}

func TestTitlePromptEmbedsMessage(t *testing.T) {
	assert.Contains(t, titlePrompt("Hello there"), "User message: 'Hello there'")
}
