package llm

import (
	"errors"
	"fmt"
	"strings"
)

const maxTitleWords = 7

// ErrEmptyTitle is returned when the provider answers with nothing usable.
var ErrEmptyTitle = errors.New("empty title")

func titlePrompt(firstUserMessage string) string {
	return fmt.Sprintf(`You are a helpful assistant that generates concise, creative, and unique titles for chat conversations.
Based on the following user's first message, provide a short title (max 5-7 words) that hints at the conversation's potential topic or is a creative take on the initial interaction.
Avoid generic titles like "Initial Contact" or "Greeting". If the message is very simple (e.g., "Hi", "Hello"), generate a more imaginative title.
Do not include any conversational phrases or greetings, just the title.

User message: '%s'

Title:`, firstUserMessage)
}

// CleanTitle normalizes raw model output: surrounding whitespace and one pair
// of wrapping double quotes go, and titles over seven words are cut with "...".
func CleanTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if len(title) >= 2 && strings.HasPrefix(title, `"`) && strings.HasSuffix(title, `"`) {
		title = strings.TrimSpace(title[1 : len(title)-1])
	}

	words := strings.Fields(title)
	if len(words) == 0 {
		return "", ErrEmptyTitle
	}
	if len(words) > maxTitleWords {
		title = strings.Join(words[:maxTitleWords], " ") + "..."
	}
	return title, nil
}
