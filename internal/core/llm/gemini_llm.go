package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/markdave123-py/Parley/internal/core"
	"github.com/markdave123-py/Parley/internal/models"
)

const geminiModelRole = "model"

type GeminiGenerator struct {
	client     *genai.Client
	modelName  string
	titleModel string
}

func NewGeminiGenerator(ctx context.Context, apiKey, modelName, titleModel string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	if titleModel == "" {
		titleModel = modelName
	}
	return &GeminiGenerator{client: cl, modelName: modelName, titleModel: titleModel}, nil
}

func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// StreamReply opens a chat session seeded with history and relays each
// streamed candidate's text.
func (g *GeminiGenerator) StreamReply(ctx context.Context, history []models.HistoryEntry, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		cs := g.client.GenerativeModel(g.modelName).StartChat()
		cs.History = toGeminiHistory(history)

		it := cs.SendMessageStream(ctx, genai.Text(prompt))
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func (g *GeminiGenerator) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	m := g.client.GenerativeModel(g.titleModel)
	resp, err := m.GenerateContent(ctx, genai.Text(titlePrompt(firstMessage)))
	if err != nil {
		return "", fmt.Errorf("gemini title: %w", err)
	}
	return CleanTitle(responseText(resp))
}

// toGeminiHistory maps stored roles onto Gemini's user/model roles and drops
// empty turns, which the API rejects.
func toGeminiHistory(history []models.HistoryEntry) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, h := range history {
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		role := string(models.RoleUser)
		if h.Role == models.RoleAssistant {
			role = geminiModelRole
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(h.Content)},
		})
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

var _ core.Generator = (*GeminiGenerator)(nil)
