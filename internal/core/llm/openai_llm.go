package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/markdave123-py/Parley/internal/core"
	"github.com/markdave123-py/Parley/internal/models"
)

const titleMaxTokens = 32

// OpenAIGenerator talks to any OpenAI-compatible chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = newHTTPClient()
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAIGenerator) StreamReply(ctx context.Context, history []models.HistoryEntry, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req := openai.ChatCompletionRequest{
			Model:    o.model,
			Messages: convertMessages(history, prompt),
			Stream:   true,
		}

		stream, err := o.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", fmt.Errorf("create stream failed: %w", err))
			return
		}
		defer func() { _ = stream.Close() }()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("stream recv failed: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

func (o *OpenAIGenerator) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: titleMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: titlePrompt(firstMessage)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("title request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyTitle
	}
	return CleanTitle(resp.Choices[0].Message.Content)
}

func convertMessages(history []models.HistoryEntry, prompt string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, h := range history {
		role := openai.ChatMessageRoleUser
		if h.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}
	return append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}

// newHTTPClient bounds connection setup only; a reply stream may run as long as
// the provider keeps sending.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

var _ core.Generator = (*OpenAIGenerator)(nil)
