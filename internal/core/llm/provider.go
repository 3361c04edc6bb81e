package llm

import (
	"context"
	"fmt"

	"github.com/markdave123-py/Parley/internal/config"
	"github.com/markdave123-py/Parley/internal/core"
)

// New builds the generator selected by LLM_PROVIDER.
func New(ctx context.Context, cfg *config.Config) (core.Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGeminiGenerator(ctx, cfg.AIAPIKey, cfg.GenModel, cfg.TitleModel)
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
