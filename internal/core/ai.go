package core

import (
	"context"
	"iter"

	"github.com/markdave123-py/Parley/internal/models"
)

// Generator is the generative-text provider behind a chat turn.
type Generator interface {
	// StreamReply yields reply fragments in order. The sequence stops after the
	// first non-nil error. Fragments are pulled, so a slow consumer slows the
	// provider read instead of buffering.
	StreamReply(ctx context.Context, history []models.HistoryEntry, prompt string) iter.Seq2[string, error]

	// GenerateTitle derives a short conversation title from a user message.
	GenerateTitle(ctx context.Context, firstMessage string) (string, error)
}
