package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/Parley/internal/core"
	"github.com/markdave123-py/Parley/internal/models"
)

type ConversationService struct {
	db  core.DbClient
	log *zap.Logger
}

func NewConversationService(db core.DbClient, log *zap.Logger) *ConversationService {
	return &ConversationService{db: db, log: log}
}

// Create stores a new conversation for userID. A blank title becomes the sentinel.
func (s *ConversationService) Create(ctx context.Context, userID, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = models.SentinelTitle
	}
	conv := &models.Conversation{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  title,
	}
	if err := s.db.CreateConversation(ctx, conv); err != nil {
		return nil, failed(s.log, "create conversation", err)
	}
	return conv, nil
}

// Get returns the conversation only when userID owns it; otherwise (nil, nil).
func (s *ConversationService) Get(ctx context.Context, id, userID string) (*models.Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	conv, err := s.db.GetConversationForUser(ctx, id, userID)
	if err != nil {
		return nil, failed(s.log, "get conversation", err)
	}
	return conv, nil
}

// ListForUser returns the user's conversations, most recently updated first.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	convs, err := s.db.ListConversationsByUser(ctx, userID)
	if err != nil {
		return nil, failed(s.log, "list conversations", err)
	}
	return convs, nil
}

// UpdateTitle sets the title and refreshes updated_at.
func (s *ConversationService) UpdateTitle(ctx context.Context, id, title string) error {
	if err := s.db.UpdateConversationTitle(ctx, id, title); err != nil {
		return failed(s.log, "update conversation title", err)
	}
	return nil
}

// Delete removes an owned conversation and, by cascade, its messages.
func (s *ConversationService) Delete(ctx context.Context, id, userID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	deleted, err := s.db.DeleteConversation(ctx, id, userID)
	if err != nil {
		return failed(s.log, "delete conversation", err)
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}
