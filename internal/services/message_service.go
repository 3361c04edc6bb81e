package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/Parley/internal/core"
	"github.com/markdave123-py/Parley/internal/models"
)

type MessageService struct {
	db  core.DbClient
	log *zap.Logger
}

func NewMessageService(db core.DbClient, log *zap.Logger) *MessageService {
	return &MessageService{db: db, log: log}
}

// Create persists a finished message. An empty ID is filled in; CreatedAt is
// assigned by storage.
func (s *MessageService) Create(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ConversationID == "" || !msg.Role.Valid() {
		return fmt.Errorf("invalid message payload: %w", ErrOperationFailed)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if err := s.db.CreateMessage(ctx, msg); err != nil {
		return failed(s.log, "create message", err)
	}
	return nil
}

// ListForConversation returns the full transcript in creation order.
func (s *MessageService) ListForConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs, err := s.db.ListMessagesByConversation(ctx, conversationID)
	if err != nil {
		return nil, failed(s.log, "list messages", err)
	}
	return msgs, nil
}
