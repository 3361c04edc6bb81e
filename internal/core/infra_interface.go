package core

import (
	"context"
	"errors"

	"github.com/markdave123-py/Parley/internal/models"
)

// ErrDuplicate is returned when an insert collides with a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
//
// Lookups return (nil, nil) when no row matches.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversationForUser(ctx context.Context, id, userID string) (*models.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID string) ([]models.Conversation, error)
	UpdateConversationTitle(ctx context.Context, id, title string) error
	DeleteConversation(ctx context.Context, id, userID string) (bool, error)

	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessagesByConversation(ctx context.Context, conversationID string) ([]models.Message, error)

	Close() error
}
