package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/markdave123-py/Parley/internal/core"
	"github.com/markdave123-py/Parley/internal/models"
)

type UserService struct {
	db  core.DbClient
	log *zap.Logger
}

func NewUserService(db core.DbClient, log *zap.Logger) *UserService {
	return &UserService{db: db, log: log}
}

func (s *UserService) Create(ctx context.Context, u *models.User) error {
	if u == nil || u.Email == "" || u.PasswordHash == "" {
		return errors.New("invalid user payload")
	}
	existing, err := s.db.GetUserByEmail(ctx, u.Email)
	if err != nil {
		return failed(s.log, "lookup user", err)
	}
	if existing != nil {
		return ErrUserExists
	}
	if err := s.db.CreateUser(ctx, u); err != nil {
		if errors.Is(err, core.ErrDuplicate) {
			return ErrUserExists
		}
		return failed(s.log, "create user", err)
	}
	return nil
}

// GetByEmail returns (nil, nil) when no user has that email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, failed(s.log, "get user by email", err)
	}
	return u, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		return nil, failed(s.log, "get user", err)
	}
	return u, nil
}
