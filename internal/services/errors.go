package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrOperationFailed is the single error stores surface for storage failures.
	ErrOperationFailed = errors.New("operation failed")
	ErrNotFound        = errors.New("not found")
	ErrUserExists      = errors.New("user already exists")
)

// failed logs the storage cause and returns the generic store error.
func failed(log *zap.Logger, op string, err error) error {
	log.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, ErrOperationFailed)
}
