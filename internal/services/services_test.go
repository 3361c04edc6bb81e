package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/Parley/internal/models"
	"github.com/markdave123-py/Parley/internal/testutil"
)

func TestConversationCreateDefaultsToSentinel(t *testing.T) {
	db := testutil.NewMemDB()
	svc := NewConversationService(db, zap.NewNop())

	conv, err := svc.Create(context.Background(), "u1", "   ")
	require.NoError(t, err)
	assert.Equal(t, models.SentinelTitle, conv.Title)
	assert.NotEmpty(t, conv.ID)
	assert.False(t, conv.CreatedAt.IsZero())

	named, err := svc.Create(context.Background(), "u1", "Trip planning")
	require.NoError(t, err)
	assert.Equal(t, "Trip planning", named.Title)
}

func TestConversationGetEnforcesOwnership(t *testing.T) {
	db := testutil.NewMemDB()
	svc := NewConversationService(db, zap.NewNop())
	ctx := context.Background()

	conv, err := svc.Create(ctx, "owner", "")
	require.NoError(t, err)

	got, err := svc.Get(ctx, conv.ID, "owner")
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = svc.Get(ctx, conv.ID, "intruder")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = svc.Get(ctx, "not-a-uuid", "owner")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConversationStorageFailureIsGeneric(t *testing.T) {
	db := testutil.NewMemDB()
	db.Fail["ListConversationsByUser"] = errors.New("connection refused")
	svc := NewConversationService(db, zap.NewNop())

	_, err := svc.ListForUser(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.NotContains(t, err.Error(), "connection refused")
}

func TestConversationUpdateTitleMovesToTop(t *testing.T) {
	db := testutil.NewMemDB()
	svc := NewConversationService(db, zap.NewNop())
	ctx := context.Background()

	first, err := svc.Create(ctx, "u1", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "u1", "")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateTitle(ctx, first.ID, "Renamed"))

	convs, err := svc.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, "Renamed", convs[0].Title)

	assert.ErrorIs(t, svc.UpdateTitle(ctx, uuid.NewString(), "x"), ErrOperationFailed)
}

func TestConversationDelete(t *testing.T) {
	db := testutil.NewMemDB()
	convs := NewConversationService(db, zap.NewNop())
	msgs := NewMessageService(db, zap.NewNop())
	ctx := context.Background()

	conv, err := convs.Create(ctx, "u1", "")
	require.NoError(t, err)
	require.NoError(t, msgs.Create(ctx, &models.Message{ConversationID: conv.ID, Content: "hi", Role: models.RoleUser}))

	assert.ErrorIs(t, convs.Delete(ctx, conv.ID, "u2"), ErrNotFound)
	assert.ErrorIs(t, convs.Delete(ctx, "garbage", "u1"), ErrNotFound)
	require.NoError(t, convs.Delete(ctx, conv.ID, "u1"))
	assert.ErrorIs(t, convs.Delete(ctx, conv.ID, "u1"), ErrNotFound)
	assert.Empty(t, db.Messages())
}

func TestMessageCreateAssignsIDAndTimestamp(t *testing.T) {
	db := testutil.NewMemDB()
	convs := NewConversationService(db, zap.NewNop())
	svc := NewMessageService(db, zap.NewNop())
	ctx := context.Background()

	conv, err := convs.Create(ctx, "u1", "")
	require.NoError(t, err)

	msg := &models.Message{ConversationID: conv.ID, Content: "hello", Role: models.RoleUser}
	require.NoError(t, svc.Create(ctx, msg))
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	fixed := &models.Message{ID: "assistant-1", ConversationID: conv.ID, Content: "hey", Role: models.RoleAssistant}
	require.NoError(t, svc.Create(ctx, fixed))
	assert.Equal(t, "assistant-1", fixed.ID)

	list, err := svc.ListForConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, msg.ID, list[0].ID)
	assert.Equal(t, "assistant-1", list[1].ID)
}

func TestMessageCreateRejectsBadPayload(t *testing.T) {
	svc := NewMessageService(testutil.NewMemDB(), zap.NewNop())

	assert.Error(t, svc.Create(context.Background(), nil))
	assert.Error(t, svc.Create(context.Background(), &models.Message{ConversationID: "c", Role: "system"}))
}

func TestUserCreateRejectsDuplicateEmail(t *testing.T) {
	db := testutil.NewMemDB()
	svc := NewUserService(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, &models.User{ID: "u1", Email: "a@b.co", PasswordHash: "h"}))
	err := svc.Create(ctx, &models.User{ID: "u2", Email: "a@b.co", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrUserExists)

	u, err := svc.GetByEmail(ctx, "a@b.co")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	missing, err := svc.GetByID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
