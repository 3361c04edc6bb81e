// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/Parley/internal/core"
	"github.com/markdave123-py/Parley/internal/models"
)

// MemDB is an in-memory core.DbClient. Timestamps come from a fake clock that
// advances one millisecond per write so ordering is deterministic.
type MemDB struct {
	mu            sync.Mutex
	clock         time.Time
	users         map[string]models.User
	conversations map[string]models.Conversation
	messages      []models.Message

	// Fail maps a method name (e.g. "CreateMessage") to the error it returns.
	Fail map[string]error
}

func NewMemDB() *MemDB {
	return &MemDB{
		clock:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		users:         map[string]models.User{},
		conversations: map[string]models.Conversation{},
		Fail:          map[string]error{},
	}
}

func (m *MemDB) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *MemDB) failure(method string) error {
	return m.Fail[method]
}

func (m *MemDB) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateUser"); err != nil {
		return err
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: users_email_key", core.ErrDuplicate)
		}
	}
	now := m.tick()
	user.CreatedAt, user.UpdatedAt = now, now
	m.users[user.ID] = *user
	return nil
}

func (m *MemDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetUserByEmail"); err != nil {
		return nil, err
	}
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemDB) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetUserByID"); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemDB) CreateConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateConversation"); err != nil {
		return err
	}
	now := m.tick()
	conv.CreatedAt, conv.UpdatedAt = now, now
	m.conversations[conv.ID] = *conv
	return nil
}

func (m *MemDB) GetConversationForUser(_ context.Context, id, userID string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetConversationForUser"); err != nil {
		return nil, err
	}
	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	return &c, nil
}

func (m *MemDB) ListConversationsByUser(_ context.Context, userID string) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ListConversationsByUser"); err != nil {
		return nil, err
	}
	out := []models.Conversation{}
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemDB) UpdateConversationTitle(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("UpdateConversationTitle"); err != nil {
		return err
	}
	c, ok := m.conversations[id]
	if !ok {
		return fmt.Errorf("conversation not found: %s", id)
	}
	c.Title = title
	c.UpdatedAt = m.tick()
	m.conversations[id] = c
	return nil
}

func (m *MemDB) DeleteConversation(_ context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("DeleteConversation"); err != nil {
		return false, err
	}
	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return false, nil
	}
	delete(m.conversations, id)
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.ConversationID != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return true, nil
}

func (m *MemDB) CreateMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateMessage"); err != nil {
		return err
	}
	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return fmt.Errorf("foreign key violation: conversation %s", msg.ConversationID)
	}
	msg.CreatedAt = m.tick()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *MemDB) ListMessagesByConversation(_ context.Context, conversationID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ListMessagesByConversation"); err != nil {
		return nil, err
	}
	out := []models.Message{}
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemDB) Close() error { return nil }

// Conversations returns a snapshot of every stored conversation.
func (m *MemDB) Conversations() []models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, c)
	}
	return out
}

// Messages returns a snapshot of every stored message in insertion order.
func (m *MemDB) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message(nil), m.messages...)
}

var _ core.DbClient = (*MemDB)(nil)
