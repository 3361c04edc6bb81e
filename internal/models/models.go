package models

import (
	"time"
)

// SentinelTitle is the placeholder title a conversation carries until one is derived.
const SentinelTitle = "New Chat"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the stored roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"-"`
}

// Conversation is a thread of messages owned by a single user.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// IsTitleGenerating is client-side state only; the server never sets it.
	IsTitleGenerating bool `db:"-" json:"isTitleGenerating,omitempty"`
}

// HasSentinelTitle reports whether the conversation still waits for a derived title.
func (c *Conversation) HasSentinelTitle() bool {
	return c.Title == SentinelTitle
}

// Message is one finished user or assistant message. Rows are never updated.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Content        string    `db:"content" json:"content"`
	Role           Role      `db:"role" json:"role"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// HistoryEntry is the provider-facing projection of a stored message.
type HistoryEntry struct {
	Role    Role
	Content string
}

// History projects messages to role/content pairs, keeping their order.
func History(messages []Message) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		out = append(out, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return out
}
