package chatclient

import (
	"context"
	"sync"

	"github.com/markdave123-py/Parley/internal/models"
)

// ConversationsKey is the cache key of the conversation list.
const ConversationsKey = "conversations"

// MessagesKey is the cache key of one conversation's transcript.
func MessagesKey(conversationID string) string {
	return "messages/" + conversationID
}

// Fetcher loads authoritative state from the server.
type Fetcher interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Cache holds the last fetched server state. Entries marked stale are
// refetched on the next read; local edits never reach the server.
type Cache struct {
	fetcher Fetcher

	mu            sync.Mutex
	conversations []models.Conversation
	messages      map[string][]models.Message
	loaded        map[string]bool
	stale         map[string]bool
}

func NewCache(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher:  fetcher,
		messages: map[string][]models.Message{},
		loaded:   map[string]bool{},
		stale:    map[string]bool{},
	}
}

// Conversations returns the cached list, fetching it first when missing or stale.
func (c *Cache) Conversations(ctx context.Context) ([]models.Conversation, error) {
	c.mu.Lock()
	if c.loaded[ConversationsKey] && !c.stale[ConversationsKey] {
		out := append([]models.Conversation(nil), c.conversations...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	convs, err := c.fetcher.ListConversations(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations = convs
	c.loaded[ConversationsKey] = true
	c.stale[ConversationsKey] = false
	return append([]models.Conversation(nil), convs...), nil
}

// Messages returns a conversation's cached transcript, fetching it first when
// missing or stale.
func (c *Cache) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	key := MessagesKey(conversationID)
	c.mu.Lock()
	if c.loaded[key] && !c.stale[key] {
		out := append([]models.Message(nil), c.messages[conversationID]...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	msgs, err := c.fetcher.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[conversationID] = msgs
	c.loaded[key] = true
	c.stale[key] = false
	return append([]models.Message(nil), msgs...), nil
}

// Conversation returns one cached conversation without fetching.
func (c *Cache) Conversation(id string) (models.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conv := range c.conversations {
		if conv.ID == id {
			return conv, true
		}
	}
	return models.Conversation{}, false
}

// InsertConversation puts conv at the top of the cached list unless it is
// already present.
func (c *Cache) InsertConversation(conv models.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.conversations {
		if existing.ID == conv.ID {
			return
		}
	}
	c.conversations = append([]models.Conversation{conv}, c.conversations...)
}

// UpdateTitle sets a cached conversation's title and clears its generating flag.
func (c *Cache) UpdateTitle(id, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.conversations {
		if c.conversations[i].ID == id {
			c.conversations[i].Title = title
			c.conversations[i].IsTitleGenerating = false
			return
		}
	}
}

// Invalidate marks key stale so the next read refetches it.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale[key] = true
}

func (c *Cache) IsStale(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale[key]
}
