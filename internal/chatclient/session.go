package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/Parley/internal/core/sse"
	"github.com/markdave123-py/Parley/internal/models"
)

// GenericErrorText replaces the reply when the stream itself fails.
const GenericErrorText = "I'm sorry, an unexpected error occurred. Please try again."

// ErrStreamIncomplete is reported when the stream ends before done or error.
var ErrStreamIncomplete = errors.New("stream ended before the turn completed")

// Streamer opens a chat turn on the server.
type Streamer interface {
	OpenStream(ctx context.Context, content, conversationID string) (io.ReadCloser, error)
}

// Snapshot is a copy of the session's visible state.
type Snapshot struct {
	ConversationID string
	Messages       []models.Message
	Composing      bool
}

type Option func(*Session)

// WithNavigator registers fn to run when a turn is assigned a new conversation id.
func WithNavigator(fn func(conversationID string)) Option {
	return func(s *Session) { s.navigate = fn }
}

// WithOnChange registers fn to run after every state change.
func WithOnChange(fn func(Snapshot)) Option {
	return func(s *Session) { s.onChange = fn }
}

// WithTitleUpdate registers fn to run when a conversation title arrives.
func WithTitleUpdate(fn func(conversationID, title string)) Option {
	return func(s *Session) { s.onTitle = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// Session consumes chat turns for one conversation view. At most one turn
// streams at a time; starting a turn cancels the one in flight, and a
// canceled turn applies no further state.
type Session struct {
	streamer Streamer
	cache    *Cache
	navigate func(string)
	onChange func(Snapshot)
	onTitle  func(string, string)
	log      *zap.Logger

	mu             sync.Mutex
	conversationID string
	messages       []models.Message
	composing      bool
	cancel         context.CancelFunc
	generation     uint64
}

func NewSession(streamer Streamer, cache *Cache, opts ...Option) *Session {
	s := &Session{streamer: streamer, cache: cache, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open switches the view to conversationID with its loaded transcript. An
// empty id starts a new chat.
func (s *Session) Open(conversationID string, messages []models.Message) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.conversationID = conversationID
	s.messages = append([]models.Message(nil), messages...)
	s.composing = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emitChange(snap)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ConversationID: s.conversationID,
		Messages:       append([]models.Message(nil), s.messages...),
		Composing:      s.composing,
	}
}

// turnState tracks one Send call.
type turnState struct {
	generation     uint64
	provisionalID  string
	conversationID string
	terminal       bool
}

// Send runs one turn to completion. Stream failures are folded into the
// transcript as an assistant message and also returned. A turn superseded by
// a later Send or Open returns context.Canceled and changes nothing.
func (s *Session) Send(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	turnCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	t := &turnState{
		generation:     s.generation,
		provisionalID:  uuid.NewString(),
		conversationID: s.conversationID,
	}
	s.messages = append(s.messages, models.Message{
		ID:             t.provisionalID,
		ConversationID: s.conversationID,
		Content:        content,
		Role:           models.RoleUser,
		CreatedAt:      time.Now(),
	})
	s.composing = true
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emitChange(snap)

	defer cancel()
	defer s.finish(t)

	body, err := s.streamer.OpenStream(turnCtx, content, t.conversationID)
	if err != nil {
		return s.streamFailed(t, err)
	}
	defer body.Close()

	dec := sse.NewDecoder(body)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, sse.ErrMalformedData) {
			s.log.Warn("skipping malformed stream event", zap.String("event", ev.Type), zap.Error(err))
			continue
		}
		if err != nil {
			return s.streamFailed(t, err)
		}
		if !s.apply(t, ev) {
			return context.Canceled
		}
	}

	if !t.terminal {
		return s.streamFailed(t, ErrStreamIncomplete)
	}
	return nil
}

// streamFailed handles a transport failure like an error event carrying the
// generic text.
func (s *Session) streamFailed(t *turnState, cause error) error {
	payload, _ := json.Marshal(models.ErrorEvent{Content: GenericErrorText})
	if !s.apply(t, sse.Event{Type: string(models.EventError), Data: payload}) {
		return context.Canceled
	}
	return fmt.Errorf("chat stream: %w", cause)
}

// apply reconciles one event. It reports false when t has been superseded.
func (s *Session) apply(t *turnState, ev sse.Event) bool {
	var (
		navigateTo string
		titleID    string
		title      string
	)

	s.mu.Lock()
	if t.generation != s.generation {
		s.mu.Unlock()
		return false
	}

	switch models.StreamEventType(ev.Type) {
	case models.EventInitial:
		var p models.InitialEvent
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			break
		}
		if p.UserMessage != nil {
			s.replaceLocked(t.provisionalID, *p.UserMessage)
		}
		if t.conversationID == "" && p.ConversationID != "" {
			t.conversationID = p.ConversationID
			s.conversationID = p.ConversationID
			now := time.Now()
			s.cache.InsertConversation(models.Conversation{
				ID:                p.ConversationID,
				Title:             models.SentinelTitle,
				CreatedAt:         now,
				UpdatedAt:         now,
				IsTitleGenerating: true,
			})
			navigateTo = p.ConversationID
		}

	case models.EventMessage:
		var p models.MessageEvent
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			break
		}
		s.composing = false
		s.appendChunkLocked(p)

	case models.EventError:
		var p models.ErrorEvent
		_ = json.Unmarshal(ev.Data, &p)
		s.composing = false
		t.terminal = true
		s.messages = slices.DeleteFunc(s.messages, func(m models.Message) bool {
			return m.ID == t.provisionalID
		})
		s.messages = append(s.messages, models.Message{
			ID:             uuid.NewString(),
			ConversationID: t.conversationID,
			Content:        p.Content,
			Role:           models.RoleAssistant,
			CreatedAt:      time.Now(),
		})

	case models.EventDone:
		t.terminal = true

	case models.EventTitleUpdate:
		var p models.TitleUpdateEvent
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			break
		}
		s.cache.UpdateTitle(p.ConversationID, p.NewTitle)
		titleID, title = p.ConversationID, p.NewTitle

	default:
		s.log.Debug("ignoring unknown stream event", zap.String("event", ev.Type))
	}

	snap := s.snapshotLocked()
	s.mu.Unlock()

	if navigateTo != "" && s.navigate != nil {
		s.navigate(navigateTo)
	}
	if titleID != "" && s.onTitle != nil {
		s.onTitle(titleID, title)
	}
	s.emitChange(snap)
	return true
}

func (s *Session) replaceLocked(id string, msg models.Message) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i] = msg
			return
		}
	}
	s.messages = append(s.messages, msg)
}

func (s *Session) appendChunkLocked(p models.MessageEvent) {
	for i := range s.messages {
		if s.messages[i].ID == p.ID {
			s.messages[i].Content += p.Chunk
			return
		}
	}
	s.messages = append(s.messages, models.Message{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		Content:        p.Chunk,
		Role:           models.RoleAssistant,
		CreatedAt:      time.Now(),
	})
}

// finish marks server state stale and, if t is still current, clears the
// in-flight bookkeeping.
func (s *Session) finish(t *turnState) {
	s.cache.Invalidate(ConversationsKey)
	if t.conversationID != "" {
		s.cache.Invalidate(MessagesKey(t.conversationID))
	}

	s.mu.Lock()
	if t.generation != s.generation {
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	changed := s.composing
	s.composing = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if changed {
		s.emitChange(snap)
	}
}

func (s *Session) emitChange(snap Snapshot) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}
