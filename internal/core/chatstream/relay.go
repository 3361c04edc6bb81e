// Package chatstream runs one chat turn and relays it to the client as a
// sequence of stream events.
package chatstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/Parley/internal/core"
	"github.com/markdave123-py/Parley/internal/metrics"
	"github.com/markdave123-py/Parley/internal/models"
)

// User-facing error texts carried by error events.
const (
	MsgInvalidInput         = "Invalid input data"
	MsgConversationNotFound = "Conversation not found"
	MsgInternalError        = "Internal server error"
	FallbackReply           = "I'm sorry, I couldn't generate a response at this time. Please try again."
)

const (
	fallbackTitleRunes    = 50
	fallbackTitleEllipsis = "..."
)

type ConversationStore interface {
	Create(ctx context.Context, userID, title string) (*models.Conversation, error)
	Get(ctx context.Context, id, userID string) (*models.Conversation, error)
	UpdateTitle(ctx context.Context, id, title string) error
}

type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	ListForConversation(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Emitter writes one event to the client. Send must not return before the
// event has been handed to the transport.
type Emitter interface {
	Send(eventType models.StreamEventType, payload any) error
}

// Request is the body of a chat turn.
type Request struct {
	Content        string `json:"content" validate:"required,min=1,max=4000"`
	ConversationID string `json:"conversationId,omitempty"`
}

type Relay struct {
	conversations ConversationStore
	messages      MessageStore
	generator     core.Generator
	metrics       *metrics.Exporter
	validate      *validator.Validate
	log           *zap.Logger
}

// NewRelay builds a relay. exporter may be nil.
func NewRelay(conversations ConversationStore, messages MessageStore, generator core.Generator, exporter *metrics.Exporter, log *zap.Logger) *Relay {
	return &Relay{
		conversations: conversations,
		messages:      messages,
		generator:     generator,
		metrics:       exporter,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           log,
	}
}

// turn is the working state of one request.
type turn struct {
	userID              string
	conversation        *models.Conversation
	history             []models.HistoryEntry
	reply               strings.Builder
	assistantID         string
	isNewConversation   bool
	conversationCreated bool
	hadSentinelTitle    bool
}

// Run executes one chat turn and emits its events. Store and provider calls
// run detached from ctx cancellation: a client that goes away stops receiving
// events but the turn still completes and persists.
func (r *Relay) Run(ctx context.Context, userID string, body io.Reader, emit Emitter) {
	started := time.Now()
	ctx = context.WithoutCancel(ctx)
	out := &guardedEmitter{inner: emit, log: r.log}
	t := &turn{userID: userID}

	outcome, err := r.runSafely(ctx, t, body, out)
	if err != nil {
		r.log.Error("chat turn failed",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.Bool("is_new_conversation", t.isNewConversation),
			zap.Bool("conversation_created", t.conversationCreated),
		)
		out.send(models.EventError, models.ErrorEvent{Content: MsgInternalError})
		outcome = metrics.OutcomeInternalError
	}
	r.metrics.RecordTurn(outcome, time.Since(started))
}

func (r *Relay) runSafely(ctx context.Context, t *turn, body io.Reader, out *guardedEmitter) (outcome string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in chat turn: %v", p)
		}
	}()
	return r.run(ctx, t, body, out)
}

func (r *Relay) run(ctx context.Context, t *turn, body io.Reader, out *guardedEmitter) (string, error) {
	req, ok := r.decode(body)
	if !ok {
		out.send(models.EventError, models.ErrorEvent{Content: MsgInvalidInput})
		return metrics.OutcomeInvalid, nil
	}

	found, err := r.resolveConversation(ctx, t, req.ConversationID)
	if err != nil {
		return "", err
	}
	if !found {
		out.send(models.EventError, models.ErrorEvent{Content: MsgConversationNotFound})
		return metrics.OutcomeNotFound, nil
	}
	r.log.Debug("chat turn started",
		zap.String("conversation_id", t.conversation.ID),
		zap.Bool("is_new_conversation", t.isNewConversation),
	)

	userMsg := &models.Message{
		ConversationID: t.conversation.ID,
		Content:        req.Content,
		Role:           models.RoleUser,
	}
	if err := r.messages.Create(ctx, userMsg); err != nil {
		return "", fmt.Errorf("persist user message: %w", err)
	}
	out.send(models.EventInitial, models.InitialEvent{
		ConversationID: t.conversation.ID,
		UserMessage:    userMsg,
	})

	t.assistantID = uuid.NewString()
	if err := r.relayReply(ctx, t, req.Content, out); err != nil {
		r.log.Warn("provider stream failed",
			zap.String("conversation_id", t.conversation.ID),
			zap.Error(err),
		)
		out.send(models.EventError, models.ErrorEvent{Content: FallbackReply})
		fallback := &models.Message{
			ID:             t.assistantID,
			ConversationID: t.conversation.ID,
			Content:        FallbackReply,
			Role:           models.RoleAssistant,
		}
		if err := r.messages.Create(ctx, fallback); err != nil {
			r.log.Error("persist fallback reply failed",
				zap.String("conversation_id", t.conversation.ID),
				zap.Error(err),
			)
		}
		return metrics.OutcomeProviderError, nil
	}

	assistantMsg := &models.Message{
		ID:             t.assistantID,
		ConversationID: t.conversation.ID,
		Content:        t.reply.String(),
		Role:           models.RoleAssistant,
	}
	if err := r.messages.Create(ctx, assistantMsg); err != nil {
		return "", fmt.Errorf("persist assistant message: %w", err)
	}
	out.send(models.EventDone, models.DoneEvent{
		ConversationID:   t.conversation.ID,
		AssistantMessage: assistantMsg,
	})

	if t.hadSentinelTitle {
		title, err := r.deriveTitle(ctx, t.conversation.ID, req.Content)
		if err != nil {
			// done has already been sent, so no error event may follow. The
			// title stays the sentinel and the next turn derives it again.
			r.log.Error("persist conversation title failed",
				zap.String("conversation_id", t.conversation.ID),
				zap.Error(err),
			)
			return metrics.OutcomeInternalError, nil
		}
		out.send(models.EventTitleUpdate, models.TitleUpdateEvent{
			ConversationID: t.conversation.ID,
			NewTitle:       title,
		})
	}
	return metrics.OutcomeCompleted, nil
}

func (r *Relay) decode(body io.Reader) (Request, bool) {
	var req Request
	if body == nil {
		return req, false
	}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return req, false
	}
	if err := r.validate.Struct(req); err != nil {
		return req, false
	}
	return req, true
}

// resolveConversation loads an owned conversation and its history, or creates
// a new one. It reports false when the requested conversation is not visible
// to the user; nothing has been written in that case.
func (r *Relay) resolveConversation(ctx context.Context, t *turn, conversationID string) (bool, error) {
	if conversationID != "" {
		conv, err := r.conversations.Get(ctx, conversationID, t.userID)
		if err != nil {
			return false, fmt.Errorf("load conversation: %w", err)
		}
		if conv == nil {
			return false, nil
		}
		msgs, err := r.messages.ListForConversation(ctx, conv.ID)
		if err != nil {
			return false, fmt.Errorf("load history: %w", err)
		}
		t.conversation = conv
		t.history = models.History(msgs)
		t.hadSentinelTitle = conv.HasSentinelTitle()
		return true, nil
	}

	t.isNewConversation = true
	conv, err := r.conversations.Create(ctx, t.userID, models.SentinelTitle)
	if err != nil {
		return false, fmt.Errorf("create conversation: %w", err)
	}
	t.conversationCreated = true
	t.conversation = conv
	t.hadSentinelTitle = conv.HasSentinelTitle()
	return true, nil
}

// relayReply pulls fragments from the provider and emits each one before
// pulling the next. A panic inside the provider counts as a stream failure.
func (r *Relay) relayReply(ctx context.Context, t *turn, prompt string, out *guardedEmitter) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("provider stream panic: %v", p)
		}
	}()
	for chunk, err := range r.generator.StreamReply(ctx, t.history, prompt) {
		if err != nil {
			return err
		}
		t.reply.WriteString(chunk)
		out.send(models.EventMessage, models.MessageEvent{
			ID:             t.assistantID,
			Chunk:          chunk,
			ConversationID: t.conversation.ID,
		})
		r.metrics.RecordFragment()
	}
	return nil
}

// deriveTitle asks the provider for a title and persists it. Any failure on
// that path falls back to a truncated copy of the user content.
func (r *Relay) deriveTitle(ctx context.Context, conversationID, content string) (string, error) {
	title, err := r.generateTitle(ctx, content)
	if err == nil && strings.TrimSpace(title) == "" {
		err = errors.New("empty title")
	}
	if err == nil {
		err = r.conversations.UpdateTitle(ctx, conversationID, title)
		if err == nil {
			r.metrics.RecordTitle(metrics.TitleSourceModel)
			return title, nil
		}
	}
	r.log.Warn("title generation failed, using fallback",
		zap.String("conversation_id", conversationID),
		zap.Error(err),
	)

	title = FallbackTitle(content)
	if err := r.conversations.UpdateTitle(ctx, conversationID, title); err != nil {
		return "", fmt.Errorf("persist fallback title: %w", err)
	}
	r.metrics.RecordTitle(metrics.TitleSourceFallback)
	return title, nil
}

func (r *Relay) generateTitle(ctx context.Context, content string) (title string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("title generation panic: %v", p)
		}
	}()
	return r.generator.GenerateTitle(ctx, content)
}

// FallbackTitle truncates content to its first 50 characters, marking the cut
// with an ellipsis.
func FallbackTitle(content string) string {
	if utf8.RuneCountInString(content) <= fallbackTitleRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:fallbackTitleRunes]) + fallbackTitleEllipsis
}

// guardedEmitter stops writing after the first transport failure. The turn
// keeps running so its writes still land.
type guardedEmitter struct {
	inner Emitter
	log   *zap.Logger
	dead  bool
}

func (g *guardedEmitter) send(eventType models.StreamEventType, payload any) {
	if g.dead {
		return
	}
	if err := g.inner.Send(eventType, payload); err != nil {
		g.dead = true
		g.log.Info("client stream closed, continuing turn without emitting",
			zap.String("event", string(eventType)),
			zap.Error(err),
		)
	}
}
