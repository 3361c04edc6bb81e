package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/markdave123-py/Parley/internal/api/middlewares"
	"github.com/markdave123-py/Parley/internal/core/chatstream"
	"github.com/markdave123-py/Parley/internal/core/sse"
	"github.com/markdave123-py/Parley/internal/metrics"
	"github.com/markdave123-py/Parley/internal/models"
	"github.com/markdave123-py/Parley/internal/services"
)

type ChatHandler struct {
	relay         *chatstream.Relay
	conversations *services.ConversationService
	messages      *services.MessageService
	metrics       *metrics.Exporter
	log           *zap.Logger
}

func NewChatHandler(relay *chatstream.Relay, conversations *services.ConversationService, messages *services.MessageService, exporter *metrics.Exporter, log *zap.Logger) *ChatHandler {
	return &ChatHandler{
		relay:         relay,
		conversations: conversations,
		messages:      messages,
		metrics:       exporter,
		log:           log,
	}
}

// SendMessage runs one chat turn and streams its events. The status is always
// 200 once headers are out; failures travel as error events.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	defer h.metrics.StreamOpened()()

	emitter := &sseEmitter{ctx: r.Context(), enc: sse.NewEncoder(w), flusher: flusher}
	h.relay.Run(r.Context(), userID, r.Body, emitter)
}

// sseEmitter frames events onto the response and flushes after each one.
type sseEmitter struct {
	ctx     context.Context
	enc     *sse.Encoder
	flusher http.Flusher
}

func (e *sseEmitter) Send(eventType models.StreamEventType, payload any) error {
	if err := e.ctx.Err(); err != nil {
		return err
	}
	if !eventType.Valid() {
		return fmt.Errorf("unknown stream event %q", eventType)
	}
	if err := e.enc.Encode(string(eventType), payload); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	convs, err := h.conversations.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Conversation{"conversations": convs})
}

func (h *ChatHandler) GetConversationMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	conversationID := chi.URLParam(r, "conversationId")

	conv, err := h.conversations.Get(r.Context(), conversationID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}

	msgs, err := h.messages.ListForConversation(r.Context(), conv.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Message{"messages": msgs})
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid input data")
		return
	}

	conv, err := h.conversations.Create(r.Context(), userID, req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	err := h.conversations.Delete(r.Context(), chi.URLParam(r, "conversationId"), userID)
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "Conversation not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
