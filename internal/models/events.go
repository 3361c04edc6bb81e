package models

// StreamEventType names the events a chat turn emits on its event stream.
type StreamEventType string

const (
	EventInitial     StreamEventType = "initial"
	EventMessage     StreamEventType = "message"
	EventDone        StreamEventType = "done"
	EventError       StreamEventType = "error"
	EventTitleUpdate StreamEventType = "titleUpdate"
)

// Valid reports whether t is part of the chat stream protocol.
func (t StreamEventType) Valid() bool {
	switch t {
	case EventInitial, EventMessage, EventDone, EventError, EventTitleUpdate:
		return true
	}
	return false
}

// InitialEvent carries the resolved conversation and the persisted user message.
type InitialEvent struct {
	ConversationID string   `json:"conversationId"`
	UserMessage    *Message `json:"userMessage"`
}

// MessageEvent carries one fragment of the assistant reply.
type MessageEvent struct {
	ID             string `json:"id"`
	Chunk          string `json:"chunk"`
	ConversationID string `json:"conversationId"`
}

// DoneEvent closes a successful generation.
type DoneEvent struct {
	ConversationID   string   `json:"conversationId"`
	AssistantMessage *Message `json:"assistantMessage,omitempty"`
}

// ErrorEvent carries user-facing error text.
type ErrorEvent struct {
	Content string `json:"content"`
}

// TitleUpdateEvent announces a derived conversation title.
type TitleUpdateEvent struct {
	ConversationID string `json:"conversationId"`
	NewTitle       string `json:"newTitle"`
}
