// Package chatclient is the terminal-side counterpart of the chat relay: an
// HTTP client for the API, the stream consumer that reconciles a local
// transcript against server events, and the local caches it keeps.
package chatclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/markdave123-py/Parley/internal/models"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

type AuthResult struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

// Client talks to the Parley API. It sets no overall request timeout so a
// long reply stream is never cut off by the client.
type Client struct {
	http *resty.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx).SetError(&errorBody{})
	if token := c.Token(); token != "" {
		req.SetAuthToken(token)
	}
	return req
}

func asAPIError(resp *resty.Response) error {
	apiErr := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		apiErr.Message = body.Error
	}
	return apiErr
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*AuthResult, error) {
	var out AuthResult
	resp, err := c.request(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, asAPIError(resp)
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Register creates an account and keeps the issued token.
func (c *Client) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "/api/auth/register", email, password)
}

// Login exchanges credentials for a token and keeps it.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "/api/auth/login", email, password)
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	resp, err := c.request(ctx).SetResult(&out).Get("/api/auth/me")
	if err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	if resp.IsError() {
		return nil, asAPIError(resp)
	}
	return &out.User, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	resp, err := c.request(ctx).SetResult(&out).Get("/api/chat/conversations")
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if resp.IsError() {
		return nil, asAPIError(resp)
	}
	return out.Conversations, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	resp, err := c.request(ctx).
		SetResult(&out).
		SetPathParam("conversationId", conversationID).
		Get("/api/chat/conversations/{conversationId}/messages")
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if resp.IsError() {
		return nil, asAPIError(resp)
	}
	return out.Messages, nil
}

func (c *Client) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	var out models.Conversation
	resp, err := c.request(ctx).
		SetBody(map[string]string{"title": title}).
		SetResult(&out).
		Post("/api/chat/conversations")
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if resp.IsError() {
		return nil, asAPIError(resp)
	}
	return &out, nil
}

func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	resp, err := c.request(ctx).
		SetPathParam("conversationId", conversationID).
		Delete("/api/chat/conversations/{conversationId}")
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if resp.IsError() {
		return asAPIError(resp)
	}
	return nil
}

type sendRequest struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversationId,omitempty"`
}

// OpenStream starts a chat turn and returns the raw event stream. The caller
// closes it. Canceling ctx closes the connection.
func (c *Client) OpenStream(ctx context.Context, content, conversationID string) (io.ReadCloser, error) {
	resp, err := c.request(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(sendRequest{Content: content, ConversationID: conversationID}).
		SetDoNotParseResponse(true).
		Post("/api/chat/messages")
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	body := resp.RawBody()
	if resp.IsError() {
		defer body.Close()
		msg, _ := io.ReadAll(io.LimitReader(body, 4096))
		return nil, &APIError{Status: resp.StatusCode(), Message: strings.TrimSpace(string(msg))}
	}
	return body, nil
}
