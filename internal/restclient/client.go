// Package restclient is the HTTP consumer of the sync service API. The live
// transport carries deltas; everything authoritative (hydrates, writes, push
// registration, presence reports) goes through here.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ichat-sync/internal/models"
	"ichat-sync/internal/presence"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// APIError carries a non-2xx response through the error chain.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the sync service REST API with a bearer credential.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a Client for the given API base URL and bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func messagesPath(ref models.ConversationRef) string {
	if ref.IsGroup() {
		return "/groups/" + url.PathEscape(ref.GroupID) + "/messages"
	}
	return "/chats/" + url.PathEscape(ref.ChatID) + "/messages"
}

// Conversations fetches the conversation list.
func (c *Client) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Messages fetches the hydrate snapshot for a conversation. A limit of 0
// means the server default page size.
func (c *Client) Messages(ctx context.Context, ref models.ConversationRef, limit int) ([]*models.Message, error) {
	path := messagesPath(ref)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []*models.Message
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessageRequest is the create-message body.
type SendMessageRequest struct {
	Content  string             `json:"content"`
	Type     models.MessageType `json:"type"`
	Priority models.Priority    `json:"priority,omitempty"`
	Tags     []string           `json:"tags,omitempty"`
}

// SendMessage creates a message and returns the stored record. The caller
// applies the response through the reconciliation engine; the echo on the
// live transport then deduplicates against it by id.
func (c *Client) SendMessage(ctx context.Context, ref models.ConversationRef, req SendMessageRequest) (*models.Message, error) {
	var out models.Message
	if err := c.do(ctx, http.MethodPost, messagesPath(ref), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditMessage replaces a message's content.
func (c *Client) EditMessage(ctx context.Context, ref models.ConversationRef, messageID, content string) (*models.Message, error) {
	var out models.Message
	path := messagesPath(ref) + "/" + url.PathEscape(messageID)
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPut, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessageForMe hides a message for the calling user only.
func (c *Client) DeleteMessageForMe(ctx context.Context, ref models.ConversationRef, messageID string) error {
	path := messagesPath(ref) + "/" + url.PathEscape(messageID) + "/me"
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// DeleteMessageForEveryone tombstones a message for all members.
func (c *Client) DeleteMessageForEveryone(ctx context.Context, ref models.ConversationRef, messageID string) error {
	path := messagesPath(ref) + "/" + url.PathEscape(messageID) + "/all"
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// AddReaction attaches an emoji reaction to a message.
func (c *Client) AddReaction(ctx context.Context, ref models.ConversationRef, messageID, emoji string) error {
	path := messagesPath(ref) + "/" + url.PathEscape(messageID) + "/reactions"
	body := map[string]string{"emoji": emoji}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// MarkReadRequest is the batch mark-as-read body.
type MarkReadRequest struct {
	ChatID     string   `json:"chatId,omitempty"`
	GroupID    string   `json:"groupId,omitempty"`
	MessageIDs []string `json:"messageIds"`
}

// MarkRead marks a batch of messages read in one round trip. The server fans
// the receipt out as a messages:readReceipts event.
func (c *Client) MarkRead(ctx context.Context, ref models.ConversationRef, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/messages/read", MarkReadRequest{
		ChatID:     ref.ChatID,
		GroupID:    ref.GroupID,
		MessageIDs: messageIDs,
	}, nil)
}

// SetPriority changes a message's priority level.
func (c *Client) SetPriority(ctx context.Context, ref models.ConversationRef, messageID string, priority models.Priority) error {
	path := messagesPath(ref) + "/" + url.PathEscape(messageID) + "/priority"
	body := map[string]models.Priority{"priority": priority}
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

// SetTags replaces a message's tag set.
func (c *Client) SetTags(ctx context.Context, ref models.ConversationRef, messageID string, tags []string) error {
	path := messagesPath(ref) + "/" + url.PathEscape(messageID) + "/tags"
	body := map[string][]string{"tags": tags}
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

// PushKey fetches the server's public key for push subscriptions.
func (c *Client) PushKey(ctx context.Context) (string, error) {
	var out struct {
		PublicKey string `json:"publicKey"`
	}
	if err := c.do(ctx, http.MethodGet, "/push/key", nil, &out); err != nil {
		return "", err
	}
	return out.PublicKey, nil
}

// RegisterPushSubscription registers this device for push delivery.
func (c *Client) RegisterPushSubscription(ctx context.Context, sub models.PushSubscriptionRecord) error {
	return c.do(ctx, http.MethodPost, "/push/subscriptions", sub, nil)
}

// Report implements presence.Reporter.
func (c *Client) Report(ctx context.Context, status presence.Status) error {
	body := map[string]string{"status": string(status)}
	return c.do(ctx, http.MethodPost, "/presence", body, nil)
}
