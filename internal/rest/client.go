// Package rest is the client for the console's REST collaborators: chat
// listing, message history and read receipts.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/opschat/internal/model"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// ErrInvalidChatID is returned before any request is made for a malformed id.
var ErrInvalidChatID = model.ErrInvalidChatID

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rest: status %d", e.Code)
	}
	return fmt.Sprintf("rest: status %d: %s", e.Code, e.Body)
}

// Client calls the REST API with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for baseURL. A nil httpClient gets one with DefaultTimeout.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// ListChats returns the chats userID participates in.
func (c *Client) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	q := url.Values{}
	q.Set("userId", userID)
	var chats []model.Chat
	if err := c.do(ctx, http.MethodGet, "/chats?"+q.Encode(), nil, &chats); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// ListMessages returns chatID's history. The id is validated first.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	if err := model.ValidateChatID(chatID); err != nil {
		return nil, err
	}
	var msgs []model.Message
	if err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", nil, &msgs); err != nil {
		return nil, fmt.Errorf("list messages %s: %w", chatID, err)
	}
	return msgs, nil
}

// MarkChatRead records that userID has read chatID.
func (c *Client) MarkChatRead(ctx context.Context, chatID, userID string) error {
	if err := model.ValidateChatID(chatID); err != nil {
		return err
	}
	body := map[string]string{"userId": userID}
	if err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/read", body, nil); err != nil {
		return fmt.Errorf("mark chat %s read: %w", chatID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
