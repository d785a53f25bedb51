// Package api consumes the admin backend's REST endpoints through the
// authenticated HTTP collaborator. It adds typed encoding/decoding only;
// retry, refresh, and CSRF concerns belong to the layer behind Doer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

// Doer issues an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL string
	token   string
	doer    Doer
}

func NewClient(baseURL, token string, doer Doer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		doer:    doer,
	}
}

// Me fetches the authenticated user, standing in for the external auth
// store's user value at session bootstrap.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var out struct {
		User domain.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) ListConversations(ctx context.Context, page, limit int) ([]*domain.Conversation, error) {
	var out struct {
		Conversations []*domain.Conversation `json:"conversations"`
	}
	path := "/api/conversations?" + pageQuery(page, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) CreateConversation(ctx context.Context, participantIDs []int64, name string, isGroup bool) (*domain.Conversation, error) {
	body := struct {
		ParticipantIDs []int64 `json:"participantIds"`
		Name           string  `json:"name,omitempty"`
		IsGroup        bool    `json:"isGroup"`
	}{ParticipantIDs: participantIDs, Name: name, IsGroup: isGroup}

	var out struct {
		Conversation *domain.Conversation `json:"conversation"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/conversations", body, &out); err != nil {
		return nil, err
	}
	return out.Conversation, nil
}

// ListMessages fetches a page of messages for a conversation, newest-last.
func (c *Client) ListMessages(ctx context.Context, conversationID int64, page, limit int) ([]*domain.Message, error) {
	var out struct {
		Messages []*domain.Message `json:"messages"`
	}
	path := fmt.Sprintf("/api/conversations/%d/messages?%s", conversationID, pageQuery(page, limit))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]domain.User, error) {
	var out struct {
		Users []domain.User `json:"users"`
	}
	path := "/api/users/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// NotificationPage is a fetched page of the notification feed plus the
// server's unread counter.
type NotificationPage struct {
	Notifications []*domain.Notification `json:"notifications"`
	UnreadCount   int                    `json:"unreadCount"`
}

func (c *Client) ListNotifications(ctx context.Context, page, limit int) (*NotificationPage, error) {
	var out NotificationPage
	path := "/api/notifications?" + pageQuery(page, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkNotificationsRead(ctx context.Context, ids []int64, markAll bool) error {
	body := struct {
		NotificationIDs []int64 `json:"notificationIds,omitempty"`
		MarkAll         bool    `json:"markAll"`
	}{NotificationIDs: ids, MarkAll: markAll}
	return c.do(ctx, http.MethodPatch, "/api/notifications/read", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
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
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func pageQuery(page, limit int) string {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return "page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
}
