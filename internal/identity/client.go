package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// User carries the display fields this service enriches responses with.
// The identity service owns the records; nothing here is stored locally.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	IsOnline bool   `json:"isOnline"`
}

// Client looks up users in the external identity service.
type Client interface {
	GetUser(ctx context.Context, id string) (*User, error)
	BulkUsers(ctx context.Context, ids []string) ([]User, error)
}

// HTTPClient talks JSON over HTTP to the identity service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *HTTPClient) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := c.getJSON(ctx, "/internal/users/"+url.PathEscape(id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *HTTPClient) BulkUsers(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var payload struct {
		Users []User `json:"users"`
	}
	path := "/internal/users?ids=" + url.QueryEscape(strings.Join(ids, ","))
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.Users, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build identity request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("identity service unreachable", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("identity service returned non-200",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("identity request: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}
