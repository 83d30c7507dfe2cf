// Package client talks to the checklist API over HTTP and follows its
// invalidation channel over a websocket.
package client

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
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"checklist/api/internal/model"
)

// APIError is a rejection reported by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Unwrap maps the wire code onto a model error kind.
func (e *APIError) Unwrap() error {
	return model.KindForCode(e.Code)
}

type Client struct {
	baseURL      *url.URL
	http         *http.Client
	dialer       *websocket.Dialer
	logger       *zap.Logger
	minBackoff   time.Duration
	maxBackoff   time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBackoff bounds the delay between reconnect attempts.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

// WithReadTimeout sets how long the push connection may stay silent,
// pings included, before it is considered dead.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) { c.readTimeout = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL:      parsed,
		http:         &http.Client{Timeout: 15 * time.Second},
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:       zap.NewNop(),
		minBackoff:   250 * time.Millisecond,
		maxBackoff:   10 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("client")
	return c, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := c.do(ctx, http.MethodGet, "/api/categories", nil, &categories); err != nil {
		return nil, err
	}
	return nonNil(categories), nil
}

func (c *Client) ListItems(ctx context.Context, categoryID int64) ([]model.Item, error) {
	var items []model.Item
	path := "/api/items?categoryId=" + strconv.FormatInt(categoryID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return nonNil(items), nil
}

func (c *Client) CreateCategory(ctx context.Context, name string) (model.Category, error) {
	var category model.Category
	err := c.do(ctx, http.MethodPost, "/api/categories", map[string]any{"name": name}, &category)
	return category, err
}

func (c *Client) CreateItem(ctx context.Context, name string, categoryID int64, attribution string) (model.Item, error) {
	var item model.Item
	body := map[string]any{"name": name, "categoryId": categoryID}
	if attribution != "" {
		body["attribution"] = attribution
	}
	err := c.do(ctx, http.MethodPost, "/api/items", body, &item)
	return item, err
}

func (c *Client) SetItemCompletion(ctx context.Context, id int64, completed bool) error {
	return c.do(ctx, http.MethodPut, "/api/items/"+strconv.FormatInt(id, 10), map[string]any{"completed": completed}, nil)
}

func (c *Client) DeleteItem(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/items/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/categories/"+strconv.FormatInt(id, 10), nil, nil)
}

// Health calls /api/health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", model.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", model.ErrNetwork, method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Code == "" {
		return &APIError{
			Status:  resp.StatusCode,
			Code:    "HTTP_" + strconv.Itoa(resp.StatusCode),
			Message: strings.TrimSpace(string(raw)),
		}
	}
	return &APIError{Status: resp.StatusCode, Code: payload.Code, Message: payload.Error}
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}

// IsRetryable reports whether err is worth retrying unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, model.ErrNetwork) || errors.Is(err, model.ErrStorage)
}
