// -----------------------------------------------------------------------
// HTTP client for the coop remote response cache
// -----------------------------------------------------------------------

package coop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nurv/edsl/internal/models"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 10
)

// CacheRemoteError represents a failure talking to the remote cache.
// Callers log it and carry on; it never blocks local operation.
type CacheRemoteError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *CacheRemoteError) Error() string {
	return fmt.Sprintf("remote cache error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Client talks to a coop remote cache server. It implements
// interfaces.RemoteCache.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new remote cache client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetAll downloads every entry held by the remote cache.
func (c *Client) GetAll(ctx context.Context) (map[string]*models.CacheEntry, error) {
	var raw map[string]map[string]any
	if err := c.do(ctx, http.MethodGet, "/items/all", nil, &raw); err != nil {
		return nil, err
	}

	entries := make(map[string]*models.CacheEntry, len(raw))
	for key, dict := range raw {
		entry, err := models.CacheEntryFromDict(dict)
		if err != nil {
			return nil, fmt.Errorf("invalid remote cache entry %s: %w", key, err)
		}
		entries[key] = entry
	}
	return entries, nil
}

// batchItem is the wire shape for one uploaded entry.
type batchItem struct {
	Key  string         `json:"key"`
	Item map[string]any `json:"item"`
}

// SendBatch uploads entries to the remote cache.
func (c *Client) SendBatch(ctx context.Context, entries map[string]*models.CacheEntry) error {
	items := make([]batchItem, 0, len(entries))
	for key, entry := range entries {
		items = append(items, batchItem{Key: key, Item: entry.ToDict()})
	}
	return c.do(ctx, http.MethodPost, "/items/batch", items, nil)
}

// CompareHash reports whether the remote key set hashes to the given value.
func (c *Client) CompareHash(ctx context.Context, hash string) (bool, error) {
	var result struct {
		Match bool `json:"match"`
	}
	if err := c.do(ctx, http.MethodGet, "/compare_hash/"+hash, nil, &result); err != nil {
		return false, err
	}
	return result.Match, nil
}

// do performs one request against the remote cache.
func (c *Client) do(ctx context.Context, method, path string, payload any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Msg("Remote cache request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &CacheRemoteError{Message: err.Error(), Endpoint: path}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return &CacheRemoteError{
			StatusCode: resp.StatusCode,
			Message:    string(data),
			Endpoint:   path,
		}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
