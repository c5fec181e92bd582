// Package deepstate fetches the DeepState front-line map and turns it into
// per-day GeoJSON snapshots plus an aggregated CSV.
package deepstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/zjrosen/georefresh/internal/log"
)

// DefaultURL serves the most recent map revision.
const DefaultURL = "https://deepstatemap.live/api/history/last"

// maxBodyBytes caps the response size read from the API.
const maxBodyBytes = 64 << 20

// ErrNoMap is returned when the payload has no "map" collection.
var ErrNoMap = errors.New("response has no map feature collection")

// StatusError reports a non-2xx API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deepstate: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Snapshot is one decoded API response.
type Snapshot struct {
	// ID is the revision identifier the API reports, if any.
	ID  int64
	Map *geojson.FeatureCollection
}

// Client talks to the DeepState API.
type Client struct {
	url        string
	userAgent  string
	httpClient *http.Client
	attempts   int
	retryDelay time.Duration
}

// Option configures the Client during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	attempts   int
	retryDelay time.Duration
}

// NewClient creates a Client for url (DefaultURL when empty).
// Defaults: 3 attempts, 5s between attempts, 10s per-request timeout.
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		url = DefaultURL
	}

	cfg := &clientConfig{
		timeout:    10 * time.Second,
		attempts:   3,
		retryDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	return &Client{
		url:        url,
		userAgent:  cfg.userAgent,
		httpClient: httpClient,
		attempts:   cfg.attempts,
		retryDelay: cfg.retryDelay,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithUserAgent sets the User-Agent header. The API rejects some defaults.
func WithUserAgent(ua string) Option {
	return func(cfg *clientConfig) error {
		cfg.userAgent = ua
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		cfg.timeout = d
		return nil
	}
}

// WithRetry sets the total number of attempts and the pause between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(cfg *clientConfig) error {
		if attempts < 1 {
			return fmt.Errorf("deepstate: attempts must be at least 1, got %d", attempts)
		}
		if delay < 0 {
			return fmt.Errorf("deepstate: retry delay must not be negative")
		}
		cfg.attempts = attempts
		cfg.retryDelay = delay
		return nil
	}
}

// FetchLatest downloads and decodes the latest map. Transport errors and
// non-2xx statuses are retried; an undecodable body is not.
func (c *Client) FetchLatest(ctx context.Context) (*Snapshot, error) {
	attempt := 0
	op := func() (*Snapshot, error) {
		attempt++
		body, err := c.get(ctx)
		if err != nil {
			return nil, err
		}
		snap, err := decodeSnapshot(body)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return snap, nil
	}

	notify := func(err error, next time.Duration) {
		log.Warn(log.CatFetch, "API request failed", "attempt", fmt.Sprintf("%d/%d", attempt, c.attempts), "error", err, "retry_in", next)
	}

	snap, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(uint(c.attempts)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		log.Error(log.CatFetch, "all API request attempts failed", "attempts", attempt, "error", err)
		return nil, fmt.Errorf("fetch %s: %w", c.url, err)
	}
	log.Info(log.CatFetch, "fetched map", "id", snap.ID, "features", len(snap.Map.Features), "attempts", attempt)
	return snap, nil
}

func (c *Client) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg == "" {
			msg = resp.Status
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}
	return body, nil
}

func decodeSnapshot(body []byte) (*Snapshot, error) {
	var envelope struct {
		ID  any             `json:"id"`
		Map json.RawMessage `json:"map"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Map) == 0 || string(envelope.Map) == "null" {
		return nil, ErrNoMap
	}
	fc, err := geojson.UnmarshalFeatureCollection(envelope.Map)
	if err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}

	snap := &Snapshot{Map: fc}
	if id, ok := envelope.ID.(float64); ok {
		snap.ID = int64(id)
	}
	return snap, nil
}
