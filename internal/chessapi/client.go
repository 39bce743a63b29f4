// Package chessapi talks to the public player directory API.
package chessapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/grandmasters-wiki/internal/config"
	"github.com/grandmasters-wiki/internal/domain"
)

const (
	defaultBaseURL = "https://api.chess.com/pub"
	maxBodyBytes   = 2 << 20

	directoryPath = "/titled/GM"
)

// Client issues read-only requests against the directory API
type Client struct {
	http          *http.Client
	baseURL       string
	userAgent     string
	limiter       *rate.Limiter
	retryAttempts int
	retryDelay    time.Duration
	logger        *slog.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBaseURL points the client at another API root
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithLimiter replaces the request rate limiter
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetry sets how many times a failed request is retried and the initial
// delay between attempts
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryDelay = delay
	}
}

// WithLogger sets the client logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client with a 10s timeout, one retry and no rate limit
func New(opts ...Option) *Client {
	c := &Client{
		http:          &http.Client{Timeout: 10 * time.Second},
		baseURL:       defaultBaseURL,
		userAgent:     "grandmasters-wiki/1.0",
		limiter:       rate.NewLimiter(rate.Inf, 1),
		retryAttempts: 1,
		retryDelay:    500 * time.Millisecond,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewFromConfig creates a Client from the upstream configuration section
func NewFromConfig(cfg *config.UpstreamConfig, logger *slog.Logger) *Client {
	c := New(
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithBaseURL(cfg.BaseURL),
		WithLimiter(rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)),
		WithRetry(cfg.RetryAttempts, cfg.RetryDelay),
		WithLogger(logger),
	)
	c.userAgent = cfg.UserAgent
	return c
}

// ListGrandmasters fetches the usernames of every titled grandmaster
func (c *Client) ListGrandmasters(ctx context.Context) (*domain.DirectoryResponse, error) {
	var out domain.DirectoryResponse
	err := c.getJSON(ctx, directoryPath, &out)
	if err != nil {
		return nil, wrapError(err, "Grandmasters list not found", "Failed to fetch grandmasters")
	}
	if out.Players == nil {
		out.Players = []string{}
	}
	return &out, nil
}

// GetPlayer fetches the profile of one player. Invalid usernames are
// rejected before any request is made.
func (c *Client) GetPlayer(ctx context.Context, username string) (*domain.PlayerProfile, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}

	var out domain.PlayerProfile
	err := c.getJSON(ctx, "/player/"+url.PathEscape(username), &out)
	if err != nil {
		return nil, wrapError(err, fmt.Sprintf("Player %q not found", username), "Failed to fetch player data")
	}
	if out.StreamingPlatforms == nil {
		out.StreamingPlatforms = []domain.StreamingPlatform{}
	}
	return &out, nil
}

// statusError carries a non-2xx response through the retry loop
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.status, e.body)
}

func wrapError(err error, notFoundMsg, failedMsg string) error {
	var se *statusError
	if errors.As(err, &se) {
		msg := failedMsg
		if se.status == http.StatusNotFound {
			msg = notFoundMsg
		}
		return &domain.APIError{Message: msg, StatusCode: se.status, Err: err}
	}
	return &domain.APIError{Message: failedMsg, Err: err}
}

// getJSON performs a GET and decodes the body into out, retrying transient
// failures up to retryAttempts times
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var policy backoff.BackOff = &backoff.ZeroBackOff{}
	if c.retryDelay > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.retryDelay
		exp.RandomizationFactor = 0.2
		exp.MaxElapsedTime = 0
		policy = exp
	}
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(c.retryAttempts, 0))), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := c.do(ctx, path, out)
		if err == nil {
			return nil
		}

		var se *statusError
		if errors.As(err, &se) && se.status >= 400 && se.status < 500 && se.status != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		c.logger.Warn("upstream request failed", "path", path, "attempt", attempt, "error", err)
		return err
	}, policy)
}

func (c *Client) do(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &statusError{status: res.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
