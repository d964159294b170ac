// Package client is the typed HTTP client for the trivia room API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcoot/triviasync/internal/api/response"
)

// APIPrefix is prepended to every endpoint path
const APIPrefix = "/api/v1"

// Config configures a Client
type Config struct {
	BaseURL string

	// RequestTimeout bounds every request so a hung server can't stall a poller
	RequestTimeout time.Duration

	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit rate.Limit
	Burst     int
}

// DefaultConfig returns a Config with default values
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		RequestTimeout: 300 * time.Second,
		RateLimit:      10,
		Burst:          20,
	}
}

// Client is an HTTP client for the trivia API
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a new API client
func New(cfg Config, logger *slog.Logger) *Client {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:    cfg.RequestTimeout,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.With(slog.String("component", "client")),
	}
}

// BaseURL returns the server address the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs a request against an API path. result, if non-nil, must be a
// pointer to a response type embedding response.Envelope.
func (c *Client) Do(ctx context.Context, method, path string, body any, result response.Enveloped) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+APIPrefix+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Status: resp.StatusCode}
		var env response.Envelope
		if json.Unmarshal(respBody, &env) == nil {
			statusErr.Code = env.Code
			statusErr.Message = env.Error
		}
		c.logger.Debug("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return statusErr
	}

	if result == nil {
		return nil
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return fmt.Errorf("%s %s: empty body: %w", method, path, ErrMalformedResponse)
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrMalformedResponse, err)
	}

	if env := result.Result(); !env.Success {
		return &RejectedError{Code: env.Code, Message: env.Error}
	}
	return nil
}
