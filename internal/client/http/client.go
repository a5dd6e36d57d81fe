// Package http provides the retrying HTTP client used for outbound calls to
// the signature oracle and other remote trust services.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cyphera/trust-engine/internal/logger"
	"go.uber.org/zap"
)

// StatusError is an HTTP response outside the 2xx range.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// RetryConfig configures the retry behavior for transient failures.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig provides the defaults used for oracle calls.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  20 * time.Second,
	}
}

// Client is a JSON-over-HTTP client with exponential backoff on transient
// failures. Verification latency budgets are tight, so the retry window is
// deliberately short.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	headers     map[string]string
	retryConfig *RetryConfig
}

// Option modifies a Client during construction.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithRetryConfig overrides the retry behavior.
func WithRetryConfig(config *RetryConfig) Option {
	return func(c *Client) { c.retryConfig = config }
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		retryConfig: DefaultRetryConfig(),
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// PostJSON sends body as JSON to path and decodes the JSON response into
// target. Transient failures (network errors, 408/429/5xx) are retried with
// exponential backoff; a non-retryable error status is returned as a
// StatusError.
func (c *Client) PostJSON(ctx context.Context, path string, body, target interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	fullURL := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	start := time.Now()

	var responseBody []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		for key, value := range c.headers {
			req.Header.Set(key, value)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		responseBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if retryableStatus(resp.StatusCode) {
			return fmt.Errorf("retryable status code: %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(&StatusError{
				StatusCode: resp.StatusCode,
				Method:     http.MethodPost,
				URL:        fullURL,
				Body:       string(responseBody),
			})
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retryConfig.InitialInterval
	expBackoff.MaxInterval = c.retryConfig.MaxInterval
	expBackoff.MaxElapsedTime = c.retryConfig.MaxElapsedTime

	err = backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(c.retryConfig.MaxRetries)), ctx))
	if err != nil {
		logger.Error("HTTP request failed",
			zap.String("url", fullURL),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return err
	}

	logger.Debug("HTTP request completed",
		zap.String("url", fullURL),
		zap.Duration("duration", time.Since(start)))

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, target); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", fullURL, err)
	}
	return nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
