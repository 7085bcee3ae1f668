// Package backend implements the HTTP client for the downstream bolt.diy
// implementation backend: submit, status polling, result fetching, and
// ingestion of the backend's server-sent-event stream.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"boltbridge/internal/config"
	"boltbridge/internal/errors"
	"boltbridge/internal/logging"
	"boltbridge/internal/store"
)

// Client talks to the bolt.diy backend with bounded retry-with-delay.
// Every request/response call makes retries+1 attempts separated by a fixed
// delay (no backoff; the delay is part of the observable timeout behavior).
type Client struct {
	baseURL    string
	retries    int
	retryDelay time.Duration
	timeout    time.Duration
	httpClient *http.Client
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The per-attempt
// timeout is applied through request contexts, so the replacement should
// not set its own Timeout (it would also cut off long-lived streams).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryDelay overrides the configured inter-attempt delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// NewClient creates a backend client from configuration.
func NewClient(cfg config.BackendConfig, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NopLogger()
	}

	c := &Client{
		baseURL:    cfg.URL,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay(),
		timeout:    cfg.RequestTimeout(),
		httpClient: &http.Client{},
		logger:     logger.WithComponent("backend"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Submit POSTs the task payload to the backend and returns its
// acknowledgment. Failures surviving the retry budget surface as
// request_failed.
func (c *Client) Submit(ctx context.Context, taskID, prompt, owner string) (*SubmitResponse, error) {
	body := submitRequest{TaskID: taskID, Prompt: prompt, Owner: owner}

	var resp SubmitResponse
	if err := c.doWithRetry(ctx, http.MethodPost, c.baseURL+"/implementation", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PollStatus fetches the backend's current status for a task. A payload
// whose status is not a known value fails with validation_error, which is
// distinct from transport failure and not retried.
func (c *Client) PollStatus(ctx context.Context, taskID string) (*StatusResponse, error) {
	var resp StatusResponse
	url := fmt.Sprintf("%s/implementation/%s/status", c.baseURL, taskID)
	if err := c.doWithRetry(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}
	if !store.Status(resp.Status).Valid() {
		return nil, errors.NewBackendError(errors.CodeValidation,
			"backend returned unknown status", nil).WithDetail("status", resp.Status)
	}
	return &resp, nil
}

// FetchResult fetches the final implementation for a task. Only meaningful
// once the backend reports a terminal status.
func (c *Client) FetchResult(ctx context.Context, taskID string) (*ResultResponse, error) {
	var resp ResultResponse
	url := fmt.Sprintf("%s/implementation/%s", c.baseURL, taskID)
	if err := c.doWithRetry(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// doWithRetry attempts the call, waits the fixed delay on failure, and
// repeats until the retry count is exhausted. Validation errors are
// deterministic and returned immediately; everything else ends as
// request_failed carrying the last attempt's failure.
func (c *Client) doWithRetry(ctx context.Context, method, url string, body, out any) error {
	attempts := c.retries + 1
	var lastErr *errors.BackendError

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return errors.NewBackendError(errors.CodeRequestFailed, "request canceled", ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}

		err := c.doOnce(ctx, method, url, body, out)
		if err == nil {
			return nil
		}
		if errors.CodeOf(err) == errors.CodeValidation {
			return err
		}

		lastErr = errors.AsBackendError(err, errors.CodeRequestFailed)
		c.logger.Warn("backend request failed",
			"method", method, "url", url, "attempt", attempt, "max_attempts", attempts, "error", err)
	}

	return lastErr.WithDetail("attempts", attempts)
}

// doOnce performs a single JSON request/response exchange bounded by the
// per-attempt timeout.
func (c *Client) doOnce(ctx context.Context, method, url string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.NewBackendError(errors.CodeRequestFailed, "request timed out", err).
				WithDetail("reason", "timeout")
		}
		return errors.NewBackendError(errors.CodeRequestFailed, "send request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewBackendError(errors.CodeRequestFailed, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.NewBackendError(errors.CodeRequestFailed,
			fmt.Sprintf("backend returned status %d", resp.StatusCode), nil).
			WithDetail("status", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.NewBackendError(errors.CodeValidation, "malformed backend payload", err)
		}
	}
	return nil
}
