// Package capture fetches raw snapshots from the exchange and bookmaker APIs,
// extracts them from browser HAR exports, and records the order-book
// websocket feed. Everything it produces lands in the raw/ series unchanged.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/rewired-gh/polyedge/internal/logger"
)

// Request outcomes reported to the observer.
const (
	OutcomeOK    = "ok"
	OutcomeRetry = "retry"
	OutcomeError = "error"
)

// Client is a rate-limited HTTP client that retries transport failures and
// 5xx responses.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	observe    func(outcome string)
}

// NewClient creates a client allowing perSecond requests with a burst of one.
func NewClient(timeout time.Duration, maxRetries int, perSecond float64) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: maxRetries,
		backoff:    time.Second,
		observe:    func(string) {},
	}
}

// WithBackoff sets the base delay; attempt i waits (i+1)*base.
func (c *Client) WithBackoff(base time.Duration) *Client {
	c.backoff = base
	return c
}

// WithObserver registers a callback invoked once per attempt.
func (c *Client) WithObserver(fn func(outcome string)) *Client {
	if fn != nil {
		c.observe = fn
	}
	return c
}

// StatusError is returned for a non-retryable HTTP status.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.Status, e.URL, e.Body)
}

// Get fetches rawURL with params appended to its query.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return c.do(ctx, http.MethodGet, u.String(), nil)
}

// Post sends body as JSON to rawURL.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, rawURL, body)
}

func (c *Client) do(ctx context.Context, method, urlStr string, body []byte) ([]byte, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			data, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("failed to read response: %w", readErr)
			case resp.StatusCode >= 500:
				lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			case resp.StatusCode >= 300:
				c.observe(OutcomeError)
				return nil, &StatusError{URL: urlStr, Status: resp.StatusCode, Body: snippet(data)}
			default:
				c.observe(OutcomeOK)
				return data, nil
			}
		}

		if ctx.Err() != nil {
			c.observe(OutcomeError)
			return nil, ctx.Err()
		}
		c.observe(OutcomeRetry)
		logger.Debug("request to %s failed (attempt %d/%d): %v", urlStr, i+1, c.maxRetries, lastErr)
		if i+1 < c.maxRetries {
			if err := sleep(ctx, time.Duration(i+1)*c.backoff); err != nil {
				return nil, err
			}
		}
	}

	c.observe(OutcomeError)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
