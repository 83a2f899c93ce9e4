package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"Argus/internal/models"
	"Argus/pkg/circuitbreaker"
)

// Retryable HTTP statuses: the backend is telling us to back off and try
// again. Everything else is returned to the caller as-is.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// Options configures the retry behaviour of a Client.
type Options struct {
	MaxRetries int           // additional attempts after the first one
	BaseDelay  time.Duration // backoff base, doubled per attempt
	MaxDelay   time.Duration // backoff ceiling
}

// DefaultOptions mirror the gateway's standard outbound call policy.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// Client is an HTTP client for calls to the model backend. It wraps every
// call with a per-attempt timeout, retry with jittered exponential backoff,
// and a shared circuit breaker.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
	opts       Options
}

// NewClient creates a Client bound to the given breaker instance. The breaker
// is shared state: one instance guards one logical backend.
func NewClient(breaker circuitbreaker.CircuitBreaker, opts Options) *Client {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultOptions().BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultOptions().MaxDelay
	}
	return &Client{
		httpClient: &http.Client{},
		breaker:    breaker,
		opts:       opts,
	}
}

// Post sends a JSON payload to url. Each attempt is bounded by timeout;
// network errors, timeouts, and 429/503 responses are retried with backoff.
// The breaker is consulted before any network attempt: when open, the call
// fails fast with circuitbreaker.ErrCircuitOpen. A response handed back to
// the caller counts as a breaker success, an exhausted retry budget as one
// breaker failure.
//
// The caller owns the returned response body and must close it.
func (c *Client) Post(ctx context.Context, url string, payload []byte, timeout time.Duration) (*http.Response, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.postWithRetry(ctx, url, payload, timeout)
	})
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}

func (c *Client) postWithRetry(ctx context.Context, url string, payload []byte, timeout time.Duration) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoffDelay(attempt-1)); err != nil {
				return nil, &models.TransientError{Attempts: attempt, Err: err}
			}
		}

		resp, err := c.attempt(ctx, url, payload, timeout)
		if err != nil {
			lastErr = err
			continue
		}

		if retryableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("retryable status %d from backend", resp.StatusCode)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			continue
		}

		return resp, nil
	}

	return nil, &models.TransientError{Attempts: c.opts.MaxRetries + 1, Err: lastErr}
}

// attempt performs one bounded request. The timeout context stays alive until
// the caller closes the response body.
func (c *Client) attempt(ctx context.Context, url string, payload []byte, timeout time.Duration) (*http.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("backend call timed out after %s", timeout)
		}
		return nil, err
	}

	resp.Body = &cancelingBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// backoffDelay computes the jittered exponential backoff for an attempt:
// delay = min(maxDelay, baseDelay * 2^attempt), jittered uniformly into
// [delay/2, delay] so concurrent retries do not synchronize.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.opts.BaseDelay << uint(attempt)
	if delay > c.opts.MaxDelay || delay <= 0 {
		delay = c.opts.MaxDelay
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cancelingBody releases the attempt's timeout context once the response body
// is closed, so the timeout also bounds reading the body.
type cancelingBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelingBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
