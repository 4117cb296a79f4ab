// Package httpretry wraps an HTTP client with retries for transient
// failures. Transport errors and retryable statuses (429, 500, 502,
// 503, 504) back off exponentially with full jitter; client errors and
// context cancellation return immediately.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"
)

// HTTPDoer executes a single HTTP request. Satisfied by *http.Client
// and by *RetryClient itself, so callers can hold either.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries requests on top of an inner HTTPDoer.
type RetryClient struct {
	doer    HTTPDoer
	retries int
	base    time.Duration
	cap     time.Duration
}

func newClient(doer HTTPDoer, retries int, cap time.Duration) *RetryClient {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	return &RetryClient{doer: doer, retries: retries, base: time.Second, cap: cap}
}

// NewRetryClient returns a client for ordinary transient failures:
// backoff starts at 1s and caps at 10s. retries is the number of
// attempts after the first; values <= 0 mean 3. A nil doer gets a
// default http.Client with a 30s timeout.
func NewRetryClient(doer HTTPDoer, retries int) *RetryClient {
	if retries <= 0 {
		retries = 3
	}
	return newClient(doer, retries, 10*time.Second)
}

// NewRateLimitRetryClient returns a client tuned for rate-limited APIs:
// 5 retries with backoff capped at 60s, so callers that hit a shared
// quota spread out instead of re-colliding.
func NewRateLimitRetryClient(doer HTTPDoer) *RetryClient {
	return newClient(doer, 5, 60*time.Second)
}

// Do runs the request, retrying transport errors and retryable
// statuses. The final attempt's response comes back unconsumed either
// way, so the caller can still read the body of a 500 that never
// recovered. Requests with a body must carry GetBody (http.NewRequest
// sets it for the common reader types).
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			if err := rewind(req); err != nil {
				return nil, err
			}
			delay := rc.backoff(attempt)
			log.Printf("httpretry: %s %s attempt %d/%d in %s",
				req.Method, req.URL.Host, attempt, rc.retries, delay)
			if !sleep(ctx, delay) {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, ctx.Err()
			}
		}

		resp, err := rc.doer.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			if attempt == rc.retries {
				return nil, lastErr
			}
			continue
		}

		if !retryable(resp.StatusCode) || attempt == rc.retries {
			return resp, nil
		}

		// Drain so the transport can reuse the connection.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: status %d from %s", resp.StatusCode, req.URL.Host)
	}
}

// rewind restores the request body before a retry.
func rewind(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: rewind request body: %w", err)
	}
	req.Body = body
	return nil
}

// backoff picks a random delay in (0, base*2^(attempt-1)] capped at
// rc.cap, floored at 100ms so a zero roll cannot busy-loop.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	ceiling := rc.base << uint(attempt-1)
	if ceiling > rc.cap || ceiling <= 0 {
		ceiling = rc.cap
	}
	d := time.Duration(rand.Float64() * float64(ceiling))
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}

// sleep waits for d or the context, reporting false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
