// Package ratelimit provides named token buckets for bounding calls to
// external services. State is explicit and constructor-owned: buckets are
// created by a registry the composition root passes into components, never
// package globals.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxSleep bounds a single wait slice so callers stay responsive to
// cancellation even when the computed wait is long.
const maxSleep = 5 * time.Second

// Bucket is a token bucket sized to maxCalls per period. The zero value is
// not usable; construct with NewBucket.
type Bucket struct {
	lim *rate.Limiter
}

// NewBucket creates a bucket allowing maxCalls per period, with burst
// capacity equal to maxCalls.
func NewBucket(maxCalls int, period time.Duration) *Bucket {
	if maxCalls < 1 {
		maxCalls = 1
	}
	if period <= 0 {
		period = time.Second
	}
	return &Bucket{
		lim: rate.NewLimiter(rate.Every(period/time.Duration(maxCalls)), maxCalls),
	}
}

// CanProceed reports whether a call may run right now, without consuming
// a token.
func (b *Bucket) CanProceed() bool {
	return b.lim.Tokens() >= 1
}

// WaitTime returns how long until the next token is available. Zero when
// a call may proceed immediately.
func (b *Bucket) WaitTime() time.Duration {
	tokens := b.lim.Tokens()
	if tokens >= 1 {
		return 0
	}
	need := 1 - tokens
	perToken := float64(time.Second) / float64(b.lim.Limit())
	return time.Duration(need * perToken)
}

// RecordCall consumes a token. Returns false when the bucket is empty.
func (b *Bucket) RecordCall() bool {
	return b.lim.Allow()
}

// Wait blocks until a token is consumed or the context ends. Sleeps in
// bounded slices so cancellation is honored promptly.
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		if b.lim.Allow() {
			return nil
		}
		d := b.WaitTime()
		if d <= 0 {
			d = 10 * time.Millisecond
		}
		if d > maxSleep {
			d = maxSleep
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Registry hands out buckets by resource name, creating each on first use.
type Registry struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
}

// NewRegistry creates an empty bucket registry.
func NewRegistry() *Registry {
	return &Registry{buckets: make(map[string]*Bucket)}
}

// Bucket returns the named bucket, creating it with (maxCalls, period) if
// it does not exist yet. The sizing arguments are ignored on later calls.
func (r *Registry) Bucket(name string, maxCalls int, period time.Duration) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[name]
	if !ok {
		b = NewBucket(maxCalls, period)
		r.buckets[name] = b
	}
	return b
}
