// Package budget enforces the fleet-wide daily SMS cap. The primary
// implementation is an atomic Redis counter keyed by UTC date; without
// Redis it degrades to counting today's attempt rows, which is racier
// but still bounds the day.
//
// Dry runs consume budget on purpose: staging traffic must exercise the
// same ceiling production will hit.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript atomically checks the cap and increments. Checking before
// incrementing keeps a denied take from inflating the counter. The TTL
// lands on the first increment so the key dies shortly after its date.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return {0, current}
end

local fresh = redis.call("INCRBY", key, 1)
if fresh == 1 then
    redis.call("EXPIRE", key, ttl)
end
return {1, fresh}
`)

// Budget is the surface both implementations satisfy. Take consumes one
// send slot; Remaining reports what is left today.
type Budget interface {
	Take(ctx context.Context) (bool, error)
	Remaining(ctx context.Context) (int, error)
}

// RedisBudget is the fleet-wide counter. All instances share one key per
// UTC day, so the cap holds across servers and workers.
type RedisBudget struct {
	rdb   *redis.Client
	limit int
	now   func() time.Time
}

// NewRedisBudget builds a budget over the given client. limit is the
// daily cap and must be positive.
func NewRedisBudget(rdb *redis.Client, limit int) *RedisBudget {
	return &RedisBudget{rdb: rdb, limit: limit, now: time.Now}
}

// Take consumes one send slot. ok=false means today's cap is exhausted.
func (b *RedisBudget) Take(ctx context.Context) (bool, error) {
	now := b.now().UTC()
	res, err := takeScript.Run(ctx, b.rdb, []string{dateKey(now)}, b.limit, secondsUntilMidnight(now)).Result()
	if err != nil {
		return false, fmt.Errorf("budget: take: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) == 0 {
		return false, fmt.Errorf("budget: unexpected script reply %T", res)
	}
	allowed, _ := vals[0].(int64)
	return allowed == 1, nil
}

// Remaining reports how many slots are left today.
func (b *RedisBudget) Remaining(ctx context.Context) (int, error) {
	current, err := b.rdb.Get(ctx, dateKey(b.now().UTC())).Int()
	if errors.Is(err, redis.Nil) {
		current = 0
	} else if err != nil {
		return 0, fmt.Errorf("budget: remaining: %w", err)
	}
	left := b.limit - current
	if left < 0 {
		left = 0
	}
	return left, nil
}

func dateKey(now time.Time) string {
	return "sms_budget:" + now.Format("2006-01-02")
}

func secondsUntilMidnight(now time.Time) int {
	next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return int(next.Sub(now) / time.Second)
}

// AttemptCounter is the slice of the attempt store the fallback counts
// through.
type AttemptCounter interface {
	CountSentSince(ctx context.Context, since time.Time) (int, error)
}

// StoreBudget approximates the cap by counting today's sent and dry-run
// attempts. The attempt row the dispatcher writes right after a granted
// take is the increment, so concurrent senders can momentarily overshoot
// by their in-flight count. Acceptable for the no-Redis deployment.
type StoreBudget struct {
	attempts AttemptCounter
	limit    int
	now      func() time.Time
}

// NewStoreBudget builds the Postgres-counting fallback.
func NewStoreBudget(attempts AttemptCounter, limit int) *StoreBudget {
	return &StoreBudget{attempts: attempts, limit: limit, now: time.Now}
}

// Take reports whether a slot is open today.
func (b *StoreBudget) Take(ctx context.Context) (bool, error) {
	n, err := b.count(ctx)
	if err != nil {
		return false, err
	}
	return n < b.limit, nil
}

// Remaining reports how many slots are left today.
func (b *StoreBudget) Remaining(ctx context.Context) (int, error) {
	n, err := b.count(ctx)
	if err != nil {
		return 0, err
	}
	left := b.limit - n
	if left < 0 {
		left = 0
	}
	return left, nil
}

func (b *StoreBudget) count(ctx context.Context) (int, error) {
	midnight := b.now().UTC().Truncate(24 * time.Hour)
	n, err := b.attempts.CountSentSince(ctx, midnight)
	if err != nil {
		return 0, fmt.Errorf("budget: count attempts: %w", err)
	}
	return n, nil
}
