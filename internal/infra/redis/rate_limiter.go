package redis

import (
	"context"
	"fmt"
	"time"

	"license-activation/internal/domain/ports/repository"
)

// RateLimiter is a fixed-window counter over any store that can increment
// keys. Redis is the production backend; the memory store works in dev.
type RateLimiter struct {
	counter repository.Counter
	limit   int
	window  time.Duration
	scope   string
}

func NewRateLimiter(counter repository.Counter, scope string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{counter: counter, limit: limit, window: window, scope: scope}
}

func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := r.counter.Incr(ctx, rateLimitKey(r.scope, key), r.window)
	if err != nil {
		return false, err
	}
	return count <= int64(r.limit), nil
}

func rateLimitKey(scope, key string) string {
	return fmt.Sprintf("rate_limit:%s:%s", scope, key)
}
