package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/docchat/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "ratelimit:"

// store is the consumer interface for rate limit counters (ISP).
type store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Limiter is a fixed-window request counter per principal (INCR + EXPIRE NX).
type Limiter struct {
	store  store
	limit  int
	window time.Duration
	now    func() time.Time
}

// New creates a limiter allowing limit requests per window.
func New(s store, limit int, window time.Duration) *Limiter {
	return &Limiter{store: s, limit: limit, window: window, now: time.Now}
}

// TryAcquire counts one request for userID and reports whether it fits the window.
func (l *Limiter) TryAcquire(ctx context.Context, userID string) (domain.RateDecision, error) {
	start := l.now().Truncate(l.window)
	key := keyPrefix + userID + ":" + strconv.FormatInt(start.Unix(), 10)

	n, err := l.store.Incr(ctx, key)
	if err != nil {
		return domain.RateDecision{}, fmt.Errorf("ratelimit INCR %s: %w", key, err)
	}

	// TTL only set once per window (NX), so repeated hits never extend it.
	if err := l.store.Expire(ctx, key, l.window, true); err != nil {
		return domain.RateDecision{}, fmt.Errorf("ratelimit EXPIRE %s: %w", key, err)
	}

	return domain.RateDecision{
		Allowed:   n <= int64(l.limit),
		Remaining: max(0, l.limit-int(n)),
		ResetAt:   start.Add(l.window),
	}, nil
}
