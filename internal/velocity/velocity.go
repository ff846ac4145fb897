// Package velocity bounds how fast a single agent may submit activities.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Limiter counts submissions per agent in fixed windows backed by the
// cache counters, so the count is shared across instances on Redis.
type Limiter struct {
	cache  domain.Cache
	limit  int64
	window time.Duration
}

// NewLimiter allows limit submissions per agent per window. A limit of
// zero or less disables the check.
func NewLimiter(c domain.Cache, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		cache:  c,
		limit:  int64(limit),
		window: window,
	}
}

// Allow records one submission for agentID and reports whether it is
// within the limit, together with the count in the current window.
func (l *Limiter) Allow(ctx context.Context, agentID string) (bool, int64, error) {
	if l == nil || l.limit <= 0 || l.cache == nil {
		return true, 0, nil
	}
	if agentID == "" {
		return false, 0, fmt.Errorf("agentID is required")
	}

	n, err := l.cache.IncrementCounter(ctx, "velocity:"+agentID, l.window)
	if err != nil {
		return false, 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return n <= l.limit, n, nil
}

// Window returns the counting window.
func (l *Limiter) Window() time.Duration {
	return l.window
}
