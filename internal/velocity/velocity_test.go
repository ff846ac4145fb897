package velocity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
)

type failingCache struct {
	domain.Cache
}

func (failingCache) IncrementCounter(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("redis: connection refused")
}

func TestLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("AllowsUpToLimit", func(t *testing.T) {
		lru := cache.NewLRUCache(100)
		defer lru.Close()
		l := NewLimiter(lru, 3, time.Minute)

		for i := 1; i <= 3; i++ {
			ok, n, err := l.Allow(ctx, "agent-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ok || n != int64(i) {
				t.Fatalf("submission %d: expected allowed with count %d, got %v/%d", i, i, ok, n)
			}
		}

		ok, n, _ := l.Allow(ctx, "agent-1")
		if ok {
			t.Errorf("expected fourth submission to be rejected (count %d)", n)
		}
	})

	t.Run("AgentsCountedSeparately", func(t *testing.T) {
		lru := cache.NewLRUCache(100)
		defer lru.Close()
		l := NewLimiter(lru, 1, time.Minute)

		if ok, _, _ := l.Allow(ctx, "agent-1"); !ok {
			t.Error("expected agent-1 allowed")
		}
		if ok, _, _ := l.Allow(ctx, "agent-2"); !ok {
			t.Error("expected agent-2 allowed")
		}
	})

	t.Run("DisabledLimiter", func(t *testing.T) {
		l := NewLimiter(failingCache{}, 0, time.Minute)
		ok, _, err := l.Allow(ctx, "agent-1")
		if !ok || err != nil {
			t.Errorf("expected disabled limiter to allow, got %v, %v", ok, err)
		}

		var nilLimiter *Limiter
		if ok, _, _ := nilLimiter.Allow(ctx, "agent-1"); !ok {
			t.Error("expected nil limiter to allow")
		}
	})

	t.Run("CacheFailure", func(t *testing.T) {
		l := NewLimiter(failingCache{}, 5, time.Minute)
		_, _, err := l.Allow(ctx, "agent-1")
		if err == nil {
			t.Error("expected error from failing cache")
		}
	})

	t.Run("MissingAgent", func(t *testing.T) {
		lru := cache.NewLRUCache(10)
		defer lru.Close()
		l := NewLimiter(lru, 5, time.Minute)
		if _, _, err := l.Allow(ctx, ""); err == nil {
			t.Error("expected error for empty agent")
		}
	})

	t.Run("DefaultWindow", func(t *testing.T) {
		if w := NewLimiter(nil, 5, 0).Window(); w != time.Minute {
			t.Errorf("expected 1m default window, got %s", w)
		}
	})
}
