package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		clock := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return clock }

		_ = c.Set(ctx, "expiring", []byte("temp"), 10*time.Second)

		val, _ := c.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		clock = clock.Add(11 * time.Second)

		val, _ = c.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("ZeroTTLDoesNotExpire", func(t *testing.T) {
		clock := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return clock }

		_ = c.Set(ctx, "forever", []byte("v"), 0)
		clock = clock.Add(24 * time.Hour)

		if val, _ := c.Get(ctx, "forever"); val == nil {
			t.Error("expected entry with zero TTL to persist")
		}
	})

	t.Run("SetNX", func(t *testing.T) {
		clock := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return clock }

		ok, err := c.SetNX(ctx, "photo:abc", []byte("evt-1"), time.Minute)
		if err != nil || !ok {
			t.Fatalf("expected first SetNX to succeed, got %v %v", ok, err)
		}

		ok, _ = c.SetNX(ctx, "photo:abc", []byte("evt-2"), time.Minute)
		if ok {
			t.Error("expected second SetNX to fail")
		}

		val, _ := c.Get(ctx, "photo:abc")
		if string(val) != "evt-1" {
			t.Errorf("expected first writer to win, got '%s'", string(val))
		}

		clock = clock.Add(2 * time.Minute)
		ok, _ = c.SetNX(ctx, "photo:abc", []byte("evt-3"), time.Minute)
		if !ok {
			t.Error("expected SetNX to succeed after expiry")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		// 'b' should be evicted
		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		// 'a' should still be there
		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		clock := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return clock }
		window := 100 * time.Millisecond

		count1, err := c.IncrementCounter(ctx, "uploads", window)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count1 != 1 {
			t.Errorf("expected count 1, got %d", count1)
		}

		count2, _ := c.IncrementCounter(ctx, "uploads", window)
		if count2 != 2 {
			t.Errorf("expected count 2, got %d", count2)
		}

		clock = clock.Add(150 * time.Millisecond)

		count3, _ := c.IncrementCounter(ctx, "uploads", window)
		if count3 != 1 {
			t.Errorf("expected count 1 after window reset, got %d", count3)
		}
	})

	t.Run("JSONHelpers", func(t *testing.T) {
		profile := domain.NewDefaultProfile("agent-1", time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC))

		if err := SetJSON(ctx, cache, "profile:agent-1", profile, time.Minute); err != nil {
			t.Fatalf("SetJSON failed: %v", err)
		}

		got, err := GetJSON[domain.BehaviorProfile](ctx, cache, "profile:agent-1")
		if err != nil {
			t.Fatalf("GetJSON failed: %v", err)
		}
		if got.AgentID != "agent-1" || got.AverageSaleAmount != profile.AverageSaleAmount {
			t.Errorf("unexpected profile round trip: %+v", got)
		}

		missing, err := GetJSON[domain.BehaviorProfile](ctx, cache, "profile:nobody")
		if err != nil || missing != nil {
			t.Errorf("expected nil miss, got %v %v", missing, err)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, "k", []byte("v"), time.Minute)

		err := testCache.Close()
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}

		// Cache should be empty after close
		val, _ := testCache.Get(ctx, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()

	t.Run("GetHitAndMiss", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCacheFromClient(db)

		mock.ExpectGet("harrier:profile:agent-1").SetVal(`{"agentId":"agent-1"}`)
		mock.ExpectGet("harrier:profile:agent-2").RedisNil()

		val, err := cache.Get(ctx, "profile:agent-1")
		if err != nil || string(val) != `{"agentId":"agent-1"}` {
			t.Errorf("unexpected hit result: %s %v", val, err)
		}

		val, err = cache.Get(ctx, "profile:agent-2")
		if err != nil || val != nil {
			t.Errorf("expected nil miss, got %s %v", val, err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("GetError", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCacheFromClient(db)

		mock.ExpectGet("harrier:k").SetErr(errors.New("connection refused"))

		if _, err := cache.Get(ctx, "k"); err == nil {
			t.Error("expected error to propagate")
		}
	})

	t.Run("SetAndDelete", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCacheFromClient(db)

		mock.ExpectSet("harrier:k", []byte("v"), time.Minute).SetVal("OK")
		mock.ExpectDel("harrier:k").SetVal(1)

		if err := cache.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
			t.Errorf("Set failed: %v", err)
		}
		if err := cache.Delete(ctx, "k"); err != nil {
			t.Errorf("Delete failed: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("SetNX", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCacheFromClient(db)

		mock.ExpectSetNX("harrier:photo:abc", []byte("evt-1"), time.Hour).SetVal(true)
		mock.ExpectSetNX("harrier:photo:abc", []byte("evt-2"), time.Hour).SetVal(false)

		ok, err := cache.SetNX(ctx, "photo:abc", []byte("evt-1"), time.Hour)
		if err != nil || !ok {
			t.Errorf("expected first SetNX to win, got %v %v", ok, err)
		}
		ok, err = cache.SetNX(ctx, "photo:abc", []byte("evt-2"), time.Hour)
		if err != nil || ok {
			t.Errorf("expected second SetNX to lose, got %v %v", ok, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCacheFromClient(db)

		mock.ExpectPing().SetVal("PONG")
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()

	t.Run("ReadThroughPopulatesL1", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		local := NewLRUCache(10)
		c := NewTwoPhase(local, NewRedisCacheFromClient(db), time.Minute)

		mock.ExpectGet("harrier:k").SetVal("remote")

		val, err := c.Get(ctx, "k")
		if err != nil || string(val) != "remote" {
			t.Fatalf("unexpected L2 read: %s %v", val, err)
		}

		// Second read is served by L1; no further Redis expectation is set.
		val, err = c.Get(ctx, "k")
		if err != nil || string(val) != "remote" {
			t.Fatalf("unexpected L1 read: %s %v", val, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("SetNXDecidedByL2", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		local := NewLRUCache(10)
		c := NewTwoPhase(local, NewRedisCacheFromClient(db), time.Minute)

		mock.ExpectSetNX("harrier:photo:x", []byte("a"), time.Hour).SetVal(false)

		ok, err := c.SetNX(ctx, "photo:x", []byte("a"), time.Hour)
		if err != nil || ok {
			t.Errorf("expected remote refusal, got %v %v", ok, err)
		}
		if val, _ := local.Get(ctx, "photo:x"); val != nil {
			t.Error("L1 must not be populated when L2 refuses")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100,
		}

		cache, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		_, ok := cache.(*LRUCache)
		if !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type: "memcached",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
