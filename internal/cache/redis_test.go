package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client, nil), mr
}

func TestCacheSetGet(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, HTMLKey("https://example.com"), "<html>hi</html>", time.Minute)
	got, ok := c.Get(ctx, HTMLKey("https://example.com"))
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != "<html>hi</html>" {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, JudgeKey("abc"), `{"similarity":0.9}`, 5*time.Minute)
	mr.FastForward(6 * time.Minute)
	if _, ok := c.Get(ctx, JudgeKey("abc")); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestNilCacheAlwaysMisses(t *testing.T) {
	t.Parallel()

	var c *Cache
	ctx := context.Background()

	// Neither call may panic or error; absence of the cache is a soft miss.
	c.Set(ctx, "k", "v", time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("nil cache must miss")
	}

	disabled, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New() with empty address should not fail: %v", err)
	}
	disabled.Set(ctx, "k", "v", time.Minute)
	if _, ok := disabled.Get(ctx, "k"); ok {
		t.Fatal("disabled cache must miss")
	}
}

func TestCacheSurvivesBackendLoss(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()
	mr.Close()

	c.Set(ctx, "k", "v", time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("unreachable backend must degrade to miss")
	}
}
