package statscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCache(rdb, ttl), mr
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	want := Stats{Total: 10, Completed: 4, Pending: 5, Overdue: 1}
	if err := cache.Set(ctx, 1, want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := cache.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestCache_MissReturnsNilNil(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)

	got, err := cache.Get(context.Background(), 99)
	if err != nil {
		t.Fatalf("miss must not be an error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil on miss, got %+v", got)
	}
}

func TestCache_KeysAreScopedByUser(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, 1, Stats{Total: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Set(ctx, 2, Stats{Total: 2}); err != nil {
		t.Fatalf("set: %v", err)
	}

	got1, _ := cache.Get(ctx, 1)
	got2, _ := cache.Get(ctx, 2)
	if got1 == nil || got2 == nil || got1.Total != 1 || got2.Total != 2 {
		t.Fatalf("expected per-user entries, got %+v / %+v", got1, got2)
	}
}

func TestCache_Invalidate(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, 1, Stats{Total: 3}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Invalidate(ctx, 1); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	got, err := cache.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected entry gone after invalidate, got %+v", got)
	}
}

func TestCache_EntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t, 10*time.Second)
	ctx := context.Background()

	if err := cache.Set(ctx, 1, Stats{Total: 3}); err != nil {
		t.Fatalf("set: %v", err)
	}

	mr.FastForward(11 * time.Second)

	got, err := cache.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected entry expired, got %+v", got)
	}
}

func TestCache_CorruptEntryIsAMiss(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	mr.Set("todohive:stats:user:1", "{not json")

	got, err := cache.Get(ctx, 1)
	if err != nil {
		t.Fatalf("corrupt entry must not be an error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected corrupt entry treated as miss, got %+v", got)
	}
}

func TestCache_NilReceiverIsNoop(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	if err := cache.Set(ctx, 1, Stats{Total: 1}); err != nil {
		t.Fatalf("nil cache set: %v", err)
	}
	got, err := cache.Get(ctx, 1)
	if err != nil || got != nil {
		t.Fatalf("nil cache get: %+v, %v", got, err)
	}
	if err := cache.Invalidate(ctx, 1); err != nil {
		t.Fatalf("nil cache invalidate: %v", err)
	}
}
