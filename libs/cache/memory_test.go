package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(8, time.Hour)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Set(ctx, "schedule:weekly:1", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, "schedule:weekly:1")
	if err != nil || string(got) != "v" {
		t.Fatalf("expected hit, got %q err=%v", got, err)
	}

	now = now.Add(time.Minute)
	if _, err := c.Get(ctx, "schedule:weekly:1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry removed on read, %d left", c.Len())
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(2, time.Hour)
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), time.Hour)
	_ = c.Set(ctx, "b", []byte("2"), time.Hour)
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("get a: %v", err)
	}
	_ = c.Set(ctx, "c", []byte("3"), time.Hour)

	if _, err := c.Get(ctx, "b"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	for _, k := range []string{"a", "c"} {
		if _, err := c.Get(ctx, k); err != nil {
			t.Fatalf("expected %s kept, got %v", k, err)
		}
	}
}

func TestMemoryCacheDeleteAndIsolation(t *testing.T) {
	c := NewMemoryCache(8, time.Hour)
	ctx := context.Background()

	buf := []byte("abc")
	_ = c.Set(ctx, "k", buf, time.Hour)
	buf[0] = 'z'
	got, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("cache must copy values, got %q", got)
	}

	_ = c.Delete(ctx, "k")
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}
