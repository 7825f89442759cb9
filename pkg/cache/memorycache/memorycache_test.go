package memorycache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestCacheGetSet(t *testing.T) {
	c, err := New(&Config{MaxSizeBytes: 1 << 20, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("expected miss for absent key")
	}

	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := c.Get(ctx, "k")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.(string) != "v" {
		t.Errorf("got %v, want v", got)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c, _ := New(&Config{MaxSizeBytes: 1 << 20, DefaultTTL: time.Minute})
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Nanosecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be removed, len=%d", c.Len())
	}
}

func TestCacheLRUEviction(t *testing.T) {
	// Room for roughly three entries with the custom sizer below.
	c, _ := New(&Config{
		MaxSizeBytes:  300,
		DefaultTTL:    time.Minute,
		Sizer:         func(string, interface{}) int64 { return 100 },
		EnableMetrics: true,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), i, 0)
	}
	// Touch k0 so k1 becomes the eviction candidate.
	c.Get(ctx, "k0")

	c.Set(ctx, "k3", 3, 0)

	if _, ok := c.Get(ctx, "k1"); ok {
		t.Error("expected least recently used key k1 to be evicted")
	}
	if _, ok := c.Get(ctx, "k0"); !ok {
		t.Error("expected recently used key k0 to survive")
	}

	m := c.Metrics()
	if m.KeysEvicted != 1 {
		t.Errorf("expected 1 eviction, got %d", m.KeysEvicted)
	}
}

func TestCacheClear(t *testing.T) {
	c, _ := New(&Config{MaxSizeBytes: 1 << 20, DefaultTTL: time.Minute})
	ctx := context.Background()

	c.Set(ctx, "a", 1, 0)
	c.Set(ctx, "b", 2, 0)
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, len=%d", c.Len())
	}
	if m := c.Metrics(); m.SizeBytes != 0 {
		t.Errorf("expected zero size, got %d", m.SizeBytes)
	}
}

func TestCacheMetricsHitRate(t *testing.T) {
	c, _ := New(&Config{MaxSizeBytes: 1 << 20, DefaultTTL: time.Minute, EnableMetrics: true})
	ctx := context.Background()

	c.Set(ctx, "k", "v", 0)
	c.Get(ctx, "k")
	c.Get(ctx, "nope")

	m := c.Metrics()
	if m.Hits != 1 || m.Misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %d / %d", m.Hits, m.Misses)
	}
	if rate := m.HitRate(); rate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", rate)
	}
}
