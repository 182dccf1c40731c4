package conncache

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache[T any](opts Options[T]) (*Cache[T], *clock) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(opts)
	c.now = clk.Now
	return c, clk
}

func TestCacheBasic(t *testing.T) {
	cache, _ := newTestCache(Options[string]{})
	defer cache.Close()

	cache.Put("key1", "value1")
	val, found := cache.Get("key1")
	if !found {
		t.Fatal("expected to find key1 in cache")
	}
	if val != "value1" {
		t.Fatalf("expected value1, got %s", val)
	}
	if _, found := cache.Get("key2"); found {
		t.Fatal("expected not to find key2 in cache")
	}
}

func TestCacheTTL(t *testing.T) {
	var closed []string
	cache, clk := newTestCache(Options[string]{
		TTL:   time.Minute,
		Close: func(s string) error { closed = append(closed, s); return nil },
	})
	defer cache.Close()

	cache.Put("key1", "value1")
	clk.Advance(30 * time.Second)
	if _, found := cache.Get("key1"); !found {
		t.Fatal("expected to find key1 before the TTL")
	}
	clk.Advance(31 * time.Second)
	if _, found := cache.Get("key1"); found {
		t.Fatal("expected key1 to be expired")
	}
	if len(closed) != 1 || closed[0] != "value1" {
		t.Fatalf("expected the expired connection to be closed, got %v", closed)
	}
}

func TestCacheHealthCheck(t *testing.T) {
	healthy := true
	cache, _ := newTestCache(Options[string]{
		Health: func(string) error {
			if !healthy {
				return errors.New("connection reset")
			}
			return nil
		},
	})
	defer cache.Close()

	cache.Put("key1", "value1")
	if _, found := cache.Get("key1"); !found {
		t.Fatal("expected to find key1 when the health check passes")
	}
	healthy = false
	if _, found := cache.Get("key1"); found {
		t.Fatal("expected key1 to be evicted after a failed health check")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected an empty cache, got %d", cache.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache, clk := newTestCache(Options[int]{MaxSize: 3})
	defer cache.Close()

	for i, key := range []string{"key1", "key2", "key3"} {
		cache.Put(key, i)
		clk.Advance(time.Second)
	}
	cache.Get("key1")
	clk.Advance(time.Second)
	cache.Put("key4", 4)

	if cache.Len() != 3 {
		t.Fatalf("expected cache size 3 after eviction, got %d", cache.Len())
	}
	if _, found := cache.Get("key2"); found {
		t.Fatal("expected key2 to be evicted")
	}
	for _, key := range []string{"key1", "key3", "key4"} {
		if _, found := cache.Get(key); !found {
			t.Fatalf("expected %s to still be cached", key)
		}
	}
}

func TestCachePutReplaces(t *testing.T) {
	var closed []int
	cache, _ := newTestCache(Options[int]{Close: func(i int) error { closed = append(closed, i); return nil }})
	defer cache.Close()

	cache.Put("k", 1)
	cache.Put("k", 2)
	if v, _ := cache.Get("k"); v != 2 {
		t.Fatalf("expected 2, got %d", v)
	}
	if len(closed) != 1 || closed[0] != 1 {
		t.Fatalf("expected the replaced connection to be closed, got %v", closed)
	}
}

func TestCacheGetOrOpen(t *testing.T) {
	cache, _ := newTestCache(Options[int]{})
	defer cache.Close()

	opens := 0
	open := func() (int, error) { opens++; return 42, nil }
	for i := 0; i < 3; i++ {
		v, err := cache.GetOrOpen("db", open)
		if err != nil || v != 42 {
			t.Fatalf("GetOrOpen() = %d, %v", v, err)
		}
	}
	if opens != 1 {
		t.Fatalf("expected one open, got %d", opens)
	}

	_, err := cache.GetOrOpen("broken", func() (int, error) { return 0, errors.New("refused") })
	if err == nil {
		t.Fatal("expected the open error")
	}
	if cache.Len() != 1 {
		t.Fatalf("failed opens must not be cached, size %d", cache.Len())
	}
}

func TestCacheConcurrent(t *testing.T) {
	cache := New(Options[int]{MaxSize: 100})
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(v int) {
			defer wg.Done()
			cache.Put("key", v)
		}(i)
		go func() {
			defer wg.Done()
			cache.Get("key")
		}()
	}
	wg.Wait()

	cache.Put("final", 999)
	if v, found := cache.Get("final"); !found || v != 999 {
		t.Fatal("cache corrupted after concurrent access")
	}
}

func TestCacheCleanup(t *testing.T) {
	cache := New(Options[string]{TTL: 50 * time.Millisecond})
	cache.cleanupTick = 20 * time.Millisecond
	defer cache.Close()

	cache.Put("key1", "value1")
	cache.Put("key2", "value2")

	deadline := time.Now().Add(2 * time.Second)
	for cache.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected cleanup to empty the cache, size %d", cache.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCacheClose(t *testing.T) {
	closeCount := 0
	cache := New(Options[string]{
		Close: func(s string) error {
			closeCount++
			if s == "bad" {
				return errors.New("close failed")
			}
			return nil
		},
	})
	cache.Put("key1", "value1")
	cache.Put("key2", "bad")
	cache.Put("key3", "value3")

	if err := cache.Close(); err == nil {
		t.Fatal("expected the close error to be reported")
	}
	if closeCount != 3 {
		t.Fatalf("expected 3 closes, got %d", closeCount)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected cache size 0 after close, got %d", cache.Len())
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}
}
