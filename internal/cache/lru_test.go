package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestLRUCacheEvictsOldest(t *testing.T) {
	var (
		evicted []string
		reasons []EvictReason
	)
	c := NewLRUCache[int](2, time.Hour, WithEvictCallback(func(k string, _ int, r EvictReason) {
		evicted = append(evicted, k)
		reasons = append(reasons, r)
	}))
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Set("c", 3) // b is least recently used
	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if c.Size() != 2 || len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("size=%d evicted=%v", c.Size(), evicted)
	}
	if reasons[0] != EvictCapacity {
		t.Fatalf("reason = %v, want capacity", reasons[0])
	}
}

func TestLRUCacheTTL(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	var evicted int
	c := NewLRUCache[string](10, time.Minute,
		WithClock[string](clk.now),
		WithEvictCallback(func(_ string, _ string, r EvictReason) {
			if r != EvictExpired {
				t.Errorf("reason = %v, want expired", r)
			}
			evicted++
		}))
	c.Set("a", "x")
	c.Set("b", "y")

	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", "y2") // restarts b's TTL

	clk.t = clk.t.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("a should be expired")
	}
	if v, ok := c.Get("b"); !ok || v != "y2" {
		t.Fatalf("b = %q, %v", v, ok)
	}

	clk.t = clk.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired removed %d, want 1", n)
	}
	if c.Size() != 0 || evicted != 2 {
		t.Fatalf("size=%d evicted=%d", c.Size(), evicted)
	}
}

func TestLRUCacheDeleteSkipsCallback(t *testing.T) {
	called := false
	c := NewLRUCache[int](2, time.Hour, WithEvictCallback(func(string, int, EvictReason) { called = true }))
	c.Set("a", 1)
	c.Delete("a")
	if called || c.Size() != 0 {
		t.Fatalf("called=%v size=%d", called, c.Size())
	}
}

type countCleaner struct{ n int }

func (c *countCleaner) CleanExpired() int { c.n++; return 1 }

func TestManagerCleanNowAndStop(t *testing.T) {
	m := NewManager()
	a, b := &countCleaner{}, &countCleaner{}
	m.Register(a)
	m.Register(b)
	if got := m.CleanNow(); got != 2 {
		t.Fatalf("CleanNow = %d", got)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
	if a.n != 1 || b.n != 1 {
		t.Fatalf("unexpected clean counts %d %d", a.n, b.n)
	}
}
