package cache

import (
	"errors"
	"testing"
	"time"
)

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b was least recently used and should be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("a = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be deleted")
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("old", "x")
	now = now.Add(30 * time.Second)
	c.Set("new", "y")
	now = now.Add(45 * time.Second)

	if _, ok := c.Get("old"); ok {
		t.Error("old should have expired")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Errorf("CleanExpired() = %d, Get already removed the only expired entry", n)
	}
	now = now.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}

	s := c.Stats()
	if s.Misses != 1 || s.Size != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestMemo(t *testing.T) {
	c := NewLRUCache[int](4, time.Minute)
	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	key := Key("debts", "home", 3)
	for range 3 {
		v, err := Memo[int](c, key, compute)
		if err != nil || v != 42 {
			t.Fatalf("Memo() = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := Memo[int](c, Key("debts", "home", 4), func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected error to pass through, got %v", err)
	}
	if _, ok := c.Get(Key("debts", "home", 4)); ok {
		t.Error("errors must not be cached")
	}
}

func TestManager_Sweep(t *testing.T) {
	c := NewLRUCache[int](4, time.Millisecond)
	c.Set("a", 1)
	m := NewManager(nil)
	m.Register(c)
	time.Sleep(5 * time.Millisecond)
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
}
