package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMemory(t *testing.T, maxEntries int) (*MemoryBackend, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	m, err := NewMemoryBackend(maxEntries, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}

	return m, clock
}

func TestMemoryBackend_GetSet(t *testing.T) {
	m, _ := newTestMemory(t, 10)
	ctx := context.Background()

	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := m.Set(ctx, "a", []byte("v1"), time.Minute); err != nil {
		t.Fatal(err)
	}

	v, ok, err := m.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}

	if !ok || string(v) != "v1" {
		t.Errorf("Get = %q, %v; want v1, true", v, ok)
	}

	if err := m.Set(ctx, "a", []byte("v2"), time.Minute); err != nil {
		t.Fatal(err)
	}

	v, _, _ = m.Get(ctx, "a")
	if string(v) != "v2" {
		t.Errorf("overwrite: got %q, want v2", v)
	}
}

func TestMemoryBackend_TTLCheckedAtRead(t *testing.T) {
	m, clock := newTestMemory(t, 10)
	ctx := context.Background()

	if err := m.Set(ctx, "a", []byte("v"), time.Hour); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Hour - time.Second)

	if _, ok, _ := m.Get(ctx, "a"); !ok {
		t.Error("expected hit just before expiry")
	}

	clock.Advance(time.Second)

	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("expected miss at expiry")
	}

	if m.lru.Contains("a") {
		t.Error("expired entry should be evicted on read")
	}
}

func TestMemoryBackend_NoTTL(t *testing.T) {
	m, clock := newTestMemory(t, 10)
	ctx := context.Background()

	_ = m.Set(ctx, "a", []byte("v"), 0)
	clock.Advance(1000 * time.Hour)

	if _, ok, _ := m.Get(ctx, "a"); !ok {
		t.Error("entry without ttl should not expire")
	}
}

func TestMemoryBackend_Delete(t *testing.T) {
	m, _ := newTestMemory(t, 10)
	ctx := context.Background()

	_ = m.Set(ctx, "a", []byte("v"), time.Minute)

	existed, err := m.Delete(ctx, "a")
	if err != nil || !existed {
		t.Errorf("Delete = %v, %v; want true, nil", existed, err)
	}

	existed, _ = m.Delete(ctx, "a")
	if existed {
		t.Error("second Delete should report false")
	}
}

func TestMemoryBackend_PrefixOperations(t *testing.T) {
	m, clock := newTestMemory(t, 10)
	ctx := context.Background()

	_ = m.Set(ctx, "matches:v2:u1", []byte("1"), time.Minute)
	_ = m.Set(ctx, "matches:v2:u2", []byte("2"), time.Hour)
	_ = m.Set(ctx, "other:u3", []byte("3"), time.Hour)

	count, err := m.CountPrefix(ctx, "matches:v2:")
	if err != nil || count != 2 {
		t.Errorf("CountPrefix = %d, %v; want 2, nil", count, err)
	}

	clock.Advance(2 * time.Minute)

	count, _ = m.CountPrefix(ctx, "matches:v2:")
	if count != 1 {
		t.Errorf("CountPrefix after expiry = %d, want 1", count)
	}

	removed, err := m.DeletePrefix(ctx, "matches:v2:")
	if err != nil || removed != 1 {
		t.Errorf("DeletePrefix = %d, %v; want 1, nil", removed, err)
	}

	if _, ok, _ := m.Get(ctx, "other:u3"); !ok {
		t.Error("keys outside the prefix must survive")
	}
}

func TestMemoryBackend_EvictsLeastRecentlyUsed(t *testing.T) {
	m, _ := newTestMemory(t, 2)
	ctx := context.Background()

	_ = m.Set(ctx, "a", []byte("a"), 0)
	_ = m.Set(ctx, "b", []byte("b"), 0)
	_, _, _ = m.Get(ctx, "a")
	_ = m.Set(ctx, "c", []byte("c"), 0)

	if _, ok, _ := m.Get(ctx, "b"); ok {
		t.Error("b should have been evicted")
	}

	if _, ok, _ := m.Get(ctx, "a"); !ok {
		t.Error("a should still be cached")
	}
}

func TestOpen_FallsBackToMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("no redis url", func(t *testing.T) {
		b, err := Open(ctx, OpenConfig{})
		if err != nil {
			t.Fatal(err)
		}

		if b.Name() != "memory" {
			t.Errorf("Name = %q, want memory", b.Name())
		}
	})

	t.Run("invalid redis url", func(t *testing.T) {
		b, err := Open(ctx, OpenConfig{RedisURL: "not-a-url://"})
		if err != nil {
			t.Fatal(err)
		}

		if b.Name() != "memory" {
			t.Errorf("Name = %q, want memory", b.Name())
		}
	})
}
