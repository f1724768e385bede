package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryMaxEntries bounds the memory backend when no size is configured.
const DefaultMemoryMaxEntries = 10000

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// MemoryBackend is an in-process LRU. TTL is checked at read time; expired entries
// are removed when they are read or counted.
type MemoryBackend struct {
	lru *lru.Cache[string, memoryItem]
	now func() time.Time
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryBackend) {
		m.now = now
	}
}

// NewMemoryBackend creates a memory backend holding at most maxEntries keys.
func NewMemoryBackend(maxEntries int, opts ...MemoryOption) (*MemoryBackend, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryMaxEntries
	}

	c, err := lru.New[string, memoryItem](maxEntries)
	if err != nil {
		return nil, err
	}

	m := &MemoryBackend{lru: c, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return "memory" }

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}

	if item.expired(m.now()) {
		m.lru.Remove(key)

		return nil, false, nil
	}

	return item.value, true, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}

	m.lru.Add(key, item)

	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, key string) (bool, error) {
	return m.lru.Remove(key), nil
}

// DeletePrefix implements Backend.
func (m *MemoryBackend) DeletePrefix(_ context.Context, prefix string) (int, error) {
	removed := 0

	for _, key := range m.lru.Keys() {
		if strings.HasPrefix(key, prefix) && m.lru.Remove(key) {
			removed++
		}
	}

	return removed, nil
}

// CountPrefix implements Backend.
func (m *MemoryBackend) CountPrefix(_ context.Context, prefix string) (int, error) {
	now := m.now()
	count := 0

	for _, key := range m.lru.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		item, ok := m.lru.Peek(key)
		if !ok {
			continue
		}

		if item.expired(now) {
			m.lru.Remove(key)

			continue
		}

		count++
	}

	return count, nil
}
