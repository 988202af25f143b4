package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache implements Cache with a size-bounded LRU. The LRU evicts entries
// after maxTTL; a shorter ttl passed to Set is enforced on read.
type MemoryCache struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache holds at most size entries, none longer than maxTTL.
func NewMemoryCache(size int, maxTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !m.now().Before(e.expiresAt) {
		m.lru.Remove(key)
		return nil, ErrCacheMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.lru.Add(key, memoryEntry{value: stored, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

func (m *MemoryCache) Len() int {
	return m.lru.Len()
}
