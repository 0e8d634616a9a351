package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store bounded by an LRU capacity. Each entry
// expires after its own ttl measured with the store's clock.
type MemoryStore struct {
	entries *lru.LRU[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryStore creates a store holding at most capacity entries. maxTTL is
// the sweep horizon of the underlying LRU and must be at least the largest
// ttl passed to Set.
func NewMemoryStore(capacity int, maxTTL time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryStore{
		entries: lru.NewLRU[string, memoryEntry](capacity, nil, maxTTL),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for expiry checks.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := s.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		s.entries.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.entries.Add(key, memoryEntry{value: value, expiresAt: s.now().Add(ttl)})
	return nil
}

// Len reports the number of entries currently held.
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}
