package ratelimit

import (
	"context"
	"time"

	goCache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps per instance counters in go-cache. Entries expire with
// their window, so memory is bounded by the number of tenants active within
// one window.
type MemoryStore struct {
	cache *goCache.Cache
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: goCache.New(goCache.NoExpiration, cleanupInterval),
	}
}

func (s *MemoryStore) Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	k := windowKey(key, windowStart)
	// Add fails when the counter already exists, which is fine
	_ = s.cache.Add(k, int64(0), window+time.Second)
	count, err := s.cache.IncrementInt64(k, 1)
	if err != nil {
		// the window expired between Add and Increment
		s.cache.Set(k, int64(1), window)
		return 1, nil
	}
	return count, nil
}

// ItemCount reports live counters, used to check eviction
func (s *MemoryStore) ItemCount() int {
	s.cache.DeleteExpired()
	return s.cache.ItemCount()
}
