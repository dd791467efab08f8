package permcache

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/teamboard/internal/resolver"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxEntries = 10000

// MemoryStore is a size-bounded LRU. Expiry is checked lazily on read so tests can
// drive it with a fake clock.
type MemoryStore struct {
	cache *lru.Cache[Key, Entry]
	now   func() time.Time
}

type MemoryOption func(*MemoryStore)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(maxEntries int, opts ...MemoryOption) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}

	cache, err := lru.New[Key, Entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}

	s := &MemoryStore{cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*resolver.Resolution, bool, error) {
	entry, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(s.now()) {
		s.cache.Remove(key)
		return nil, false, nil
	}
	return entry.Resolution, true, nil
}

func (s *MemoryStore) Put(_ context.Context, key Key, res *resolver.Resolution, ttl time.Duration) error {
	if ttl <= 0 || res == nil {
		return nil
	}
	s.cache.Add(key, newEntry(res, s.now(), ttl))
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, key Key) error {
	s.cache.Remove(key)
	return nil
}

func (s *MemoryStore) InvalidateAll(_ context.Context) error {
	s.cache.Purge()
	return nil
}

func (s *MemoryStore) Backend() string {
	return BackendMemory
}

func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
