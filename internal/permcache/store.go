package permcache

import (
	"context"
	"time"

	"github.com/frahmantamala/teamboard/internal/resolver"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Key identifies one cached permission set.
type Key struct {
	UserID string
	TeamID string
}

// Entry is a cached resolution. It is a miss once now reaches ExpiresAt, which is
// always after LastUpdated.
type Entry struct {
	Resolution  *resolver.Resolution `json:"resolution"`
	LastUpdated time.Time            `json:"last_updated"`
	ExpiresAt   time.Time            `json:"expires_at"`
}

func newEntry(res *resolver.Resolution, now time.Time, ttl time.Duration) Entry {
	return Entry{Resolution: res, LastUpdated: now, ExpiresAt: now.Add(ttl)}
}

func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store holds resolutions keyed by (user, team). Implementations must treat an
// expired entry as absent and must not store anything for a non-positive ttl.
type Store interface {
	Get(ctx context.Context, key Key) (*resolver.Resolution, bool, error)
	Put(ctx context.Context, key Key, res *resolver.Resolution, ttl time.Duration) error
	Invalidate(ctx context.Context, key Key) error
	InvalidateAll(ctx context.Context) error
	Backend() string
}
