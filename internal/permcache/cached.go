package permcache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/teamboard/internal/resolver"
	"github.com/frahmantamala/teamboard/pkg/metrics"
)

// CachedSource serves resolutions from a Store and falls back to the wrapped source on
// a miss. Each miss makes exactly one resolver call; concurrent misses for the same key
// recompute independently. Resolver errors are returned as-is and never cached.
type CachedSource struct {
	source  resolver.Source
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	// generation moves on every invalidation; a resolution computed across a move is
	// returned but not stored.
	generation atomic.Uint64
}

func NewCachedSource(source resolver.Source, store Store, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *CachedSource {
	return &CachedSource{
		source:  source,
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

func (c *CachedSource) Resolve(ctx context.Context, userID, teamID string) (*resolver.Resolution, error) {
	key := Key{UserID: userID, TeamID: teamID}

	res, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "permission cache read failed, resolving directly",
			"backend", c.store.Backend(),
			"user_id", userID,
			"team_id", teamID,
			"error", err)
	}
	if ok {
		c.metrics.RecordCacheHit(c.store.Backend())
		return res, nil
	}
	c.metrics.RecordCacheMiss(c.store.Backend())

	gen := c.generation.Load()
	res, err = c.source.Resolve(ctx, userID, teamID)
	if err != nil {
		return nil, err
	}
	if c.generation.Load() == gen {
		if err := c.store.Put(ctx, key, res, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "permission cache write failed",
				"backend", c.store.Backend(),
				"user_id", userID,
				"team_id", teamID,
				"error", err)
		}
	}
	return res, nil
}

// Invalidate drops the cached sets of keys. Every key is attempted; the first
// failure is returned.
func (c *CachedSource) Invalidate(ctx context.Context, trigger string, keys ...Key) error {
	c.generation.Add(1)

	var first error
	dropped := 0
	for _, key := range keys {
		if err := c.store.Invalidate(ctx, key); err != nil {
			c.logger.ErrorContext(ctx, "permission cache invalidation failed",
				"backend", c.store.Backend(),
				"trigger", trigger,
				"user_id", key.UserID,
				"team_id", key.TeamID,
				"error", err)
			if first == nil {
				first = err
			}
			continue
		}
		dropped++
	}
	c.metrics.RecordInvalidation(trigger, dropped)
	return first
}

func (c *CachedSource) InvalidateAll(ctx context.Context, trigger string) error {
	c.generation.Add(1)

	if err := c.store.InvalidateAll(ctx); err != nil {
		c.logger.ErrorContext(ctx, "permission cache flush failed", "backend", c.store.Backend(), "trigger", trigger, "error", err)
		return err
	}
	c.metrics.RecordInvalidation(trigger, 1)
	return nil
}

func (c *CachedSource) Backend() string {
	return c.store.Backend()
}
