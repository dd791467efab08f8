package permcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/teamboard/internal/resolver"
	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "teamboard:perm"

// RedisStore shares cached resolutions between instances. Keys are prefixed with a
// generation number so InvalidateAll is a single INCR instead of a key scan.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	now       func() time.Time
}

type RedisOption func(*RedisStore)

func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) { s.now = now }
}

func NewRedisStore(client redis.UniversalClient, namespace string, opts ...RedisOption) *RedisStore {
	if namespace == "" {
		namespace = defaultNamespace
	}
	s := &RedisStore{client: client, namespace: namespace, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*resolver.Resolution, bool, error) {
	k, err := s.entryKey(ctx, key)
	if err != nil {
		return nil, false, err
	}

	payload, err := s.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", k, err)
	}

	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		// unreadable payloads are dropped and treated as a miss
		_ = s.client.Del(ctx, k).Err()
		return nil, false, nil
	}
	if entry.Resolution == nil || entry.Expired(s.now()) {
		return nil, false, nil
	}
	return entry.Resolution, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key Key, res *resolver.Resolution, ttl time.Duration) error {
	if ttl <= 0 || res == nil {
		return nil
	}

	k, err := s.entryKey(ctx, key)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(newEntry(res, s.now(), ttl))
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, k, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

func (s *RedisStore) Invalidate(ctx context.Context, key Key) error {
	k, err := s.entryKey(ctx, key)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, k).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis del %s: %w", k, err)
	}
	return nil
}

// InvalidateAll moves every reader to a fresh generation. Old keys age out by TTL.
func (s *RedisStore) InvalidateAll(ctx context.Context) error {
	if err := s.client.Incr(ctx, s.versionKey()).Err(); err != nil {
		return fmt.Errorf("redis incr %s: %w", s.versionKey(), err)
	}
	return nil
}

func (s *RedisStore) Backend() string {
	return BackendRedis
}

func (s *RedisStore) versionKey() string {
	return s.namespace + ":version"
}

func (s *RedisStore) entryKey(ctx context.Context, key Key) (string, error) {
	version, err := s.client.Get(ctx, s.versionKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redis get %s: %w", s.versionKey(), err)
	}
	// user and team ids may contain ':', so the user id is length-prefixed
	return fmt.Sprintf("%s:v%d:%d:%s:%s", s.namespace, version, len(key.UserID), key.UserID, key.TeamID), nil
}
