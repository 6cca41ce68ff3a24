package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/netmap/internal/metrics"
	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a cached viewport result is served.
const DefaultCacheTTL = 5 * time.Minute

// cacheBackend stores viewport results by key.
type cacheBackend interface {
	name() string
	get(ctx context.Context, key string) ([]types.Location, bool, error)
	set(ctx context.Context, key string, locs []types.Location) error
}

// CachedStore memoizes viewport fetches of another store. Region fetches pass
// through untouched.
type CachedStore struct {
	Store
	backend cacheBackend
	logger  *slog.Logger
}

// NewMemoryCache wraps store with an in-process LRU holding up to size results.
func NewMemoryCache(store Store, size int, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return newCachedStore(store, &lruBackend{lru: expirable.NewLRU[string, []types.Location](size, nil, ttl)}, logger)
}

// NewRedisCache wraps store with a redis-backed cache.
func NewRedisCache(store Store, rc *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return newCachedStore(store, &redisBackend{rc: rc, ttl: ttl}, logger)
}

func newCachedStore(store Store, backend cacheBackend, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{Store: store, backend: backend, logger: logger.With("cache", backend.name())}
}

func cacheKey(region string, bbox types.BoundingBox) string {
	return "netmap:viewport:" + region + ":" + bbox.Key()
}

// FetchViewportLocations serves bbox from the cache, falling back to the
// wrapped store. Backend errors are logged and treated as misses.
func (c *CachedStore) FetchViewportLocations(ctx context.Context, region string, bbox types.BoundingBox) ([]types.Location, error) {
	key := cacheKey(region, bbox)

	locs, ok, err := c.backend.get(ctx, key)
	if err != nil {
		c.logger.Warn("Cache read failed", "key", key, "error", err)
	}
	if ok {
		metrics.CacheHitsTotal.WithLabelValues(c.backend.name()).Inc()
		return locs, nil
	}
	metrics.CacheMissesTotal.WithLabelValues(c.backend.name()).Inc()

	locs, err = c.Store.FetchViewportLocations(ctx, region, bbox)
	if err != nil {
		return nil, err
	}
	if err := c.backend.set(ctx, key, locs); err != nil {
		c.logger.Warn("Cache write failed", "key", key, "error", err)
	}
	return locs, nil
}

type lruBackend struct {
	lru *expirable.LRU[string, []types.Location]
}

func (b *lruBackend) name() string { return "memory" }

func (b *lruBackend) get(_ context.Context, key string) ([]types.Location, bool, error) {
	locs, ok := b.lru.Get(key)
	return locs, ok, nil
}

func (b *lruBackend) set(_ context.Context, key string, locs []types.Location) error {
	b.lru.Add(key, locs)
	return nil
}

type redisBackend struct {
	rc  *redis.Client
	ttl time.Duration
}

func (b *redisBackend) name() string { return "redis" }

func (b *redisBackend) get(ctx context.Context, key string) ([]types.Location, bool, error) {
	s, err := b.rc.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var locs []types.Location
	if err := json.Unmarshal([]byte(s), &locs); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached viewport: %w", err)
	}
	return locs, true, nil
}

func (b *redisBackend) set(ctx context.Context, key string, locs []types.Location) error {
	if locs == nil {
		locs = []types.Location{}
	}
	data, err := json.Marshal(locs)
	if err != nil {
		return fmt.Errorf("failed to encode viewport: %w", err)
	}
	return b.rc.Set(ctx, key, string(data), b.ttl).Err()
}

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}
