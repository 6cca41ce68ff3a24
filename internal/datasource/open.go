package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config selects and configures a store.
type Config struct {
	// Driver is one of sqlite, postgres, overpass or snapshot.
	Driver      string
	DSN         string
	SnapshotDir string

	OverpassEndpoint string
	Amenity          string

	// Cache is one of none, memory or redis.
	Cache         string
	CacheSize     int
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open creates the configured store, wrapped in a viewport cache when one is
// configured.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "", "sqlite", "postgres", "pgx":
		driver := cfg.Driver
		if driver == "" {
			driver = "sqlite"
		}
		dsn := cfg.DSN
		if dsn == "" && driver == "sqlite" {
			dsn = "netmap.db"
		}
		store, err = OpenSQL(ctx, driver, dsn, logger)
	case "overpass":
		store = NewOverpassStore(OverpassConfig{
			Endpoint: cfg.OverpassEndpoint,
			Amenity:  cfg.Amenity,
			Logger:   logger,
		})
	case "snapshot":
		dir := cfg.SnapshotDir
		if dir == "" {
			dir = "snapshots"
		}
		store = NewSnapshotStore(dir, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	switch cfg.Cache {
	case "", "none":
		return store, nil
	case "memory":
		logger.Debug("Viewport cache enabled", "backend", "memory", "size", cfg.CacheSize, "ttl", cfg.CacheTTL)
		return NewMemoryCache(store, cfg.CacheSize, cfg.CacheTTL, logger), nil
	case "redis":
		rc := OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if rc == nil {
			store.Close()
			return nil, fmt.Errorf("redis cache requires an address")
		}
		logger.Debug("Viewport cache enabled", "backend", "redis", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
		return NewRedisCache(store, rc, cfg.CacheTTL, logger), nil
	default:
		store.Close()
		return nil, fmt.Errorf("unknown cache kind %q", cfg.Cache)
	}
}
