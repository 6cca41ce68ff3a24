package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/netmap/internal/datasource"
	"github.com/MeKo-Tech/netmap/internal/mapstate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	d := mapstate.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.String("cache", "none", "Viewport cache (none, memory, redis)")
	flags.String("redis-addr", "", "Redis address for the redis cache")
	flags.Duration("cache-ttl", datasource.DefaultCacheTTL, "Viewport cache entry lifetime")
	flags.Int("cache-size", 256, "Viewport cache entries for the memory cache")

	flags.Float64("zoom-threshold", d.Viewport.ZoomThreshold, "Zoom at and above which locations are loaded per viewport")
	flags.Duration("debounce", d.Viewport.Debounce, "Quiet window before a viewport fetch is issued")
	flags.Duration("fetch-timeout", d.Viewport.FetchTimeout, "Timeout per viewport fetch")
	flags.Float64("cluster-radius", d.Cluster.Radius, "Cluster radius in pixels")
	flags.Int("max-zoom", d.Cluster.MaxZoom, "Zoom at which clustering stops")
	flags.Int("min-points", d.Cluster.MinPoints, "Minimum points to form a cluster")
	flags.Int("index-workers", 0, "Parallel cluster index builds (default: number of CPUs)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"cache.kind", "cache"},
		{"cache.redis_addr", "redis-addr"},
		{"cache.ttl", "cache-ttl"},
		{"cache.size", "cache-size"},
		{"engine.zoom_threshold", "zoom-threshold"},
		{"engine.debounce", "debounce"},
		{"engine.fetch_timeout", "fetch-timeout"},
		{"engine.cluster_radius", "cluster-radius"},
		{"engine.max_zoom", "max-zoom"},
		{"engine.min_points", "min-points"},
		{"engine.workers", "index-workers"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, flags.Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func mustBind(cmd *cobra.Command, key, name string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func storeConfig() datasource.Config {
	return datasource.Config{
		Driver:           viper.GetString("store.driver"),
		DSN:              viper.GetString("store.dsn"),
		SnapshotDir:      viper.GetString("store.snapshot_dir"),
		OverpassEndpoint: viper.GetString("store.overpass_endpoint"),
		Amenity:          viper.GetString("store.amenity"),
		Cache:            viper.GetString("cache.kind"),
		CacheSize:        viper.GetInt("cache.size"),
		CacheTTL:         viper.GetDuration("cache.ttl"),
		RedisAddr:        viper.GetString("cache.redis_addr"),
		RedisPassword:    viper.GetString("cache.redis_password"),
		RedisDB:          viper.GetInt("cache.redis_db"),
	}
}

func engineConfig() mapstate.Config {
	cfg := mapstate.DefaultConfig()
	cfg.Viewport.ZoomThreshold = viper.GetFloat64("engine.zoom_threshold")
	cfg.Viewport.Debounce = viper.GetDuration("engine.debounce")
	cfg.Viewport.FetchTimeout = viper.GetDuration("engine.fetch_timeout")
	cfg.Cluster.Radius = viper.GetFloat64("engine.cluster_radius")
	cfg.Cluster.MaxZoom = viper.GetInt("engine.max_zoom")
	cfg.Cluster.MinPoints = viper.GetInt("engine.min_points")
	cfg.Workers = viper.GetInt("engine.workers")
	cfg.Logger = logger
	return cfg
}
