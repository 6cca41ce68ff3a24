// Package metrics holds the prometheus collectors of the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000}

var (
	IndexBuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netmap_index_builds_total",
		Help: "Cluster index builds by category",
	}, []string{"category"})
	IndexBuildSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netmap_index_build_skipped_total",
		Help: "Cluster index builds skipped because the input was unchanged",
	})
	IndexBuildDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "netmap_index_build_duration_ms",
		Help:    "Cluster index build duration in milliseconds",
		Buckets: durationBuckets,
	})
	ViewportFetchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netmap_viewport_fetches_total",
		Help: "Viewport location fetches issued",
	})
	ViewportFetchFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netmap_viewport_fetch_fail_total",
		Help: "Viewport location fetches that failed",
	})
	ViewportFetchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "netmap_viewport_fetch_duration_ms",
		Help:    "Viewport location fetch duration in milliseconds",
		Buckets: durationBuckets,
	})
	StaleResponsesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netmap_stale_responses_total",
		Help: "Viewport responses dropped because a newer request was issued",
	})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netmap_cache_hits_total",
		Help: "Viewport cache hits by backend",
	}, []string{"backend"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netmap_cache_misses_total",
		Help: "Viewport cache misses by backend",
	}, []string{"backend"})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netmap_sessions_active",
		Help: "Map views currently held by the server",
	})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netmap_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(IndexBuildsTotal)
	prometheus.MustRegister(IndexBuildSkippedTotal)
	prometheus.MustRegister(IndexBuildDurationMs)
	prometheus.MustRegister(ViewportFetchesTotal)
	prometheus.MustRegister(ViewportFetchFailTotal)
	prometheus.MustRegister(ViewportFetchDurationMs)
	prometheus.MustRegister(StaleResponsesTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(HTTPRequestsTotal)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler { return promhttp.Handler() }
