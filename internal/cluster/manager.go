package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/MeKo-Tech/netmap/internal/location"
	"github.com/MeKo-Tech/netmap/internal/metrics"
	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/MeKo-Tech/netmap/internal/worker"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Options Options
	// Workers bounds parallel index builds. Defaults to GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

type buildTask struct {
	category    types.Category
	locations   []types.Location
	fingerprint uint64
}

type entry struct {
	index       *Index
	fingerprint uint64
}

// Manager owns one Index per network category. Indices are replaced only by
// Rebuild; querying never rebuilds.
type Manager struct {
	opts   Options
	pool   *worker.Pool[buildTask, *Index]
	logger *slog.Logger

	mu      sync.RWMutex
	indices map[types.Category]entry
}

// NewManager creates an empty manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := cfg.Options.withDefaults()

	return &Manager{
		opts:   opts,
		logger: cfg.Logger,
		pool: worker.New(worker.Config[buildTask, *Index]{
			Workers: cfg.Workers,
			Fn: func(ctx context.Context, t buildTask) (*Index, error) {
				return NewIndex(opts, t.locations), nil
			},
		}),
		indices: make(map[types.Category]entry),
	}
}

// Options returns the clustering options shared by every index.
func (m *Manager) Options() Options { return m.opts }

// Rebuild brings the indices in line with byCategory. Categories whose input is
// unchanged keep their index, categories no longer present are dropped. It returns
// the rebuilt categories, sorted. On error the previous indices are kept.
func (m *Manager) Rebuild(ctx context.Context, byCategory map[types.Category][]types.Location) ([]types.Category, error) {
	m.mu.RLock()
	var tasks []buildTask
	for cat, locs := range byCategory {
		fp := location.Fingerprint(locs)
		if e, ok := m.indices[cat]; ok && e.fingerprint == fp {
			metrics.IndexBuildSkippedTotal.Inc()
			continue
		}
		tasks = append(tasks, buildTask{category: cat, locations: locs, fingerprint: fp})
	}
	dropped := 0
	for cat := range m.indices {
		if _, ok := byCategory[cat]; !ok {
			dropped++
		}
	}
	m.mu.RUnlock()

	if len(tasks) == 0 && dropped == 0 {
		return nil, nil
	}

	start := time.Now()
	results := m.pool.Run(ctx, tasks)
	built := make(map[types.Category]entry, len(results))
	for _, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("failed to build index for %q: %w", r.Task.category, r.Err)
		}
		built[r.Task.category] = entry{index: r.Value, fingerprint: r.Task.fingerprint}
		metrics.IndexBuildsTotal.WithLabelValues(string(r.Task.category)).Inc()
		metrics.IndexBuildDurationMs.Observe(float64(r.Elapsed.Milliseconds()))
	}

	m.mu.Lock()
	next := make(map[types.Category]entry, len(byCategory))
	for cat := range byCategory {
		if e, ok := built[cat]; ok {
			next[cat] = e
		} else if e, ok := m.indices[cat]; ok {
			next[cat] = e
		}
	}
	m.indices = next
	m.mu.Unlock()

	rebuilt := make([]types.Category, 0, len(built))
	for cat := range built {
		rebuilt = append(rebuilt, cat)
	}
	sort.Slice(rebuilt, func(i, j int) bool { return rebuilt[i] < rebuilt[j] })

	m.logger.Debug("Rebuilt cluster indices",
		"rebuilt", len(rebuilt),
		"dropped", dropped,
		"categories", len(next),
		"duration_ms", time.Since(start).Milliseconds())

	return rebuilt, nil
}

// Index returns the index of a category.
func (m *Manager) Index(cat types.Category) (*Index, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.indices[cat]
	return e.index, ok
}

// Categories returns the indexed categories, sorted.
func (m *Manager) Categories() []types.Category {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Category, 0, len(m.indices))
	for cat := range m.indices {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Query returns the visible clusters of every indexed category.
func (m *Manager) Query(v types.Viewport) map[types.Category][]Cluster {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.Category][]Cluster, len(m.indices))
	for cat, e := range m.indices {
		out[cat] = e.index.Query(v.BoundingBox, v.Zoom)
	}
	return out
}

// ExpansionZoom resolves a cluster of one category.
func (m *Manager) ExpansionZoom(cat types.Category, clusterID int64) (int, error) {
	idx, ok := m.Index(cat)
	if !ok {
		return 0, fmt.Errorf("category %q: %w", cat, ErrUnknownCluster)
	}
	return idx.ExpansionZoom(clusterID)
}

// Lookup resolves a cluster or leaf of one category.
func (m *Manager) Lookup(cat types.Category, clusterID int64) (Cluster, error) {
	idx, ok := m.Index(cat)
	if !ok {
		return Cluster{}, fmt.Errorf("category %q: %w", cat, ErrUnknownCluster)
	}
	return idx.Lookup(clusterID)
}

// Reset drops every index.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.indices = make(map[types.Category]entry)
	m.mu.Unlock()
}
