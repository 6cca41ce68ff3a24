// Package viewport decides between the full region dataset and a server-side
// viewport query, and keeps the viewport subset consistent under rapid map movement.
//
// Every fetch carries a request token. A response is applied only when its token is
// still the latest issued one, so an older response arriving late can never
// overwrite newer data.
package viewport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/netmap/internal/metrics"
	"github.com/MeKo-Tech/netmap/internal/types"
)

// Mode is the data source currently backing the map.
type Mode string

const (
	// ModeFull serves the complete region dataset.
	ModeFull Mode = "full"
	// ModeViewport serves locations fetched for the current bounding box.
	ModeViewport Mode = "viewport"
)

// Fetcher returns the active locations of a region inside a bounding box.
type Fetcher interface {
	FetchViewportLocations(ctx context.Context, region string, bbox types.BoundingBox) ([]types.Location, error)
}

// Config configures a Loader.
type Config struct {
	// ZoomThreshold is the zoom at and above which viewport mode is used.
	ZoomThreshold float64
	// Debounce is the quiet window collapsing rapid viewport events into one fetch.
	Debounce     time.Duration
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// DefaultConfig returns threshold 8, a 500ms debounce and a 15s fetch timeout.
func DefaultConfig() Config {
	return Config{ZoomThreshold: 8, Debounce: 500 * time.Millisecond, FetchTimeout: 15 * time.Second}
}

// State is a point-in-time copy of the loader.
type State struct {
	Mode Mode `json:"mode"`
	// PendingToken is the most recently issued request token.
	PendingToken uint64 `json:"pendingToken"`
	// AppliedToken is the token of the response currently held in Locations.
	AppliedToken uint64 `json:"appliedToken"`
	// Loaded is true once a viewport response was applied in the current viewport mode.
	Loaded    bool               `json:"loaded"`
	Locations []types.Location   `json:"-"`
	BBox      *types.BoundingBox `json:"bbox,omitempty"`
	Fetching  bool               `json:"fetching"`
	Notice    string             `json:"notice,omitempty"`
	// Version changes whenever Mode or Locations change.
	Version uint64 `json:"version"`
}

// Loader owns the viewport load state of one region.
type Loader struct {
	cfg     Config
	fetcher Fetcher
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	region   string
	mode     Mode
	closed   bool
	timer    *time.Timer
	seq      uint64 // debounce generation
	pending  *types.Viewport
	issued   uint64
	applied  uint64
	inflight string // bbox key of the latest issued fetch while unresolved
	loaded   bool
	bbox     types.BoundingBox
	locs     []types.Location
	notice   string
	version  uint64
}

// New creates a loader in full mode.
func New(cfg Config, region string, fetcher Fetcher) *Loader {
	d := DefaultConfig()
	if cfg.ZoomThreshold <= 0 {
		cfg.ZoomThreshold = d.ZoomThreshold
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = d.FetchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  cfg.Logger.With("region", region),
		ctx:     ctx,
		cancel:  cancel,
		region:  region,
		mode:    ModeFull,
	}
}

// Threshold returns the configured zoom threshold.
func (l *Loader) Threshold() float64 { return l.cfg.ZoomThreshold }

// OnViewportSettled records a settled viewport. Below the zoom threshold the loader
// switches to full mode at once; otherwise a fetch is scheduled after the debounce
// window. Invalid viewports are rejected and leave the state unchanged.
func (l *Loader) OnViewportSettled(v types.Viewport) error {
	if err := v.Validate(); err != nil {
		l.logger.Warn("Rejected viewport", "viewport", v.BoundingBox.String(), "zoom", v.Zoom, "error", err)
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}

	if v.Zoom < l.cfg.ZoomThreshold {
		l.enterFullLocked()
		return nil
	}

	if l.mode != ModeViewport {
		l.mode = ModeViewport
		l.version++
		l.logger.Debug("Entered viewport mode", "zoom", v.Zoom)
	}

	l.pending = &v
	l.stopTimerLocked()
	seq := l.seq
	l.timer = time.AfterFunc(l.cfg.Debounce, func() { l.fire(seq) })
	return nil
}

// enterFullLocked switches to full mode and supersedes any in-flight fetch.
func (l *Loader) enterFullLocked() {
	l.stopTimerLocked()
	l.pending = nil
	if l.inflight != "" {
		// Bumping the token drops the in-flight response on arrival.
		l.issued++
		l.inflight = ""
	}
	if l.mode == ModeFull && !l.loaded && l.locs == nil {
		return
	}
	l.mode = ModeFull
	l.loaded = false
	l.locs = nil
	l.bbox = types.BoundingBox{}
	l.notice = ""
	l.version++
	l.logger.Debug("Entered full mode")
}

func (l *Loader) stopTimerLocked() {
	l.seq++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Loader) fire(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || seq != l.seq {
		return
	}
	l.timer = nil
	l.issueLocked()
}

// Flush fires a pending debounced viewport immediately.
func (l *Loader) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.pending == nil {
		return
	}
	l.stopTimerLocked()
	l.issueLocked()
}

// issueLocked turns the pending viewport into a fetch with a fresh token. A bbox
// equal to the one in flight, or to the applied one with nothing in flight, is skipped.
func (l *Loader) issueLocked() {
	v := l.pending
	l.pending = nil
	if v == nil || l.mode != ModeViewport {
		return
	}

	key := v.Key()
	if key == l.inflight || (l.inflight == "" && l.loaded && key == l.bbox.Key()) {
		l.logger.Debug("Skipped identical viewport fetch", "bbox", key)
		return
	}

	l.issued++
	token := l.issued
	l.inflight = key
	region := l.region
	bbox := v.BoundingBox

	metrics.ViewportFetchesTotal.Inc()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(l.ctx, l.cfg.FetchTimeout)
		defer cancel()

		start := time.Now()
		locs, err := l.fetcher.FetchViewportLocations(ctx, region, bbox)
		metrics.ViewportFetchDurationMs.Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			err = fmt.Errorf("failed to fetch viewport %s: %w", bbox, err)
		}
		l.apply(token, bbox, locs, err)
	}()
}

// apply accepts a fetch result only if token is still the latest issued one.
func (l *Loader) apply(token uint64, bbox types.BoundingBox, locs []types.Location, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if token != l.issued {
		metrics.StaleResponsesTotal.Inc()
		l.logger.Debug("Dropped stale viewport response", "token", token, "latest", l.issued)
		return
	}
	l.inflight = ""

	if err != nil {
		metrics.ViewportFetchFailTotal.Inc()
		l.notice = "Could not refresh locations for this area; showing the last loaded data."
		l.logger.Warn("Viewport fetch failed, keeping previous locations",
			"token", token, "kept", len(l.locs), "error", err)
		return
	}

	l.locs = locs
	l.bbox = bbox
	l.loaded = true
	l.applied = token
	l.notice = ""
	l.version++
	l.logger.Debug("Applied viewport locations", "token", token, "count", len(locs), "bbox", bbox.String())
}

// Snapshot returns a copy of the current state.
func (l *Loader) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := State{
		Mode:         l.mode,
		PendingToken: l.issued,
		AppliedToken: l.applied,
		Loaded:       l.loaded,
		Locations:    l.locs,
		Fetching:     l.inflight != "",
		Notice:       l.notice,
		Version:      l.version,
	}
	if l.loaded {
		b := l.bbox
		s.BBox = &b
	}
	return s
}

// Reset returns the loader to full mode for a new region and supersedes every
// pending or in-flight request.
func (l *Loader) Reset(region string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopTimerLocked()
	l.pending = nil
	l.issued++
	l.inflight = ""
	l.region = region
	l.mode = ModeFull
	l.loaded = false
	l.locs = nil
	l.bbox = types.BoundingBox{}
	l.notice = ""
	l.version++
	l.logger = l.cfg.Logger.With("region", region)
}

// Close stops timers, cancels in-flight fetches and waits for them to return.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.stopTimerLocked()
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
}
