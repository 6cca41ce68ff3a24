// Package mapstate keeps the location set, filter state, cluster indices and
// viewport subset of one region consistent with each other.
//
// A Synchronizer is the only mutator of that state. Every event takes the same
// mutex, so events apply in the order they arrive. Derived data (filter options,
// the filtered subset, the cluster indices) is recomputed lazily and only when
// one of its inputs changed.
package mapstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/MeKo-Tech/netmap/internal/cluster"
	"github.com/MeKo-Tech/netmap/internal/filter"
	"github.com/MeKo-Tech/netmap/internal/location"
	"github.com/MeKo-Tech/netmap/internal/search"
	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/MeKo-Tech/netmap/internal/viewport"
)

var (
	ErrUnknownLocation   = errors.New("unknown location")
	ErrInvalidRenderMode = errors.New("invalid render mode")
	ErrNoSearcher        = errors.New("search is not configured")
	ErrClosed            = errors.New("synchronizer closed")
)

// RenderMode selects between cluster markers and one marker per location.
type RenderMode string

const (
	RenderClustered  RenderMode = "clustered"
	RenderIndividual RenderMode = "individual"
)

// Store is the persistent location collaborator.
type Store interface {
	FetchRegionLocations(ctx context.Context, region string) ([]types.Location, error)
	viewport.Fetcher
}

// Config configures a Synchronizer.
type Config struct {
	Cluster  cluster.Options
	Viewport viewport.Config
	// Workers bounds parallel index builds.
	Workers int
	Logger  *slog.Logger
}

// DefaultConfig returns the default clustering and viewport settings.
func DefaultConfig() Config {
	return Config{Cluster: cluster.DefaultOptions(), Viewport: viewport.DefaultConfig()}
}

// Renderables is what the map draws for one viewport.
type Renderables struct {
	RenderMode   RenderMode    `json:"renderMode"`
	ViewportMode viewport.Mode `json:"viewportMode"`
	Zoom         float64       `json:"zoom"`
	// Clusters is set in clustered mode, one entry per visible category.
	Clusters map[types.Category][]cluster.Cluster `json:"clusters,omitempty"`
	// IndividualPoints is set in individual mode and holds the whole filtered subset.
	// The slice is shared; callers must not modify it.
	IndividualPoints []types.Location `json:"individualPoints,omitempty"`
	Highlighted      []string         `json:"highlighted,omitempty"`
	Selected         *types.Location  `json:"selected,omitempty"`
	Counts           filter.Counts    `json:"counts"`
}

// Status summarizes the synchronizer for diagnostics. Subnetworks lists the
// subnetworks of the current options that pass the filter.
type Status struct {
	Region          string           `json:"region"`
	Locations       int              `json:"locations"`
	RenderMode      RenderMode       `json:"renderMode"`
	Viewport        *types.Viewport  `json:"viewport,omitempty"`
	Loader          viewport.State   `json:"loader"`
	Counts          filter.Counts    `json:"counts"`
	Networks        []string         `json:"networks"`
	Categories      []types.Category `json:"categories"`
	Indexed         []types.Category `json:"indexed"`
	SubnetworkLatch string           `json:"subnetworkLatch"`
	Subnetworks     []string         `json:"subnetworks"`
	Selected        *types.Location  `json:"selected,omitempty"`
	Highlighted     []string         `json:"highlighted,omitempty"`
	FlyTo           *types.FlyTo     `json:"flyTo,omitempty"`
	Notice          string           `json:"notice,omitempty"`
}

type sourceKey struct {
	setGen      uint64
	loaderVer   uint64
	useViewport bool
}

type optionsKey struct {
	source      sourceKey
	networksGen uint64
}

type filteredKey struct {
	source    sourceKey
	filterGen uint64
}

// memo caches the derived stages together with the inputs they were built from.
type memo struct {
	hasOptions bool
	optionsKey optionsKey
	options    filter.Options

	hasFiltered bool
	filteredKey filteredKey
	filtered    []types.Location
	counts      filter.Counts

	hasIndexed bool
	indexedKey filteredKey
}

// Synchronizer owns the map state of one region.
type Synchronizer struct {
	region   types.Region
	store    Store
	searcher search.Searcher
	loader   *viewport.Loader
	indices  *cluster.Manager
	logger   *slog.Logger

	mu          sync.Mutex
	closed      bool
	set         *location.Set
	setGen      uint64
	filters     *filter.State
	filterGen   uint64
	networksGen uint64
	renderMode  RenderMode
	current     *types.Viewport
	selected    *types.Location
	highlight   filter.Set
	flyTo       *types.FlyTo
	notice      string
	memo        memo
}

// New loads the region dataset and returns a synchronizer in clustered, full mode.
// An empty initialNetworks selects every network present in the dataset.
// region must come from the region registry; searcher may be nil.
func New(ctx context.Context, cfg Config, region types.Region, store Store, searcher search.Searcher, initialNetworks []types.Category) (*Synchronizer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("region", region.Code)

	locs, err := store.FetchRegionLocations(ctx, region.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to load region %q: %w", region.Code, err)
	}
	set := location.NewSet(region.Code, locs)

	networks := initialNetworks
	if len(networks) == 0 {
		networks = set.Categories()
	}

	vcfg := cfg.Viewport
	vcfg.Logger = cfg.Logger

	s := &Synchronizer{
		region:     region,
		store:      store,
		searcher:   searcher,
		loader:     viewport.New(vcfg, region.Code, store),
		indices:    cluster.NewManager(cluster.ManagerConfig{Options: cfg.Cluster, Workers: cfg.Workers, Logger: logger}),
		logger:     logger,
		set:        set,
		setGen:     1,
		filters:    filter.NewState(networks),
		renderMode: RenderClustered,
		highlight:  filter.Set{},
	}
	logger.Info("Loaded region", "locations", set.Len(), "categories", len(set.Categories()), "networks", len(networks))
	return s, nil
}

// Region returns the region this synchronizer serves.
func (s *Synchronizer) Region() types.Region { return s.region }

// ClusterOptions returns the effective clustering options.
func (s *Synchronizer) ClusterOptions() cluster.Options { return s.indices.Options() }

// Close stops the viewport loader. Further events return ErrClosed.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.loader.Close()
}

// sourceLocked returns the location subset currently backing the map: the
// viewport subset once one was loaded in viewport mode, the full set otherwise.
func (s *Synchronizer) sourceLocked() ([]types.Location, sourceKey) {
	snap := s.loader.Snapshot()
	useViewport := snap.Mode == viewport.ModeViewport && snap.Loaded
	if useViewport {
		return snap.Locations, sourceKey{setGen: s.setGen, loaderVer: snap.Version, useViewport: true}
	}
	return s.set.All(), sourceKey{setGen: s.setGen}
}

// optionsLocked recomputes the filter options when the subset or the network
// selection changed, then applies the subnetwork defaults.
func (s *Synchronizer) optionsLocked() ([]types.Location, sourceKey) {
	src, key := s.sourceLocked()
	ok := optionsKey{source: key, networksGen: s.networksGen}
	if s.memo.hasOptions && s.memo.optionsKey == ok {
		return src, key
	}

	s.memo.options = filter.BuildOptions(src, s.filters.Networks)
	s.memo.optionsKey = ok
	s.memo.hasOptions = true
	if s.filters.Subnetworks.ApplyDefaults(s.memo.options.SubnetworkNames()) {
		s.filterGen++
	}
	return src, key
}

func (s *Synchronizer) filteredLocked() filteredKey {
	src, key := s.optionsLocked()
	fk := filteredKey{source: key, filterGen: s.filterGen}
	if s.memo.hasFiltered && s.memo.filteredKey == fk {
		return fk
	}

	s.memo.filtered = filter.Apply(src, s.filters)
	s.memo.counts = filter.Counts{Total: len(src), Filtered: len(s.memo.filtered)}
	s.memo.filteredKey = fk
	s.memo.hasFiltered = true
	return fk
}

// indexedLocked rebuilds the cluster indices when the filtered subset changed.
// Viewport changes alone never get here with a new key.
func (s *Synchronizer) indexedLocked(ctx context.Context) error {
	fk := s.filteredLocked()
	if s.memo.hasIndexed && s.memo.indexedKey == fk {
		return nil
	}

	rebuilt, err := s.indices.Rebuild(ctx, location.GroupByCategory(s.memo.filtered))
	if err != nil {
		return fmt.Errorf("failed to rebuild cluster indices: %w", err)
	}
	s.memo.indexedKey = fk
	s.memo.hasIndexed = true
	if len(rebuilt) > 0 {
		s.logger.Debug("Cluster indices updated", "rebuilt", len(rebuilt), "locations", len(s.memo.filtered))
	}
	return nil
}

// Renderables returns what to draw for v in the current render mode.
func (s *Synchronizer) Renderables(ctx context.Context, v types.Viewport) (Renderables, error) {
	if err := v.Validate(); err != nil {
		return Renderables{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Renderables{}, ErrClosed
	}

	r := Renderables{
		RenderMode:   s.renderMode,
		ViewportMode: s.loader.Snapshot().Mode,
		Zoom:         v.Zoom,
		Highlighted:  s.highlight.Values(),
		Selected:     s.selected,
	}

	if s.renderMode == RenderIndividual {
		s.filteredLocked()
		r.IndividualPoints = s.memo.filtered
	} else {
		if err := s.indexedLocked(ctx); err != nil {
			return Renderables{}, err
		}
		r.Clusters = s.indices.Query(v)
	}
	r.Counts = s.memo.counts
	return r, nil
}

// FilterOptions returns the distinct cities, zips, counties and subnetworks of the
// network-filtered subset.
func (s *Synchronizer) FilterOptions() filter.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optionsLocked()
	return s.memo.options
}

// Counts returns the total and filtered sizes of the current subset.
func (s *Synchronizer) Counts() filter.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filteredLocked()
	return s.memo.counts
}

// Status returns a snapshot of the synchronizer.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filteredLocked()

	st := Status{
		Region:          s.region.Code,
		Locations:       s.set.Len(),
		RenderMode:      s.renderMode,
		Viewport:        s.current,
		Loader:          s.loader.Snapshot(),
		Counts:          s.memo.counts,
		Networks:        s.filters.Networks.Values(),
		Categories:      s.set.Categories(),
		Indexed:         s.indices.Categories(),
		SubnetworkLatch: s.filters.Subnetworks.Latch().String(),
		Subnetworks:     s.filters.Subnetworks.Selected(s.memo.options.SubnetworkNames()),
		Selected:        s.selected,
		Highlighted:     s.highlight.Values(),
		FlyTo:           s.flyTo,
		Notice:          s.notice,
	}
	if st.Notice == "" {
		st.Notice = st.Loader.Notice
	}
	return st
}

// OnViewportChanged records the settled map viewport and hands it to the loader.
// It never rebuilds an index.
func (s *Synchronizer) OnViewportChanged(v types.Viewport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.loader.OnViewportSettled(v); err != nil {
		return err
	}
	s.current = &v
	return nil
}

// ToggleNetwork flips a network and reports whether it is now included.
func (s *Synchronizer) ToggleNetwork(n types.Category) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	on := s.filters.ToggleNetwork(n)
	s.networksGen++
	s.filterGen++
	return on
}

// SetNetworks replaces the network selection.
func (s *Synchronizer) SetNetworks(networks []types.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.SetNetworks(networks)
	s.networksGen++
	s.filterGen++
}

// ToggleSubnetwork flips one subnetwork. The first user choice ends the
// select-all default for the lifetime of the view; subnetworks the user never
// touched keep passing when later option lists bring them in.
func (s *Synchronizer) ToggleSubnetwork(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.Subnetworks.Toggle(name)
	s.filterGen++
}

// SelectAllSubnetworks includes every subnetwork, also ones outside the
// current subset.
func (s *Synchronizer) SelectAllSubnetworks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.Subnetworks.SelectAll()
	s.filterGen++
}

// DeselectAllSubnetworks excludes every subnetwork.
func (s *Synchronizer) DeselectAllSubnetworks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.Subnetworks.DeselectAll()
	s.filterGen++
}

// ToggleCity flips a city in the opt-in set.
func (s *Synchronizer) ToggleCity(city string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterGen++
	return s.filters.ToggleCity(city)
}

// ToggleZip flips a zip code in the opt-in set.
func (s *Synchronizer) ToggleZip(zip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterGen++
	return s.filters.ToggleZip(zip)
}

// ToggleCounty flips a county in the opt-in set.
func (s *Synchronizer) ToggleCounty(county string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterGen++
	return s.filters.ToggleCounty(county)
}

// ClearFilters empties the city, zip and county selections.
func (s *Synchronizer) ClearFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.ClearCities()
	s.filters.ClearZipCodes()
	s.filters.ClearCounties()
	s.filterGen++
}

// SetRenderMode switches between clustered and individual rendering.
func (s *Synchronizer) SetRenderMode(mode RenderMode) error {
	if mode != RenderClustered && mode != RenderIndividual {
		return fmt.Errorf("%w: %q", ErrInvalidRenderMode, mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renderMode != mode {
		s.logger.Debug("Render mode changed", "from", s.renderMode, "to", mode)
		s.renderMode = mode
	}
	return nil
}

// ClusterClicked returns the view that expands a cluster: its centroid at the
// first zoom where it splits, capped at the maximum zoom. Clicking a leaf
// selects its location and keeps the zoom.
func (s *Synchronizer) ClusterClicked(ctx context.Context, cat types.Category, clusterID int64) (types.FlyTo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.FlyTo{}, ErrClosed
	}
	if err := s.indexedLocked(ctx); err != nil {
		return types.FlyTo{}, err
	}

	c, err := s.indices.Lookup(cat, clusterID)
	if err != nil {
		return types.FlyTo{}, err
	}

	fly := types.FlyTo{Lat: c.Lat, Lng: c.Lng}
	if c.IsLeaf() {
		loc := *c.Location
		s.selected = &loc
		if s.current != nil {
			fly.Zoom = int(math.Round(s.current.Zoom))
		} else {
			fly.Zoom = s.indices.Options().MaxZoom
		}
	} else {
		z, err := s.indices.ExpansionZoom(cat, clusterID)
		if err != nil {
			return types.FlyTo{}, err
		}
		fly.Zoom = min(z, s.indices.Options().MaxZoom)
	}
	s.flyTo = &fly
	return fly, nil
}

// MarkerClicked selects a location of the current subset.
func (s *Synchronizer) MarkerClicked(id string) (types.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.lookupLocked(id)
	if !ok {
		return types.Location{}, fmt.Errorf("%w: %q", ErrUnknownLocation, id)
	}
	s.selected = &loc
	return loc, nil
}

func (s *Synchronizer) lookupLocked(id string) (types.Location, bool) {
	if loc, ok := s.set.ByID(id); ok {
		return loc, true
	}
	src, _ := s.sourceLocked()
	for _, l := range src {
		if l.ID == id {
			return l, true
		}
	}
	return types.Location{}, false
}

// CloseSelection clears the selected location.
func (s *Synchronizer) CloseSelection() {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
}

// Search runs a query through the search collaborator. Matches become the
// highlight set; a suggested viewport becomes the next FlyTo, the same path a
// cluster click takes. On failure the previous highlight is kept.
func (s *Synchronizer) Search(ctx context.Context, text string) (search.Result, error) {
	if s.searcher == nil {
		return search.Result{}, ErrNoSearcher
	}

	res, err := s.searcher.Search(ctx, text, s.region.Code)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.notice = "Search failed, showing previous results."
		s.logger.Warn("Search failed", "query", text, "error", err)
		return search.Result{}, fmt.Errorf("search %q: %w", text, err)
	}

	s.notice = ""
	s.highlight = make(filter.Set, len(res.Locations))
	for _, l := range res.Locations {
		s.highlight[l.ID] = struct{}{}
	}
	if res.SuggestedViewport != nil {
		fly := *res.SuggestedViewport
		s.flyTo = &fly
	}
	return res, nil
}

// RestoreView returns to the region's default view and clears the selection and
// highlight set.
func (s *Synchronizer) RestoreView() (types.FlyTo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.FlyTo{}, ErrClosed
	}

	fly := s.region.DefaultView()
	v := types.Viewport{BoundingBox: s.region.Bounds, Zoom: float64(fly.Zoom)}
	if err := s.loader.OnViewportSettled(v); err != nil {
		return types.FlyTo{}, err
	}
	s.current = &v
	s.selected = nil
	s.highlight = filter.Set{}
	s.flyTo = &fly
	return fly, nil
}

// Invalidate reloads the region dataset and replaces the location set. Filter
// choices survive; the viewport loader starts over in full mode. On error the
// current set is kept.
func (s *Synchronizer) Invalidate(ctx context.Context) error {
	locs, err := s.store.FetchRegionLocations(ctx, s.region.Code)
	if err != nil {
		s.mu.Lock()
		s.notice = "Reload failed, showing previous data."
		s.mu.Unlock()
		s.logger.Warn("Region reload failed", "error", err)
		return fmt.Errorf("failed to reload region %q: %w", s.region.Code, err)
	}
	set := location.NewSet(s.region.Code, locs)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
	s.setGen++
	s.notice = ""
	s.loader.Reset(s.region.Code)
	if s.selected != nil {
		if loc, ok := set.ByID(s.selected.ID); ok {
			s.selected = &loc
		} else {
			s.selected = nil
		}
	}
	s.logger.Info("Reloaded region", "locations", set.Len())
	return nil
}

// Leaves lists the locations under a cluster, for popups.
func (s *Synchronizer) Leaves(ctx context.Context, cat types.Category, clusterID int64, limit, offset int) ([]types.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.indexedLocked(ctx); err != nil {
		return nil, err
	}
	idx, ok := s.indices.Index(cat)
	if !ok {
		return nil, fmt.Errorf("category %q: %w", cat, cluster.ErrUnknownCluster)
	}
	return idx.Leaves(clusterID, limit, offset)
}

// Flush fires a pending viewport fetch immediately.
func (s *Synchronizer) Flush() { s.loader.Flush() }
