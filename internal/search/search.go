// Package search turns a free-text query into a location subset and a
// suggested viewport.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/MeKo-Tech/netmap/internal/filter"
	"github.com/MeKo-Tech/netmap/internal/tile"
	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/paulmach/orb"
)

// Result is what a search returns to the map.
type Result struct {
	Locations []types.Location `json:"locations"`
	// SuggestedViewport is nil when nothing matched.
	SuggestedViewport *types.FlyTo `json:"suggested_viewport,omitempty"`
	Narrative         string       `json:"narrative,omitempty"`
}

// Searcher is the search collaborator.
type Searcher interface {
	Search(ctx context.Context, query, region string) (Result, error)
}

// Source provides the locations a KeywordSearcher scans.
type Source interface {
	FetchRegionLocations(ctx context.Context, region string) ([]types.Location, error)
}

// Config configures a KeywordSearcher.
type Config struct {
	// MaxResults caps the returned locations. 0 means 200.
	MaxResults int
	// MaxZoom caps the suggested zoom. 0 means 14.
	MaxZoom int
	// ViewWidth and ViewHeight are the pixel size used to fit results. 0 means 1024x768.
	ViewWidth  float64
	ViewHeight float64
	Logger     *slog.Logger
}

// KeywordSearcher matches every query term against the text fields of a location.
type KeywordSearcher struct {
	source Source
	cfg    Config
	logger *slog.Logger
}

// NewKeywordSearcher creates a searcher over source.
func NewKeywordSearcher(source Source, cfg Config) *KeywordSearcher {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 200
	}
	if cfg.MaxZoom <= 0 {
		cfg.MaxZoom = 14
	}
	if cfg.ViewWidth <= 0 || cfg.ViewHeight <= 0 {
		cfg.ViewWidth, cfg.ViewHeight = 1024, 768
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &KeywordSearcher{source: source, cfg: cfg, logger: cfg.Logger}
}

// Search returns the locations matching all terms of query, ordered by id.
// An empty query matches nothing.
func (s *KeywordSearcher) Search(ctx context.Context, query, region string) (Result, error) {
	terms := Terms(query)
	if len(terms) == 0 {
		return Result{Narrative: "Enter a search term."}, nil
	}

	locs, err := s.source.FetchRegionLocations(ctx, region)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load locations for search: %w", err)
	}

	var matches []types.Location
	for _, l := range locs {
		if matchesAll(l, terms) {
			matches = append(matches, l)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	total := len(matches)
	if total > s.cfg.MaxResults {
		matches = matches[:s.cfg.MaxResults]
	}

	res := Result{Locations: matches, Narrative: narrative(query, total, len(matches))}
	if len(matches) > 0 {
		fly := s.fit(matches)
		res.SuggestedViewport = &fly
	}

	s.logger.Debug("Search completed", "region", region, "query", query, "matches", total)
	return res, nil
}

// fit centers the view on the matches at the largest zoom that shows them all.
func (s *KeywordSearcher) fit(locs []types.Location) types.FlyTo {
	b := orb.Bound{Min: orb.Point{locs[0].Lng, locs[0].Lat}, Max: orb.Point{locs[0].Lng, locs[0].Lat}}
	for _, l := range locs[1:] {
		b = b.Extend(orb.Point{l.Lng, l.Lat})
	}
	c := b.Center()
	return types.FlyTo{
		Lat:  c.Lat(),
		Lng:  c.Lon(),
		Zoom: tile.FitZoom(b.Pad(0.01), s.cfg.ViewWidth, s.cfg.ViewHeight, 0, s.cfg.MaxZoom),
	}
}

// Terms splits a query into lower-cased search terms.
func Terms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func matchesAll(l types.Location, terms []string) bool {
	fields := []string{
		l.Name, l.City, l.Zip, l.County, string(l.Network), l.Subnetwork, l.Description, l.Industry,
	}
	for _, t := range terms {
		found := false
		for _, f := range fields {
			if f != "" && strings.Contains(strings.ToLower(f), t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func narrative(query string, total, shown int) string {
	q := filter.Normalize(query)
	switch {
	case total == 0:
		return fmt.Sprintf("No locations match %q.", q)
	case total == 1:
		return fmt.Sprintf("Found 1 location matching %q.", q)
	case shown < total:
		return fmt.Sprintf("Found %d locations matching %q, showing the first %d.", total, q, shown)
	}
	return fmt.Sprintf("Found %d locations matching %q.", total, q)
}
