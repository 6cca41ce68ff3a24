package datasource

import (
	"context"
	"sync"

	"github.com/MeKo-Tech/netmap/internal/types"
)

// MemoryStore serves locations held in memory, keyed by region.
type MemoryStore struct {
	mu      sync.RWMutex
	regions map[string][]types.Location
}

// NewMemoryStore groups locs by their Region field.
func NewMemoryStore(locs []types.Location) *MemoryStore {
	s := &MemoryStore{regions: make(map[string][]types.Location)}
	for _, l := range locs {
		s.regions[l.Region] = append(s.regions[l.Region], l)
	}
	return s
}

// Put replaces the locations of a region.
func (s *MemoryStore) Put(region string, locs []types.Location) {
	s.mu.Lock()
	s.regions[region] = locs
	s.mu.Unlock()
}

// FetchRegionLocations returns the active locations of a region.
func (s *MemoryStore) FetchRegionLocations(ctx context.Context, region string) ([]types.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	locs := s.regions[region]
	s.mu.RUnlock()
	return sanitize(locs, discardLogger), nil
}

// FetchViewportLocations returns the active locations of a region inside bbox.
func (s *MemoryStore) FetchViewportLocations(ctx context.Context, region string, bbox types.BoundingBox) ([]types.Location, error) {
	locs, err := s.FetchRegionLocations(ctx, region)
	if err != nil {
		return nil, err
	}
	return inBBox(locs, bbox), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
