// Package location holds the in-memory location set for one region load.
package location

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
)

// Set is the immutable collection of active locations for a region.
// It is replaced wholesale on region change or cache invalidation.
type Set struct {
	region     string
	locations  []types.Location
	byID       map[string]int
	categories []types.Category
	bound      orb.Bound
}

// NewSet builds a set from a region load. Inactive locations are skipped.
// A location that violates the coordinate invariant panics: it must have been
// rejected upstream by the store.
func NewSet(region string, locs []types.Location) *Set {
	s := &Set{
		region:    region,
		locations: make([]types.Location, 0, len(locs)),
		byID:      make(map[string]int, len(locs)),
	}

	cats := make(map[types.Category]struct{})
	first := true
	for _, l := range locs {
		if !l.Active {
			continue
		}
		if err := l.Validate(); err != nil {
			panic(fmt.Sprintf("location set: %v", err))
		}
		if _, dup := s.byID[l.ID]; dup {
			panic(fmt.Sprintf("location set: duplicate id %q", l.ID))
		}

		s.byID[l.ID] = len(s.locations)
		s.locations = append(s.locations, l)
		cats[l.Network] = struct{}{}

		p := orb.Point{l.Lng, l.Lat}
		if first {
			s.bound = orb.Bound{Min: p, Max: p}
			first = false
		} else {
			s.bound = s.bound.Extend(p)
		}
	}

	s.categories = make([]types.Category, 0, len(cats))
	for c := range cats {
		s.categories = append(s.categories, c)
	}
	sort.Slice(s.categories, func(i, j int) bool { return s.categories[i] < s.categories[j] })

	return s
}

// Region returns the region code the set was loaded for.
func (s *Set) Region() string { return s.region }

// Len returns the number of active locations.
func (s *Set) Len() int { return len(s.locations) }

// All returns the locations. Callers must not modify the returned slice.
func (s *Set) All() []types.Location { return s.locations }

// ByID looks up a location by its id.
func (s *Set) ByID(id string) (types.Location, bool) {
	i, ok := s.byID[id]
	if !ok {
		return types.Location{}, false
	}
	return s.locations[i], true
}

// Categories returns the distinct network categories, sorted.
func (s *Set) Categories() []types.Category { return s.categories }

// Bound returns the bounding box of all locations. Zero for an empty set.
func (s *Set) Bound() orb.Bound { return s.bound }

// GroupByCategory splits a location list per network category, preserving order.
func GroupByCategory(locs []types.Location) map[types.Category][]types.Location {
	out := make(map[types.Category][]types.Location)
	for _, l := range locs {
		out[l.Network] = append(out[l.Network], l)
	}
	return out
}

// Fingerprint hashes the ids and positions of a location list in order. Two lists
// with the same fingerprint are treated as the same input for memoization.
func Fingerprint(locs []types.Location) uint64 {
	h := xxhash.New()
	var buf [17]byte
	for _, l := range locs {
		_, _ = h.WriteString(l.ID)
		buf[0] = 0
		binary.LittleEndian.PutUint64(buf[1:9], math.Float64bits(l.Lat))
		binary.LittleEndian.PutUint64(buf[9:17], math.Float64bits(l.Lng))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64() ^ uint64(len(locs))
}
