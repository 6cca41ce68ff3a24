// Package filter implements the five-predicate location filter.
//
// Predicates are combined with AND and evaluated in a fixed order:
// network, subnetwork, city, zip, county.
package filter

import (
	"strings"

	"github.com/MeKo-Tech/netmap/internal/types"
)

// State is the current filter predicate. It is mutated only through its methods.
type State struct {
	// Networks is opt-in: an empty set shows nothing.
	Networks Set
	// Subnetworks is opt-out, see SubnetworkFilter.
	Subnetworks SubnetworkFilter
	// Cities, ZipCodes and Counties are opt-in; an empty set disables the predicate.
	// City and county members are stored normalized.
	Cities   Set
	ZipCodes Set
	Counties Set
}

// NewState returns a state that includes the given networks and nothing else restricted.
func NewState(networks []types.Category) *State {
	s := &State{
		Networks: make(Set, len(networks)),
		Cities:   Set{},
		ZipCodes: Set{},
		Counties: Set{},
	}
	for _, n := range networks {
		s.Networks[string(n)] = struct{}{}
	}
	return s
}

// ParseNetworks parses a comma separated network list as it arrives in a URL query
// parameter. Blank entries are dropped and duplicates collapsed; order is preserved.
func ParseNetworks(raw string) []types.Category {
	var out []types.Category
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, types.Category(part))
	}
	return out
}

// ToggleNetwork flips a network in the opt-in set and reports whether it is now included.
func (s *State) ToggleNetwork(n types.Category) bool {
	return s.Networks.Toggle(string(n))
}

// SetNetworks replaces the network selection.
func (s *State) SetNetworks(networks []types.Category) {
	s.Networks = make(Set, len(networks))
	for _, n := range networks {
		s.Networks[string(n)] = struct{}{}
	}
}

// ToggleCity flips a city (normalized) in the opt-in set.
func (s *State) ToggleCity(city string) bool {
	return s.Cities.Toggle(Normalize(city))
}

// ToggleZip flips a zip code in the opt-in set. Zips compare verbatim.
func (s *State) ToggleZip(zip string) bool {
	return s.ZipCodes.Toggle(zip)
}

// ToggleCounty flips a county (normalized) in the opt-in set.
func (s *State) ToggleCounty(county string) bool {
	return s.Counties.Toggle(Normalize(county))
}

// ClearCities deactivates the city predicate.
func (s *State) ClearCities() { s.Cities = Set{} }

// ClearZipCodes deactivates the zip predicate.
func (s *State) ClearZipCodes() { s.ZipCodes = Set{} }

// ClearCounties deactivates the county predicate.
func (s *State) ClearCounties() { s.Counties = Set{} }

// Clone returns a deep copy.
func (s *State) Clone() *State {
	return &State{
		Networks:    s.Networks.Clone(),
		Subnetworks: s.Subnetworks.Clone(),
		Cities:      s.Cities.Clone(),
		ZipCodes:    s.ZipCodes.Clone(),
		Counties:    s.Counties.Clone(),
	}
}
