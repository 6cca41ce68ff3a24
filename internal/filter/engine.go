package filter

import (
	"sort"

	"github.com/MeKo-Tech/netmap/internal/types"
)

// Counts is the UI feedback for a filter pass.
type Counts struct {
	Total    int `json:"total"`
	Filtered int `json:"filtered"`
}

// Option is one selectable filter value with the number of locations carrying it.
type Option struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Options lists the distinct filter values of the network-filtered subset.
type Options struct {
	Cities      []Option `json:"cities"`
	ZipCodes    []Option `json:"zipCodes"`
	Counties    []Option `json:"counties"`
	Subnetworks []Option `json:"subnetworks"`
}

// SubnetworkNames returns the subnetwork option names.
func (o Options) SubnetworkNames() []string {
	out := make([]string, len(o.Subnetworks))
	for i, opt := range o.Subnetworks {
		out[i] = opt.Name
	}
	return out
}

// Apply returns the locations matching every predicate of state, in input order.
// The input slice is never modified.
func Apply(locs []types.Location, state *State) []types.Location {
	m := newMatcher(state)
	out := make([]types.Location, 0, len(locs))
	for _, l := range locs {
		if m.match(l) {
			out = append(out, l)
		}
	}
	return out
}

// Count returns the size of the filtered subset without materializing it.
func Count(locs []types.Location, state *State) Counts {
	m := newMatcher(state)
	c := Counts{Total: len(locs)}
	for _, l := range locs {
		if m.match(l) {
			c.Filtered++
		}
	}
	return c
}

// BuildOptions derives the option lists from the locations that pass the network
// predicate only, so choices reflect the selected networks.
func BuildOptions(locs []types.Location, networks Set) Options {
	n := newNormalizer()
	cities := make(map[string]int)
	zips := make(map[string]int)
	counties := make(map[string]int)
	subs := make(map[string]int)

	for _, l := range locs {
		if !networks.Has(string(l.Network)) {
			continue
		}
		if c := n.normalize(l.City); c != "" {
			cities[c]++
		}
		if l.Zip != "" {
			zips[l.Zip]++
		}
		if c := n.normalize(l.County); c != "" {
			counties[c]++
		}
		if l.Subnetwork != "" {
			subs[l.Subnetwork]++
		}
	}

	return Options{
		Cities:      sortedOptions(cities),
		ZipCodes:    sortedOptions(zips),
		Counties:    sortedOptions(counties),
		Subnetworks: sortedOptions(subs),
	}
}

func sortedOptions(m map[string]int) []Option {
	out := make([]Option, 0, len(m))
	for name, count := range m {
		out = append(out, Option{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type matcher struct {
	state *State
	norm  *normalizer
}

func newMatcher(state *State) *matcher {
	if state == nil {
		panic("filter: nil state")
	}
	return &matcher{state: state, norm: newNormalizer()}
}

func (m *matcher) match(l types.Location) bool {
	s := m.state
	if !s.Networks.Has(string(l.Network)) {
		return false
	}
	if !s.Subnetworks.Allows(l.Subnetwork) {
		return false
	}
	if len(s.Cities) > 0 && !s.Cities.Has(m.norm.normalize(l.City)) {
		return false
	}
	if len(s.ZipCodes) > 0 && !s.ZipCodes.Has(l.Zip) {
		return false
	}
	if len(s.Counties) > 0 && !s.Counties.Has(m.norm.normalize(l.County)) {
		return false
	}
	return true
}
