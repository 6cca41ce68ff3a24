package filter

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioLocations is the 12-location region: 3 for network A (one with
// subnetwork X), 9 for network B.
func scenarioLocations() []types.Location {
	var locs []types.Location
	for i := 0; i < 3; i++ {
		l := types.Location{ID: fmt.Sprintf("a%d", i), Network: "A", City: "springfield", Zip: "62701", County: "Sangamon", Lat: 39.78, Lng: -89.65, Active: true}
		if i == 0 {
			l.Subnetwork = "X"
		}
		locs = append(locs, l)
	}
	for i := 0; i < 9; i++ {
		locs = append(locs, types.Location{
			ID: fmt.Sprintf("b%d", i), Network: "B",
			City: []string{"Chicago", " chicago ", "Peoria"}[i%3],
			Zip:  []string{"60601", "60602", "61602"}[i%3],
			Lat:  41.88, Lng: -87.63, Active: true,
		})
	}
	return locs
}

func TestApply_Scenario(t *testing.T) {
	locs := scenarioLocations()
	state := NewState([]types.Category{"A", "B"})

	require.Len(t, Apply(locs, state), 12)

	opts := BuildOptions(locs, state.Networks)
	state.Subnetworks.ApplyDefaults(opts.SubnetworkNames())
	require.Len(t, Apply(locs, state), 12, "defaulted subnetworks include everything")

	state.Subnetworks.Toggle("X")
	got := Apply(locs, state)
	require.Len(t, got, 11)
	for _, l := range got {
		assert.NotEqual(t, "X", l.Subnetwork)
	}
}

func TestApply_ToggleFromUnsetStartsFromAll(t *testing.T) {
	locs := scenarioLocations()
	state := NewState([]types.Category{"A", "B"})

	state.Subnetworks.Toggle("X")
	assert.Equal(t, LatchUserSet, state.Subnetworks.Latch())
	assert.Len(t, Apply(locs, state), 11)
}

func TestApply_EmptyNetworksShowsNothing(t *testing.T) {
	assert.Empty(t, Apply(scenarioLocations(), NewState(nil)))
}

func TestApply_OptInFilters(t *testing.T) {
	locs := scenarioLocations()

	t.Run("city is normalized", func(t *testing.T) {
		state := NewState([]types.Category{"A", "B"})
		state.ToggleCity("CHICAGO")
		got := Apply(locs, state)
		require.Len(t, got, 6)
	})

	t.Run("zip is verbatim", func(t *testing.T) {
		state := NewState([]types.Category{"A", "B"})
		state.ToggleZip("61602")
		assert.Len(t, Apply(locs, state), 3)
		state.ToggleZip("61602 ")
		assert.Len(t, Apply(locs, state), 3, "zip with trailing space matches nothing extra")
	})

	t.Run("county excludes locations without one", func(t *testing.T) {
		state := NewState([]types.Category{"A", "B"})
		state.ToggleCounty("sangamon")
		assert.Len(t, Apply(locs, state), 3)
		state.ClearCounties()
		assert.Len(t, Apply(locs, state), 12)
	})

	t.Run("network only", func(t *testing.T) {
		state := NewState([]types.Category{"A", "B"})
		assert.False(t, state.ToggleNetwork("B"))
		assert.Len(t, Apply(locs, state), 3)
	})
}

func TestSubnetworkFilter_OptOutInvariant(t *testing.T) {
	noSub := types.Location{ID: "n", Network: "A", Active: true}
	withSub := types.Location{ID: "s", Network: "A", Subnetwork: "X", Active: true}
	state := NewState([]types.Category{"A"})

	configs := []func(f *SubnetworkFilter){
		func(f *SubnetworkFilter) {},
		func(f *SubnetworkFilter) { f.ApplyDefaults([]string{"X", "Y"}) },
		func(f *SubnetworkFilter) { f.DeselectAll() },
		func(f *SubnetworkFilter) { f.SelectAll() },
		func(f *SubnetworkFilter) { f.Toggle("X") },
	}
	for i, configure := range configs {
		state.Subnetworks = SubnetworkFilter{}
		configure(&state.Subnetworks)
		got := Apply([]types.Location{noSub, withSub}, state)
		require.NotEmpty(t, got, "config %d", i)
		assert.Equal(t, "n", got[0].ID, "location without subnetwork always passes (config %d)", i)
	}
}

func TestSubnetworkFilter_Latch(t *testing.T) {
	var f SubnetworkFilter
	assert.Equal(t, LatchUnset, f.Latch())
	assert.True(t, f.Allows("anything"))

	assert.False(t, f.ApplyDefaults(nil), "no subnetworks known yet")
	assert.Equal(t, LatchUnset, f.Latch())
	assert.True(t, f.ApplyDefaults([]string{"X", "Y"}))
	assert.Equal(t, LatchDefaulted, f.Latch())
	assert.False(t, f.ApplyDefaults([]string{"X", "Y", "Z"}))
	assert.True(t, f.Allows("Z"), "new subnetworks join while defaulted")

	f.DeselectAll()
	assert.Equal(t, LatchUserSet, f.Latch())
	assert.False(t, f.ApplyDefaults([]string{"X"}), "defaults never override a user choice")
	assert.False(t, f.Allows("X"))
	assert.True(t, f.Allows(""))

	f.Toggle("X")
	assert.True(t, f.Allows("X"))
	assert.False(t, f.Allows("Y"))
	assert.Equal(t, []string{"X"}, f.Selected([]string{"X", "Y"}))

	f.SelectAll()
	assert.True(t, f.Allows("X"))
	assert.True(t, f.Allows("Z"), "select all covers subnetworks not seen yet")
}

func TestSubnetworkFilter_UserChoiceAcrossOptionChanges(t *testing.T) {
	tests := []struct {
		name      string
		configure func(f *SubnetworkFilter)
		// later lists subnetworks that only show up after the choice was made.
		later []string
		want  map[string]bool
	}{
		{
			name:      "toggle keeps later subnetworks",
			configure: func(f *SubnetworkFilter) { f.ApplyDefaults([]string{"X"}); f.Toggle("X") },
			later:     []string{"Y", "Z"},
			want:      map[string]bool{"X": false, "Y": true, "Z": true},
		},
		{
			name:      "toggle before any defaults",
			configure: func(f *SubnetworkFilter) { f.Toggle("X") },
			later:     []string{"Y"},
			want:      map[string]bool{"X": false, "Y": true},
		},
		{
			name:      "toggle twice restores",
			configure: func(f *SubnetworkFilter) { f.Toggle("X"); f.Toggle("X") },
			later:     []string{"Y"},
			want:      map[string]bool{"X": true, "Y": true},
		},
		{
			name:      "select all from a partial view",
			configure: func(f *SubnetworkFilter) { f.Toggle("X"); f.SelectAll() },
			later:     []string{"Y"},
			want:      map[string]bool{"X": true, "Y": true},
		},
		{
			name:      "deselect all hides later subnetworks",
			configure: func(f *SubnetworkFilter) { f.DeselectAll() },
			later:     []string{"Y"},
			want:      map[string]bool{"X": false, "Y": false},
		},
		{
			name:      "toggle back in after deselect all",
			configure: func(f *SubnetworkFilter) { f.DeselectAll(); f.Toggle("Y") },
			later:     []string{"Y", "Z"},
			want:      map[string]bool{"X": false, "Y": true, "Z": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f SubnetworkFilter
			tt.configure(&f)
			assert.False(t, f.ApplyDefaults(tt.later), "defaults never override a user choice")
			assert.Equal(t, LatchUserSet, f.Latch())
			for sub, want := range tt.want {
				assert.Equal(t, want, f.Allows(sub), sub)
			}

			c := f.Clone()
			f.Toggle("X")
			for sub, want := range tt.want {
				assert.Equal(t, want, c.Allows(sub), "clone is independent: %s", sub)
			}
		})
	}
}

func TestApply_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	networks := []types.Category{"A", "B", "C"}
	subs := []string{"", "", "X", "Y"}
	cities := []string{"Austin", "austin", "Dallas", ""}
	zips := []string{"73301", "75201", ""}
	counties := []string{"Travis", "Dallas", ""}

	locs := make([]types.Location, 500)
	for i := range locs {
		locs[i] = types.Location{
			ID:         fmt.Sprintf("p%d", i),
			Network:    networks[rng.Intn(len(networks))],
			Subnetwork: subs[rng.Intn(len(subs))],
			City:       cities[rng.Intn(len(cities))],
			Zip:        zips[rng.Intn(len(zips))],
			County:     counties[rng.Intn(len(counties))],
			Active:     true,
		}
	}

	for trial := 0; trial < 50; trial++ {
		state := NewState(nil)
		for _, n := range networks {
			if rng.Intn(3) > 0 {
				state.ToggleNetwork(n)
			}
		}
		if rng.Intn(2) == 0 {
			state.Subnetworks.Toggle("X")
		}
		if rng.Intn(2) == 0 {
			state.ToggleCity("AUSTIN")
		}
		if rng.Intn(3) == 0 {
			state.ToggleZip("75201")
		}
		if rng.Intn(3) == 0 {
			state.ToggleCounty("travis")
		}

		once := Apply(locs, state)
		require.LessOrEqual(t, len(once), len(locs))
		require.Equal(t, once, Apply(once, state), "apply is idempotent")
		require.Equal(t, Counts{Total: len(locs), Filtered: len(once)}, Count(locs, state))

		for _, l := range once {
			require.True(t, state.Networks.Has(string(l.Network)))
			require.True(t, l.Subnetwork == "" || state.Subnetworks.Allows(l.Subnetwork))
			require.True(t, len(state.Cities) == 0 || state.Cities.Has(Normalize(l.City)))
			require.True(t, len(state.ZipCodes) == 0 || state.ZipCodes.Has(l.Zip))
			require.True(t, len(state.Counties) == 0 || state.Counties.Has(Normalize(l.County)))
		}
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	locs := scenarioLocations()
	before := append([]types.Location(nil), locs...)
	state := NewState([]types.Category{"A"})
	_ = Apply(locs, state)
	assert.Equal(t, before, locs)
}

func TestBuildOptions_UsesNetworkFilteredSubset(t *testing.T) {
	locs := scenarioLocations()

	opts := BuildOptions(locs, NewSet("B"))
	assert.Equal(t, []Option{{Name: "Chicago", Count: 6}, {Name: "Peoria", Count: 3}}, opts.Cities)
	assert.Empty(t, opts.Subnetworks)
	assert.Empty(t, opts.Counties)
	assert.Len(t, opts.ZipCodes, 3)

	opts = BuildOptions(locs, NewSet("A"))
	assert.Equal(t, []Option{{Name: "X", Count: 1}}, opts.Subnetworks)
	assert.Equal(t, []Option{{Name: "Sangamon", Count: 3}}, opts.Counties)
	assert.Equal(t, []string{"X"}, opts.SubnetworkNames())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "New York", Normalize("  new   YORK "))
	assert.Equal(t, "San Luis Obispo", Normalize("san luis obispo"))
	assert.Equal(t, "", Normalize("   "))
}

func TestParseNetworks(t *testing.T) {
	assert.Equal(t, []types.Category{"A", "B"}, ParseNetworks("A, B,,A"))
	assert.Nil(t, ParseNetworks(""))
}

func TestStateClone(t *testing.T) {
	s := NewState([]types.Category{"A"})
	s.ToggleCity("Austin")
	c := s.Clone()
	c.ToggleNetwork("B")
	c.ToggleCity("Dallas")
	assert.False(t, s.Networks.Has("B"))
	assert.Len(t, s.Cities, 1)
}
