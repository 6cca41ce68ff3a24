package location

import (
	"testing"

	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loc(id string, network types.Category, lat, lng float64) types.Location {
	return types.Location{ID: id, Network: network, Lat: lat, Lng: lng, Active: true, Region: "us"}
}

func TestNewSet(t *testing.T) {
	inactive := loc("c", "B", 41, -73)
	inactive.Active = false

	s := NewSet("us", []types.Location{
		loc("a", "B", 40.7, -74.0),
		loc("b", "A", 34.05, -118.24),
		inactive,
	})

	require.Equal(t, 2, s.Len())
	assert.Equal(t, "us", s.Region())
	assert.Equal(t, []types.Category{"A", "B"}, s.Categories())

	got, ok := s.ByID("b")
	require.True(t, ok)
	assert.Equal(t, types.Category("A"), got.Network)

	_, ok = s.ByID("c")
	assert.False(t, ok, "inactive locations never enter the set")

	b := s.Bound()
	assert.Equal(t, -118.24, b.Min.Lon())
	assert.Equal(t, 40.7, b.Max.Lat())
}

func TestNewSet_PanicsOnInvariantViolation(t *testing.T) {
	assert.Panics(t, func() {
		NewSet("us", []types.Location{loc("a", "A", 95, 0)})
	})
	assert.Panics(t, func() {
		NewSet("us", []types.Location{loc("a", "A", 1, 1), loc("a", "A", 2, 2)})
	})
}

func TestNewSet_Empty(t *testing.T) {
	s := NewSet("us", nil)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Categories())
}

func TestGroupByCategory(t *testing.T) {
	locs := []types.Location{loc("1", "A", 1, 1), loc("2", "B", 2, 2), loc("3", "A", 3, 3)}
	g := GroupByCategory(locs)
	require.Len(t, g, 2)
	assert.Equal(t, []string{"1", "3"}, []string{g["A"][0].ID, g["A"][1].ID})
	assert.Len(t, g["B"], 1)
}

func TestFingerprint(t *testing.T) {
	a := []types.Location{loc("1", "A", 1, 1), loc("2", "A", 2, 2)}
	b := []types.Location{loc("1", "A", 1, 1), loc("2", "A", 2, 2)}
	c := []types.Location{loc("2", "A", 2, 2), loc("1", "A", 1, 1)}
	d := []types.Location{loc("12", "A", 1, 1)}
	moved := []types.Location{loc("1", "A", 1, 1), loc("2", "A", 2, 2.5)}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(d))
	assert.NotEqual(t, Fingerprint(nil), Fingerprint(a[:1]))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(moved))
}
