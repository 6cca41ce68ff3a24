package synth

import (
	"testing"

	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Deterministic(t *testing.T) {
	cfg := Config{Region: "de", Count: 300, Seed: 7, SubnetworkRate: 0.3}

	g1, err := New(cfg)
	require.NoError(t, err)
	a, err := g1.Generate()
	require.NoError(t, err)

	g2, err := New(cfg)
	require.NoError(t, err)
	b, err := g2.Generate()
	require.NoError(t, err)

	assert.Equal(t, a, b)

	g3, err := New(Config{Region: "de", Count: 300, Seed: 8})
	require.NoError(t, err)
	c, err := g3.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a[0].ID, c[0].ID)
}

func TestGenerate_ValidLocations(t *testing.T) {
	g, err := New(Config{Region: "US", Count: 500, Seed: 1, SubnetworkRate: 0.25, InactiveRate: 0.1})
	require.NoError(t, err)

	locs, err := g.Generate()
	require.NoError(t, err)
	require.Len(t, locs, 500)

	region, _ := types.LookupRegion("us")
	seen := make(map[string]bool)
	networks := make(map[types.Category]bool)
	subnetworks, inactive := 0, 0
	for _, l := range locs {
		require.NoError(t, l.Validate())
		assert.Equal(t, "us", l.Region)
		assert.True(t, region.Bounds.Contains(l.Lat, l.Lng), "%s outside region", l.ID)
		assert.False(t, seen[l.ID], "duplicate id %s", l.ID)
		seen[l.ID] = true
		networks[l.Network] = true
		if l.HasSubnetwork() {
			subnetworks++
			assert.Contains(t, l.Subnetwork, string(l.Network))
		}
		if !l.Active {
			inactive++
		}
		assert.Len(t, l.Zip, 5)
	}
	assert.Len(t, networks, len(DefaultNetworks))
	assert.InDelta(t, 125, subnetworks, 50)
	assert.InDelta(t, 50, inactive, 30)
}

func TestDensity_Range(t *testing.T) {
	g, err := New(Config{Region: "gb", Seed: 3})
	require.NoError(t, err)

	for lat := 50.0; lat < 58; lat += 0.37 {
		for lng := -8.0; lng < 1.8; lng += 0.41 {
			d := g.Density(lat, lng)
			assert.GreaterOrEqual(t, d, 0.0)
			assert.LessOrEqual(t, d, 1.0)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Region: "atlantis"})
	require.ErrorIs(t, err, types.ErrUnknownRegion)

	_, err = New(Config{Region: "us", Count: -1})
	require.Error(t, err)
}

func TestGenerate_Zero(t *testing.T) {
	g, err := New(Config{Region: "au"})
	require.NoError(t, err)
	locs, err := g.Generate()
	require.NoError(t, err)
	assert.Empty(t, locs)
}
