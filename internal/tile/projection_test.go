package tile

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestProject_ConsistentWithMaptile(t *testing.T) {
	points := []orb.Point{
		{9.73, 52.37},
		{-122.42, 37.77},
		{151.21, -33.87},
		{-3.7, 40.42},
	}

	for _, p := range points {
		for _, z := range []maptile.Zoom{0, 4, 8, 13, 18} {
			want := maptile.At(p, z)
			x, y := Project(p)
			n := math.Exp2(float64(z))

			assert.Equal(t, want.X, uint32(x*n), "x at z%d for %v", z, p)
			assert.Equal(t, want.Y, uint32(y*n), "y at z%d for %v", z, p)
		}
	}
}

func TestUnproject_RoundTrip(t *testing.T) {
	for _, lat := range []float64{-80, -33.87, 0, 37.77, 52.37, 80} {
		got := UnprojectY(ProjectY(lat))
		if !almostEqual(got, lat, 1e-9) {
			t.Fatalf("lat round trip: got %.12f want %.12f", got, lat)
		}
	}
	for _, lng := range []float64{-180, -122.42, 0, 9.73, 180} {
		got := UnprojectX(ProjectX(lng))
		if !almostEqual(got, lng, 1e-9) {
			t.Fatalf("lng round trip: got %.12f want %.12f", got, lng)
		}
	}
}

func TestProjectY_ClampsPoles(t *testing.T) {
	assert.Equal(t, 0.0, ProjectY(90))
	assert.Equal(t, 1.0, ProjectY(-90))
}

func TestFitZoom(t *testing.T) {
	world := orb.Bound{Min: orb.Point{-180, -MaxLatitude}, Max: orb.Point{180, MaxLatitude}}
	assert.Equal(t, 0, FitZoom(world, 256, 256, 0, 20))
	assert.Equal(t, 2, FitZoom(world, 1024, 1024, 0, 20))

	city := orb.Bound{Min: orb.Point{9.70, 52.33}, Max: orb.Point{9.80, 52.40}}
	z := FitZoom(city, 1024, 768, 0, 20)
	assert.GreaterOrEqual(t, z, 11)
	assert.LessOrEqual(t, z, 13)

	single := orb.Bound{Min: orb.Point{9.7, 52.3}, Max: orb.Point{9.7, 52.3}}
	assert.Equal(t, 16, FitZoom(single, 1024, 768, 0, 16))
}
