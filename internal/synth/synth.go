// Package synth generates deterministic synthetic location datasets.
//
// Positions are drawn by rejection sampling against a perlin noise density
// field, which produces the dense urban clusters and sparse rural areas the
// clustering code is tuned for.
package synth

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/aquilax/go-perlin"
	"github.com/google/uuid"
)

// Config configures a Generator.
type Config struct {
	Region string
	Count  int
	Seed   int64
	// Networks names the categories. Empty uses DefaultNetworks.
	Networks []types.Category
	// SubnetworkRate is the share of locations assigned to a subnetwork.
	SubnetworkRate float64
	// InactiveRate is the share of locations generated inactive.
	InactiveRate float64
	// Scale is the size in degrees of one noise feature. 0 means 2.
	Scale float64
	// CellSize is the size in degrees of the grid that assigns cities and zips. 0 means 0.25.
	CellSize float64
}

// DefaultNetworks are used when Config.Networks is empty.
var DefaultNetworks = []types.Category{"Amperio", "Chargepoint Plus", "Ionity Lane", "Voltway"}

var subnetworkSuffixes = []string{"Fleet", "Express", "Partner"}

// Generator produces locations.
type Generator struct {
	cfg    Config
	bounds types.BoundingBox
	noise  *perlin.Perlin
	rng    *rand.Rand
}

// New creates a generator for a registered region.
func New(cfg Config) (*Generator, error) {
	r, err := types.LookupRegion(cfg.Region)
	if err != nil {
		return nil, err
	}
	if cfg.Count < 0 {
		return nil, fmt.Errorf("count must not be negative, got %d", cfg.Count)
	}
	if len(cfg.Networks) == 0 {
		cfg.Networks = DefaultNetworks
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 2
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = 0.25
	}
	cfg.Region = r.Code

	return &Generator{
		cfg:    cfg,
		bounds: r.Bounds,
		// alpha: persistence, beta: lacunarity, n: octaves
		noise: perlin.NewPerlin(2.0, 2.0, 3, cfg.Seed),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Density returns the acceptance probability in [0,1] at a position.
func (g *Generator) Density(lat, lng float64) float64 {
	v := g.noise.Noise2D(lng/g.cfg.Scale, lat/g.cfg.Scale)
	d := (v + 1) / 2
	// Sharpen so that most of the area is sparse.
	d = d * d * d
	return math.Max(0, math.Min(1, d))
}

// Generate returns Count locations. The same Config always yields the same output.
func (g *Generator) Generate() ([]types.Location, error) {
	out := make([]types.Location, 0, g.cfg.Count)
	for len(out) < g.cfg.Count {
		lat := g.bounds.South + g.rng.Float64()*g.bounds.Height()
		lng := g.bounds.West + g.rng.Float64()*g.bounds.Width()
		if g.rng.Float64() > g.Density(lat, lng) {
			continue
		}
		l, err := g.location(lat, lng)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (g *Generator) location(lat, lng float64) (types.Location, error) {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return types.Location{}, fmt.Errorf("failed to generate id: %w", err)
	}

	network := g.cfg.Networks[g.rng.Intn(len(g.cfg.Networks))]
	row := int(math.Floor((lat - g.bounds.South) / g.cfg.CellSize))
	col := int(math.Floor((lng - g.bounds.West) / g.cfg.CellSize))
	countyRow, countyCol := row/4, col/4

	l := types.Location{
		ID:       id.String(),
		Network:  network,
		City:     fmt.Sprintf("City %d-%d", row, col),
		Zip:      fmt.Sprintf("%05d", (row*1000+col)%100000),
		County:   fmt.Sprintf("County %d-%d", countyRow, countyCol),
		Region:   g.cfg.Region,
		Lat:      math.Round(lat*1e6) / 1e6,
		Lng:      math.Round(lng*1e6) / 1e6,
		Active:   g.rng.Float64() >= g.cfg.InactiveRate,
		Industry: "charging_station",
	}
	if g.rng.Float64() < g.cfg.SubnetworkRate {
		l.Subnetwork = string(network) + " " + subnetworkSuffixes[g.rng.Intn(len(subnetworkSuffixes))]
	}
	l.Name = fmt.Sprintf("%s %s #%d", network, l.City, g.rng.Intn(1000))
	return l, nil
}
