package types

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrInvalidViewport is returned for boxes that are empty, inverted or cross the antimeridian.
var ErrInvalidViewport = errors.New("invalid viewport")

// BoundingBox represents a geographic bounding box in WGS84 (EPSG:4326)
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Viewport is the bounding box plus zoom level currently visible on the map.
type Viewport struct {
	BoundingBox
	Zoom float64 `json:"zoom"`
}

// FlyTo is a target the map should animate to.
type FlyTo struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom int     `json:"zoom"`
}

// Validate rejects inverted boxes. Boxes crossing the antimeridian arrive with
// west > east and are rejected too.
func (b BoundingBox) Validate() error {
	if !ValidCoordinates(b.South, b.West) || !ValidCoordinates(b.North, b.East) {
		return fmt.Errorf("%w: %s out of range", ErrInvalidViewport, b)
	}
	if b.West >= b.East {
		return fmt.Errorf("%w: west %.6f >= east %.6f", ErrInvalidViewport, b.West, b.East)
	}
	if b.South >= b.North {
		return fmt.Errorf("%w: south %.6f >= north %.6f", ErrInvalidViewport, b.South, b.North)
	}
	return nil
}

// Validate checks the box and rejects a negative or non-finite zoom.
func (v Viewport) Validate() error {
	if err := v.BoundingBox.Validate(); err != nil {
		return err
	}
	if math.IsNaN(v.Zoom) || math.IsInf(v.Zoom, 0) || v.Zoom < 0 {
		return fmt.Errorf("%w: zoom %v", ErrInvalidViewport, v.Zoom)
	}
	return nil
}

// Contains reports whether the point lies inside the box (edges inclusive).
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.South && lat <= b.North && lng >= b.West && lng <= b.East
}

// Bound returns the box as an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}

// FromBound converts an orb.Bound into a BoundingBox.
func FromBound(b orb.Bound) BoundingBox {
	return BoundingBox{West: b.Min.Lon(), South: b.Min.Lat(), East: b.Max.Lon(), North: b.Max.Lat()}
}

// String returns a human-readable representation of the bounding box
func (b BoundingBox) String() string {
	return fmt.Sprintf("bbox(%.6f,%.6f,%.6f,%.6f)", b.West, b.South, b.East, b.North)
}

// Key returns a stable key for caching, rounded to ~1m.
func (b BoundingBox) Key() string {
	return fmt.Sprintf("%.5f,%.5f,%.5f,%.5f", b.West, b.South, b.East, b.North)
}

// Center returns the center point of the bounding box
func (b BoundingBox) Center() (lat, lng float64) {
	return (b.South + b.North) / 2, (b.West + b.East) / 2
}

// Width returns the width of the bounding box in degrees
func (b BoundingBox) Width() float64 {
	return b.East - b.West
}

// Height returns the height of the bounding box in degrees
func (b BoundingBox) Height() float64 {
	return b.North - b.South
}

// ExpandByFraction grows the box on each side by the given fraction of its size,
// clamped to valid coordinates.
func (b BoundingBox) ExpandByFraction(f float64) BoundingBox {
	if f <= 0 {
		return b
	}
	dx := b.Width() * f
	dy := b.Height() * f
	return BoundingBox{
		West:  max(b.West-dx, -180),
		South: max(b.South-dy, -90),
		East:  min(b.East+dx, 180),
		North: min(b.North+dy, 90),
	}
}
