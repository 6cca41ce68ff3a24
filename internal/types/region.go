package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownRegion is returned when a region code is not in the registry.
var ErrUnknownRegion = errors.New("unknown region")

// Region is one supported country/territory dataset.
type Region struct {
	Code   string      `json:"code"`
	Name   string      `json:"name"`
	Center FlyTo       `json:"center"`
	Bounds BoundingBox `json:"bounds"`
}

// DefaultView returns the viewport the map starts with for this region.
func (r Region) DefaultView() FlyTo {
	return r.Center
}

var regions = map[string]Region{
	"us": {
		Code:   "us",
		Name:   "United States",
		Center: FlyTo{Lat: 39.5, Lng: -98.35, Zoom: 4},
		Bounds: BoundingBox{West: -125.0, South: 24.4, East: -66.9, North: 49.4},
	},
	"ca": {
		Code:   "ca",
		Name:   "Canada",
		Center: FlyTo{Lat: 56.1, Lng: -106.3, Zoom: 3},
		Bounds: BoundingBox{West: -141.0, South: 41.7, East: -52.6, North: 70.0},
	},
	"gb": {
		Code:   "gb",
		Name:   "United Kingdom",
		Center: FlyTo{Lat: 54.0, Lng: -2.5, Zoom: 5},
		Bounds: BoundingBox{West: -8.2, South: 49.9, East: 1.8, North: 58.7},
	},
	"de": {
		Code:   "de",
		Name:   "Germany",
		Center: FlyTo{Lat: 51.2, Lng: 10.4, Zoom: 5},
		Bounds: BoundingBox{West: 5.9, South: 47.3, East: 15.0, North: 55.1},
	},
	"au": {
		Code:   "au",
		Name:   "Australia",
		Center: FlyTo{Lat: -25.3, Lng: 133.8, Zoom: 4},
		Bounds: BoundingBox{West: 113.3, South: -43.6, East: 153.6, North: -10.7},
	},
}

// LookupRegion resolves a region code (case-insensitive).
func LookupRegion(code string) (Region, error) {
	r, ok := regions[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Region{}, fmt.Errorf("%w: %q", ErrUnknownRegion, code)
	}
	return r, nil
}

// RegionCodes lists all supported region codes, sorted.
func RegionCodes() []string {
	codes := make([]string, 0, len(regions))
	for c := range regions {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
