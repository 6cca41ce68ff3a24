package types

import (
	"errors"
	"fmt"
	"math"
)

// Category identifies the network that owns a location (e.g. "Acme Charge").
type Category string

// Location is a single service location. Values are immutable once loaded.
type Location struct {
	ID         string   `json:"id"`
	Network    Category `json:"network"`
	Subnetwork string   `json:"subnetwork,omitempty"` // empty means "no subnetwork"
	City       string   `json:"city,omitempty"`
	Zip        string   `json:"zip,omitempty"`
	County     string   `json:"county,omitempty"`
	Region     string   `json:"region"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	Active     bool     `json:"active"`

	// Passthrough fields, never interpreted by the engine.
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Description string `json:"description,omitempty"`
	Industry    string `json:"industry,omitempty"`
}

var (
	ErrMissingID      = errors.New("location has no id")
	ErrMissingNetwork = errors.New("location has no network")
	ErrBadCoordinates = errors.New("location coordinates out of range")
)

// Validate checks the invariants a location must satisfy before it may enter the engine.
func (l Location) Validate() error {
	if l.ID == "" {
		return ErrMissingID
	}
	if l.Network == "" {
		return fmt.Errorf("%w: %s", ErrMissingNetwork, l.ID)
	}
	if !ValidCoordinates(l.Lat, l.Lng) {
		return fmt.Errorf("%w: %s (%v, %v)", ErrBadCoordinates, l.ID, l.Lat, l.Lng)
	}
	return nil
}

// HasSubnetwork reports whether the location belongs to a subnetwork.
func (l Location) HasSubnetwork() bool {
	return l.Subnetwork != ""
}

// ValidCoordinates reports whether lat/lng are finite decimal degrees within range.
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
