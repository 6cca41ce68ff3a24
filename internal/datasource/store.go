// Package datasource provides the location stores the engine loads from.
//
// Every store returns only active locations that satisfy the coordinate
// invariant; malformed records are dropped and logged here, never passed on.
package datasource

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MeKo-Tech/netmap/internal/types"
)

// ErrUnknownDriver is returned by Open for an unsupported store driver.
var ErrUnknownDriver = errors.New("unknown store driver")

var discardLogger = slog.New(slog.DiscardHandler)

// Store is the persistent location collaborator.
type Store interface {
	// FetchRegionLocations returns every active location of a region as one list.
	FetchRegionLocations(ctx context.Context, region string) ([]types.Location, error)
	// FetchViewportLocations returns the active locations of a region inside bbox.
	FetchViewportLocations(ctx context.Context, region string, bbox types.BoundingBox) ([]types.Location, error)
	Close() error
}

// sanitize drops inactive and malformed locations.
func sanitize(locs []types.Location, logger *slog.Logger) []types.Location {
	out := locs[:0:0]
	dropped := 0
	for _, l := range locs {
		if !l.Active {
			continue
		}
		if err := l.Validate(); err != nil {
			dropped++
			if dropped <= 5 {
				logger.Warn("Dropping malformed location", "error", err)
			}
			continue
		}
		out = append(out, l)
	}
	if dropped > 5 {
		logger.Warn("Dropped malformed locations", "count", dropped)
	}
	return out
}

func inBBox(locs []types.Location, bbox types.BoundingBox) []types.Location {
	var out []types.Location
	for _, l := range locs {
		if bbox.Contains(l.Lat, l.Lng) {
			out = append(out, l)
		}
	}
	return out
}
