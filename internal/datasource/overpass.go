package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/MeKo-Tech/netmap/internal/types"
)

// DefaultOverpassEndpoint is the public Overpass API interpreter.
const DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"

// querier is the part of overpass.Client the store uses.
type querier interface {
	Query(query string) (overpass.Result, error)
}

// OverpassConfig configures an OverpassStore.
type OverpassConfig struct {
	Endpoint string
	// Amenity selects the OSM nodes to load, e.g. "charging_station" or "fuel".
	// Only nodes carrying a network tag become locations.
	Amenity string
	// Timeout is the server-side query timeout in seconds.
	Timeout int
	Logger  *slog.Logger
}

// OverpassStore serves locations from OpenStreetMap: every node of the configured
// amenity with a network tag is one location, its network tag the category.
type OverpassStore struct {
	client querier
	cfg    OverpassConfig
	logger *slog.Logger
}

// NewOverpassStore creates an Overpass-backed store.
func NewOverpassStore(cfg OverpassConfig) *OverpassStore {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOverpassEndpoint
	}
	if cfg.Amenity == "" {
		cfg.Amenity = "charging_station"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Rate limited to 1 concurrent request (API etiquette)
	client := overpass.NewWithSettings(cfg.Endpoint, 1, http.DefaultClient)

	return &OverpassStore{
		client: &client,
		cfg:    cfg,
		logger: cfg.Logger.With("store", "overpass"),
	}
}

// FetchRegionLocations queries the region's bounding box.
func (s *OverpassStore) FetchRegionLocations(ctx context.Context, region string) ([]types.Location, error) {
	r, err := types.LookupRegion(region)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, r.Code, r.Bounds)
}

// FetchViewportLocations queries bbox.
func (s *OverpassStore) FetchViewportLocations(ctx context.Context, region string, bbox types.BoundingBox) ([]types.Location, error) {
	return s.fetch(ctx, region, bbox)
}

func (s *OverpassStore) fetch(ctx context.Context, region string, bbox types.BoundingBox) ([]types.Location, error) {
	query := s.buildQuery(bbox)

	type queryResult struct {
		result overpass.Result
		err    error
	}
	// The client has no context support; abandon the call when ctx ends.
	done := make(chan queryResult, 1)
	go func() {
		result, err := s.client.Query(query)
		done <- queryResult{result, err}
	}()

	var res queryResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("overpass query failed: %w", res.err)
	}

	locs := LocationsFromOverpassResult(&res.result, region)
	s.logger.Debug("Fetched overpass locations", "region", region, "bbox", bbox.String(), "nodes", len(res.result.Nodes), "locations", len(locs))
	return sanitize(locs, s.logger), nil
}

// buildQuery selects amenity nodes with a network tag inside bbox.
func (s *OverpassStore) buildQuery(b types.BoundingBox) string {
	return fmt.Sprintf(`[out:json][timeout:%d];
node["amenity"=%q]["network"](%.6f,%.6f,%.6f,%.6f);
out body;
`, s.cfg.Timeout, s.cfg.Amenity, b.South, b.West, b.North, b.East)
}

// Close is a no-op.
func (s *OverpassStore) Close() error { return nil }

// LocationsFromOverpassResult converts the tagged nodes of a result into locations,
// sorted by id. Nodes without a network tag are skipped.
func LocationsFromOverpassResult(result *overpass.Result, region string) []types.Location {
	if result == nil {
		return nil
	}

	out := make([]types.Location, 0, len(result.Nodes))
	for _, n := range result.Nodes {
		if n == nil {
			continue
		}
		if l, ok := nodeToLocation(n, region); ok {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func nodeToLocation(n *overpass.Node, region string) (types.Location, bool) {
	tags := n.Tags
	network := tags["network"]
	if network == "" {
		return types.Location{}, false
	}

	l := types.Location{
		ID:          "node/" + strconv.FormatInt(n.ID, 10),
		Network:     types.Category(network),
		City:        tags["addr:city"],
		Zip:         tags["addr:postcode"],
		County:      firstTag(tags, "addr:county", "is_in:county"),
		Region:      region,
		Lat:         n.Lat,
		Lng:         n.Lon,
		Active:      isActive(tags),
		Name:        tags["name"],
		Phone:       firstTag(tags, "phone", "contact:phone"),
		Description: tags["description"],
		Industry:    tags["amenity"],
	}
	// The operator is the subnetwork when it differs from the network brand.
	if op := tags["operator"]; op != "" && op != network {
		l.Subnetwork = op
	}
	return l, true
}

func isActive(tags map[string]string) bool {
	return tags["disused"] != "yes" &&
		tags["access"] != "private" &&
		tags["opening_hours"] != "closed"
}

func firstTag(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return ""
}
