// Package geojson converts renderables and location lists to GeoJSON.
package geojson

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/MeKo-Tech/netmap/internal/cluster"
	"github.com/MeKo-Tech/netmap/internal/filter"
	"github.com/MeKo-Tech/netmap/internal/mapstate"
	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureKind tells the map how to draw a feature.
type FeatureKind string

const (
	KindCluster  FeatureKind = "cluster"
	KindLocation FeatureKind = "location"
)

// FromRenderables converts renderables to a FeatureCollection of points.
// Clusters carry their id, category and point count; locations carry their
// fields. Features are ordered by category so the output is stable.
func FromRenderables(r mapstate.Renderables) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	highlighted := filter.NewSet(r.Highlighted...)
	selected := ""
	if r.Selected != nil {
		selected = r.Selected.ID
	}

	cats := make([]types.Category, 0, len(r.Clusters))
	for c := range r.Clusters {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	for _, cat := range cats {
		for _, c := range r.Clusters[cat] {
			if c.IsLeaf() {
				f := locationFeature(*c.Location, highlighted, selected)
				f.Properties["cluster_id"] = c.ID
				fc.Append(f)
				continue
			}
			fc.Append(clusterFeature(cat, c))
		}
	}
	for _, l := range r.IndividualPoints {
		fc.Append(locationFeature(l, highlighted, selected))
	}

	fc.ExtraMembers = geojson.Properties{
		"render_mode":   string(r.RenderMode),
		"viewport_mode": string(r.ViewportMode),
		"zoom":          r.Zoom,
		"total":         r.Counts.Total,
		"filtered":      r.Counts.Filtered,
	}
	return fc
}

// FromLocations converts a location list to a FeatureCollection.
func FromLocations(locs []types.Location) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	none := filter.Set{}
	for _, l := range locs {
		fc.Append(locationFeature(l, none, ""))
	}
	return fc
}

func clusterFeature(cat types.Category, c cluster.Cluster) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{c.Lng, c.Lat})
	f.Properties["kind"] = string(KindCluster)
	f.Properties["category"] = string(cat)
	f.Properties["cluster_id"] = c.ID
	f.Properties["point_count"] = c.PointCount
	return f
}

func locationFeature(l types.Location, highlighted filter.Set, selected string) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{l.Lng, l.Lat})
	f.ID = l.ID
	f.Properties["kind"] = string(KindLocation)
	f.Properties["id"] = l.ID
	f.Properties["category"] = string(l.Network)

	optional := map[string]string{
		"subnetwork":  l.Subnetwork,
		"name":        l.Name,
		"city":        l.City,
		"zip":         l.Zip,
		"county":      l.County,
		"phone":       l.Phone,
		"description": l.Description,
		"industry":    l.Industry,
	}
	for k, v := range optional {
		if v != "" {
			f.Properties[k] = v
		}
	}
	if highlighted.Has(l.ID) {
		f.Properties["highlighted"] = true
	}
	if l.ID == selected {
		f.Properties["selected"] = true
	}
	return f
}

// Marshal encodes a FeatureCollection, indented when pretty is set.
func Marshal(fc *geojson.FeatureCollection, pretty bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(fc, "", "  ")
	} else {
		data, err = json.Marshal(fc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return data, nil
}
