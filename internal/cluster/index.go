// Package cluster builds zoom-dependent point clusters, one index per network category.
//
// An Index is a pure function of its input: it is built once with greedy
// hierarchical clustering (one KD-tree per zoom) and never mutated afterwards.
package cluster

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/netmap/internal/tile"
	"github.com/MeKo-Tech/netmap/internal/types"
)

// ErrUnknownCluster is returned for cluster ids the index never produced.
var ErrUnknownCluster = errors.New("unknown cluster")

// Options configures clustering.
type Options struct {
	MinZoom int
	// MaxZoom is the finest zoom. It holds unclustered points; zooms in
	// [MinZoom, MaxZoom) are clustered.
	MaxZoom int
	// Radius is the cluster radius in pixels relative to Extent, so the visual
	// density stays the same at every zoom.
	Radius    float64
	Extent    float64
	NodeSize  int
	MinPoints int
}

// DefaultOptions returns the engine defaults: zoom 0 to 20, 60px radius on a 512px extent.
func DefaultOptions() Options {
	return Options{MinZoom: 0, MaxZoom: 20, Radius: 60, Extent: 512, NodeSize: 64, MinPoints: 2}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = d.MaxZoom
	}
	if o.MaxZoom > 30 {
		o.MaxZoom = 30
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	if o.Radius <= 0 {
		o.Radius = d.Radius
	}
	if o.Extent <= 0 {
		o.Extent = d.Extent
	}
	if o.NodeSize <= 0 {
		o.NodeSize = d.NodeSize
	}
	if o.MinPoints < 2 {
		o.MinPoints = d.MinPoints
	}
	return o
}

// radiusAt is the clustering radius at zoom in normalized mercator units.
func (o Options) radiusAt(zoom int) float64 {
	return o.Radius / (o.Extent * math.Pow(2, float64(zoom)))
}

// Cluster is either an aggregate of >= 2 locations or a leaf wrapping one.
type Cluster struct {
	ID         int64           `json:"id"`
	Lat        float64         `json:"lat"`
	Lng        float64         `json:"lng"`
	PointCount int             `json:"pointCount"`
	Location   *types.Location `json:"location,omitempty"`
}

// IsLeaf reports whether the cluster wraps a single location.
func (c Cluster) IsLeaf() bool { return c.Location != nil }

// node is one entry of a zoom level: an input point or a cluster.
type node struct {
	x, y   float64
	zoom   int   // last zoom this node was visited at
	id     int64 // point index for leaves, cluster id otherwise
	parent int64 // cluster id at the next coarser zoom, -1 if none
	count  int
}

type level struct {
	nodes []node
	tree  *kdTree
}

// Index is the cluster hierarchy of one location subset.
type Index struct {
	opts   Options
	points []types.Location
	levels []level // indexed by zoom, MinZoom..MaxZoom
}

// NewIndex builds the cluster hierarchy for locs. Locations must satisfy the
// coordinate invariant; an invalid one is a programming error and panics.
func NewIndex(opts Options, locs []types.Location) *Index {
	opts = opts.withDefaults()
	idx := &Index{
		opts:   opts,
		points: locs,
		levels: make([]level, opts.MaxZoom+1),
	}

	nodes := make([]node, len(locs))
	for i, l := range locs {
		if !types.ValidCoordinates(l.Lat, l.Lng) {
			panic(fmt.Sprintf("cluster: location %q has invalid coordinates (%v, %v)", l.ID, l.Lat, l.Lng))
		}
		nodes[i] = node{
			x:      tile.ProjectX(l.Lng),
			y:      tile.ProjectY(l.Lat),
			zoom:   math.MaxInt,
			id:     int64(i),
			parent: -1,
			count:  1,
		}
	}
	idx.levels[opts.MaxZoom] = level{nodes: nodes, tree: newKDTree(nodes, opts.NodeSize)}

	for z := opts.MaxZoom - 1; z >= opts.MinZoom; z-- {
		next := idx.cluster(z)
		idx.levels[z] = level{nodes: next, tree: newKDTree(next, opts.NodeSize)}
	}
	return idx
}

// cluster groups the nodes of zoom+1 into the nodes of zoom.
func (idx *Index) cluster(zoom int) []node {
	src := idx.levels[zoom+1]
	r := idx.opts.radiusAt(zoom)
	next := make([]node, 0, len(src.nodes))

	for i := range src.nodes {
		p := &src.nodes[i]
		if p.zoom <= zoom {
			continue
		}
		p.zoom = zoom

		neighbors := src.tree.within(p.x, p.y, r)
		count := p.count
		for _, nid := range neighbors {
			if b := &src.nodes[nid]; b.zoom > zoom {
				count += b.count
			}
		}

		if count > p.count && count >= idx.opts.MinPoints {
			wx, wy := p.x*float64(p.count), p.y*float64(p.count)
			id := idx.encodeID(i, zoom)
			for _, nid := range neighbors {
				b := &src.nodes[nid]
				if b.zoom <= zoom {
					continue
				}
				b.zoom = zoom
				wx += b.x * float64(b.count)
				wy += b.y * float64(b.count)
				b.parent = id
			}
			p.parent = id
			next = append(next, node{
				x:      wx / float64(count),
				y:      wy / float64(count),
				zoom:   math.MaxInt,
				id:     id,
				parent: -1,
				count:  count,
			})
			continue
		}

		next = append(next, node{x: p.x, y: p.y, zoom: math.MaxInt, id: p.id, parent: -1, count: p.count})
		if count > 1 {
			// Not enough points for a cluster; carry the neighbors over unmerged.
			for _, nid := range neighbors {
				b := &src.nodes[nid]
				if b.zoom <= zoom {
					continue
				}
				b.zoom = zoom
				next = append(next, node{x: b.x, y: b.y, zoom: math.MaxInt, id: b.id, parent: -1, count: b.count})
			}
		}
	}
	return next
}

// Cluster ids encode the position of their seed node and the zoom holding their
// children: id = (seed << 5) + (zoom + 1) + len(points). Leaf ids are below len(points).
func (idx *Index) encodeID(seed, zoom int) int64 {
	return int64(seed)<<5 + int64(zoom+1) + int64(len(idx.points))
}

func (idx *Index) originZoom(id int64) int {
	return int((id - int64(len(idx.points))) % 32)
}

func (idx *Index) originSeed(id int64) int {
	return int((id - int64(len(idx.points))) >> 5)
}

// Options returns the effective options.
func (idx *Index) Options() Options { return idx.opts }

// Len returns the number of indexed locations.
func (idx *Index) Len() int { return len(idx.points) }

// LimitZoom floors zoom and clamps it to [MinZoom, MaxZoom].
func (idx *Index) LimitZoom(zoom float64) int {
	z := int(math.Floor(zoom))
	return max(idx.opts.MinZoom, min(z, idx.opts.MaxZoom))
}

// Query returns the clusters and leaves inside bbox at zoom.
func (idx *Index) Query(bbox types.BoundingBox, zoom float64) []Cluster {
	lv := idx.levels[idx.LimitZoom(zoom)]

	west := max(-180, min(bbox.West, 180))
	east := max(-180, min(bbox.East, 180))
	south := max(-90, min(bbox.South, 90))
	north := max(-90, min(bbox.North, 90))

	ids := lv.tree.rangeQuery(tile.ProjectX(west), tile.ProjectY(north), tile.ProjectX(east), tile.ProjectY(south))
	out := make([]Cluster, 0, len(ids))
	for _, i := range ids {
		out = append(out, idx.toCluster(lv.nodes[i]))
	}
	return out
}

func (idx *Index) toCluster(n node) Cluster {
	if n.count == 1 && n.id < int64(len(idx.points)) {
		loc := idx.points[n.id]
		return Cluster{ID: n.id, Lat: loc.Lat, Lng: loc.Lng, PointCount: 1, Location: &loc}
	}
	return Cluster{
		ID:         n.id,
		Lat:        tile.UnprojectY(n.y),
		Lng:        tile.UnprojectX(n.x),
		PointCount: n.count,
	}
}

// Children returns the clusters and leaves a cluster splits into at the next zoom.
func (idx *Index) Children(clusterID int64) ([]Cluster, error) {
	nodes, err := idx.childNodes(clusterID)
	if err != nil {
		return nil, err
	}
	children := make([]Cluster, len(nodes))
	for i, n := range nodes {
		children[i] = idx.toCluster(n)
	}
	return children, nil
}

func (idx *Index) childNodes(clusterID int64) ([]node, error) {
	if clusterID <= int64(len(idx.points)) {
		return nil, fmt.Errorf("cluster %d: %w", clusterID, ErrUnknownCluster)
	}
	oz := idx.originZoom(clusterID)
	seed := idx.originSeed(clusterID)
	if oz <= idx.opts.MinZoom || oz > idx.opts.MaxZoom {
		return nil, fmt.Errorf("cluster %d: %w", clusterID, ErrUnknownCluster)
	}
	lv := idx.levels[oz]
	if seed >= len(lv.nodes) {
		return nil, fmt.Errorf("cluster %d: %w", clusterID, ErrUnknownCluster)
	}

	s := lv.nodes[seed]
	var children []node
	for _, nid := range lv.tree.within(s.x, s.y, idx.opts.radiusAt(oz-1)) {
		if n := lv.nodes[nid]; n.parent == clusterID {
			children = append(children, n)
		}
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("cluster %d: %w", clusterID, ErrUnknownCluster)
	}
	return children, nil
}

// Lookup returns the cluster or leaf with the given id. A cluster's position is
// the count-weighted centroid of its children, the same one Query reports.
func (idx *Index) Lookup(clusterID int64) (Cluster, error) {
	if clusterID >= 0 && clusterID < int64(len(idx.points)) {
		return idx.toCluster(node{id: clusterID, count: 1}), nil
	}
	nodes, err := idx.childNodes(clusterID)
	if err != nil {
		return Cluster{}, err
	}
	var wx, wy float64
	count := 0
	for _, n := range nodes {
		wx += n.x * float64(n.count)
		wy += n.y * float64(n.count)
		count += n.count
	}
	return Cluster{
		ID:         clusterID,
		Lat:        tile.UnprojectY(wy / float64(count)),
		Lng:        tile.UnprojectX(wx / float64(count)),
		PointCount: count,
	}, nil
}

// ExpansionZoom returns the first zoom at which the cluster splits into at least
// two children, capped at MaxZoom.
func (idx *Index) ExpansionZoom(clusterID int64) (int, error) {
	if _, err := idx.Children(clusterID); err != nil {
		return 0, err
	}

	zoom := idx.originZoom(clusterID) - 1
	for zoom < idx.opts.MaxZoom {
		children, err := idx.Children(clusterID)
		if err != nil {
			return 0, err
		}
		zoom++
		if len(children) != 1 || children[0].IsLeaf() {
			break
		}
		clusterID = children[0].ID
	}
	return zoom, nil
}

// Leaves returns up to limit locations under the cluster, skipping offset.
// A limit <= 0 returns every leaf.
func (idx *Index) Leaves(clusterID int64, limit, offset int) ([]types.Location, error) {
	if limit <= 0 {
		limit = math.MaxInt
	}
	var out []types.Location
	if _, err := idx.appendLeaves(&out, clusterID, limit, offset, 0); err != nil {
		return nil, err
	}
	return out, nil
}

func (idx *Index) appendLeaves(out *[]types.Location, clusterID int64, limit, offset, skipped int) (int, error) {
	children, err := idx.Children(clusterID)
	if err != nil {
		return skipped, err
	}
	for _, c := range children {
		if c.IsLeaf() {
			if skipped < offset {
				skipped++
			} else {
				*out = append(*out, *c.Location)
			}
		} else if skipped+c.PointCount <= offset {
			skipped += c.PointCount
		} else {
			skipped, err = idx.appendLeaves(out, c.ID, limit, offset, skipped)
			if err != nil {
				return skipped, err
			}
		}
		if len(*out) == limit {
			break
		}
	}
	return skipped, nil
}
