package cluster

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func randomNodes(rng *rand.Rand, n int) []node {
	nodes := make([]node, n)
	for i := range nodes {
		nodes[i] = node{x: rng.Float64(), y: rng.Float64()}
		if i%10 == 0 && i > 0 {
			nodes[i] = nodes[i-1] // duplicates
		}
	}
	return nodes
}

func sorted(ids []int32) []int32 {
	out := append([]int32(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestKDTree_RangeMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	nodes := randomNodes(rng, 1000)
	tree := newKDTree(nodes, 8)

	for q := 0; q < 50; q++ {
		x0, x1 := rng.Float64(), rng.Float64()
		y0, y1 := rng.Float64(), rng.Float64()
		minX, maxX := min(x0, x1), max(x0, x1)
		minY, maxY := min(y0, y1), max(y0, y1)

		var want []int32
		for i, n := range nodes {
			if n.x >= minX && n.x <= maxX && n.y >= minY && n.y <= maxY {
				want = append(want, int32(i))
			}
		}
		assert.Equal(t, want, sorted(tree.rangeQuery(minX, minY, maxX, maxY)))
	}
}

func TestKDTree_WithinMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	nodes := randomNodes(rng, 1000)
	tree := newKDTree(nodes, 16)

	for q := 0; q < 50; q++ {
		qx, qy, r := rng.Float64(), rng.Float64(), rng.Float64()*0.2

		var want []int32
		for i, n := range nodes {
			if sqDist(n.x, n.y, qx, qy) <= r*r {
				want = append(want, int32(i))
			}
		}
		assert.Equal(t, want, sorted(tree.within(qx, qy, r)))
	}
}

func TestKDTree_Empty(t *testing.T) {
	tree := newKDTree(nil, 64)
	assert.Empty(t, tree.rangeQuery(0, 0, 1, 1))
	assert.Empty(t, tree.within(0.5, 0.5, 1))
}
