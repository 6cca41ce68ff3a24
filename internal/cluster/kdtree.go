package cluster

// kdTree is a static 2D tree over node positions in normalized mercator space.
// Leaves hold up to nodeSize entries and are scanned linearly.
type kdTree struct {
	nodeSize int
	ids      []int32
	coords   []float64 // x0, y0, x1, y1, ...
}

func newKDTree(nodes []node, nodeSize int) *kdTree {
	t := &kdTree{
		nodeSize: nodeSize,
		ids:      make([]int32, len(nodes)),
		coords:   make([]float64, 2*len(nodes)),
	}
	for i, n := range nodes {
		t.ids[i] = int32(i)
		t.coords[2*i] = n.x
		t.coords[2*i+1] = n.y
	}
	t.sort(0, len(nodes)-1, 0)
	return t
}

func (t *kdTree) sort(left, right, axis int) {
	if right-left <= t.nodeSize {
		return
	}
	m := (left + right) >> 1
	t.selectNth(m, left, right, axis)
	t.sort(left, m-1, 1-axis)
	t.sort(m+1, right, 1-axis)
}

// selectNth partially orders [left, right] so position k holds the k-th
// smallest coordinate on axis. Three-way partitioning keeps runs of identical
// coordinates (co-located locations are common) linear.
func (t *kdTree) selectNth(k, left, right, axis int) {
	for left < right {
		pv := t.coords[2*((left+right)>>1)+axis]
		lt, i, gt := left, left, right
		for i <= gt {
			v := t.coords[2*i+axis]
			switch {
			case v < pv:
				t.swap(lt, i)
				lt++
				i++
			case v > pv:
				t.swap(i, gt)
				gt--
			default:
				i++
			}
		}
		switch {
		case k < lt:
			right = lt - 1
		case k > gt:
			left = gt + 1
		default:
			return
		}
	}
}

func (t *kdTree) swap(i, j int) {
	t.ids[i], t.ids[j] = t.ids[j], t.ids[i]
	t.coords[2*i], t.coords[2*j] = t.coords[2*j], t.coords[2*i]
	t.coords[2*i+1], t.coords[2*j+1] = t.coords[2*j+1], t.coords[2*i+1]
}

type span struct{ left, right, axis int }

// rangeQuery returns the node indices inside [minX, maxX] x [minY, maxY].
func (t *kdTree) rangeQuery(minX, minY, maxX, maxY float64) []int32 {
	if len(t.ids) == 0 {
		return nil
	}
	var result []int32
	stack := []span{{0, len(t.ids) - 1, 0}}

	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.right-s.left <= t.nodeSize {
			for i := s.left; i <= s.right; i++ {
				x, y := t.coords[2*i], t.coords[2*i+1]
				if x >= minX && x <= maxX && y >= minY && y <= maxY {
					result = append(result, t.ids[i])
				}
			}
			continue
		}

		m := (s.left + s.right) >> 1
		x, y := t.coords[2*m], t.coords[2*m+1]
		if x >= minX && x <= maxX && y >= minY && y <= maxY {
			result = append(result, t.ids[m])
		}

		v, lo, hi := x, minX, maxX
		if s.axis == 1 {
			v, lo, hi = y, minY, maxY
		}
		if lo <= v {
			stack = append(stack, span{s.left, m - 1, 1 - s.axis})
		}
		if hi >= v {
			stack = append(stack, span{m + 1, s.right, 1 - s.axis})
		}
	}
	return result
}

// within returns the node indices whose distance to (qx, qy) is at most r.
func (t *kdTree) within(qx, qy, r float64) []int32 {
	if len(t.ids) == 0 {
		return nil
	}
	var result []int32
	r2 := r * r
	stack := []span{{0, len(t.ids) - 1, 0}}

	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.right-s.left <= t.nodeSize {
			for i := s.left; i <= s.right; i++ {
				if sqDist(t.coords[2*i], t.coords[2*i+1], qx, qy) <= r2 {
					result = append(result, t.ids[i])
				}
			}
			continue
		}

		m := (s.left + s.right) >> 1
		x, y := t.coords[2*m], t.coords[2*m+1]
		if sqDist(x, y, qx, qy) <= r2 {
			result = append(result, t.ids[m])
		}

		v, q := x, qx
		if s.axis == 1 {
			v, q = y, qy
		}
		if q-r <= v {
			stack = append(stack, span{s.left, m - 1, 1 - s.axis})
		}
		if q+r >= v {
			stack = append(stack, span{m + 1, s.right, 1 - s.axis})
		}
	}
	return result
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx, dy := ax-bx, ay-by
	return dx*dx + dy*dy
}
