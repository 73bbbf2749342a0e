package sdtree

import "math/rand"

// Point2 is a point in the unit square, the canonical parameterization of a
// direction on the unit sphere (see DirToCanonical/CanonicalToDir in wrapper.go).
type Point2 struct {
	X, Y float64
}

// QuadTreeNode is one node of a directional quadtree over the unit square.
// Nodes live in a single vector owned by a DTree and address their children
// by index into that vector; index 0 is never a valid child (it is the
// root), so a zero child index marks a leaf.
type QuadTreeNode struct {
	sum   [4]atomicFloat64
	child [4]uint16
}

func (n *QuadTreeNode) isLeaf(i int) bool {
	return n.child[i] == 0
}

func (n *QuadTreeNode) sumAt(i int) float64 {
	return n.sum[i].load()
}

func (n *QuadTreeNode) total() float64 {
	return n.sum[0].load() + n.sum[1].load() + n.sum[2].load() + n.sum[3].load()
}

// SumAt returns slot i's energy sum, exported for the dump codec's node
// serialization.
func (n *QuadTreeNode) SumAt(i int) float64 {
	return n.sum[i].load()
}

// ChildAt returns slot i's child index (0 means leaf), exported for the
// dump codec's node serialization.
func (n *QuadTreeNode) ChildAt(i int) uint16 {
	return n.child[i]
}

// childIndex folds p in place into the selected child's local unit square
// and returns the 2-bit quadrant selector (bit0 = x half, bit1 = y half).
func childIndex(p *Point2) int {
	index := 0
	if p.X < 0.5 {
		p.X *= 2
	} else {
		p.X = (p.X - 0.5) * 2
		index |= 1
	}
	if p.Y < 0.5 {
		p.Y *= 2
	} else {
		p.Y = (p.Y - 0.5) * 2
		index |= 2
	}
	return index
}

// nodes is the backing vector for a DTree; these free functions walk it by
// index so growth (append) of the vector during construction never
// invalidates an in-flight recursive call holding a *QuadTreeNode.

func evalNode(nodes []QuadTreeNode, idx int, p Point2) float64 {
	n := &nodes[idx]
	ci := childIndex(&p)
	if !n.isLeaf(ci) {
		return 4 * evalNode(nodes, int(n.child[ci]), p)
	}
	return 4 * n.sumAt(ci)
}

func pdfNode(nodes []QuadTreeNode, idx int, p Point2, level, curr int) float64 {
	n := &nodes[idx]
	total := n.total()
	if total <= 0 {
		return 0
	}
	ci := childIndex(&p)
	factor := 4 * n.sumAt(ci) / total
	if factor <= 0 {
		return 0
	}
	curr++
	if n.isLeaf(ci) || curr == level {
		return factor
	}
	return factor * pdfNode(nodes, int(n.child[ci]), p, level, curr)
}

func depthAtNode(nodes []QuadTreeNode, idx int, p Point2) int {
	n := &nodes[idx]
	ci := childIndex(&p)
	if n.isLeaf(ci) {
		return 1
	}
	return 1 + depthAtNode(nodes, int(n.child[ci]), p)
}

func setMinimumIrrNode(nodes []QuadTreeNode, idx int, irr float64) {
	n := &nodes[idx]
	for i := 0; i < 4; i++ {
		if !n.isLeaf(i) {
			setMinimumIrrNode(nodes, int(n.child[i]), irr)
		} else {
			n.sum[i].max(irr)
		}
	}
}

func buildNode(nodes []QuadTreeNode, idx int) float64 {
	n := &nodes[idx]
	var total float64
	for i := 0; i < 4; i++ {
		if !n.isLeaf(i) {
			s := buildNode(nodes, int(n.child[i]))
			n.sum[i].store(s)
		}
		total += n.sumAt(i)
	}
	return total
}

func recordNode(nodes []QuadTreeNode, idx int, p Point2, v float64) {
	n := &nodes[idx]
	ci := childIndex(&p)
	if !n.isLeaf(ci) {
		recordNode(nodes, int(n.child[ci]), p, v)
		return
	}
	n.sum[ci].add(v)
}

// overlapArea returns the area of intersection between box [ao,ao+as] and
// box [bo,bo+bs] (ao/bo are 2-D origins, as a 2-D size, bs a square size).
func overlapArea(ao, as Point2, bo Point2, bs float64) float64 {
	xOverlap := min(ao.X+as.X, bo.X+bs) - max(ao.X, bo.X)
	yOverlap := min(ao.Y+as.Y, bo.Y+bs) - max(ao.Y, bo.Y)
	if xOverlap <= 0 || yOverlap <= 0 {
		return 0
	}
	return xOverlap * yOverlap
}

// recordBoxNode splats value, area-weighted, into every leaf whose unit
// square overlaps the box [origin, origin+size]; nodeOrigin/nodeSize
// describe the square owned by nodes[idx].
func recordBoxNode(nodes []QuadTreeNode, idx int, origin, size Point2, nodeOrigin Point2, nodeSize, value float64) {
	n := &nodes[idx]
	childSize := nodeSize * 0.5
	for i := 0; i < 4; i++ {
		childOrigin := nodeOrigin
		if i&1 != 0 {
			childOrigin.X += childSize
		}
		if i&2 != 0 {
			childOrigin.Y += childSize
		}
		overlap := overlapArea(origin, size, childOrigin, childSize)
		if overlap <= 0 {
			continue
		}
		if !n.isLeaf(i) {
			recordBoxNode(nodes, int(n.child[i]), origin, size, childOrigin, childSize, value)
		} else {
			n.sum[i].add(value * overlap)
		}
	}
}

// sampleNode draws a point in the local unit square owned by nodes[idx]
// using two successive 1-D partitions (x, then y), matching the energy
// distribution recorded in the node's four children.
func sampleNode(nodes []QuadTreeNode, idx int, rng *rand.Rand) Point2 {
	n := &nodes[idx]
	s := [4]float64{n.sumAt(0), n.sumAt(1), n.sumAt(2), n.sumAt(3)}
	total := s[0] + s[1] + s[2] + s[3]
	if total <= 0 {
		return Point2{X: rng.Float64(), Y: rng.Float64()}
	}

	leftMass := s[0] + s[2]
	u := rng.Float64() * total
	var xHalf int
	if u < leftMass {
		xHalf = 0
	} else {
		xHalf = 1
	}

	topMass := s[xHalf]
	bottomMass := s[xHalf+2]
	halfTotal := topMass + bottomMass
	v := rng.Float64() * halfTotal
	var yHalf int
	if v < topMass {
		yHalf = 0
	} else {
		yHalf = 1
	}

	childIdx := xHalf | (yHalf << 1)
	var local Point2
	if !n.isLeaf(childIdx) {
		local = sampleNode(nodes, int(n.child[childIdx]), rng)
	} else {
		local = Point2{X: rng.Float64(), Y: rng.Float64()}
	}
	return Point2{
		X: (float64(xHalf) + local.X) * 0.5,
		Y: (float64(yHalf) + local.Y) * 0.5,
	}
}
