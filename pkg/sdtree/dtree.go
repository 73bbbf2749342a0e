// Package sdtree implements the adaptive spatio-directional guiding
// structure: directional quadtrees (DTree) bundled per spatial leaf
// (DTreeWrapper) of a binary spatial tree (STree), together with the
// majorizing-factor and augmented-distribution math that lets samples
// collected under one DTree be reused under another of different topology.
package sdtree

import (
	"math"
	"math/rand"

	"github.com/dgranger/pathguide/pkg/logging"
)

var logger = logging.New("sdtree")

const (
	probEpsilon  = 1e-9
	maxQuadNodes = 1 << 16
)

// DirectionalFilter selects how Record splats energy across a DTree.
type DirectionalFilter int

const (
	FilterNearest DirectionalFilter = iota
	FilterBox
)

// DTree is a vector-pooled quadtree over the unit square together with its
// atomic integral and statistical weight.
type DTree struct {
	nodes             []QuadTreeNode
	sum               atomicFloat64
	statisticalWeight atomicFloat64
	maxDepth          int
}

// NewDTree returns a single-node (root-only) DTree.
func NewDTree() *DTree {
	return &DTree{nodes: make([]QuadTreeNode, 1)}
}

// Clone returns an independent deep copy of d: an STree split needs each
// child to inherit its own node vector rather than alias the parent's.
func (d *DTree) Clone() *DTree {
	c := &DTree{
		nodes:    make([]QuadTreeNode, len(d.nodes)),
		maxDepth: d.maxDepth,
	}
	c.sum.store(d.sum.load())
	c.statisticalWeight.store(d.statisticalWeight.load())
	for i := range d.nodes {
		c.nodes[i].child = d.nodes[i].child
		for j := 0; j < 4; j++ {
			c.nodes[i].sum[j].store(d.nodes[i].sumAt(j))
		}
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v >= 1 {
		return math.Nextafter(1, 0)
	}
	return v
}

func (d *DTree) mean() float64 {
	w := d.statisticalWeight.load()
	if w <= 0 {
		return 0
	}
	return d.sum.load() / (4 * math.Pi * w)
}

// Mean returns the average radiance represented by this tree, or 0 if it has
// never accumulated any statistical weight.
func (d *DTree) Mean() float64 { return d.mean() }

// PDF returns the solid-angle probability density of direction p (given in
// canonical unit-square coordinates).
func (d *DTree) PDF(p Point2) float64 {
	if d.mean() <= 0 {
		return 1 / (4 * math.Pi)
	}
	return pdfNode(d.nodes, 0, p, -1, 0) / (4 * math.Pi)
}

// Depth returns the deepest level reached during the last Reset.
func (d *DTree) Depth() int { return d.maxDepth }

// DepthAt returns the depth of the leaf containing p.
func (d *DTree) DepthAt(p Point2) int { return depthAtNode(d.nodes, 0, p) }

// NumNodes returns the number of QuadTreeNodes currently allocated.
func (d *DTree) NumNodes() int { return len(d.nodes) }

// Nodes returns the tree's node vector in storage order (root first), for
// the dump codec's quadtree serialization. Callers must not mutate it.
func (d *DTree) Nodes() []QuadTreeNode { return d.nodes }

// StatisticalWeight returns the accumulated sample-contribution count.
func (d *DTree) StatisticalWeight() float64 { return d.statisticalWeight.load() }

// SetStatisticalWeight overrides the statistical weight (used when adopting
// a snapshot, e.g. sampling <- building).
func (d *DTree) SetStatisticalWeight(w float64) { d.statisticalWeight.store(w) }

// RecordIrradiance accumulates irradiance observed at direction p, weighted
// by w, using the given directional filter.
func (d *DTree) RecordIrradiance(p Point2, irradiance, w float64, filter DirectionalFilter) {
	d.statisticalWeight.add(w)
	if math.IsNaN(irradiance) || math.IsInf(irradiance, 0) || irradiance <= 0 {
		return
	}
	if filter == FilterNearest {
		recordNode(d.nodes, 0, p, irradiance*w)
		return
	}
	depth := depthAtNode(d.nodes, 0, p)
	size := math.Pow(0.5, float64(depth))
	half := size / 2
	origin := Point2{X: p.X - half, Y: p.Y - half}
	value := irradiance * w / (size * size)
	recordBoxNode(d.nodes, 0, origin, Point2{X: size, Y: size}, Point2{}, 1.0, value)
}

// Sample draws a direction (in canonical unit-square coordinates)
// proportional to the tree's recorded energy, falling back to uniform when
// the tree has no energy yet.
func (d *DTree) Sample(rng *rand.Rand) Point2 {
	if d.mean() <= 0 {
		return Point2{X: rng.Float64(), Y: rng.Float64()}
	}
	p := sampleNode(d.nodes, 0, rng)
	p.X = clamp01(p.X)
	p.Y = clamp01(p.Y)
	return p
}

// SetMinimumIrr floors every leaf's energy sum to irr.
func (d *DTree) SetMinimumIrr(irr float64) {
	setMinimumIrrNode(d.nodes, 0, irr)
}

// Build reconciles every non-leaf sum bottom-up and refreshes the root
// integral. Calling Build twice without an intervening Record leaves every
// sum bitwise unchanged.
func (d *DTree) Build() {
	d.sum.store(buildNode(d.nodes, 0))
}

// Reset clears this tree and regrows its topology from previous, refining
// wherever previous carried deeper structure or a high-energy fraction.
// subdivisionThreshold defaults to 0.01 in the controller.
func (d *DTree) Reset(previous *DTree, newMaxDepth int, subdivisionThreshold float64) {
	d.nodes = make([]QuadTreeNode, 1)
	d.statisticalWeight.store(0)
	d.sum.store(0)
	d.maxDepth = 0

	total := previous.sum.load()

	type item struct {
		newIdx, oldIdx int
		oldTree        *DTree
		depth          int
	}
	stack := []item{{0, 0, previous, 1}}
	overflowed := false

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if overflowed {
			continue
		}
		oldNode := it.oldTree.nodes[it.oldIdx]
		for i := 0; i < 4; i++ {
			childSum := oldNode.sumAt(i)
			d.nodes[it.newIdx].sum[i].store(childSum)

			var fraction float64
			if total > probEpsilon {
				fraction = childSum / total
			} else {
				// The previous tree's total energy has underflowed to zero;
				// fall back to the fraction a uniform subdivision would give.
				fraction = math.Pow(0.25, float64(it.depth))
			}
			subdivide := (it.depth < newMaxDepth && fraction > subdivisionThreshold) || !oldNode.isLeaf(i)
			if !subdivide {
				continue
			}
			if len(d.nodes) >= maxQuadNodes {
				overflowed = true
				logger.Warningf("dtree reset: node ceiling (%d) reached, dropping further subdivision", maxQuadNodes)
				break
			}

			d.nodes = append(d.nodes, QuadTreeNode{})
			childIdx := len(d.nodes) - 1
			for j := 0; j < 4; j++ {
				d.nodes[childIdx].sum[j].store(childSum / 4)
			}
			d.nodes[it.newIdx].child[i] = uint16(childIdx)

			// Once the previous tree bottoms out in a leaf, keep refining by
			// reading back the node just created in d: its sum was quartered
			// above, so the energy fraction decays geometrically each level
			// instead of re-reading the same un-quartered leaf forever.
			oldTree := it.oldTree
			oldChildIdx := childIdx
			if !oldNode.isLeaf(i) {
				oldChildIdx = int(oldNode.child[i])
			} else {
				oldTree = d
			}
			nextDepth := it.depth + 1
			if nextDepth > d.maxDepth {
				d.maxDepth = nextDepth
			}
			stack = append(stack, item{childIdx, oldChildIdx, oldTree, nextDepth})
		}
	}

	for i := range d.nodes {
		for j := 0; j < 4; j++ {
			d.nodes[i].sum[j].store(0)
		}
	}
}
