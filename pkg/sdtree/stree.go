package sdtree

import (
	"math"
	"math/rand"

	"github.com/dgranger/pathguide/pkg/core"
)

// SpatialFilter selects how STree.Record splats a sample across spatial
// leaves.
type SpatialFilter int

const (
	SpatialNearest SpatialFilter = iota
	SpatialStochasticBox
	SpatialBox
)

// maxSTreeNodes bounds STree growth; 2^32-1 is the reference ceiling, but a
// Go slice index fits comfortably in an int on any real target, so this is
// simply a sanity ceiling rather than a representational one.
const maxSTreeNodes = 1<<32 - 1

// STreeNode is one node of the kd-style binary spatial subdivision. Only
// leaves own a DTreeWrapper.
type STreeNode struct {
	isLeaf   bool
	axis     int
	children [2]int
	wrapper  *DTreeWrapper
}

// STree is the spatial half of the SD-tree: a binary subdivision of a cubic
// bounding volume whose leaves each own a DTreeWrapper. Subdivision cycles
// axis x -> y -> z with depth, a fixed round-robin rather than the
// longest-axis choice scene.BVH makes.
type STree struct {
	nodes []STreeNode
	aabb  core.AABB
}

// cubeAABB grows box to a cube along its largest side, centered on the
// original box's center, using the same LongestAxis extent that BVH splits
// use, but here for a single enclosing volume rather than a split axis.
func cubeAABB(box core.AABB) core.AABB {
	size := box.Size()
	longest := math.Max(size.X, math.Max(size.Y, size.Z))
	center := box.Center()
	half := longest / 2
	return core.NewAABB(
		core.NewVec3(center.X-half, center.Y-half, center.Z-half),
		core.NewVec3(center.X+half, center.Y+half, center.Z+half),
	)
}

// NewSTree returns a single-leaf STree covering the cube enclosing sceneAABB.
func NewSTree(sceneAABB core.AABB, bsdfSamplingFraction float64) *STree {
	return &STree{
		nodes: []STreeNode{{isLeaf: true, wrapper: NewDTreeWrapper(bsdfSamplingFraction)}},
		aabb:  cubeAABB(sceneAABB),
	}
}

// NumNodes returns the number of STreeNodes currently allocated.
func (t *STree) NumNodes() int { return len(t.nodes) }

// subdivide splits leaf idx into two children, cycling the axis and halving
// the inherited building statistical weight so the aggregate over both
// children equals the parent's.
func (t *STree) subdivide(idx int) {
	n := &t.nodes[idx]
	if !n.isLeaf {
		return
	}
	childAxis := (n.axis + 1) % 3
	halvedWeight := n.wrapper.StatisticalWeightBuilding() / 2

	left := STreeNode{isLeaf: true, axis: childAxis, wrapper: cloneWrapper(n.wrapper)}
	right := STreeNode{isLeaf: true, axis: childAxis, wrapper: cloneWrapper(n.wrapper)}
	left.wrapper.SetStatisticalWeightBuilding(halvedWeight)
	right.wrapper.SetStatisticalWeightBuilding(halvedWeight)

	t.nodes = append(t.nodes, left, right)
	leftIdx := len(t.nodes) - 2
	rightIdx := len(t.nodes) - 1

	t.nodes[idx].isLeaf = false
	t.nodes[idx].children = [2]int{leftIdx, rightIdx}
	t.nodes[idx].wrapper = nil
}

// SubdivideAll splits every current leaf once, breadth-wise.
func (t *STree) SubdivideAll() {
	leaves := make([]int, 0, len(t.nodes))
	for i := range t.nodes {
		if t.nodes[i].isLeaf {
			leaves = append(leaves, i)
		}
	}
	for _, idx := range leaves {
		t.subdivide(idx)
	}
}

// Subdivide applies SubdivideAll breadth-wise levels times, building a full
// fixed-depth topology; used only to seed the static-STree mode, where
// Refine never runs again afterward.
func (t *STree) Subdivide(levels int) {
	for i := 0; i < levels; i++ {
		t.SubdivideAll()
	}
}

// cloneWrapper makes an independent copy of a wrapper's DTrees for subdivision.
func cloneWrapper(src *DTreeWrapper) *DTreeWrapper {
	w := NewDTreeWrapper(src.BsdfSamplingFraction())
	w.sampling = src.sampling.Clone()
	w.building = src.building.Clone()
	w.previous = src.previous.Clone()
	w.augmented = src.augmented.Clone()
	return w
}

// traverse walks from the root to the leaf containing world point p,
// rescaling p into the leaf's local [0,1]^3 cube coordinates along the way.
// It does not report the leaf voxel's world-space bounds; voxelBounds does.
func (t *STree) traverse(p core.Vec3) (leafIdx int, local core.Vec3) {
	size := t.aabb.Size()
	local = core.NewVec3(
		(p.X-t.aabb.Min.X)/size.X,
		(p.Y-t.aabb.Min.Y)/size.Y,
		(p.Z-t.aabb.Min.Z)/size.Z,
	)
	idx := 0
	for !t.nodes[idx].isLeaf {
		axis := t.nodes[idx].axis
		mid := 0.5
		var comp *float64
		switch axis {
		case 0:
			comp = &local.X
		case 1:
			comp = &local.Y
		default:
			comp = &local.Z
		}
		if *comp < mid {
			*comp *= 2
			idx = t.nodes[idx].children[0]
		} else {
			*comp = (*comp - mid) * 2
			idx = t.nodes[idx].children[1]
		}
	}
	return idx, local
}

// DTreeWrapperAt returns the DTreeWrapper owning the spatial leaf containing
// world point p.
func (t *STree) DTreeWrapperAt(p core.Vec3) *DTreeWrapper {
	idx, _ := t.traverse(p)
	return t.nodes[idx].wrapper
}

// voxelBounds returns the world-space origin and size of the leaf voxel
// containing p, by walking the tree and narrowing the box.
func (t *STree) voxelBounds(p core.Vec3) (origin, size core.Vec3) {
	origin = t.aabb.Min
	size = t.aabb.Size()
	idx := 0
	for !t.nodes[idx].isLeaf {
		axis := t.nodes[idx].axis
		var o, s, pc float64
		switch axis {
		case 0:
			o, s, pc = origin.X, size.X, p.X
		case 1:
			o, s, pc = origin.Y, size.Y, p.Y
		default:
			o, s, pc = origin.Z, size.Z, p.Z
		}
		half := s / 2
		var childIdx int
		var newO float64
		if pc < o+half {
			childIdx = t.nodes[idx].children[0]
			newO = o
		} else {
			childIdx = t.nodes[idx].children[1]
			newO = o + half
		}
		switch axis {
		case 0:
			origin.X, size.X = newO, half
		case 1:
			origin.Y, size.Y = newO, half
		default:
			origin.Z, size.Z = newO, half
		}
		idx = childIdx
	}
	return origin, size
}

// Refine walks the tree splitting every leaf whose accumulated building
// statistical weight exceeds threshold, unless staticSTree pins the
// topology or the memory cap has been reached.
func (t *STree) Refine(threshold float64, maxMemoryMB float64, staticSTree bool) {
	if staticSTree {
		return
	}
	if maxMemoryMB >= 0 {
		if t.approxMemoryFootprintMB() >= maxMemoryMB {
			return
		}
	}
	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[idx]
		if !n.isLeaf {
			stack = append(stack, n.children[0], n.children[1])
			continue
		}
		if n.wrapper.StatisticalWeightBuilding() > threshold && len(t.nodes) < maxSTreeNodes {
			t.subdivide(idx)
			stack = append(stack, t.nodes[idx].children[0], t.nodes[idx].children[1])
		}
	}
}

func (t *STree) approxMemoryFootprintMB() float64 {
	total := 0
	for _, n := range t.nodes {
		if n.wrapper != nil {
			total += n.wrapper.ApproxMemoryFootprint()
		}
	}
	return float64(total) / (1024 * 1024)
}

// ForEachLeaf visits every leaf wrapper, used by the controller to drive
// per-iteration Build/Reset across the whole tree.
func (t *STree) ForEachLeaf(fn func(w *DTreeWrapper)) {
	for i := range t.nodes {
		if t.nodes[i].isLeaf {
			fn(t.nodes[i].wrapper)
		}
	}
}

// ForEachLeafVoxel visits every leaf along with its world-space voxel
// origin and size, for the dump codec's per-wrapper header fields.
func (t *STree) ForEachLeafVoxel(fn func(origin, size core.Vec3, w *DTreeWrapper)) {
	type frame struct {
		idx          int
		origin, size core.Vec3
	}
	stack := []frame{{idx: 0, origin: t.aabb.Min, size: t.aabb.Size()}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[f.idx]
		if n.isLeaf {
			fn(f.origin, f.size, n.wrapper)
			continue
		}
		half := f.size
		leftOrigin, rightOrigin := f.origin, f.origin
		switch n.axis {
		case 0:
			half.X /= 2
			rightOrigin.X += half.X
		case 1:
			half.Y /= 2
			rightOrigin.Y += half.Y
		default:
			half.Z /= 2
			rightOrigin.Z += half.Z
		}
		stack = append(stack,
			frame{idx: n.children[0], origin: leftOrigin, size: half},
			frame{idx: n.children[1], origin: rightOrigin, size: half},
		)
	}
}

// ResetAll resets every leaf's building DTree from its sampling snapshot.
func (t *STree) ResetAll(maxDepth int, subdivisionThreshold float64) {
	t.ForEachLeaf(func(w *DTreeWrapper) {
		w.Reset(maxDepth, subdivisionThreshold)
	})
}

// BuildAll advances every leaf's building -> sampling snapshot.
func (t *STree) BuildAll(augment, augmentReweight, isBuilt bool) {
	t.ForEachLeaf(func(w *DTreeWrapper) {
		w.Build(augment, augmentReweight, isBuilt)
	})
}

// Record splats one radiance record into the tree using the configured
// spatial and directional filters.
func (t *STree) Record(p core.Vec3, dirX, dirY, dirZ, radiance, woPdf, statisticalWeight float64, spatial SpatialFilter, directional DirectionalFilter, rng *rand.Rand) {
	switch spatial {
	case SpatialNearest:
		t.DTreeWrapperAt(p).Record(dirX, dirY, dirZ, radiance, woPdf, statisticalWeight, directional)
	case SpatialStochasticBox:
		origin, size := t.voxelBounds(p)
		jitter := core.NewVec3(
			(rng.Float64()-0.5)*size.X,
			(rng.Float64()-0.5)*size.Y,
			(rng.Float64()-0.5)*size.Z,
		)
		jittered := p.Add(jitter)
		jittered = t.clampToAABB(jittered)
		t.DTreeWrapperAt(jittered).Record(dirX, dirY, dirZ, radiance, woPdf, statisticalWeight, directional)
	case SpatialBox:
		_, size := t.voxelBounds(p)
		volume := size.X * size.Y * size.Z
		if volume <= 0 {
			return
		}
		weight := statisticalWeight / volume
		half := size.Multiply(0.5)
		lo := p.Subtract(half)
		hi := p.Add(half)
		t.recordBoxRange(lo, hi, dirX, dirY, dirZ, radiance, woPdf, weight, directional)
	}
}

func (t *STree) clampToAABB(p core.Vec3) core.Vec3 {
	return core.NewVec3(
		math.Min(math.Max(p.X, t.aabb.Min.X), t.aabb.Max.X),
		math.Min(math.Max(p.Y, t.aabb.Min.Y), t.aabb.Max.Y),
		math.Min(math.Max(p.Z, t.aabb.Min.Z), t.aabb.Max.Z),
	)
}

// recordBoxRange splats into every leaf overlapping the world-space box
// [lo,hi], weighted by its overlap volume fraction of that leaf's voxel.
func (t *STree) recordBoxRange(lo, hi core.Vec3, dirX, dirY, dirZ, radiance, woPdf, weight float64, directional DirectionalFilter) {
	var walk func(idx int, origin, size core.Vec3)
	walk = func(idx int, origin, size core.Vec3) {
		n := &t.nodes[idx]
		hiBox := origin.Add(size)
		ox := math.Max(lo.X, origin.X)
		oy := math.Max(lo.Y, origin.Y)
		oz := math.Max(lo.Z, origin.Z)
		hx := math.Min(hi.X, hiBox.X)
		hy := math.Min(hi.Y, hiBox.Y)
		hz := math.Min(hi.Z, hiBox.Z)
		if hx <= ox || hy <= oy || hz <= oz {
			return
		}
		if n.isLeaf {
			overlapVol := (hx - ox) * (hy - oy) * (hz - oz)
			n.wrapper.Record(dirX, dirY, dirZ, radiance, woPdf, weight*overlapVol, directional)
			return
		}
		axis := n.axis
		half := size
		switch axis {
		case 0:
			half.X /= 2
		case 1:
			half.Y /= 2
		default:
			half.Z /= 2
		}
		walk(n.children[0], origin, half)
		o2 := origin
		switch axis {
		case 0:
			o2.X += half.X
		case 1:
			o2.Y += half.Y
		default:
			o2.Z += half.Z
		}
		walk(n.children[1], o2, half)
	}
	walk(0, t.aabb.Min, t.aabb.Size())
}
