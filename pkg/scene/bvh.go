package scene

import (
	"sort"

	"github.com/dgranger/pathguide/pkg/core"
)

// leafThreshold mirrors the teacher's pkg/core/bvh.go: leaves this size or
// smaller skip further splitting.
const leafThreshold = 8

// BVHNode is one node of the bounding volume hierarchy.
type BVHNode struct {
	BoundingBox core.AABB
	Left, Right *BVHNode
	Shapes      []Shape // non-nil only on leaves
}

// BVH accelerates ray/shape intersection over a static shape list.
type BVH struct {
	Root *BVHNode
}

// NewBVH builds a BVH over shapes, grounded on the teacher's buildBVH:
// longest-axis sort plus a leaf threshold, rebuilt here against this
// package's own Shape/HitRecord types.
func NewBVH(shapes []Shape) *BVH {
	if len(shapes) == 0 {
		return &BVH{Root: nil}
	}
	shapesCopy := make([]Shape, len(shapes))
	copy(shapesCopy, shapes)
	return &BVH{Root: buildBVH(shapesCopy, 0)}
}

func buildBVH(shapes []Shape, depth int) *BVHNode {
	bounds := shapes[0].BoundingBox()
	for _, s := range shapes[1:] {
		bounds = bounds.Union(s.BoundingBox())
	}

	if len(shapes) <= leafThreshold {
		return &BVHNode{BoundingBox: bounds, Shapes: shapes}
	}

	axis := bounds.LongestAxis()
	sort.Slice(shapes, func(i, j int) bool {
		return centerOn(shapes[i], axis) < centerOn(shapes[j], axis)
	})

	mid := len(shapes) / 2
	left := buildBVH(shapes[:mid], depth+1)
	right := buildBVH(shapes[mid:], depth+1)
	return &BVHNode{BoundingBox: bounds, Left: left, Right: right}
}

func centerOn(s Shape, axis int) float64 {
	c := s.BoundingBox().Center()
	switch axis {
	case 0:
		return c.X
	case 1:
		return c.Y
	default:
		return c.Z
	}
}

// Hit walks the hierarchy, returning the closest intersection within
// [tMin, tMax].
func (b *BVH) Hit(ray core.Ray, tMin, tMax float64) (*HitRecord, bool) {
	if b.Root == nil {
		return nil, false
	}
	return hitNode(b.Root, ray, tMin, tMax)
}

func hitNode(n *BVHNode, ray core.Ray, tMin, tMax float64) (*HitRecord, bool) {
	if !n.BoundingBox.Hit(ray, tMin, tMax) {
		return nil, false
	}

	if n.Shapes != nil {
		var closest *HitRecord
		closestSoFar := tMax
		for _, s := range n.Shapes {
			if hit, ok := s.Hit(ray, tMin, closestSoFar); ok {
				closest = hit
				closestSoFar = hit.T
			}
		}
		return closest, closest != nil
	}

	leftHit, leftOK := hitNode(n.Left, ray, tMin, tMax)
	rightBound := tMax
	if leftOK {
		rightBound = leftHit.T
	}
	rightHit, rightOK := hitNode(n.Right, ray, tMin, rightBound)
	if rightOK {
		return rightHit, true
	}
	return leftHit, leftOK
}
