package sdtree

import (
	"math/rand"
	"testing"
)

func TestChildIndex_Quadrants(t *testing.T) {
	cases := []struct {
		p    Point2
		want int
	}{
		{Point2{0.1, 0.1}, 0},
		{Point2{0.9, 0.1}, 1},
		{Point2{0.1, 0.9}, 2},
		{Point2{0.9, 0.9}, 3},
	}
	for _, c := range cases {
		p := c.p
		got := childIndex(&p)
		if got != c.want {
			t.Errorf("childIndex(%v) = %d, want %d", c.p, got, c.want)
		}
	}
}

func TestQuadTreeNode_RecordAndEvalLeaf(t *testing.T) {
	nodes := make([]QuadTreeNode, 1)
	recordNode(nodes, 0, Point2{0.9, 0.9}, 4.0)
	got := evalNode(nodes, 0, Point2{0.9, 0.9})
	want := 4.0 * 4.0 // eval = 4*sum at leaf
	if got != want {
		t.Errorf("evalNode after record = %v, want %v", got, want)
	}
}

func TestBuildNode_ReconcilesNonLeafSums(t *testing.T) {
	nodes := make([]QuadTreeNode, 2)
	nodes[0].child[3] = 1
	nodes[1].sum[0].store(1)
	nodes[1].sum[1].store(2)
	nodes[1].sum[2].store(3)
	nodes[1].sum[3].store(4)

	buildNode(nodes, 0)

	got := nodes[0].sumAt(3)
	if got != 10 {
		t.Errorf("parent sum after build = %v, want 10", got)
	}
}

func TestSetMinimumIrrNode_FloorsLeaves(t *testing.T) {
	nodes := make([]QuadTreeNode, 1)
	nodes[0].sum[0].store(0.0001)
	nodes[0].sum[1].store(5.0)
	setMinimumIrrNode(nodes, 0, 1.0)

	if nodes[0].sumAt(0) != 1.0 {
		t.Errorf("expected leaf floored to 1.0, got %v", nodes[0].sumAt(0))
	}
	if nodes[0].sumAt(1) != 5.0 {
		t.Errorf("expected leaf above floor unchanged, got %v", nodes[0].sumAt(1))
	}
}

func TestSampleNode_DegenerateFallsBackToUniform(t *testing.T) {
	nodes := make([]QuadTreeNode, 1)
	rng := rand.New(rand.NewSource(1))
	p := sampleNode(nodes, 0, rng)
	if p.X < 0 || p.X >= 1 || p.Y < 0 || p.Y >= 1 {
		t.Errorf("expected uniform fallback within unit square, got %v", p)
	}
}

func TestSampleNode_ConcentratesInHighEnergyQuadrant(t *testing.T) {
	nodes := make([]QuadTreeNode, 1)
	nodes[0].sum[3].store(1000) // quadrant x>=0.5,y>=0.5
	nodes[0].sum[0].store(0.001)
	nodes[0].sum[1].store(0.001)
	nodes[0].sum[2].store(0.001)

	rng := rand.New(rand.NewSource(42))
	inQuadrant := 0
	const n = 2000
	for i := 0; i < n; i++ {
		p := sampleNode(nodes, 0, rng)
		if p.X >= 0.5 && p.Y >= 0.5 {
			inQuadrant++
		}
	}
	if float64(inQuadrant)/n < 0.95 {
		t.Errorf("expected >=95%% of samples in high-energy quadrant, got %v", float64(inQuadrant)/n)
	}
}

func TestOverlapArea(t *testing.T) {
	area := overlapArea(Point2{0.25, 0.25}, Point2{0.5, 0.5}, Point2{0, 0}, 0.5)
	want := 0.25 * 0.25
	if area != want {
		t.Errorf("overlapArea = %v, want %v", area, want)
	}

	noOverlap := overlapArea(Point2{0.9, 0.9}, Point2{0.05, 0.05}, Point2{0, 0}, 0.5)
	if noOverlap != 0 {
		t.Errorf("expected zero overlap, got %v", noOverlap)
	}
}
