package sdtree

import (
	"math"
	"math/rand"
	"testing"
)

func TestDTree_RecordNearestAndMean(t *testing.T) {
	d := NewDTree()
	for i := 0; i < 100; i++ {
		d.RecordIrradiance(Point2{0.9, 0.9}, 2.0, 1.0, FilterNearest)
	}
	if d.Mean() <= 0 {
		t.Fatalf("expected positive mean after recording, got %v", d.Mean())
	}
}

func TestDTree_BuildIsIdempotent(t *testing.T) {
	d := NewDTree()
	d.RecordIrradiance(Point2{0.1, 0.1}, 3.0, 1.0, FilterBox)
	d.Build()
	first := d.sum.load()
	d.Build()
	second := d.sum.load()
	if first != second {
		t.Errorf("second Build without Record changed sum: %v -> %v", first, second)
	}
}

func TestDTree_PDFFallsBackToUniformWhenEmpty(t *testing.T) {
	d := NewDTree()
	got := d.PDF(Point2{0.5, 0.5})
	want := 1 / (4 * math.Pi)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("PDF of empty tree = %v, want %v", got, want)
	}
}

func TestDTree_SamplingMatchesPDFDistribution(t *testing.T) {
	d := NewDTree()
	for i := 0; i < 500; i++ {
		d.RecordIrradiance(Point2{0.9, 0.9}, 1.0, 1.0, FilterNearest)
	}
	d.Build()

	rng := rand.New(rand.NewSource(7))
	inHotQuadrant := 0
	const n = 2000
	for i := 0; i < n; i++ {
		p := d.Sample(rng)
		if p.X >= 0.5 && p.Y >= 0.5 {
			inHotQuadrant++
		}
	}
	if float64(inHotQuadrant)/n < 0.9 {
		t.Errorf("expected samples concentrated in recorded quadrant, got fraction %v", float64(inHotQuadrant)/n)
	}
}

func TestDTree_Reset_GrowsTopologyFromPrevious(t *testing.T) {
	prev := NewDTree()
	for i := 0; i < 1000; i++ {
		prev.RecordIrradiance(Point2{0.9, 0.9}, 1.0, 1.0, FilterNearest)
	}
	prev.Build()

	d := NewDTree()
	d.Reset(prev, 20, 0.01)

	if d.NumNodes() <= 1 {
		t.Errorf("expected Reset to subdivide toward the high-energy quadrant, got %d nodes", d.NumNodes())
	}
	for _, n := range d.nodes {
		for i := 0; i < 4; i++ {
			if n.sumAt(i) != 0 {
				t.Errorf("expected Reset to zero all sums at the end, found %v", n.sumAt(i))
			}
		}
	}
}

func TestDTree_Reset_UnderflowFractionBranch(t *testing.T) {
	// previous has zero total energy: every fraction falls back to 0.25^depth,
	// which subdivides uniformly until 0.25^depth drops below the threshold.
	// With threshold=0.01, 0.25^depth > 0.01 for depth 1..3, so the tree grows
	// as a complete quadtree to depth 4: 1 + 4 + 16 + 64 = 85 nodes.
	prev := NewDTree()
	d := NewDTree()
	d.Reset(prev, 20, 0.01)
	if d.NumNodes() != 85 {
		t.Errorf("expected 85 nodes from the uniform underflow subdivision, got %d", d.NumNodes())
	}
	if d.maxDepth != 4 {
		t.Errorf("expected max depth 4, got %d", d.maxDepth)
	}
}

func TestDTree_NodeCeilingStopsSubdivision(t *testing.T) {
	prev := NewDTree()
	// Force every slot along one descent path to look non-leaf by subdividing
	// previous deeply via repeated Reset/record cycles.
	for iter := 0; iter < 18; iter++ {
		for i := 0; i < 1000; i++ {
			prev.RecordIrradiance(Point2{0.99, 0.99}, 1.0, 1.0, FilterNearest)
		}
		prev.Build()
		next := NewDTree()
		next.Reset(prev, 20, 0.0001)
		prev = next
	}
	if prev.NumNodes() > maxQuadNodes {
		t.Errorf("expected node count bounded by ceiling %d, got %d", maxQuadNodes, prev.NumNodes())
	}
}
