package sdtree

import (
	"math"
	"testing"
)

func buildRecordedTree(points []Point2, irr float64) *DTree {
	d := NewDTree()
	for _, p := range points {
		d.RecordIrradiance(p, irr, 1.0, FilterNearest)
	}
	d.Build()
	return d
}

func TestGetMajorizingFactor_SatisfiesBound(t *testing.T) {
	older := buildRecordedTree([]Point2{{0.1, 0.1}, {0.9, 0.9}}, 1.0)
	newer := buildRecordedTree([]Point2{{0.9, 0.9}}, 5.0)

	pdfThis, pdfOther := getMajorizingFactor(newer, older)
	if pdfThis <= 0 {
		t.Fatalf("expected positive pdfThis, got %v", pdfThis)
	}
	A := pdfOther / pdfThis

	if !ValidateMajorizingFactor(newer, older, A) {
		t.Errorf("A=%v computed from getMajorizingFactor does not satisfy the majorization bound", A)
	}
}

func TestBuildAugmented_EmptyWhenDistributionsMatch(t *testing.T) {
	older := buildRecordedTree([]Point2{{0.3, 0.3}}, 2.0)
	newer := buildRecordedTree([]Point2{{0.3, 0.3}}, 2.0)
	newer.Build()
	older.Build()

	aug := NewDTree()
	b := aug.buildAugmented(older, newer)
	if math.Abs(b) > 1e-3 {
		t.Errorf("expected ~0 residual mass for matching distributions, got %v", b)
	}
}

func TestBuildAugmented_PositiveResidualWhenNewerConcentrates(t *testing.T) {
	older := buildRecordedTree([]Point2{{0.1, 0.1}, {0.4, 0.4}, {0.6, 0.6}, {0.9, 0.9}}, 1.0)
	newer := buildRecordedTree([]Point2{{0.9, 0.9}}, 1.0)

	aug := NewDTree()
	b := aug.buildAugmented(older, newer)
	if b < 0 {
		t.Errorf("expected non-negative residual mass B, got %v", b)
	}
}

func TestBuildUnmajorizedAugmented_ReturnsIntegral(t *testing.T) {
	older := buildRecordedTree([]Point2{{0.2, 0.2}}, 1.0)
	newer := buildRecordedTree([]Point2{{0.9, 0.9}}, 3.0)

	aug := NewDTree()
	integral := aug.buildUnmajorizedAugmented(older, newer)
	if integral < 0 {
		t.Errorf("expected non-negative integral, got %v", integral)
	}
	if aug.sum.load() != integral {
		t.Errorf("expected returned integral to equal the built tree's root sum")
	}
}
