package sdtree

import (
	"math"
	"math/rand"
	"testing"
)

func TestCanonicalDir_RoundTrips(t *testing.T) {
	cases := []Point2{{0.1, 0.2}, {0.5, 0.5}, {0.9, 0.99}}
	for _, p := range cases {
		x, y, z := CanonicalToDir(p)
		length := math.Sqrt(x*x + y*y + z*z)
		if math.Abs(length-1) > 1e-9 {
			t.Errorf("CanonicalToDir(%v) produced non-unit vector, length=%v", p, length)
		}
		back := DirToCanonical(x, y, z)
		if math.Abs(back.X-p.X) > 1e-6 {
			t.Errorf("round-trip x mismatch: %v -> %v", p, back)
		}
	}
}

func TestDTreeWrapper_BuildSequencesSnapshots(t *testing.T) {
	w := NewDTreeWrapper(0.5)
	x, y, z := CanonicalToDir(Point2{0.5, 0.5})
	for i := 0; i < 50; i++ {
		w.Record(x, y, z, 1.0, 1.0, 1.0, FilterNearest)
	}
	w.Build(false, false, false)

	if w.sampling.StatisticalWeight() <= 0 {
		t.Errorf("expected sampling snapshot to inherit accumulated weight, got %v", w.sampling.StatisticalWeight())
	}
	if w.building.StatisticalWeight() != 0 {
		t.Errorf("expected a fresh building tree after Build, got weight %v", w.building.StatisticalWeight())
	}
}

func TestDTreeWrapper_MinNZRadianceSnapsAboveThreshold(t *testing.T) {
	w := NewDTreeWrapper(0.5)
	w.minNZRadiance = 1e6 // simulate a degenerate observed minimum
	w.Build(false, false, false)
	// Can't observe the floor directly, but Build must not panic and must
	// reset minNZRadiance for the next iteration.
	if w.minNZRadiance != math.MaxFloat64 {
		t.Errorf("expected minNZRadiance reset after Build, got %v", w.minNZRadiance)
	}
}

func TestDTreeWrapper_SampleFallsBackWhenEmpty(t *testing.T) {
	w := NewDTreeWrapper(0.5)
	rng := rand.New(rand.NewSource(3))
	x, y, z := w.Sample(rng, false)
	length := math.Sqrt(x*x + y*y + z*z)
	if math.Abs(length-1) > 1e-6 {
		t.Errorf("expected unit direction even when empty, got length %v", length)
	}
}

func TestDTreeWrapper_AugmentedMultiplierCapsAtOne(t *testing.T) {
	w := NewDTreeWrapper(0.5)
	w.reqAugmentedSamples = 0
	if w.GetAugmentedMultiplier() != 1 {
		t.Errorf("expected multiplier 1 when no augmented quota is set, got %v", w.GetAugmentedMultiplier())
	}
	w.reqAugmentedSamples = 10
	w.currentSamples = 5
	if got := w.GetAugmentedMultiplier(); got != 0.5 {
		t.Errorf("expected multiplier 0.5 halfway through quota, got %v", got)
	}
}
