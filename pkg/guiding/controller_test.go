package guiding

import (
	"context"
	"math"
	"testing"

	"github.com/dgranger/pathguide/pkg/core"
)

func TestPassesThisIteration_DoublesUntilBudget(t *testing.T) {
	if got := PassesThisIteration(0, 100); got != 1 {
		t.Errorf("iter 0 = %d, want 1", got)
	}
	if got := PassesThisIteration(3, 100); got != 8 {
		t.Errorf("iter 3 = %d, want 8", got)
	}
}

func TestPassesThisIteration_FoldsSmallRemainderIntoThisIteration(t *testing.T) {
	// A fold happens when the leftover is smaller than what the next doubling
	// would take. remaining=10, iter=3 wants 8, leaving 2; the next iteration
	// (4) would want 16 > 2, so the 2 are folded in and all 10 run now.
	got := PassesThisIteration(3, 10)
	if got != 10 {
		t.Errorf("got %d, want 10 (fold expected)", got)
	}

	// remaining=6, iter=0 wants 1, leaving 5; the next iteration (1) wants
	// 2 <= 5, so nothing is folded.
	got2 := PassesThisIteration(0, 6)
	if got2 != 1 {
		t.Errorf("expected no fold when 5 spp remain after a 1-spp iteration, got %d", got2)
	}
}

func TestEffectiveSTreeThreshold_ScalesWithIterationAndSpp(t *testing.T) {
	base := 12000.0
	t0 := EffectiveSTreeThreshold(base, 0, 4)
	t1 := EffectiveSTreeThreshold(base, 1, 4)
	if t1 <= t0 {
		t.Errorf("expected threshold to grow with iteration, got t0=%v t1=%v", t0, t1)
	}
	want0 := base * math.Sqrt(1*4.0/4)
	if math.Abs(t0-want0) > 1e-9 {
		t.Errorf("t0 = %v, want %v", t0, want0)
	}
}

type stubRunner struct {
	variance float64
	samples  int
}

func (s stubRunner) RunPass(ctx context.Context, iteration, spp int, neeActive bool) (IterationImage, error) {
	return IterationImage{
		Width: 1, Height: 1,
		Pixels:   []core.Vec3{core.NewVec3(1, 1, 1)},
		Samples:  spp,
		Variance: s.variance,
	}, nil
}

func TestController_RunIterationAdvancesSppRendered(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Budget = 16
	c, err := NewController(cfg, core.NewAABB(core.NewVec3(-1, -1, -1), core.NewVec3(1, 1, 1)))
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	_, err = c.RunIteration(context.Background(), stubRunner{variance: 1.0})
	if err != nil {
		t.Fatalf("RunIteration failed: %v", err)
	}
	if c.sppRendered != 1 {
		t.Errorf("expected 1 spp rendered after first iteration, got %d", c.sppRendered)
	}
}

func TestCombiner_DiscardKeepsOnlyLatest(t *testing.T) {
	c := newCombiner(CombineDiscard)
	first := IterationImage{Width: 1, Height: 1, Pixels: []core.Vec3{core.NewVec3(1, 0, 0)}}
	second := IterationImage{Width: 1, Height: 1, Pixels: []core.Vec3{core.NewVec3(0, 1, 0)}}
	c.add(first)
	c.add(second)

	got := c.combine()
	if got.Pixels[0] != second.Pixels[0] {
		t.Errorf("expected discard policy to keep only the latest image, got %v", got.Pixels[0])
	}
}

func TestCombiner_InverseVarianceWeightsLowerVarianceMore(t *testing.T) {
	c := newCombiner(CombineInverseVariance)
	low := IterationImage{Width: 1, Height: 1, Pixels: []core.Vec3{core.NewVec3(1, 0, 0)}, Variance: 0.01}
	high := IterationImage{Width: 1, Height: 1, Pixels: []core.Vec3{core.NewVec3(0, 1, 0)}, Variance: 10}
	c.add(low)
	c.add(high)

	got := c.combine()
	if got.Pixels[0].X <= got.Pixels[0].Y {
		t.Errorf("expected the lower-variance image to dominate the blend, got %v", got.Pixels[0])
	}
}
