package replay

import (
	"math"
	"math/rand"
	"testing"

	"github.com/dgranger/pathguide/pkg/core"
	"github.com/dgranger/pathguide/pkg/sdtree"
)

func constantWrapperLookup(w *sdtree.DTreeWrapper) WrapperLookup {
	return func(p core.Vec3) *sdtree.DTreeWrapper { return w }
}

func TestReplay_ReweightConservesRadianceWhenPdfUnchanged(t *testing.T) {
	w := sdtree.NewDTreeWrapper(0.5)
	uniform := 1.0 / (4 * math.Pi)

	p := NewRPath(0)
	p.Path = []RVertex{{
		O:       core.NewVec3(0, 0, 0),
		D:       core.NewVec3(0, 0, 1),
		BsdfVal: core.NewVec3(1, 1, 1),
		BsdfPdf: uniform,
		WoPdf:   uniform,
		Sc:      1,
	}}
	p.RadianceRecords = []RadianceRecord{{VertexIndex: 0, L: core.NewVec3(2, 2, 2), Pdf: uniform}}

	radiance, active := Replay(p, Options{
		Strategy:  Reweight,
		RRDepth:   1000,
		WrapperAt: constantWrapperLookup(w),
		Rng:       rand.New(rand.NewSource(1)),
	})

	if !active {
		t.Fatalf("expected returned active flag to be true when new and old pdfs match")
	}
	if !p.Active {
		t.Fatalf("expected path to remain active when new and old pdfs match")
	}
	if math.Abs(p.Path[0].Sc-1) > 1e-9 {
		t.Errorf("expected sc to stay ~1 when pdf ratio is 1, got %v", p.Path[0].Sc)
	}
	if w.StatisticalWeight() <= 0 {
		t.Errorf("expected the accepted vertex to commit into the sampling tree's weight")
	}
	if radiance.X <= 0 {
		t.Errorf("expected nonzero accumulated radiance along the camera path, got %v", radiance)
	}
}

func TestReplay_ReweightTerminatesOnPdfUnderflow(t *testing.T) {
	w := sdtree.NewDTreeWrapper(0.5)
	p := NewRPath(0)
	p.Path = []RVertex{{
		O:       core.NewVec3(0, 0, 0),
		D:       core.NewVec3(0, 0, 1),
		BsdfVal: core.NewVec3(1, 1, 1),
		BsdfPdf: 0,
		WoPdf:   1,
		Sc:      1,
	}}

	Replay(p, Options{
		Strategy:  Reweight,
		RRDepth:   1000,
		WrapperAt: constantWrapperLookup(w),
		Rng:       rand.New(rand.NewSource(1)),
	})

	if p.Active {
		t.Errorf("expected path to deactivate when new wo pdf underflows")
	}
}

func TestReplay_RejectDeactivatesOnFailedDraw(t *testing.T) {
	w := sdtree.NewDTreeWrapper(0.5)
	p := NewRPath(0)
	p.Path = []RVertex{{
		O:       core.NewVec3(0, 0, 0),
		D:       core.NewVec3(0, 0, 1),
		BsdfVal: core.NewVec3(1, 1, 1),
		BsdfPdf: 0,
		WoPdf:   10, // far above the empty tree's new pdf, forcing a tiny acceptance ratio
		Sc:      1,
	}}

	Replay(p, Options{
		Strategy:  Reject,
		RRDepth:   1000,
		WrapperAt: constantWrapperLookup(w),
		Rng:       rand.New(rand.NewSource(1)),
	})

	if p.Active {
		t.Errorf("expected a near-zero acceptance ratio to reject the replay")
	}
}

func TestReplay_AugmentAppliesMultiplierWithoutRejectOrReweight(t *testing.T) {
	w := sdtree.NewDTreeWrapper(0.5)
	p := NewRPath(0)
	p.Path = []RVertex{{
		O:       core.NewVec3(0, 0, 0),
		D:       core.NewVec3(0, 0, 1),
		BsdfVal: core.NewVec3(1, 1, 1),
		BsdfPdf: 1.0 / (4 * math.Pi),
		WoPdf:   1.0 / (4 * math.Pi),
		Sc:      1,
	}}

	Replay(p, Options{
		Strategy:  Augment,
		RRDepth:   1000,
		WrapperAt: constantWrapperLookup(w),
		Rng:       rand.New(rand.NewSource(1)),
	})

	if !p.Active {
		t.Fatalf("expected Augment strategy to always accept")
	}
	if w.StatisticalWeight() <= 0 {
		t.Errorf("expected the accepted vertex to still commit into the sampling tree")
	}
}

func TestApplyRussianRoulette_ScalesScByInverseSurvival(t *testing.T) {
	p := NewRPath(0)
	p.Path = []RVertex{
		{BsdfVal: core.NewVec3(0.2, 0.2, 0.2), Sc: 1},
	}
	applyRussianRoulette(p, 1, 0)

	want := 1.0 / 0.2
	if math.Abs(p.Path[0].Sc-want) > 1e-9 {
		t.Errorf("sc = %v, want %v", p.Path[0].Sc, want)
	}
}

func TestApplyRussianRoulette_SkipsVerticesBeforeRRDepth(t *testing.T) {
	p := NewRPath(0)
	p.Path = []RVertex{
		{BsdfVal: core.NewVec3(0.01, 0.01, 0.01), Sc: 1},
	}
	applyRussianRoulette(p, 1, 5)

	if p.Path[0].Sc != 1 {
		t.Errorf("expected sc untouched before rrDepth, got %v", p.Path[0].Sc)
	}
}

func TestMIWeight_SymmetricAtEqualPdfs(t *testing.T) {
	got := miWeight(1.0, 1.0)
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("miWeight(1,1) = %v, want 0.5", got)
	}
}

func TestRemap0_ReplacesZero(t *testing.T) {
	if remap0(0) != 1 {
		t.Errorf("remap0(0) = %v, want 1", remap0(0))
	}
	if remap0(3.5) != 3.5 {
		t.Errorf("remap0(3.5) = %v, want 3.5", remap0(3.5))
	}
}
