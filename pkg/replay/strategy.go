package replay

import (
	"math"
	"math/rand"

	"github.com/dgranger/pathguide/pkg/core"
	"github.com/dgranger/pathguide/pkg/metrics"
	"github.com/dgranger/pathguide/pkg/sdtree"
)

// ReplayStrategy selects how a retained path's recorded vertices are
// reconciled against a newer DTree topology. Resolved once per replay loop,
// not per vertex, so the hot loop never pays for a type switch per bounce.
type ReplayStrategy int

const (
	Reweight ReplayStrategy = iota
	Reject
	RejectReweight
	RejectAugment
	ReweightAugment
	Augment
)

// WrapperLookup resolves the DTreeWrapper governing a world-space point,
// mirroring STree.DTreeWrapperAt without importing the renderer's scene
// collaborator types here.
type WrapperLookup func(p core.Vec3) *sdtree.DTreeWrapper

// Options configures a replay pass.
type Options struct {
	Strategy  ReplayStrategy
	RRDepth   int
	WrapperAt WrapperLookup
	Rng       *rand.Rand

	// NEEKickstart splats accepted NEE contributions directly into the
	// DTree at half weight, bypassing the normal per-vertex commit.
	NEEKickstart bool
}

func remap0(f float64) float64 {
	if f == 0 {
		return 1
	}
	return f
}

// miWeight is the two-technique balance heuristic, matching the teacher's
// calculateMISWeight: 1/(1+ratio) with zero pdfs remapped to 1 first.
func miWeight(pdfSelf, pdfOther float64) float64 {
	ratio := remap0(pdfOther) / remap0(pdfSelf)
	return 1.0 / (1.0 + ratio)
}

// Replay reconciles a single retained path against the current DTree
// topology, committing accepted vertices' accumulated radiance into the
// SD-tree. It deactivates the path on rejection or PDF underflow, and
// returns the radiance reaching the camera along this path (zero if the
// path was rejected) plus whether the path is still active.
func Replay(p *RPath, opt Options) (core.Vec3, bool) {
	if !p.Active || len(p.Path) == 0 {
		return core.Vec3{}, p.Active
	}

	replayLen := len(p.Path)
	if opt.Strategy == RejectAugment || opt.Strategy == ReweightAugment {
		if p.AugmentedStartPos < replayLen {
			replayLen = p.AugmentedStartPos
		}
	}
	if replayLen == 0 {
		p.Deactivate()
		return core.Vec3{}, false
	}

	wrappers := make([]*sdtree.DTreeWrapper, replayLen)
	newWo := make([]float64, replayLen)

	for i := 0; i < replayLen; i++ {
		v := &p.Path[i]
		w := opt.WrapperAt(v.O)
		wrappers[i] = w
		if v.IsDelta || w == nil {
			newWo[i] = v.WoPdf
			continue
		}
		bsf := w.BsdfSamplingFraction()
		dTreePdf := w.PDF(v.D.X, v.D.Y, v.D.Z)
		newWo[i] = bsf*v.BsdfPdf + (1-bsf)*dTreePdf
	}

	accumulated := make([]core.Vec3, replayLen)

	switch opt.Strategy {
	case Reweight, ReweightAugment:
		if !reweightPass(p, replayLen, newWo) {
			p.Deactivate()
			return core.Vec3{}, false
		}
	case Reject:
		if !rejectOnlyPass(p, replayLen, newWo, wrappers, opt.Rng) {
			p.Deactivate()
			return core.Vec3{}, false
		}
	case RejectReweight, RejectAugment:
		if !rejectReweightPass(p, replayLen, newWo, opt.Rng) {
			p.Deactivate()
			return core.Vec3{}, false
		}
	case Augment:
		// accept unconditionally; sc only scaled by the augmented multiplier below
	}

	if opt.Strategy == RejectAugment || opt.Strategy == ReweightAugment || opt.Strategy == Augment {
		for i := 0; i < replayLen; i++ {
			w := wrappers[i]
			if w == nil {
				continue
			}
			p.Path[i].Sc *= w.GetAugmentedMultiplier()
			w.IncSampleCount()
		}
	}

	applyRussianRoulette(p, replayLen, opt.RRDepth)

	for _, rr := range p.RadianceRecords {
		if rr.VertexIndex >= replayLen {
			continue
		}
		weight := miWeight(p.Path[rr.VertexIndex].WoPdf, rr.Pdf)
		for k := 0; k <= rr.VertexIndex; k++ {
			accumulated[k] = accumulated[k].Add(rr.L.Multiply(weight))
		}
	}

	for _, nee := range p.NEERecords {
		if nee.VertexIndex >= replayLen || nee.VertexIndex == 0 {
			continue
		}
		woPdfAtNee := nee.BsdfPdf
		weight := miWeight(nee.Pdf, woPdfAtNee)
		contribution := nee.L.Multiply(weight)
		for k := 0; k < nee.VertexIndex; k++ {
			accumulated[k] = accumulated[k].Add(contribution)
		}
		if opt.NEEKickstart {
			w := wrappers[nee.VertexIndex]
			if w != nil {
				luminance := contribution.Luminance() * 0.5
				w.Record(nee.Wo.X, nee.Wo.Y, nee.Wo.Z, luminance, remap0(nee.BsdfPdf), 0.5, sdtree.FilterNearest)
			}
		}
	}

	for i := 0; i < replayLen; i++ {
		w := wrappers[i]
		if w == nil {
			continue
		}
		v := p.Path[i]
		halved := 1.0
		if opt.NEEKickstart {
			halved = 0.5
		}
		w.Record(v.D.X, v.D.Y, v.D.Z, accumulated[i].Luminance()*v.Sc*halved, remap0(v.WoPdf), v.Sc, sdtree.FilterNearest)
	}

	return accumulated[0], true
}

// reweightPass updates each vertex's sc and throughput-scaling pdf ratio in
// place; returns false (and leaves the path untouched beyond what already
// ran) if any new pdf underflows, signalling the caller to deactivate.
func reweightPass(p *RPath, replayLen int, newWo []float64) bool {
	for i := 0; i < replayLen; i++ {
		v := &p.Path[i]
		if v.IsDelta {
			continue
		}
		if newWo[i] < epsilon {
			return false
		}
		v.Sc *= newWo[i] / remap0(v.WoPdf)
		v.WoPdf = newWo[i]
	}
	return true
}

// rejectOnlyPass draws a scalar acceptance test per vertex using the
// wrapper's cached majorizing pdf pair blended with the vertex's own BSDF
// mixing term: q = new_wo/(c*old_wo), c = (bsf·bsdfPdf + (1-bsf)·pdfBoundNew)
// / max(bsf·bsdfPdf + (1-bsf)·pdfBoundOld, EPSILON). Acceptance carries no sc
// reweighting.
func rejectOnlyPass(p *RPath, replayLen int, newWo []float64, wrappers []*sdtree.DTreeWrapper, rng *rand.Rand) bool {
	for i := 0; i < replayLen; i++ {
		v := &p.Path[i]
		if v.IsDelta {
			continue
		}
		oldWo := remap0(v.WoPdf)
		c := 1.0
		if w := wrappers[i]; w != nil {
			pdfBoundOld, pdfBoundNew := w.GetMajorizingFactor()
			bsf := w.BsdfSamplingFraction()
			numerator := bsf*v.BsdfPdf + (1-bsf)*pdfBoundNew
			denominator := bsf*v.BsdfPdf + (1-bsf)*pdfBoundOld
			c = numerator / math.Max(denominator, epsilon)
			metrics.ObserveMajorizingFactor(c)
		}
		q := newWo[i] / math.Max(c*oldWo, epsilon)
		if rng.Float64() > q {
			return false
		}
		v.WoPdf = newWo[i]
	}
	return true
}

// rejectReweightPass draws a plain-ratio acceptance test per vertex,
// q = new_wo/old_wo, with no majorizing factor involved, and on acceptance
// scales sc by max(1, new_wo/old_wo). Shared by RejectReweight and
// RejectAugment, which layers its augmented-multiplier scaling on top.
func rejectReweightPass(p *RPath, replayLen int, newWo []float64, rng *rand.Rand) bool {
	for i := 0; i < replayLen; i++ {
		v := &p.Path[i]
		if v.IsDelta {
			continue
		}
		oldWo := remap0(v.WoPdf)
		q := newWo[i] / oldWo
		if rng.Float64() > q {
			return false
		}
		if q > 1 {
			v.Sc *= q
		}
		v.WoPdf = newWo[i]
	}
	return true
}

// applyRussianRoulette mirrors the teacher's applyRussianRoulette: past
// rrDepth, non-delta vertices' statistical weight is divided by the same
// clamped survival probability the original path used, keeping the replay
// consistent with the path it replaced.
func applyRussianRoulette(p *RPath, replayLen int, rrDepth int) {
	for i := rrDepth; i < replayLen; i++ {
		v := &p.Path[i]
		if v.IsDelta {
			continue
		}
		luminance := v.BsdfVal.Luminance()
		survival := math.Min(0.99, math.Max(0.1, luminance))
		v.Sc /= survival
	}
}
