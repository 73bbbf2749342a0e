package guiding

import (
	"context"
	"math"
	"math/rand"

	"github.com/dgranger/pathguide/pkg/core"
	"github.com/dgranger/pathguide/pkg/logging"
	"github.com/dgranger/pathguide/pkg/replay"
	"github.com/dgranger/pathguide/pkg/sdtree"
)

var logger = logging.New("guiding")

// PassRunner renders one iteration's worth of samples-per-pixel for a scene
// of a given resolution. It is supplied by the tile-parallel render driver
// (pkg/renderer); the controller only drives policy, never pixels.
type PassRunner interface {
	RunPass(ctx context.Context, iteration, spp int, neeActive bool) (IterationImage, error)
}

// IterationImage is one iteration's accumulated image plus its estimated
// per-pixel variance, the unit the sample-combination policies operate on.
type IterationImage struct {
	Width, Height int
	Pixels        []core.Vec3 // row-major, length Width*Height
	Samples       int         // samples-per-pixel contributed this iteration
	Variance      float64     // Σ min(localVar, 10000) / (W*H*(N-1))
}

// Controller drives the per-iteration sequence of STree refinement, DTree
// reset/build, path replay, and sample combination. It owns the STree and
// retained-path buffer; rendering itself is delegated to a PassRunner.
type Controller struct {
	cfg  Config
	tree *sdtree.STree
	buf  *replay.Buffer

	sppRendered    int
	iteration      int
	isBuilt        bool
	lastVarAtEnd   float64
	currentVarEnd  float64
	combiner       combiner
}

// staticSTreeDepth is the fixed subdivision depth seeded once when
// Config.StaticSTree pins the STree topology for the whole render, giving
// 2^17-1 nodes.
const staticSTreeDepth = 16

// NewController creates a controller bound to a fresh STree over sceneAABB.
func NewController(cfg Config, sceneAABB core.AABB) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tree := sdtree.NewSTree(sceneAABB, cfg.BsdfSamplingFraction)
	if cfg.StaticSTree {
		tree.Subdivide(staticSTreeDepth)
	}
	return &Controller{
		cfg:      cfg,
		tree:     tree,
		buf:      replay.NewBuffer(),
		combiner: newCombiner(cfg.SampleCombination),
	}, nil
}

// Tree exposes the owned STree so a PathTracer collaborator can record into
// and sample from it.
func (c *Controller) Tree() *sdtree.STree { return c.tree }

// PathBuffer exposes the retained-path buffer for the PathTracer to grow
// and populate during pass rendering.
func (c *Controller) PathBuffer() *replay.Buffer { return c.buf }

// PassesThisIteration computes the SPP budget mode's per-iteration sample
// count: min(remaining, 2^iter), folded into this iteration entirely if what
// would be left afterwards is less than the next iteration's 2^(iter+1).
func PassesThisIteration(iter int, remainingSPP int) int {
	if remainingSPP <= 0 {
		return 0
	}
	want := 1 << uint(iter)
	if want > remainingSPP {
		want = remainingSPP
	}
	remainingAfter := remainingSPP - want
	nextWant := 1 << uint(iter+1)
	if remainingAfter > 0 && remainingAfter < nextWant {
		return remainingSPP
	}
	return want
}

// EffectiveSTreeThreshold scales the configured base threshold by
// sqrt(2^iter * sppPerPass / 4), matching the reference controller's
// progressively coarsening refinement criterion.
func EffectiveSTreeThreshold(base float64, iter, sppPerPass int) float64 {
	return base * math.Sqrt(float64(int(1)<<uint(iter))*float64(sppPerPass)/4)
}

// shouldRunFinal reports whether the remaining budget should all be spent
// on this iteration: either convergence has stalled under the automatic
// combination policy, or this iteration already takes the whole remaining
// budget (PassesThisIteration folds a too-small remainder into it), so no
// next iteration is left.
func (c *Controller) shouldRunFinal(remaining, nextWant int) bool {
	if c.cfg.SampleCombination == CombineAutomatic && c.sppRendered > 256 && c.currentVarEnd > c.lastVarAtEnd {
		return true
	}
	return nextWant <= 0
}

// RunIteration executes one full pass of §4.6's sequence: refine, reset,
// replay, render, variance update, and (unless final) rebuild. It returns
// whether this was the final iteration for an SPP-budgeted render.
func (c *Controller) RunIteration(ctx context.Context, runner PassRunner) (final bool, err error) {
	iter := c.iteration

	threshold := EffectiveSTreeThreshold(c.cfg.STreeThreshold, iter, c.cfg.SppPerPass)
	c.tree.Refine(threshold, c.cfg.SDTreeMaxMemoryMB, c.cfg.StaticSTree)
	c.tree.ResetAll(20, c.cfg.DTreeThreshold)

	if c.cfg.RenderIterations >= 0 && iter <= c.cfg.StratIterActive {
		c.replayRetainedPaths()
	}

	remaining := 0
	if c.cfg.BudgetType == BudgetSPP {
		remaining = int(c.cfg.Budget) - c.sppRendered
	}
	spp := PassesThisIteration(iter, remaining)
	if spp <= 0 {
		return true, nil
	}

	nextWant := PassesThisIteration(iter+1, remaining-spp)
	final = c.shouldRunFinal(remaining, nextWant)
	if final {
		if spp < remaining {
			logger.Noticef("iteration %d: convergence stalled or budget nearly exhausted, folding remaining %d spp into this pass", iter, remaining)
		}
		spp = remaining
	}

	neeActive := c.cfg.neeActiveAt(c.sppRendered)
	img, err := runner.RunPass(ctx, iter, spp, neeActive)
	if err != nil {
		return final, err
	}

	c.sppRendered += spp
	c.lastVarAtEnd = c.currentVarEnd
	c.currentVarEnd = img.Variance
	c.combiner.add(img)

	if !final {
		augment := c.cfg.BsdfSamplingFractionLoss != sdtree.LossNone
		c.tree.BuildAll(augment, false, c.isBuilt)
		c.isBuilt = true
	}

	c.iteration++
	return final, nil
}

// replayRetainedPaths reconciles every active retained path against the
// current DTree topology using the configured strategy.
func (c *Controller) replayRetainedPaths() {
	opt := replay.Options{
		Strategy:     c.cfg.Strategy,
		RRDepth:      5,
		WrapperAt:    func(p core.Vec3) *sdtree.DTreeWrapper { return c.tree.DTreeWrapperAt(p) },
		NEEKickstart: c.cfg.NEE == NeeKickstart,
		Rng:          rand.New(rand.NewSource(int64(c.iteration) + 1)),
	}
	c.buf.ForEachActive(func(p *replay.RPath) {
		replay.Replay(p, opt)
	})
}

// FinalImage returns the combined image according to the configured
// sample-combination policy.
func (c *Controller) FinalImage() IterationImage {
	return c.combiner.combine()
}

// combiner accumulates per-iteration images according to the policy named
// in Config.SampleCombination.
type combiner struct {
	policy  SampleCombination
	history []IterationImage
}

func newCombiner(policy SampleCombination) combiner {
	return combiner{policy: policy}
}

func (c *combiner) add(img IterationImage) {
	switch c.policy {
	case CombineDiscard:
		c.history = []IterationImage{img}
	case CombineInverseVariance:
		c.history = append(c.history, img)
		if len(c.history) > 4 {
			c.history = c.history[len(c.history)-4:]
		}
	default: // CombineAutomatic: progressive weighted accumulation
		if len(c.history) == 0 {
			c.history = []IterationImage{img}
			return
		}
		prev := c.history[0]
		combined := weightedAverage(prev, float64(prev.Samples), img, float64(img.Samples))
		c.history[0] = combined
	}
}

func (c *combiner) combine() IterationImage {
	if len(c.history) == 0 {
		return IterationImage{}
	}
	if c.policy != CombineInverseVariance || len(c.history) == 1 {
		return c.history[len(c.history)-1]
	}

	totalWeight := 0.0
	weights := make([]float64, len(c.history))
	for i, img := range c.history {
		w := 1.0
		if img.Variance > 1e-12 {
			w = 1.0 / img.Variance
		}
		weights[i] = w
		totalWeight += w
	}

	base := c.history[0]
	out := IterationImage{Width: base.Width, Height: base.Height, Pixels: make([]core.Vec3, len(base.Pixels))}
	for i, img := range c.history {
		w := weights[i] / totalWeight
		for p := range out.Pixels {
			out.Pixels[p] = out.Pixels[p].Add(img.Pixels[p].Multiply(w))
		}
	}
	return out
}

func weightedAverage(a IterationImage, wa float64, b IterationImage, wb float64) IterationImage {
	if wa+wb <= 0 {
		return b
	}
	out := IterationImage{Width: b.Width, Height: b.Height, Pixels: make([]core.Vec3, len(b.Pixels)), Samples: a.Samples + b.Samples, Variance: b.Variance}
	fa, fb := wa/(wa+wb), wb/(wa+wb)
	for i := range out.Pixels {
		var av core.Vec3
		if i < len(a.Pixels) {
			av = a.Pixels[i]
		}
		out.Pixels[i] = av.Multiply(fa).Add(b.Pixels[i].Multiply(fb))
	}
	return out
}
