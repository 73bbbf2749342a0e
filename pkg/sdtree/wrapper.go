package sdtree

import (
	"math"
	"math/rand"
	"sync/atomic"
)

// BsdfSamplingFractionLoss selects the loss used to adapt the per-leaf
// mixing fraction between BSDF-proportional and guided sampling.
type BsdfSamplingFractionLoss int

const (
	LossNone BsdfSamplingFractionLoss = iota
	LossKL
	LossVariance
)

// SampleRecord carries what optimizeBsdfSamplingFraction needs from a single
// path vertex: the combined BSDF*cosine value (product), the vertex's
// direction-sampling pdf (woPdf), the BSDF's own pdf at that direction, the
// DTree's pdf at that direction, and the vertex's statistical weight.
type SampleRecord struct {
	Product           float64
	WoPdf             float64
	BsdfPdf           float64
	DTreePdf          float64
	StatisticalWeight float64
}

// DTreeWrapper bundles the four DTrees attached to one spatial leaf plus the
// per-leaf mixing-fraction optimizer and rejection statistics.
type DTreeWrapper struct {
	building  *DTree
	sampling  *DTree
	previous  *DTree
	augmented *DTree

	currentSamples        uint64
	reqAugmentedSamples    uint64
	weightedPreviousSamples atomicFloat64
	b                      float64

	rejPdfThis, rejPdfOther float64

	mixingOptimizer *AdamOptimizer

	minNZRadiance float64

	spinLock atomic.Bool
}

// NewDTreeWrapper returns a fresh wrapper with all four DTrees empty and the
// mixing-fraction optimizer initialized at the reference learning rate.
func NewDTreeWrapper(bsdfSamplingFraction float64) *DTreeWrapper {
	w := &DTreeWrapper{
		building:      NewDTree(),
		sampling:      NewDTree(),
		previous:      NewDTree(),
		augmented:     NewDTree(),
		minNZRadiance: math.MaxFloat64,
		mixingOptimizer: NewAdamOptimizer(0.01),
	}
	// Seed the logistic variable so bsdfSamplingFraction(0) maps close to
	// the configured initial mixing fraction.
	w.mixingOptimizer.variable = logit(bsdfSamplingFraction)
	return w
}

func logit(p float64) float64 {
	p = math.Min(math.Max(p, 1e-6), 1-1e-6)
	return math.Log(p / (1 - p))
}

// BsdfSamplingFraction returns the current logistic mixing fraction.
func (w *DTreeWrapper) BsdfSamplingFraction() float64 {
	return logistic(w.mixingOptimizer.Variable())
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// CanonicalToDir maps a point in [0,1)^2 to a unit direction using the
// canonical sphere parameterization cosTheta = 2p.x-1, phi = 2*pi*p.y.
func CanonicalToDir(p Point2) (x, y, z float64) {
	cosTheta := 2*p.X - 1
	phi := 2 * math.Pi * p.Y
	sinTheta := math.Sqrt(math.Max(0, 1-cosTheta*cosTheta))
	sinPhi, cosPhi := math.Sincos(phi)
	return sinTheta * cosPhi, sinTheta * sinPhi, cosTheta
}

// DirToCanonical is the inverse of CanonicalToDir.
func DirToCanonical(x, y, z float64) Point2 {
	cosTheta := math.Min(math.Max(z, -1), 1)
	phi := math.Atan2(y, x)
	for phi < 0 {
		phi += 2 * math.Pi
	}
	return Point2{X: (cosTheta + 1) / 2, Y: phi / (2 * math.Pi)}
}

// Record accumulates one path vertex's irradiance contribution into the
// building DTree. It does not touch the mixing-fraction gradient; that is
// OptimizeBsdfSamplingFraction's job.
func (w *DTreeWrapper) Record(dirX, dirY, dirZ float64, radiance, woPdf, statisticalWeight float64, filter DirectionalFilter) {
	if woPdf <= 0 {
		return
	}
	irradiance := radiance / woPdf
	if irradiance > 0 && irradiance < w.minNZRadiance {
		w.minNZRadiance = irradiance
	}
	p := DirToCanonical(dirX, dirY, dirZ)
	w.building.RecordIrradiance(p, irradiance, statisticalWeight, filter)
}

// OptimizeBsdfSamplingFraction folds one vertex's sample record into the
// Adam gradient for the mixing fraction, using a ratio-power loss.
func (w *DTreeWrapper) OptimizeBsdfSamplingFraction(rec SampleRecord, ratioPower float64) {
	if rec.Product <= 0 || rec.WoPdf <= 0 {
		return
	}
	for !w.spinLock.CompareAndSwap(false, true) {
	}
	defer w.spinLock.Store(false)

	fraction := w.BsdfSamplingFraction()
	mixPdf := fraction*rec.BsdfPdf + (1-fraction)*rec.DTreePdf
	if mixPdf <= 0 {
		return
	}
	ratio := math.Pow(rec.Product/mixPdf, ratioPower)
	dLossDFraction := -ratio / rec.WoPdf * (rec.BsdfPdf - rec.DTreePdf)
	dFractionDVariable := fraction * (1 - fraction)
	gradient := dLossDFraction*dFractionDVariable + 0.01*w.mixingOptimizer.Variable()
	w.mixingOptimizer.Append(gradient, rec.StatisticalWeight)
}

// Sample draws a direction from sampling, or from augmented when the
// augmented-mixture quota has not yet been exhausted and augment is true.
func (w *DTreeWrapper) Sample(rng *rand.Rand, augment bool) (x, y, z float64) {
	var p Point2
	if augment && w.currentSamples < w.reqAugmentedSamples {
		p = w.augmented.Sample(rng)
	} else {
		p = w.sampling.Sample(rng)
	}
	x, y, z = CanonicalToDir(p)
	return
}

// PDF evaluates the sampling DTree's pdf at the given direction.
func (w *DTreeWrapper) PDF(x, y, z float64) float64 {
	return w.sampling.PDF(DirToCanonical(x, y, z))
}

// IncSampleCount records that one more sample has been drawn under the
// augmented mixture this iteration.
func (w *DTreeWrapper) IncSampleCount() {
	w.currentSamples++
}

// GetAugmentedMultiplier returns the statistical-weight correction factor
// for a vertex sampled while the augmented quota was still active.
func (w *DTreeWrapper) GetAugmentedMultiplier() float64 {
	if w.reqAugmentedSamples > 0 && w.currentSamples < w.reqAugmentedSamples {
		return float64(w.currentSamples) / float64(w.reqAugmentedSamples)
	}
	return 1
}

// ComputeRequiredSamples derives how many samples of this iteration should
// be drawn from the augmented distribution, given the residual mass B and
// the previous iteration's weighted sample count.
func (w *DTreeWrapper) ComputeRequiredSamples(rng *rand.Rand) {
	if w.b < probEpsilon {
		w.reqAugmentedSamples = 0
		return
	}
	req := w.b * w.weightedPreviousSamples.load()
	whole := math.Floor(req)
	frac := req - whole
	w.reqAugmentedSamples = uint64(whole)
	if rng.Float64() < frac {
		w.reqAugmentedSamples++
	}
}

// AddWeightedSampleCount accumulates the weighted sample count carried
// forward into the next iteration's ComputeRequiredSamples call.
func (w *DTreeWrapper) AddWeightedSampleCount(delta float64) {
	w.weightedPreviousSamples.add(delta)
}

// Build advances building -> sampling, resets previous/augmented, and
// (when augment is requested and the wrapper has already built once before)
// constructs the augmented residual distribution.
func (w *DTreeWrapper) Build(augment, augmentReweight, isBuilt bool) {
	w.previous = w.sampling

	minIrr := w.minNZRadiance
	if minIrr > 1e5 {
		// Reproduces the reference floor-snap for a degenerate minimum
		// irradiance exactly; the rationale is not documented upstream.
		minIrr = 2 * probEpsilon
	}
	floor := math.Max(2*probEpsilon, minIrr/5)
	w.building.SetMinimumIrr(floor)
	w.building.Build()

	if (augment || augmentReweight) && isBuilt {
		if augment {
			w.b = w.augmented.buildAugmented(w.sampling, w.building)
		} else {
			w.b = w.augmented.buildUnmajorizedAugmented(w.sampling, w.building)
		}
	}

	w.reqAugmentedSamples = 0
	w.currentSamples = 0
	w.weightedPreviousSamples.store(0)

	w.sampling = w.building
	w.building = NewDTree()

	pdfThis, pdfOther := getMajorizingFactorPair(w.previous, w.sampling)
	w.rejPdfThis, w.rejPdfOther = pdfThis, pdfOther

	w.minNZRadiance = math.MaxFloat64
}

// Reset regrows the building DTree's topology from the current sampling
// snapshot.
func (w *DTreeWrapper) Reset(maxDepth int, subdivisionThreshold float64) {
	w.building.Reset(w.sampling, maxDepth, subdivisionThreshold)
}

// GetMajorizingFactor returns the cached rejection PDF pair (pdf_previous,
// pdf_sampling) computed at the last Build.
func (w *DTreeWrapper) GetMajorizingFactor() (float64, float64) {
	return w.rejPdfThis, w.rejPdfOther
}

// Mean returns the sampling DTree's mean radiance.
func (w *DTreeWrapper) Mean() float64 { return w.sampling.Mean() }

// Depth returns the sampling DTree's maximum depth.
func (w *DTreeWrapper) Depth() int { return w.sampling.Depth() }

// NumNodes returns the sampling DTree's node count.
func (w *DTreeWrapper) NumNodes() int { return w.sampling.NumNodes() }

// Nodes returns the sampling DTree's node vector, for the dump codec.
func (w *DTreeWrapper) Nodes() []QuadTreeNode { return w.sampling.Nodes() }

// StatisticalWeight returns the sampling DTree's statistical weight.
func (w *DTreeWrapper) StatisticalWeight() float64 { return w.sampling.StatisticalWeight() }

// StatisticalWeightBuilding returns the building DTree's statistical weight.
func (w *DTreeWrapper) StatisticalWeightBuilding() float64 { return w.building.StatisticalWeight() }

// SetStatisticalWeightBuilding overrides the building DTree's statistical
// weight, used when a spatial leaf splits and inherits half of its parent's
// weight.
func (w *DTreeWrapper) SetStatisticalWeightBuilding(sw float64) {
	w.building.SetStatisticalWeight(sw)
}

// ApproxMemoryFootprint estimates the bytes occupied by this wrapper's four
// DTrees, for the STree's optional memory cap.
func (w *DTreeWrapper) ApproxMemoryFootprint() int {
	const nodeBytes = 4*8 + 4*2 // 4 float64 sums + 4 uint16 children
	total := 0
	for _, t := range []*DTree{w.building, w.sampling, w.previous, w.augmented} {
		total += t.NumNodes() * nodeBytes
	}
	return total
}
