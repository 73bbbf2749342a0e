package guiding

import (
	"context"
	"math/rand"
)

// PathTracer is the collaborator that actually produces radiance samples,
// consumed but never implemented here — a local interface to avoid an
// import cycle with the concrete integrator, the same way pkg/renderer's
// Raytracer consumes a locally declared Scene interface in the teacher.
type PathTracer interface {
	// RenderPixel renders one camera sample at (x, y) for the given pass,
	// writing guiding records into the STree/DTreeWrappers it is bound to
	// as a side effect, and returns the resulting pixel color. sampleIdx and
	// spp locate this sample's slot in the retained-path buffer.
	RenderPixel(ctx context.Context, x, y int, rng *rand.Rand, iteration int, neeActive bool, sampleIdx, spp int) (PixelSample, error)
}

// PixelSample is the per-sample result a PathTracer hands back to the
// iteration controller for variance bookkeeping and image accumulation.
type PixelSample struct {
	R, G, B float64
}
