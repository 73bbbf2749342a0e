package renderer

import (
	"context"
	"image/color"
	"math"
	"math/rand"

	"github.com/dgranger/pathguide/pkg/core"
	"github.com/dgranger/pathguide/pkg/guiding"
	"github.com/dgranger/pathguide/pkg/replay"
	"github.com/dgranger/pathguide/pkg/scene"
	"github.com/dgranger/pathguide/pkg/sdtree"
)

// rrDepth mirrors the controller's retained-path Russian-roulette depth: the
// vertex index at and beyond which paths become eligible for termination.
const rrDepth = 5

// GuidedRaytracer traces camera paths with BSDF/SD-tree mixed direction
// sampling, replacing the teacher's recursive Raytracer. It implements
// guiding.PathTracer, the collaborator the iteration controller drives.
type GuidedRaytracer struct {
	scene         *scene.Scene
	width, height int
	maxDepth      int

	tree *sdtree.STree
	buf  *replay.Buffer
	cfg  guiding.Config
}

// NewGuidedRaytracer binds a raytracer to the controller's STree and
// retained-path buffer; tree and buf are shared across every worker, each
// call supplies its own *rand.Rand.
func NewGuidedRaytracer(sc *scene.Scene, tree *sdtree.STree, buf *replay.Buffer, cfg guiding.Config, width, height, maxDepth int) *GuidedRaytracer {
	return &GuidedRaytracer{
		scene: sc, width: width, height: height, maxDepth: maxDepth,
		tree: tree, buf: buf, cfg: cfg,
	}
}

func (rt *GuidedRaytracer) augmentActive() bool {
	switch rt.cfg.Strategy {
	case replay.Augment, replay.RejectAugment, replay.ReweightAugment:
		return true
	default:
		return false
	}
}

func (rt *GuidedRaytracer) replayOptions(rng *rand.Rand) replay.Options {
	return replay.Options{
		Strategy:     rt.cfg.Strategy,
		RRDepth:      rrDepth,
		WrapperAt:    func(p core.Vec3) *sdtree.DTreeWrapper { return rt.tree.DTreeWrapperAt(p) },
		Rng:          rng,
		NEEKickstart: rt.cfg.NEE == guiding.NeeKickstart,
	}
}

// retainedPathIndex maps a pixel and its sample index within the current
// pass to a slot in the shared retained-path buffer, one path per sample:
// spp is the total samples-per-pixel this pass renders, so a pixel's samples
// occupy a contiguous run of spp slots.
func (rt *GuidedRaytracer) retainedPathIndex(x, y, sampleIdx, spp int) int {
	return (y*rt.width+x)*spp + sampleIdx
}

func (rt *GuidedRaytracer) backgroundColor(r core.Ray) core.Vec3 {
	top, bottom := rt.scene.GetBackgroundColors()
	unit := r.Direction.Normalize()
	t := 0.5 * (unit.Y + 1.0)
	return bottom.Multiply(1.0 - t).Add(top.Multiply(t))
}

// RenderPixel traces one camera sample at (x, y), mixing BSDF and SD-tree
// direction sampling at every non-delta bounce, optionally next-event
// estimating, and recording the path for replay in later iterations when
// the controller's retained-path window is still open. sampleIdx/spp locate
// this sample's own slot in the shared retained-path buffer, one per sample.
func (rt *GuidedRaytracer) RenderPixel(ctx context.Context, x, y int, rng *rand.Rand, iteration int, neeActive bool, sampleIdx, spp int) (guiding.PixelSample, error) {
	if err := ctx.Err(); err != nil {
		return guiding.PixelSample{}, err
	}

	camera := rt.scene.GetCamera()
	su := (float64(x) + rng.Float64()) / float64(rt.width)
	t := (float64(y) + rng.Float64()) / float64(rt.height)
	ray := camera.GetRay(su, t)

	retain := rt.cfg.RenderIterations >= 0 && iteration <= rt.cfg.StratIterActive
	var path *replay.RPath
	if retain {
		path = rt.buf.At(rt.retainedPathIndex(x, y, sampleIdx, spp))
		path.Restart(iteration)
	} else {
		path = replay.NewRPath(iteration)
	}

	result := rt.tracePrimary(ray, rng, neeActive, path)

	if len(path.Path) > 0 {
		contrib, _ := replay.Replay(path, rt.replayOptions(rng))
		result = result.Add(contrib)
	} else if retain {
		path.Deactivate()
	}

	return guiding.PixelSample{R: result.X, G: result.Y, B: result.Z}, nil
}

// tracePrimary walks the camera path bounce by bounce, resolving direct
// (camera-ray) emission and next-event estimation at the primary hit
// immediately since there is no prior vertex to balance-heuristic against,
// and deferring every subsequent bounce's emission/NEE/indirect radiance to
// path's records for replay.Replay to weight and commit.
func (rt *GuidedRaytracer) tracePrimary(ray core.Ray, rng *rand.Rand, neeActive bool, path *replay.RPath) core.Vec3 {
	bvh := rt.scene.GetBVH()

	hit, ok := bvh.Hit(ray, 1e-3, 1e6)
	if !ok {
		return rt.backgroundColor(ray)
	}

	var direct core.Vec3
	if emitter, ok := hit.Material.(scene.Emitter); ok {
		direct = direct.Add(emitter.Emit(ray, *hit))
	}
	if neeActive {
		direct = direct.Add(rt.sampleDirectLighting(*hit, ray.Direction.Negate(), core.NewVec3(1, 1, 1), rng))
	}

	rt.traceBounces(ray, *hit, core.NewVec3(1, 1, 1), 1, neeActive, rng, path)

	return direct
}

// traceBounces extends the path beyond the primary hit, mixing BSDF and
// SD-tree direction sampling and applying Russian roulette past rrDepth.
// Found emission and NEE contributions are appended to path so
// replay.Replay can MIS-weight and commit them.
func (rt *GuidedRaytracer) traceBounces(prevRay core.Ray, hit scene.HitRecord, throughput core.Vec3, depth int, neeActive bool, rng *rand.Rand, path *replay.RPath) {
	if depth >= rt.maxDepth {
		return
	}

	wrapper := rt.tree.DTreeWrapperAt(hit.Point)

	scattered, pdf, bsdfVal, isDelta, ok := rt.sampleDirection(prevRay, hit, wrapper, rng)
	if !ok || pdf <= 0 {
		return
	}

	cosTheta := math.Abs(scattered.Direction.Normalize().Dot(hit.Normal))
	vertex := replay.RVertex{
		O: hit.Point, D: scattered.Direction.Normalize(),
		BsdfVal: bsdfVal.Multiply(cosTheta), BsdfPdf: pdf, WoPdf: pdf,
		IsDelta: isDelta, Sc: 1,
	}

	nextThroughput := throughput.MultiplyVec(bsdfVal).Multiply(cosTheta / pdf)

	vertexIdx := len(path.Path)
	path.Path = append(path.Path, vertex)

	if vertexIdx >= rrDepth {
		survival := math.Min(0.99, math.Max(0.1, bsdfVal.Multiply(cosTheta).Luminance()))
		if rng.Float64() >= survival {
			return
		}
		nextThroughput = nextThroughput.Multiply(1 / survival)
	}

	nextHit, ok := rt.scene.GetBVH().Hit(scattered, 1e-3, 1e6)
	if !ok {
		bg := rt.backgroundColor(scattered)
		path.RadianceRecords = append(path.RadianceRecords, replay.RadianceRecord{
			VertexIndex: vertexIdx, L: nextThroughput.MultiplyVec(bg), Pdf: 0,
		})
		return
	}

	if emitter, okE := nextHit.Material.(scene.Emitter); okE {
		emitted := emitter.Emit(scattered, *nextHit)
		lightPdf := 0.0
		if nextHit.ShapeRef != nil {
			if lt, okL := rt.scene.LightForShape(nextHit.ShapeRef); okL {
				lightPdf = lt.PDF(hit.Point, vertex.D) / float64(len(rt.scene.GetLights()))
			}
		}
		path.RadianceRecords = append(path.RadianceRecords, replay.RadianceRecord{
			VertexIndex: vertexIdx, L: nextThroughput.MultiplyVec(emitted), Pdf: lightPdf,
		})
	}

	if neeActive && !isDelta {
		nee := rt.sampleDirectLightingNEE(*nextHit, scattered.Direction.Negate(), nextThroughput, vertexIdx+1, rng)
		if nee != nil {
			path.NEERecords = append(path.NEERecords, *nee)
		}
	}

	if !isDelta {
		wrapper.IncSampleCount()
	}

	rt.traceBounces(scattered, *nextHit, nextThroughput, depth+1, neeActive, rng, path)
}

// sampleDirection draws a continuation direction, mixing the material's own
// BSDF sampling with the spatial leaf's SD-tree according to its current
// mixing fraction; delta materials bypass the SD-tree entirely.
func (rt *GuidedRaytracer) sampleDirection(prevRay core.Ray, hit scene.HitRecord, wrapper *sdtree.DTreeWrapper, rng *rand.Rand) (scattered core.Ray, pdf float64, bsdfVal core.Vec3, isDelta bool, ok bool) {
	scatter, didScatter := hit.Material.Scatter(prevRay, hit, rng)
	if !didScatter {
		return core.Ray{}, 0, core.Vec3{}, false, false
	}
	if scatter.IsSpecular() {
		return scatter.Scattered, 1, scatter.Attenuation, true, true
	}

	bsf := wrapper.BsdfSamplingFraction()
	var dir core.Vec3
	if rng.Float64() < bsf {
		dir = scatter.Scattered.Direction.Normalize()
	} else {
		x, y, z := wrapper.Sample(rng, rt.augmentActive())
		dir = core.NewVec3(x, y, z)
	}

	bsdfPdf, _ := hit.Material.PDF(prevRay.Direction.Negate(), dir, hit.Normal)
	dTreePdf := wrapper.PDF(dir.X, dir.Y, dir.Z)
	mixPdf := bsf*bsdfPdf + (1-bsf)*dTreePdf
	if mixPdf <= 0 {
		return core.Ray{}, 0, core.Vec3{}, false, false
	}

	value := hit.Material.EvaluateBRDF(prevRay.Direction.Negate(), dir, hit.Normal)
	return core.NewRay(hit.Point, dir), mixPdf, value, false, true
}

// sampleDirectLighting estimates direct illumination at hit via a single
// uniformly chosen light, weighted by the standard Monte Carlo light-pick
// estimator; used only at the primary hit, where there is no MIS partner to
// balance against.
func (rt *GuidedRaytracer) sampleDirectLighting(hit scene.HitRecord, wo core.Vec3, throughput core.Vec3, rng *rand.Rand) core.Vec3 {
	lights := rt.scene.GetLights()
	if len(lights) == 0 {
		return core.Vec3{}
	}
	light := lights[rng.Intn(len(lights))]
	ls, ok := light.Sample(hit.Point, rng.Float64(), rng.Float64())
	if !ok || ls.PDF <= 0 {
		return core.Vec3{}
	}
	cosTheta := ls.Direction.Dot(hit.Normal)
	if cosTheta <= 0 {
		return core.Vec3{}
	}
	if rt.occluded(hit.Point, ls.Direction, ls.Distance) {
		return core.Vec3{}
	}
	bsdfVal := hit.Material.EvaluateBRDF(wo, ls.Direction, hit.Normal)
	pdf := ls.PDF / float64(len(lights))
	return throughput.MultiplyVec(bsdfVal).Multiply(cosTheta / pdf).MultiplyVec(ls.Emission)
}

// sampleDirectLightingNEE is the path-replay counterpart of
// sampleDirectLighting: it records the MIS weight's opposing pdf (the
// material's own pdf toward the sampled direction) instead of resolving the
// weight immediately, so replay.Replay can recombine it against a later
// DTree topology.
func (rt *GuidedRaytracer) sampleDirectLightingNEE(hit scene.HitRecord, wo core.Vec3, throughput core.Vec3, vertexIdx int, rng *rand.Rand) *replay.NEERecord {
	lights := rt.scene.GetLights()
	if len(lights) == 0 {
		return nil
	}
	light := lights[rng.Intn(len(lights))]
	ls, ok := light.Sample(hit.Point, rng.Float64(), rng.Float64())
	if !ok || ls.PDF <= 0 {
		return nil
	}
	cosTheta := ls.Direction.Dot(hit.Normal)
	if cosTheta <= 0 {
		return nil
	}
	if rt.occluded(hit.Point, ls.Direction, ls.Distance) {
		return nil
	}
	bsdfVal := hit.Material.EvaluateBRDF(wo, ls.Direction, hit.Normal)
	bsdfPdf, isDelta := hit.Material.PDF(wo, ls.Direction, hit.Normal)
	if isDelta {
		return nil
	}
	lightPdf := ls.PDF / float64(len(lights))
	contribution := throughput.MultiplyVec(bsdfVal).Multiply(cosTheta / lightPdf).MultiplyVec(ls.Emission)
	return &replay.NEERecord{
		VertexIndex: vertexIdx, L: contribution, Pdf: lightPdf,
		Wo: ls.Direction, BsdfVal: bsdfVal.Multiply(cosTheta), BsdfPdf: bsdfPdf,
	}
}

func (rt *GuidedRaytracer) occluded(point, direction core.Vec3, distance float64) bool {
	shadowRay := core.NewRay(point, direction)
	_, hit := rt.scene.GetBVH().Hit(shadowRay, 1e-3, distance-1e-3)
	return hit
}

// vec3ToColor converts a linear Vec3 color to RGBA with gamma correction and
// clamping, matching the teacher's Raytracer.vec3ToColor.
func vec3ToColor(colorVec core.Vec3) color.RGBA {
	colorVec = colorVec.GammaCorrect(2.0)
	colorVec = colorVec.Clamp(0.0, 1.0)
	return color.RGBA{
		R: uint8(255 * colorVec.X),
		G: uint8(255 * colorVec.Y),
		B: uint8(255 * colorVec.Z),
		A: 255,
	}
}
