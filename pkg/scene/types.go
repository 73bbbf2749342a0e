// Package scene rebuilds the teacher's scene/geometry/material/lights stack
// as one internally consistent package. Shapes, materials and lights here are
// deliberately small: spheres, quads, Lambertian/mirror/emissive surfaces,
// and area/infinite lights, enough to exercise the guided path tracer's
// BSDF+SD-tree mixing and NEE without dragging in the unreconciled PBRT/PLY
// loader stack the teacher snapshot shipped alongside them.
package scene

import (
	"math/rand"

	"github.com/dgranger/pathguide/pkg/core"
)

// HitRecord describes a ray/shape intersection.
type HitRecord struct {
	Point     core.Vec3
	Normal    core.Vec3
	T         float64
	FrontFace bool
	Material  Material
	ShapeRef  Shape // the shape this hit was produced against, for light lookup
}

// SetFaceNormal orients Normal to face against the incoming ray and records
// which side was hit.
func (h *HitRecord) SetFaceNormal(ray core.Ray, outwardNormal core.Vec3) {
	h.FrontFace = ray.Direction.Dot(outwardNormal) < 0
	if h.FrontFace {
		h.Normal = outwardNormal
	} else {
		h.Normal = outwardNormal.Multiply(-1)
	}
}

// ScatterResult is a material's proposed continuation of a path.
type ScatterResult struct {
	Scattered   core.Ray
	Attenuation core.Vec3 // BRDF value (not yet divided by PDF or multiplied by cosine)
	PDF         float64   // 0 for delta (specular) scattering
}

// IsSpecular reports whether this scatter event came from a delta BSDF.
func (s ScatterResult) IsSpecular() bool {
	return s.PDF <= 0
}

// Material is the BSDF a shape scatters light against. EvaluateBRDF/PDF take
// explicit directions so the guided integrator can evaluate the BSDF along a
// direction it drew from the SD-tree rather than one Scatter itself produced.
type Material interface {
	Scatter(rayIn core.Ray, hit HitRecord, rng *rand.Rand) (ScatterResult, bool)
	EvaluateBRDF(wi, wo, normal core.Vec3) core.Vec3
	PDF(wi, wo, normal core.Vec3) (pdf float64, isDelta bool)
}

// Emitter is implemented by materials that emit light when hit directly.
type Emitter interface {
	Emit(rayIn core.Ray, hit HitRecord) core.Vec3
}

// Shape is anything the BVH can intersect.
type Shape interface {
	Hit(ray core.Ray, tMin, tMax float64) (*HitRecord, bool)
	BoundingBox() core.AABB
}
