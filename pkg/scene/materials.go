package scene

import (
	"math"
	"math/rand"

	"github.com/dgranger/pathguide/pkg/core"
)

// Lambertian is a perfectly diffuse material, grounded on the teacher's
// cosine-hemisphere Scatter/EvaluateBRDF/PDF trio.
type Lambertian struct {
	Albedo core.Vec3
}

func NewLambertian(albedo core.Vec3) *Lambertian {
	return &Lambertian{Albedo: albedo}
}

func (l *Lambertian) Scatter(rayIn core.Ray, hit HitRecord, rng *rand.Rand) (ScatterResult, bool) {
	dir := core.RandomCosineDirection(hit.Normal, rng)
	cosTheta := math.Max(0, dir.Normalize().Dot(hit.Normal))
	return ScatterResult{
		Scattered:   core.NewRay(hit.Point, dir),
		Attenuation: l.Albedo.Multiply(1.0 / math.Pi),
		PDF:         cosTheta / math.Pi,
	}, true
}

func (l *Lambertian) EvaluateBRDF(wi, wo, normal core.Vec3) core.Vec3 {
	if wo.Dot(normal) <= 0 {
		return core.Vec3{}
	}
	return l.Albedo.Multiply(1.0 / math.Pi)
}

func (l *Lambertian) PDF(wi, wo, normal core.Vec3) (float64, bool) {
	cosTheta := wo.Dot(normal)
	if cosTheta <= 0 {
		return 0, false
	}
	return cosTheta / math.Pi, false
}

// Mirror is a perfect specular reflector; EvaluateBRDF/PDF are delta
// functions and return zero for any non-matching evaluation direction,
// mirroring the teacher's Metal.EvaluateBRDF/PDF pattern at fuzziness zero.
type Mirror struct {
	Albedo core.Vec3
}

func NewMirror(albedo core.Vec3) *Mirror {
	return &Mirror{Albedo: albedo}
}

func reflect(v, n core.Vec3) core.Vec3 {
	return v.Subtract(n.Multiply(2 * v.Dot(n)))
}

func (m *Mirror) Scatter(rayIn core.Ray, hit HitRecord, rng *rand.Rand) (ScatterResult, bool) {
	reflected := reflect(rayIn.Direction.Normalize(), hit.Normal)
	scattered := core.NewRay(hit.Point, reflected)
	return ScatterResult{Scattered: scattered, Attenuation: m.Albedo, PDF: 0}, reflected.Dot(hit.Normal) > 0
}

func (m *Mirror) EvaluateBRDF(wi, wo, normal core.Vec3) core.Vec3 {
	reflected := reflect(wi.Negate(), normal)
	if reflected.Subtract(wo).Length() < 1e-3 {
		return m.Albedo
	}
	return core.Vec3{}
}

func (m *Mirror) PDF(wi, wo, normal core.Vec3) (float64, bool) {
	return 0, true
}

// Emissive surfaces emit a constant radiance and do not scatter further.
type Emissive struct {
	Emission core.Vec3
}

func NewEmissive(emission core.Vec3) *Emissive {
	return &Emissive{Emission: emission}
}

func (e *Emissive) Scatter(rayIn core.Ray, hit HitRecord, rng *rand.Rand) (ScatterResult, bool) {
	return ScatterResult{}, false
}

func (e *Emissive) EvaluateBRDF(wi, wo, normal core.Vec3) core.Vec3 { return core.Vec3{} }

func (e *Emissive) PDF(wi, wo, normal core.Vec3) (float64, bool) { return 0, false }

func (e *Emissive) Emit(rayIn core.Ray, hit HitRecord) core.Vec3 {
	if !hit.FrontFace {
		return core.Vec3{}
	}
	return e.Emission
}
