package scene

import (
	"math"

	"github.com/dgranger/pathguide/pkg/core"
)

// LightType distinguishes finite (area) lights from infinite environment
// lights, mirroring the teacher's lights.LightType.
type LightType int

const (
	LightTypeArea LightType = iota
	LightTypeInfinite
)

// LightSample is one direct-lighting sample, direction pointing from the
// shading point toward the light.
type LightSample struct {
	Direction core.Vec3
	Distance  float64
	Emission  core.Vec3
	PDF       float64 // solid-angle PDF at the shading point
}

// Light is sampled during next-event estimation.
type Light interface {
	Type() LightType
	Sample(point core.Vec3, u1, u2 float64) (LightSample, bool)
	PDF(point, direction core.Vec3) float64
	Emit(ray core.Ray) core.Vec3
}

// areaShape is the subset of Shape an area light needs for uniform surface
// sampling: a point/normal pair and its area.
type areaShape interface {
	SamplePoint(u1, u2 float64) (point, normal core.Vec3)
	Area() float64
}

// AreaLight turns an emissive shape into a sampleable light, converting the
// uniform-area PDF to the solid-angle PDF the shading point sees.
type AreaLight struct {
	Shape    areaShape
	Emission core.Vec3
}

func NewAreaLight(shape areaShape, emission core.Vec3) *AreaLight {
	return &AreaLight{Shape: shape, Emission: emission}
}

func (l *AreaLight) Type() LightType { return LightTypeArea }

func (l *AreaLight) Sample(point core.Vec3, u1, u2 float64) (LightSample, bool) {
	lightPoint, normal := l.Shape.SamplePoint(u1, u2)
	toLight := lightPoint.Subtract(point)
	distSq := toLight.LengthSquared()
	if distSq < 1e-12 {
		return LightSample{}, false
	}
	dist := math.Sqrt(distSq)
	dir := toLight.Multiply(1 / dist)

	cosLight := normal.Dot(dir.Multiply(-1))
	if cosLight <= 0 {
		return LightSample{}, false
	}

	areaPDF := 1.0 / l.Shape.Area()
	solidAnglePDF := areaPDF * distSq / cosLight

	return LightSample{
		Direction: dir,
		Distance:  dist,
		Emission:  l.Emission,
		PDF:       solidAnglePDF,
	}, true
}

func (l *AreaLight) PDF(point, direction core.Vec3) float64 {
	// Approximate: callers that need an exact PDF for a given ray should
	// intersect it against the shape themselves; this path is only used by
	// the uniform light-selection MIS weight, which tolerates the estimate.
	return 1.0 / l.Shape.Area()
}

func (l *AreaLight) Emit(ray core.Ray) core.Vec3 {
	return core.Vec3{}
}

// UniformInfiniteLight emits a constant radiance from every direction, the
// simplest possible environment light.
type UniformInfiniteLight struct {
	Emission core.Vec3
}

func NewUniformInfiniteLight(emission core.Vec3) *UniformInfiniteLight {
	return &UniformInfiniteLight{Emission: emission}
}

func (l *UniformInfiniteLight) Type() LightType { return LightTypeInfinite }

func (l *UniformInfiniteLight) Sample(point core.Vec3, u1, u2 float64) (LightSample, bool) {
	// Infinite lights are sampled uniformly over the sphere, not cosine
	// weighted around a fixed axis; draw directly from u1,u2.
	z := 1 - 2*u1
	r := math.Sqrt(math.Max(0, 1-z*z))
	phi := 2 * math.Pi * u2
	d := core.NewVec3(r*math.Cos(phi), r*math.Sin(phi), z)
	return LightSample{Direction: d, Distance: 1e6, Emission: l.Emission, PDF: 1.0 / (4 * math.Pi)}, true
}

func (l *UniformInfiniteLight) PDF(point, direction core.Vec3) float64 {
	return 1.0 / (4 * math.Pi)
}

func (l *UniformInfiniteLight) Emit(ray core.Ray) core.Vec3 {
	return l.Emission
}
