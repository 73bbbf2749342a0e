package scene

import (
	"math"

	"github.com/dgranger/pathguide/pkg/core"
)

// Sphere is a round shape centered at Center with radius Radius.
type Sphere struct {
	Center   core.Vec3
	Radius   float64
	Material Material
}

func NewSphere(center core.Vec3, radius float64, material Material) *Sphere {
	return &Sphere{Center: center, Radius: radius, Material: material}
}

func (s *Sphere) Hit(ray core.Ray, tMin, tMax float64) (*HitRecord, bool) {
	oc := ray.Origin.Subtract(s.Center)
	a := ray.Direction.LengthSquared()
	halfB := oc.Dot(ray.Direction)
	c := oc.LengthSquared() - s.Radius*s.Radius
	discriminant := halfB*halfB - a*c
	if discriminant < 0 {
		return nil, false
	}
	sqrtD := math.Sqrt(discriminant)

	root := (-halfB - sqrtD) / a
	if root < tMin || root > tMax {
		root = (-halfB + sqrtD) / a
		if root < tMin || root > tMax {
			return nil, false
		}
	}

	hit := &HitRecord{T: root, Material: s.Material, ShapeRef: s}
	hit.Point = ray.At(root)
	outwardNormal := hit.Point.Subtract(s.Center).Multiply(1.0 / s.Radius)
	hit.SetFaceNormal(ray, outwardNormal)
	return hit, true
}

func (s *Sphere) BoundingBox() core.AABB {
	r := core.NewVec3(s.Radius, s.Radius, s.Radius)
	return core.NewAABB(s.Center.Subtract(r), s.Center.Add(r))
}

func (s *Sphere) Area() float64 {
	return 4 * math.Pi * s.Radius * s.Radius
}

// SamplePoint returns a uniformly sampled point and outward normal on the
// sphere's surface.
func (s *Sphere) SamplePoint(u1, u2 float64) (point, normal core.Vec3) {
	z := 1 - 2*u1
	r := math.Sqrt(math.Max(0, 1-z*z))
	phi := 2 * math.Pi * u2
	local := core.NewVec3(r*math.Cos(phi), r*math.Sin(phi), z)
	return s.Center.Add(local.Multiply(s.Radius)), local
}

// Quad is a planar parallelogram spanned by edge vectors U, V from Corner.
type Quad struct {
	Corner, U, V core.Vec3
	Material     Material

	normal core.Vec3
	w      core.Vec3 // used for the plane-coordinate test, grounded on the standard quad-hit construction
	d      float64
	area   float64
}

func NewQuad(corner, u, v core.Vec3, material Material) *Quad {
	n := u.Cross(v)
	normal := n.Normalize()
	d := normal.Dot(corner)
	w := n.Multiply(1.0 / n.LengthSquared())
	return &Quad{
		Corner: corner, U: u, V: v, Material: material,
		normal: normal, w: w, d: d, area: n.Length(),
	}
}

func (q *Quad) Hit(ray core.Ray, tMin, tMax float64) (*HitRecord, bool) {
	denom := q.normal.Dot(ray.Direction)
	if math.Abs(denom) < 1e-8 {
		return nil, false
	}
	t := (q.d - q.normal.Dot(ray.Origin)) / denom
	if t < tMin || t > tMax {
		return nil, false
	}

	point := ray.At(t)
	hitVec := point.Subtract(q.Corner)
	alpha := q.w.Dot(hitVec.Cross(q.V))
	beta := q.w.Dot(q.U.Cross(hitVec))
	if alpha < 0 || alpha > 1 || beta < 0 || beta > 1 {
		return nil, false
	}

	hit := &HitRecord{T: t, Point: point, Material: q.Material, ShapeRef: q}
	hit.SetFaceNormal(ray, q.normal)
	return hit, true
}

func (q *Quad) BoundingBox() core.AABB {
	return core.NewAABBFromPoints(q.Corner, q.Corner.Add(q.U), q.Corner.Add(q.V), q.Corner.Add(q.U).Add(q.V)).Expand(1e-4)
}

func (q *Quad) Area() float64 {
	return q.area
}

// SamplePoint returns a uniformly sampled point on the quad and its normal.
func (q *Quad) SamplePoint(u1, u2 float64) (point, normal core.Vec3) {
	point = q.Corner.Add(q.U.Multiply(u1)).Add(q.V.Multiply(u2))
	return point, q.normal
}
