package scene

import (
	"github.com/dgranger/pathguide/pkg/core"
)

// Scene bundles the shapes, lights and camera the guided integrator samples
// against, grounded on the teacher's pkg/scene.Scene field layout.
type Scene struct {
	Shapes []Shape
	Lights []Light
	Camera *Camera

	BackgroundTop, BackgroundBottom core.Vec3

	bvh        *BVH
	shapeLight map[Shape]Light
}

// Preprocess builds the BVH over Shapes and indexes which light (if any)
// each shape is the emitting surface for, so a BSDF-sampled ray that hits a
// light directly can look up its solid-angle PDF for MIS.
func (s *Scene) Preprocess() {
	s.bvh = NewBVH(s.Shapes)
	s.shapeLight = make(map[Shape]Light)
	for _, light := range s.Lights {
		al, ok := light.(*AreaLight)
		if !ok {
			continue
		}
		if sh, ok := al.Shape.(Shape); ok {
			s.shapeLight[sh] = light
		}
	}
}

func (s *Scene) GetBVH() *BVH                  { return s.bvh }
func (s *Scene) GetShapes() []Shape            { return s.Shapes }
func (s *Scene) GetLights() []Light            { return s.Lights }
func (s *Scene) GetCamera() *Camera             { return s.Camera }
func (s *Scene) GetBackgroundColors() (core.Vec3, core.Vec3) {
	return s.BackgroundTop, s.BackgroundBottom
}

// LightForShape returns the Light a given shape emits as, if any.
func (s *Scene) LightForShape(sh Shape) (Light, bool) {
	l, ok := s.shapeLight[sh]
	return l, ok
}

// AABB returns a world-space bound covering every shape, used to seed the
// SD-tree's root voxel.
func (s *Scene) AABB() core.AABB {
	if len(s.Shapes) == 0 {
		return core.NewAABB(core.NewVec3(-1, -1, -1), core.NewVec3(1, 1, 1))
	}
	box := s.Shapes[0].BoundingBox()
	for _, shape := range s.Shapes[1:] {
		box = box.Union(shape.BoundingBox())
	}
	return box
}

// NewCornellScene builds a classic Cornell-box style test scene: five quad
// walls, a quad area light in the ceiling, and two spheres, matching the
// teacher's pkg/scene/cornell.go in spirit though written fresh.
func NewCornellScene() *Scene {
	red := NewLambertian(core.NewVec3(0.65, 0.05, 0.05))
	green := NewLambertian(core.NewVec3(0.12, 0.45, 0.15))
	white := NewLambertian(core.NewVec3(0.73, 0.73, 0.73))
	mirror := NewMirror(core.NewVec3(0.9, 0.9, 0.9))
	light := NewEmissive(core.NewVec3(15, 15, 15))

	const size = 5.0

	shapes := []Shape{
		NewQuad(core.NewVec3(0, 0, 0), core.NewVec3(0, 0, -size), core.NewVec3(0, size, 0), green),      // left wall
		NewQuad(core.NewVec3(size, 0, -size), core.NewVec3(0, 0, size), core.NewVec3(0, size, 0), red),  // right wall
		NewQuad(core.NewVec3(0, 0, -size), core.NewVec3(size, 0, 0), core.NewVec3(0, size, 0), white),   // back wall
		NewQuad(core.NewVec3(0, 0, 0), core.NewVec3(size, 0, 0), core.NewVec3(0, 0, -size), white),      // floor
		NewQuad(core.NewVec3(0, size, -size), core.NewVec3(size, 0, 0), core.NewVec3(0, 0, size), white), // ceiling
		NewSphere(core.NewVec3(1.5, 1.0, -3.5), 1.0, white),
		NewSphere(core.NewVec3(3.3, 0.7, -2.0), 0.7, mirror),
	}

	lightQuad := NewQuad(core.NewVec3(1.7, size-0.01, -3.3), core.NewVec3(1.6, 0, 0), core.NewVec3(0, 0, -1.6), light)
	shapes = append(shapes, lightQuad)

	lights := []Light{NewAreaLight(lightQuad, core.NewVec3(15, 15, 15))}

	s := &Scene{
		Shapes:           shapes,
		Lights:           lights,
		Camera:           NewCamera(core.NewVec3(size/2, size/2, 6), 1.0),
		BackgroundTop:    core.Vec3{},
		BackgroundBottom: core.Vec3{},
	}
	s.Preprocess()
	return s
}
