package scene

import (
	"testing"

	"github.com/dgranger/pathguide/pkg/core"
)

func TestNewCornellScene_BuildsNonEmptyScene(t *testing.T) {
	sc := NewCornellScene()

	if len(sc.GetShapes()) == 0 {
		t.Fatalf("expected the Cornell scene to contain shapes")
	}
	if len(sc.GetLights()) == 0 {
		t.Fatalf("expected the Cornell scene to contain at least one light")
	}
	if sc.GetCamera() == nil {
		t.Fatalf("expected the Cornell scene to have a camera")
	}
	if sc.GetBVH() == nil {
		t.Fatalf("expected Preprocess to have built a BVH")
	}
}

func TestNewCornellScene_CameraRayHitsAShape(t *testing.T) {
	sc := NewCornellScene()
	ray := sc.GetCamera().GetRay(0.5, 0.5)
	if _, ok := sc.GetBVH().Hit(ray, 1e-3, 1e6); !ok {
		t.Errorf("expected a ray from the camera's center toward the box to hit something")
	}
}

func TestScene_LightForShape_FindsTheEmittingQuad(t *testing.T) {
	sc := NewCornellScene()
	al, ok := sc.GetLights()[0].(*AreaLight)
	if !ok {
		t.Fatalf("expected the Cornell scene's first light to be an AreaLight")
	}
	lightShape, ok := al.Shape.(Shape)
	if !ok {
		t.Fatalf("expected the area light's shape to also satisfy Shape")
	}

	light, ok := sc.LightForShape(lightShape)
	if !ok {
		t.Fatalf("expected LightForShape to find the light for its own emitting shape")
	}
	if light != sc.GetLights()[0] {
		t.Errorf("expected LightForShape to return the scene's registered light")
	}
}

func TestScene_AABB_EmptySceneReturnsUnitBox(t *testing.T) {
	s := &Scene{}
	box := s.AABB()
	if !box.IsValid() {
		t.Fatalf("expected a fallback bounding box for an empty scene")
	}
	size := box.Size()
	if size.X != 2 || size.Y != 2 || size.Z != 2 {
		t.Errorf("expected a 2x2x2 fallback box, got size %v", size)
	}
}

func TestScene_AABB_CoversAllShapes(t *testing.T) {
	s := &Scene{Shapes: []Shape{
		NewSphere(core.NewVec3(10, 0, 0), 1, nil),
		NewSphere(core.NewVec3(-10, 0, 0), 1, nil),
	}}
	box := s.AABB()
	if box.Size().X < 18 {
		t.Errorf("expected the union bounding box to span both spheres, got size %v", box.Size())
	}
}
