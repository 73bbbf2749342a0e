package scene

import (
	"math"
	"testing"

	"github.com/dgranger/pathguide/pkg/core"
)

func TestAreaLightSample_ConvertsAreaPDFToSolidAngle(t *testing.T) {
	quad := NewQuad(core.NewVec3(-1, 2, -1), core.NewVec3(2, 0, 0), core.NewVec3(0, 0, 2), nil)
	light := NewAreaLight(quad, core.NewVec3(5, 5, 5))

	point := core.NewVec3(0, 0, 0)
	sample, ok := light.Sample(point, 0.5, 0.5)
	if !ok {
		t.Fatalf("expected a downward-facing quad light to sample successfully")
	}
	if sample.PDF <= 0 {
		t.Errorf("expected a positive solid-angle pdf, got %v", sample.PDF)
	}
	if sample.Emission != light.Emission {
		t.Errorf("expected sample emission to equal the light's Emission")
	}
}

func TestAreaLightSample_RejectsWrongFacingNormal(t *testing.T) {
	quad := NewQuad(core.NewVec3(-1, -2, -1), core.NewVec3(2, 0, 0), core.NewVec3(0, 0, 2), nil)
	light := NewAreaLight(quad, core.NewVec3(5, 5, 5))

	point := core.NewVec3(0, 0, 0)
	if _, ok := light.Sample(point, 0.5, 0.5); ok {
		t.Errorf("expected a light facing away from the shading point to fail to sample")
	}
}

func TestUniformInfiniteLightSample_DirectionIsUnitLength(t *testing.T) {
	light := NewUniformInfiniteLight(core.NewVec3(1, 1, 1))
	sample, ok := light.Sample(core.NewVec3(0, 0, 0), 0.3, 0.8)
	if !ok {
		t.Fatalf("expected infinite light sampling to always succeed")
	}
	if math.Abs(sample.Direction.Length()-1) > 1e-9 {
		t.Errorf("sampled direction length = %v, want 1", sample.Direction.Length())
	}
	if math.Abs(sample.PDF-1.0/(4*math.Pi)) > 1e-12 {
		t.Errorf("pdf = %v, want uniform sphere pdf", sample.PDF)
	}
}

func TestUniformInfiniteLightEmit_IsConstant(t *testing.T) {
	light := NewUniformInfiniteLight(core.NewVec3(2, 3, 4))
	got := light.Emit(core.NewRay(core.NewVec3(0, 0, 0), core.NewVec3(1, 0, 0)))
	if got != light.Emission {
		t.Errorf("Emit() = %v, want %v", got, light.Emission)
	}
}
