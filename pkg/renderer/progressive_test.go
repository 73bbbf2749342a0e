package renderer

import (
	"context"
	"testing"

	"github.com/dgranger/pathguide/pkg/core"
	"github.com/dgranger/pathguide/pkg/guiding"
	"github.com/dgranger/pathguide/pkg/replay"
	"github.com/dgranger/pathguide/pkg/sdtree"
)

func TestGuidedPassRunner_RunPassFillsImageAtRequestedResolution(t *testing.T) {
	s := singleLightScene()
	tree := sdtree.NewSTree(s.AABB(), 0.5)
	buf := replay.NewBuffer()
	cfg := guiding.DefaultConfig()

	const width, height = 6, 6
	runner := NewGuidedPassRunner(s, width, height, DefaultGuidedPassRunnerConfig(), tree, buf, cfg, NewDefaultLogger())

	img, err := runner.RunPass(context.Background(), 0, 2, true)
	if err != nil {
		t.Fatalf("RunPass returned an error: %v", err)
	}
	if img.Width != width || img.Height != height {
		t.Errorf("image size = %dx%d, want %dx%d", img.Width, img.Height, width, height)
	}
	if img.Samples != 2 {
		t.Errorf("image samples = %d, want 2", img.Samples)
	}
	if len(img.Pixels) != width*height {
		t.Errorf("pixel count = %d, want %d", len(img.Pixels), width*height)
	}
}

func TestBuildIterationImage_VarianceZeroWithOneSample(t *testing.T) {
	stats := make([][]PixelStats, 2)
	for y := range stats {
		stats[y] = make([]PixelStats, 2)
		for x := range stats[y] {
			stats[y][x].AddSample(core.NewVec3(0.5, 0.5, 0.5))
		}
	}
	img := buildIterationImage(stats, 2, 2, 1)
	if img.Variance != 0 {
		t.Errorf("expected zero variance with a single sample per pixel, got %v", img.Variance)
	}
}

func TestBuildIterationImage_VarianceNonzeroWhenSamplesDiffer(t *testing.T) {
	stats := make([][]PixelStats, 1)
	stats[0] = make([]PixelStats, 1)
	stats[0][0].AddSample(core.NewVec3(0, 0, 0))
	stats[0][0].AddSample(core.NewVec3(1, 1, 1))

	img := buildIterationImage(stats, 1, 1, 2)
	if img.Variance <= 0 {
		t.Errorf("expected positive variance when samples differ, got %v", img.Variance)
	}
}

func TestRenderToImage_MatchesIterationImageDimensions(t *testing.T) {
	img := guiding.IterationImage{
		Width: 2, Height: 2,
		Pixels: []core.Vec3{
			core.NewVec3(1, 0, 0), core.NewVec3(0, 1, 0),
			core.NewVec3(0, 0, 1), core.NewVec3(1, 1, 1),
		},
	}
	out := RenderToImage(img)
	bounds := out.Bounds()
	if bounds.Dx() != 2 || bounds.Dy() != 2 {
		t.Errorf("output image size = %dx%d, want 2x2", bounds.Dx(), bounds.Dy())
	}
}
