package renderer

import (
	"context"
	"fmt"
	"image"
	"math"
	"math/rand"

	"github.com/dgranger/pathguide/pkg/core"
	"github.com/dgranger/pathguide/pkg/guiding"
	"github.com/dgranger/pathguide/pkg/replay"
	sc "github.com/dgranger/pathguide/pkg/scene"
	"github.com/dgranger/pathguide/pkg/sdtree"
)

// DefaultLogger implements core.Logger by writing to stdout
type DefaultLogger struct{}

func (dl *DefaultLogger) Printf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// NewDefaultLogger creates a new default logger
func NewDefaultLogger() core.Logger {
	return &DefaultLogger{}
}

// GuidedPassRunnerConfig mirrors the teacher's ProgressiveConfig, trimmed to
// the knobs the tile-parallel driver itself owns; sample scheduling across
// iterations belongs to guiding.Controller now.
type GuidedPassRunnerConfig struct {
	TileSize   int // recommended 64
	MaxDepth   int // maximum ray bounce depth
	NumWorkers int // 0 = use CPU count
}

// DefaultGuidedPassRunnerConfig returns sensible default values.
func DefaultGuidedPassRunnerConfig() GuidedPassRunnerConfig {
	return GuidedPassRunnerConfig{TileSize: 64, MaxDepth: 50, NumWorkers: 0}
}

// GuidedPassRunner renders one guiding.Controller iteration's worth of
// samples-per-pixel across tiles in parallel, implementing guiding.PassRunner.
// It replaces the teacher's ProgressiveRaytracer, which drove its own pass
// schedule; here the controller decides spp and neeActive, this type only
// executes one pass.
type GuidedPassRunner struct {
	scene         *sc.Scene
	width, height int
	config        GuidedPassRunnerConfig
	logger        core.Logger

	tree *sdtree.STree
	buf  *replay.Buffer
	cfg  guiding.Config

	tiles     []*Tile
	passCount int
}

// NewGuidedPassRunner builds a pass runner sharing the controller's STree
// and retained-path buffer.
func NewGuidedPassRunner(scene *sc.Scene, width, height int, config GuidedPassRunnerConfig, tree *sdtree.STree, buf *replay.Buffer, cfg guiding.Config, logger core.Logger) *GuidedPassRunner {
	return &GuidedPassRunner{
		scene: scene, width: width, height: height,
		config: config, logger: logger,
		tree: tree, buf: buf, cfg: cfg,
		tiles: NewTileGrid(width, height, config.TileSize),
	}
}

// RunPass renders spp samples per pixel for this iteration, tile-parallel,
// and returns the resulting image plus its estimated per-pixel variance.
func (r *GuidedPassRunner) RunPass(ctx context.Context, iteration, spp int, neeActive bool) (guiding.IterationImage, error) {
	if r.cfg.RenderIterations >= 0 {
		r.buf.GrowTo(r.width*r.height*spp, iteration)
	}

	if r.augmentActive() {
		rng := rand.New(rand.NewSource(int64(iteration) + 1))
		r.tree.ForEachLeaf(func(w *sdtree.DTreeWrapper) {
			w.ComputeRequiredSamples(rng)
		})
	}

	r.passCount++
	r.logger.Printf("iteration %d: rendering %d spp (nee=%v, %d workers)\n", iteration, spp, neeActive, r.numWorkers())

	pixelStats := make([][]PixelStats, r.height)
	for y := range pixelStats {
		pixelStats[y] = make([]PixelStats, r.width)
	}

	wp := NewWorkerPool(ctx, r.scene, r.width, r.height, r.config.TileSize, r.config.MaxDepth, r.tree, r.buf, r.cfg, r.config.NumWorkers)
	wp.Start()

	for i, tile := range r.tiles {
		wp.SubmitTask(TileTask{
			Tile: tile, Iteration: iteration, Spp: spp, NeeActive: neeActive,
			TaskID: i, PixelStats: pixelStats,
		})
	}

	var firstErr error
	for range r.tiles {
		result, ok := wp.GetResult()
		if !ok {
			firstErr = fmt.Errorf("worker pool closed unexpectedly")
			break
		}
		if result.Error != nil && firstErr == nil {
			firstErr = result.Error
		}
	}
	wp.Stop()

	if firstErr != nil {
		return guiding.IterationImage{}, firstErr
	}

	img := buildIterationImage(pixelStats, r.width, r.height, spp)
	return img, nil
}

func (r *GuidedPassRunner) augmentActive() bool {
	switch r.cfg.Strategy {
	case replay.Augment, replay.RejectAugment, replay.ReweightAugment:
		return true
	default:
		return false
	}
}

func (r *GuidedPassRunner) numWorkers() int {
	if r.config.NumWorkers > 0 {
		return r.config.NumWorkers
	}
	return -1 // resolved to runtime.NumCPU() inside NewWorkerPool
}

// buildIterationImage assembles a guiding.IterationImage from this pass's
// pixel statistics, estimating variance as the mean clamped per-pixel
// sample variance, matching IterationImage's documented Σ min(v,10000) /
// (W*H*(N-1)) definition.
func buildIterationImage(pixelStats [][]PixelStats, width, height, spp int) guiding.IterationImage {
	pixels := make([]core.Vec3, width*height)
	var varianceSum float64
	var varianceTerms int

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			stats := &pixelStats[y][x]
			pixels[y*width+x] = stats.GetColor()

			n := float64(stats.SampleCount)
			if n > 1 {
				mean := stats.LuminanceAccum / n
				localVar := stats.LuminanceSqAccum/n - mean*mean
				if localVar < 0 {
					localVar = 0
				}
				varianceSum += math.Min(localVar, 10000)
				varianceTerms++
			}
		}
	}

	variance := 0.0
	if varianceTerms > 0 && spp > 1 {
		variance = varianceSum / float64(width*height*(spp-1))
	}

	return guiding.IterationImage{Width: width, Height: height, Pixels: pixels, Samples: spp, Variance: variance}
}

// RenderToImage converts an accumulated guiding.IterationImage into a
// displayable *image.RGBA, mirroring the teacher's vec3ToColor conversion.
func RenderToImage(img guiding.IterationImage) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			out.SetRGBA(x, y, vec3ToColor(img.Pixels[y*img.Width+x]))
		}
	}
	return out
}

// Tile represents a rectangular region of the image to be rendered
type Tile struct {
	ID              int
	Bounds          image.Rectangle
	PassesCompleted int
	Random          *rand.Rand
}

// NewTile creates a new tile with the specified bounds
func NewTile(id int, bounds image.Rectangle) *Tile {
	random := rand.New(rand.NewSource(int64(id + 42)))
	return &Tile{ID: id, Bounds: bounds, Random: random}
}

// NewTileGrid creates a grid of tiles covering the entire image
func NewTileGrid(width, height, tileSize int) []*Tile {
	var tiles []*Tile
	tileID := 0

	tilesX := (width + tileSize - 1) / tileSize
	tilesY := (height + tileSize - 1) / tileSize

	for tileY := 0; tileY < tilesY; tileY++ {
		for tileX := 0; tileX < tilesX; tileX++ {
			x0 := tileX * tileSize
			y0 := tileY * tileSize
			x1 := min(x0+tileSize, width)
			y1 := min(y0+tileSize, height)

			tiles = append(tiles, NewTile(tileID, image.Rect(x0, y0, x1, y1)))
			tileID++
		}
	}

	return tiles
}
