package renderer

import (
	"context"
	"runtime"
	"sync"

	"github.com/dgranger/pathguide/pkg/core"
	"github.com/dgranger/pathguide/pkg/guiding"
	"github.com/dgranger/pathguide/pkg/replay"
	sc "github.com/dgranger/pathguide/pkg/scene"
	"github.com/dgranger/pathguide/pkg/sdtree"
)

// TileTask represents one tile's worth of rendering for a single iteration.
type TileTask struct {
	Tile       *Tile
	Iteration  int
	Spp        int
	NeeActive  bool
	TaskID     int
	PixelStats [][]PixelStats // shared pixel stats array to write to
}

// TileResult contains the result from rendering a tile
type TileResult struct {
	TaskID int
	Error  error
}

// WorkerPool manages parallel tile rendering
type WorkerPool struct {
	taskQueue   chan TileTask
	resultQueue chan TileResult
	workers     []*Worker
	numWorkers  int
	wg          sync.WaitGroup
}

// Worker handles individual tile rendering tasks
type Worker struct {
	ID          int
	raytracer   *GuidedRaytracer
	taskQueue   chan TileTask
	resultQueue chan TileResult
	ctx         context.Context
}

// NewWorkerPool creates a worker pool whose workers all share one
// GuidedRaytracer bound to the given scene, STree and retained-path buffer.
func NewWorkerPool(ctx context.Context, scene *sc.Scene, width, height, tileSize, maxDepth int, tree *sdtree.STree, buf *replay.Buffer, cfg guiding.Config, numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	maxTiles := ((width + tileSize - 1) / tileSize) * ((height + tileSize - 1) / tileSize)

	wp := &WorkerPool{
		taskQueue:   make(chan TileTask, maxTiles),
		resultQueue: make(chan TileResult, maxTiles),
		numWorkers:  numWorkers,
	}

	raytracer := NewGuidedRaytracer(scene, tree, buf, cfg, width, height, maxDepth)
	for i := 0; i < numWorkers; i++ {
		worker := &Worker{
			ID:          i,
			raytracer:   raytracer,
			taskQueue:   wp.taskQueue,
			resultQueue: wp.resultQueue,
			ctx:         ctx,
		}
		wp.workers = append(wp.workers, worker)
	}

	return wp
}

// Start begins all workers
func (wp *WorkerPool) Start() {
	for _, worker := range wp.workers {
		wp.wg.Add(1)
		go worker.run(&wp.wg)
	}
}

// Stop gracefully shuts down all workers
func (wp *WorkerPool) Stop() {
	close(wp.taskQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
}

// SubmitTask submits a tile task to the worker pool
func (wp *WorkerPool) SubmitTask(task TileTask) {
	wp.taskQueue <- task
}

// GetResult retrieves a completed tile result
func (wp *WorkerPool) GetResult() (TileResult, bool) {
	result, ok := <-wp.resultQueue
	return result, ok
}

// GetNumWorkers returns the number of workers in the pool
func (wp *WorkerPool) GetNumWorkers() int {
	return wp.numWorkers
}

// run is the main worker loop
func (w *Worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range w.taskQueue {
		bounds := task.Tile.Bounds
		var firstErr error

		for y := bounds.Min.Y; y < bounds.Max.Y && firstErr == nil; y++ {
			for x := bounds.Min.X; x < bounds.Max.X && firstErr == nil; x++ {
				for s := 0; s < task.Spp; s++ {
					sample, err := w.raytracer.RenderPixel(w.ctx, x, y, task.Tile.Random, task.Iteration, task.NeeActive, s, task.Spp)
					if err != nil {
						firstErr = err
						break
					}
					task.PixelStats[y][x].AddSample(core.NewVec3(sample.R, sample.G, sample.B))
				}
			}
		}

		w.resultQueue <- TileResult{TaskID: task.TaskID, Error: firstErr}
	}
}
