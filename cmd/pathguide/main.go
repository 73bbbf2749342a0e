// Command pathguide renders a scene with SD-tree guided path tracing,
// driving pkg/guiding.Controller through its iteration sequence and writing
// the combined image to a PNG file.
package main

import (
	"context"
	"fmt"
	"image/png"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/dgranger/pathguide/pkg/dump"
	"github.com/dgranger/pathguide/pkg/guiding"
	"github.com/dgranger/pathguide/pkg/logging"
	"github.com/dgranger/pathguide/pkg/metrics"
	"github.com/dgranger/pathguide/pkg/renderer"
	"github.com/dgranger/pathguide/pkg/replay"
	"github.com/dgranger/pathguide/pkg/scene"
	"github.com/dgranger/pathguide/pkg/sdtree"
)

var logger = logging.New("pathguide")

func main() {
	app := cli.NewApp()
	app.Name = "pathguide"
	app.Usage = "render a scene with SD-tree guided path tracing"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "width", Value: 400, Usage: "image width in pixels"},
		cli.IntFlag{Name: "height", Value: 400, Usage: "image height in pixels"},
		cli.StringFlag{Name: "out, o", Value: "render.png", Usage: "output PNG filename"},
		cli.Float64Flag{Name: "budget", Value: 256, Usage: "render budget (spp, or seconds if --budget-seconds)"},
		cli.BoolFlag{Name: "budget-seconds", Usage: "treat --budget as wall-clock seconds instead of spp"},
		cli.IntFlag{Name: "spp-per-pass", Value: 4, Usage: "samples per pixel per pass; scales the STree subdivision threshold (iteration sample counts do not depend on it)"},
		cli.Float64Flag{Name: "stree-threshold", Value: 12000, Usage: "STree subdivision threshold"},
		cli.Float64Flag{Name: "dtree-threshold", Value: 0.01, Usage: "DTree subdivision threshold"},
		cli.Float64Flag{Name: "bsdf-sampling-fraction", Value: 0.5, Usage: "initial BSDF/DTree mixing fraction"},
		cli.Float64Flag{Name: "sdtree-max-memory-mb", Value: -1, Usage: "SD-tree memory cap in MB, -1 disables"},
		cli.StringFlag{Name: "nee", Value: "kickstart", Usage: "next-event estimation policy: never, kickstart, always"},
		cli.StringFlag{Name: "combine", Value: "automatic", Usage: "sample combination policy: discard, automatic, inverse-variance"},
		cli.StringFlag{Name: "strategy", Value: "reweight", Usage: "path replay strategy: reweight, reject, reject-reweight, reject-augment, reweight-augment, augment"},
		cli.IntFlag{Name: "strat-iter-active", Value: 0, Usage: "last iteration index at which retained-path replay runs"},
		cli.IntFlag{Name: "render-iterations", Value: -1, Usage: "iteration budget for retained-path replay, -1 disables"},
		cli.BoolFlag{Name: "static-stree", Usage: "disable STree subdivision across iterations"},
		cli.BoolFlag{Name: "dump-sdtree", Usage: "write a binary SD-tree dump alongside the rendered image"},
		cli.StringFlag{Name: "dump-path", Value: "sdtree.dump", Usage: "filename for the SD-tree dump"},
		cli.BoolFlag{Name: "verbose, v", Usage: "enable debug logging"},
		cli.IntFlag{Name: "metrics-port", Value: 0, Usage: "if nonzero, serve Prometheus metrics on this port for the run's duration"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Bool("verbose") {
		logging.SetLevel(logging.Debug)
	}

	if port := c.Int("metrics-port"); port != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warningf("metrics server stopped: %v", err)
			}
		}()
		logger.Noticef("serving metrics on %s/metrics", addr)
	}

	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}

	width, height := c.Int("width"), c.Int("height")
	sc := scene.NewCornellScene()

	controller, err := guiding.NewController(cfg, sc.AABB())
	if err != nil {
		return fmt.Errorf("building controller: %w", err)
	}

	passRunner := renderer.NewGuidedPassRunner(
		sc, width, height, renderer.DefaultGuidedPassRunnerConfig(),
		controller.Tree(), controller.PathBuffer(), cfg, renderer.NewDefaultLogger(),
	)

	ctx := context.Background()
	start := time.Now()
	iter := 0
	for {
		iterStart := time.Now()
		final, err := controller.RunIteration(ctx, passRunner)
		metrics.ObserveIterationPhase("run_iteration", time.Since(iterStart).Seconds())
		if err != nil {
			return fmt.Errorf("iteration %d: %w", iter, err)
		}
		metrics.ObserveSTreeNodeCount(controller.Tree().NumNodes())
		activeCount, totalCount := pathBufferStats(controller.PathBuffer())
		metrics.ObserveActivePathFraction(activeCount, totalCount)
		iter++
		if final {
			break
		}
	}
	renderTime := time.Since(start)

	final := controller.FinalImage()
	metrics.ObservePixelVariance(final.Variance)

	out := renderer.RenderToImage(final)
	f, err := os.Create(c.String("out"))
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		return fmt.Errorf("writing PNG: %w", err)
	}

	if c.Bool("dump-sdtree") {
		if err := writeDump(c.String("dump-path"), sc, controller.Tree()); err != nil {
			logger.Warningf("SD-tree dump failed: %v", err)
		}
	}

	printSummary(iter, renderTime, final, renderer.CalculateAverageLuminance(out))
	return nil
}

func pathBufferStats(buf *replay.Buffer) (active, total int) {
	total = buf.Len()
	buf.ForEachActive(func(*replay.RPath) { active++ })
	return active, total
}

func writeDump(path string, sc *scene.Scene, tree *sdtree.STree) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cam, err := dump.NewCameraToWorld([4][4]float64{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	})
	if err != nil {
		return err
	}
	return dump.WriteSDTree(f, cam, tree)
}

func printSummary(iterations int, renderTime time.Duration, img guiding.IterationImage, avgLuminance float64) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"metric", "value"})
	table.Append([]string{"iterations", fmt.Sprintf("%d", iterations)})
	table.Append([]string{"render time", renderTime.Round(time.Millisecond).String()})
	table.Append([]string{"resolution", fmt.Sprintf("%dx%d", img.Width, img.Height)})
	table.Append([]string{"samples per pixel", fmt.Sprintf("%d", img.Samples)})
	table.Append([]string{"final variance", fmt.Sprintf("%.6f", img.Variance)})
	table.Append([]string{"average luminance", fmt.Sprintf("%.4f", avgLuminance)})
	table.Render()
}

func configFromFlags(c *cli.Context) (guiding.Config, error) {
	cfg := guiding.DefaultConfig()

	cfg.Budget = c.Float64("budget")
	if c.Bool("budget-seconds") {
		cfg.BudgetType = guiding.BudgetSeconds
	}
	cfg.SppPerPass = c.Int("spp-per-pass")
	cfg.STreeThreshold = c.Float64("stree-threshold")
	cfg.DTreeThreshold = c.Float64("dtree-threshold")
	cfg.BsdfSamplingFraction = c.Float64("bsdf-sampling-fraction")
	cfg.SDTreeMaxMemoryMB = c.Float64("sdtree-max-memory-mb")
	cfg.StratIterActive = c.Int("strat-iter-active")
	cfg.RenderIterations = c.Int("render-iterations")
	cfg.StaticSTree = c.Bool("static-stree")
	cfg.DumpSDTree = c.Bool("dump-sdtree")

	switch c.String("nee") {
	case "never":
		cfg.NEE = guiding.NeeNever
	case "always":
		cfg.NEE = guiding.NeeAlways
	case "kickstart":
		cfg.NEE = guiding.NeeKickstart
	default:
		return cfg, fmt.Errorf("unknown --nee value %q", c.String("nee"))
	}

	switch c.String("combine") {
	case "discard":
		cfg.SampleCombination = guiding.CombineDiscard
	case "automatic":
		cfg.SampleCombination = guiding.CombineAutomatic
	case "inverse-variance":
		cfg.SampleCombination = guiding.CombineInverseVariance
	default:
		return cfg, fmt.Errorf("unknown --combine value %q", c.String("combine"))
	}

	switch c.String("strategy") {
	case "reweight":
		cfg.Strategy = replay.Reweight
	case "reject":
		cfg.Strategy = replay.Reject
	case "reject-reweight":
		cfg.Strategy = replay.RejectReweight
	case "reject-augment":
		cfg.Strategy = replay.RejectAugment
	case "reweight-augment":
		cfg.Strategy = replay.ReweightAugment
	case "augment":
		cfg.Strategy = replay.Augment
	default:
		return cfg, fmt.Errorf("unknown --strategy value %q", c.String("strategy"))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
