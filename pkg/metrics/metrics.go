// Package metrics exposes Prometheus instrumentation for a running guiding
// controller. It is purely observational: nothing here is read back by
// guiding math, only scraped by whoever embeds the controller in a service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pixelVariance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pathguide_pixel_variance",
		Help: "Estimated per-pixel luminance variance at the end of the last iteration",
	})

	sTreeNodeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pathguide_stree_node_count",
		Help: "Current number of nodes in the spatial binary tree",
	})

	activePathFraction = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pathguide_active_path_fraction",
		Help: "Fraction of retained paths still active after the last replay pass",
	})

	majorizingFactor = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pathguide_majorizing_factor",
		Help:    "Distribution of per-vertex majorizing ratios computed during reject-only path replay",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	iterationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pathguide_iteration_duration_seconds",
		Help:    "Wall-clock duration of a single guiding iteration",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"phase"})
)

// ObservePixelVariance records the iteration-end variance estimate.
func ObservePixelVariance(v float64) {
	pixelVariance.Set(v)
}

// ObserveSTreeNodeCount records the STree's current node count.
func ObserveSTreeNodeCount(n int) {
	sTreeNodeCount.Set(float64(n))
}

// ObserveActivePathFraction records the fraction of retained paths that
// survived the last replay pass.
func ObserveActivePathFraction(activeCount, totalCount int) {
	if totalCount == 0 {
		activePathFraction.Set(0)
		return
	}
	activePathFraction.Set(float64(activeCount) / float64(totalCount))
}

// ObserveMajorizingFactor records one replayed vertex's majorizing ratio
// (new over old bounded mixture pdf) from a reject-only replay pass.
func ObserveMajorizingFactor(a float64) {
	majorizingFactor.Observe(a)
}

// ObserveIterationPhase records how long a named phase of an iteration
// (refine, reset, replay, render, build) took.
func ObserveIterationPhase(phase string, seconds float64) {
	iterationDuration.WithLabelValues(phase).Observe(seconds)
}
