package guiding

import (
	"errors"

	"github.com/dgranger/pathguide/pkg/replay"
	"github.com/dgranger/pathguide/pkg/sdtree"
)

// ErrInvalidConfig is returned when a Config's enum fields don't resolve to
// a known value; construction is refused rather than silently defaulting.
var ErrInvalidConfig = errors.New("guiding: invalid configuration")

// NEEPolicy selects when next-event estimation runs.
type NEEPolicy int

const (
	NeeNever NEEPolicy = iota
	NeeKickstart
	NeeAlways
)

// SampleCombination selects how per-iteration images are combined into the
// final estimate.
type SampleCombination int

const (
	CombineDiscard SampleCombination = iota
	CombineAutomatic
	CombineInverseVariance
)

// BudgetType selects what RenderIterations counts against.
type BudgetType int

const (
	BudgetSPP BudgetType = iota
	BudgetSeconds
)

// Config holds every tunable surfaced by cmd/pathguide, one field per CLI
// flag, mirroring the flat field-per-flag shape of the teacher's
// ProgressiveConfig.
type Config struct {
	NEE                      NEEPolicy
	SampleCombination        SampleCombination
	SpatialFilter            sdtree.SpatialFilter
	DirectionalFilter        sdtree.DirectionalFilter
	BsdfSamplingFractionLoss sdtree.BsdfSamplingFractionLoss

	SDTreeMaxMemoryMB    float64 // -1 disables the cap
	STreeThreshold       float64 // default 12000
	DTreeThreshold       float64 // default 0.01
	BsdfSamplingFraction float64 // default 0.5
	SppPerPass           int     // default 4

	BudgetType BudgetType
	Budget     float64

	DumpSDTree bool

	Strategy replay.ReplayStrategy

	StratIterActive       int // last iteration index at which reuse is applied
	LastStrategyIteration int
	RenderIterations      int
	StaticSTree           bool
}

// DefaultConfig returns the reference defaults named in §6.
func DefaultConfig() Config {
	return Config{
		NEE:                      NeeKickstart,
		SampleCombination:        CombineAutomatic,
		SpatialFilter:            sdtree.SpatialNearest,
		DirectionalFilter:        sdtree.FilterNearest,
		BsdfSamplingFractionLoss: sdtree.LossNone,
		SDTreeMaxMemoryMB:        -1,
		STreeThreshold:           12000,
		DTreeThreshold:           0.01,
		BsdfSamplingFraction:     0.5,
		SppPerPass:               4,
		BudgetType:               BudgetSPP,
		Budget:                   256,
		Strategy:                 replay.Reweight,
		RenderIterations:         -1,
	}
}

// Validate checks enum fields resolve to known values. Construction-time
// fatal assertion: the core refuses to start on an unrecognized option
// rather than silently defaulting.
func (c Config) Validate() error {
	switch c.NEE {
	case NeeNever, NeeKickstart, NeeAlways:
	default:
		return ErrInvalidConfig
	}
	switch c.SampleCombination {
	case CombineDiscard, CombineAutomatic, CombineInverseVariance:
	default:
		return ErrInvalidConfig
	}
	switch c.BudgetType {
	case BudgetSPP, BudgetSeconds:
	default:
		return ErrInvalidConfig
	}
	switch c.Strategy {
	case replay.Reweight, replay.Reject, replay.RejectReweight, replay.RejectAugment, replay.ReweightAugment, replay.Augment:
	default:
		return ErrInvalidConfig
	}
	if c.SppPerPass <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// neeActiveAt reports whether NEE should fire for an iteration that has
// already rendered sppRendered samples per pixel: kickstart mode turns off
// once SPP reaches 128.
func (c Config) neeActiveAt(sppRendered int) bool {
	switch c.NEE {
	case NeeNever:
		return false
	case NeeAlways:
		return true
	case NeeKickstart:
		return sppRendered < 128
	default:
		return false
	}
}
