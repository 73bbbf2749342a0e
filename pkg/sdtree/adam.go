package sdtree

import "math"

// AdamOptimizer is a scalar Adam gradient-descent state, batched by
// statistical weight before each step is taken. It is used to learn the
// logistic BSDF-vs-guiding mixing fraction per spatial leaf.
//
// Hyperparameters and the final clamp to [-20, 20] match the reference
// guiding implementation's AdamOptimizer class.
type AdamOptimizer struct {
	learningRate float64
	batchSize    float64
	epsilon      float64
	beta1        float64
	beta2        float64

	iteration           int
	firstMoment         float64
	secondMoment        float64
	variable            float64
	batchGradient       float64
	batchAccumulation   float64
}

// NewAdamOptimizer returns an optimizer with the reference defaults
// (batchSize=1, epsilon=1e-8, beta1=0.9, beta2=0.999) at the given learning
// rate.
func NewAdamOptimizer(learningRate float64) *AdamOptimizer {
	return &AdamOptimizer{
		learningRate: learningRate,
		batchSize:    1,
		epsilon:      1e-08,
		beta1:        0.9,
		beta2:        0.999,
	}
}

// Append accumulates a weighted gradient sample; once the accumulated
// statistical weight exceeds batchSize, a step is taken and the batch resets.
func (a *AdamOptimizer) Append(gradient, statisticalWeight float64) {
	a.batchGradient += gradient * statisticalWeight
	a.batchAccumulation += statisticalWeight
	if a.batchAccumulation > a.batchSize {
		a.step(a.batchGradient / a.batchAccumulation)
		a.batchGradient = 0
		a.batchAccumulation = 0
	}
}

func (a *AdamOptimizer) step(gradient float64) {
	a.iteration++
	a.firstMoment = a.beta1*a.firstMoment + (1-a.beta1)*gradient
	a.secondMoment = a.beta2*a.secondMoment + (1-a.beta2)*gradient*gradient

	biasCorrectedFirst := a.firstMoment / (1 - math.Pow(a.beta1, float64(a.iteration)))
	biasCorrectedSecond := a.secondMoment / (1 - math.Pow(a.beta2, float64(a.iteration)))

	a.variable -= a.learningRate * biasCorrectedFirst / (math.Sqrt(biasCorrectedSecond) + a.epsilon)
	a.variable = math.Min(math.Max(a.variable, -20), 20)
}

// Variable returns the current (clamped) optimized scalar.
func (a *AdamOptimizer) Variable() float64 { return a.variable }
