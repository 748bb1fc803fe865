//
// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package noise

import (
	"fmt"
	"math"

	"github.com/google/continual-dp/checks"
	"github.com/google/continual-dp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// granularityParam determines the resolution of the numerical noise that is
	// being generated relative to the L_1 sensitivity and privacy parameter epsilon.
	// More precisely, the granularity parameter corresponds to the value 2ᵏ described in
	// https://github.com/google/differential-privacy/blob/main/common_docs/Secure_Noise_Generation.pdf.
	// Larger values result in more fine grained noise, but increase the chance of
	// sampling inaccuracies due to overflows. The probability of an overflow is less
	// than 2⁻¹⁰⁰⁰, if the granularity parameter is set to a value of 2⁴⁰ or less and
	// the epsilon passed to the sampler is at least 2⁻⁵⁰.
	//
	// This parameter should be a power of 2.
	granularityParam = math.Exp2(40)
)

// LaplaceGenerator draws Laplace noise through a geometric sampling mechanism
// that is robust against unintentional privacy leaks due to artifacts of
// floating point arithmetic. See
// https://github.com/google/differential-privacy/blob/main/common_docs/Secure_Noise_Generation.pdf
// for more information.
//
// Tree-node samples with δ > 0 fall back to Gaussian noise calibrated per
// tree level.
type LaplaceGenerator struct {
	epsilon     float64
	delta       float64
	timeHorizon int64
	dimension   int
}

// LaplaceGeneratorOptions contains the options necessary to initialize a
// LaplaceGenerator.
type LaplaceGeneratorOptions struct {
	Epsilon     float64 // Privacy parameter ε. Required.
	Delta       float64 // Privacy parameter δ, consumed by tree-node samples. Must be in [0, 1).
	TimeHorizon int64   // Total number of time steps of the release sequence. Required.
	Dimension   int     // Shape of the emitted noise values. Defaults to 1.
}

// NewLaplaceGenerator returns a new LaplaceGenerator for the given run-scoped
// privacy configuration.
func NewLaplaceGenerator(opt *LaplaceGeneratorOptions) (*LaplaceGenerator, error) {
	if opt == nil {
		opt = &LaplaceGeneratorOptions{} // Prevents panicking due to a nil pointer dereference.
	}
	dim := opt.Dimension
	if dim == 0 {
		dim = 1
	}
	if err := checks.CheckEpsilonVeryStrict(opt.Epsilon); err != nil {
		return nil, fmt.Errorf("NewLaplaceGenerator: %w", err)
	}
	if err := checks.CheckDelta(opt.Delta); err != nil {
		return nil, fmt.Errorf("NewLaplaceGenerator: %w", err)
	}
	if err := checks.CheckTimeHorizon(opt.TimeHorizon); err != nil {
		return nil, fmt.Errorf("NewLaplaceGenerator: %w", err)
	}
	if err := checks.CheckDimension(dim); err != nil {
		return nil, fmt.Errorf("NewLaplaceGenerator: %w", err)
	}
	return &LaplaceGenerator{
		epsilon:     opt.Epsilon,
		delta:       opt.Delta,
		timeHorizon: opt.TimeHorizon,
		dimension:   dim,
	}, nil
}

// Laplacian returns a fresh sample with scale l1Sensitivity/epsilon in every
// coordinate.
func (g *LaplaceGenerator) Laplacian(epsilon, l1Sensitivity float64) (Value, error) {
	if err := checkArgsLaplace(epsilon, l1Sensitivity); err != nil {
		return nil, fmt.Errorf("Laplacian: %w", err)
	}
	res := Zeros(g.dimension)
	for i := range res {
		res[i] = addLaplace(0, epsilon, l1Sensitivity)
	}
	return res, nil
}

// TreeNoise returns a fresh sample for a single node of the binary tree
// mechanism over the given time horizon. The per-release budget is divided
// evenly over the ⌈log₂ timeHorizon⌉ tree levels a single release composes
// over. With δ = 0 each node carries Laplace noise at the per-level budget;
// with δ > 0 each node carries Gaussian noise with the standard analytic
// calibration at the per-level (ε, δ).
func (g *LaplaceGenerator) TreeNoise(epsilon, delta float64, timeHorizon int64) (Value, error) {
	if err := checks.CheckEpsilonStrict(epsilon); err != nil {
		return nil, fmt.Errorf("TreeNoise: %w", err)
	}
	if err := checks.CheckDelta(delta); err != nil {
		return nil, fmt.Errorf("TreeNoise: %w", err)
	}
	if err := checks.CheckTimeHorizon(timeHorizon); err != nil {
		return nil, fmt.Errorf("TreeNoise: %w", err)
	}
	levels := math.Ceil(math.Log2(float64(timeHorizon)))
	if levels < 1 {
		levels = 1
	}
	epsilonLevel := epsilon / levels
	if delta == 0 {
		return g.Laplacian(epsilonLevel, 1)
	}
	deltaLevel := delta / levels
	sigma := math.Sqrt(2*math.Log(1.25/deltaLevel)) / epsilonLevel
	dist := distuv.Normal{Mu: 0, Sigma: sigma}
	res := Zeros(g.dimension)
	for i := range res {
		res[i] = dist.Rand()
	}
	return res, nil
}

// Zeros returns the additive identity of the generator's value shape.
func (g *LaplaceGenerator) Zeros() Value {
	return Zeros(g.dimension)
}

// Kind identifies the generator's distribution.
func (g *LaplaceGenerator) Kind() Kind {
	return LaplaceNoise
}

// Epsilon returns the privacy parameter ε the generator was constructed with.
func (g *LaplaceGenerator) Epsilon() float64 {
	return g.epsilon
}

// Delta returns the privacy parameter δ the generator was constructed with.
func (g *LaplaceGenerator) Delta() float64 {
	return g.delta
}

// TimeHorizon returns the length of the release sequence.
func (g *LaplaceGenerator) TimeHorizon() int64 {
	return g.timeHorizon
}

// Dimension returns the shape of the emitted noise values.
func (g *LaplaceGenerator) Dimension() int {
	return g.dimension
}

func checkArgsLaplace(epsilon, l1Sensitivity float64) error {
	if err := checks.CheckEpsilonVeryStrict(epsilon); err != nil {
		return err
	}
	return checks.CheckL1Sensitivity(l1Sensitivity)
}

// addLaplace adds Laplace noise scaled to the given epsilon and l1Sensitivity
// to the specified float64. The noise is drawn on a discrete grid whose
// granularity hides floating point artifacts of the sampling arithmetic.
func addLaplace(x, epsilon, l1Sensitivity float64) float64 {
	granularity := ceilPowerOfTwo((l1Sensitivity / epsilon) / granularityParam)
	sample := twoSidedGeometric(granularity * epsilon / (l1Sensitivity + granularity))
	return roundToMultipleOfPowerOfTwo(x, granularity) + float64(sample)*granularity
}

// geometric draws a sample drawn from a geometric distribution with parameter
//
//	p = 1 - e^-λ.
//
// More precisely, it returns the number of Bernoulli trials until the first success
// where the success probability is p = 1 - e^-λ. The returned sample is truncated
// to the max int64 value.
//
// Note that to ensure that a truncation happens with probability less than 10⁻⁶,
// λ must be greater than 2⁻⁵⁹.
func geometric(lambda float64) int64 {
	// Return truncated sample in the case that the sample exceeds the max int64.
	if rand.Uniform() > -1.0*math.Expm1(-1.0*lambda*math.MaxInt64) {
		return math.MaxInt64
	}

	// Perform a binary search for the sample in the interval from 1 to max int64.
	// Each iteration splits the interval in two and randomly keeps either the
	// left or the right subinterval depending on the respective probability of
	// the sample being contained in them. The search ends once the interval only
	// contains a single sample.
	var left int64 = 0              // exclusive bound
	var right int64 = math.MaxInt64 // inclusive bound

	for left+1 < right {
		// Compute a midpoint that divides the probability mass of the current interval
		// approximately evenly between the left and right subinterval. The resulting
		// midpoint will be less or equal to the arithmetic mean of the interval. This
		// reduces the expected number of iterations of the binary search compared to a
		// search that uses the arithmetic mean as a midpoint. The speed up is more
		// pronounced the higher the success probability p is.
		mid := left - int64(math.Floor((math.Log(0.5)+math.Log1p(math.Exp(lambda*float64(left-right))))/lambda))
		// Ensure that mid is contained in the search interval. This is a safeguard to
		// account for potential mathematical inaccuracies due to finite precision arithmetic.
		if mid <= left {
			mid = left + 1
		} else if mid >= right {
			mid = right - 1
		}

		// Probability that the sample is at most mid, i.e.,
		//   q = Pr[X ≤ mid | left < X ≤ right]
		// where X denotes the sample. The value of q should be approximately one half.
		q := math.Expm1(lambda*float64(left-mid)) / math.Expm1(lambda*float64(left-right))
		if rand.Uniform() <= q {
			right = mid
		} else {
			left = mid
		}
	}
	return right
}

// twoSidedGeometric draws a sample from a geometric distribution that is
// mirrored at 0. The non-negative part of the distribution's PDF matches
// the PDF of a geometric distribution of parameter p = 1 - e^-λ that is
// shifted to the left by 1 and scaled accordingly.
func twoSidedGeometric(lambda float64) int64 {
	var sample int64 = 0
	var sign int64 = -1
	// Keep a sample of 0 only if the sign is positive. Otherwise, the
	// probability of 0 would be twice as high as it should be.
	for sample == 0 && sign == -1 {
		sample = geometric(lambda) - 1
		sign = int64(rand.Sign())
	}
	return sample * sign
}
