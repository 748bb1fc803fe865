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

// Package noise contains noise generators for continual release under
// differential privacy.
package noise

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Kind is an enum type. Its values are the supported noise distribution types
// for continual release mechanisms.
type Kind int

// Noise distributions used to achieve differential privacy.
const (
	LaplaceNoise Kind = iota
	ZeroNoise
	Unrecognised
)

func (k Kind) String() string {
	switch k {
	case LaplaceNoise:
		return "Laplace"
	case ZeroNoise:
		return "Zero"
	}
	return "Unrecognised"
}

// Value is a noise value of fixed shape: one float64 per coordinate. A
// scalar mechanism uses a Value of dimension 1; parameter-level mechanisms
// use the dimension of the protected parameter vector.
type Value []float64

// Zeros returns the additive identity Value of the given dimension.
func Zeros(dimension int) Value {
	return make(Value, dimension)
}

// Dimension returns the number of coordinates of v.
func (v Value) Dimension() int {
	return len(v)
}

// Clone returns a copy of v that shares no storage with it.
func (v Value) Clone() Value {
	res := make(Value, len(v))
	copy(res, v)
	return res
}

// Plus returns the elementwise sum of v and w as a newly allocated Value.
// The two values must have the same shape; callers that accept values from
// outside the package are expected to have validated the shape already.
func (v Value) Plus(w Value) Value {
	res := v.Clone()
	floats.Add(res, w)
	return res
}

// CheckShape returns an error if v does not have the given dimension.
func (v Value) CheckShape(dimension int) error {
	if len(v) != dimension {
		return fmt.Errorf("noise value has dimension %d, want %d", len(v), dimension)
	}
	return nil
}

// Generator produces noise samples for a continual release mechanism. A
// Generator is stateless beyond its configured privacy parameters (ε, δ),
// the time horizon T of the release sequence and the shape of the values it
// emits; consecutive samples are independent.
type Generator interface {
	// Laplacian returns a fresh sample of Laplace noise with scale
	// l1Sensitivity/epsilon in every coordinate.
	Laplacian(epsilon, l1Sensitivity float64) (Value, error)

	// TreeNoise returns a fresh sample calibrated for a single node of the
	// binary tree mechanism running over the given time horizon, such that
	// the mechanism as a whole is (epsilon, delta)-differentially private
	// across the horizon.
	TreeNoise(epsilon, delta float64, timeHorizon int64) (Value, error)

	// Zeros returns the additive identity of the generator's value shape.
	Zeros() Value

	// Kind identifies the distribution the generator samples from.
	Kind() Kind

	// Epsilon, Delta and TimeHorizon expose the run-scoped privacy
	// configuration the generator was constructed with.
	Epsilon() float64
	Delta() float64
	TimeHorizon() int64

	// Dimension is the shape of the values the generator emits.
	Dimension() int
}
