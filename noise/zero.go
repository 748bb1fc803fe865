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

type zero struct {
	timeHorizon int64
	dimension   int
}

// Zero returns a Generator whose samples are always the additive identity.
// It is the noise-free baseline of the mechanism and is also useful for
// deterministic tests of release machinery that consumes a Generator.
func Zero(timeHorizon int64, dimension int) Generator {
	if dimension < 1 {
		dimension = 1
	}
	return zero{timeHorizon: timeHorizon, dimension: dimension}
}

func (z zero) Laplacian(_, _ float64) (Value, error) {
	return Zeros(z.dimension), nil
}

func (z zero) TreeNoise(_, _ float64, _ int64) (Value, error) {
	return Zeros(z.dimension), nil
}

func (z zero) Zeros() Value {
	return Zeros(z.dimension)
}

func (z zero) Kind() Kind {
	return ZeroNoise
}

func (z zero) Epsilon() float64 {
	return 0
}

func (z zero) Delta() float64 {
	return 0
}

func (z zero) TimeHorizon() int64 {
	return z.timeHorizon
}

func (z zero) Dimension() int {
	return z.dimension
}
