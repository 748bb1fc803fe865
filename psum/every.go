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

package psum

import (
	"github.com/google/continual-dp/noise"
)

// everyConsolidator draws an independent full-budget noise sample on every
// step and collapses all partial sums into one running sum at StartTime.
// Storage stays O(1) while the accumulated error grows linearly with the
// number of elapsed steps.
type everyConsolidator struct{}

func (everyConsolidator) sample(s *Store, _ int64) (noise.Value, error) {
	g := s.generator
	return g.Laplacian(g.Epsilon(), 1)
}

func (everyConsolidator) consolidate(s *Store, time int64) error {
	total := s.generator.Zeros()
	for _, start := range s.sortedStarts() {
		total = total.Plus(s.store[start].Noise)
		delete(s.store, start)
	}
	s.store[StartTime] = PartialSum{Start: StartTime, Size: time, Noise: total}
	return nil
}
