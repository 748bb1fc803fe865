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
	"math"

	"github.com/google/continual-dp/noise"
)

// hybridConsolidator combines the tree mechanism with full resets at
// power-of-two boundaries. Half the per-step budget maintains a running
// "log-level" sum that absorbs the entire store whenever the elapsed time
// crosses a power of two; the other half runs the tree mechanism over the
// steps since the last reset, with the tree's horizon set to the current
// power-of-two window.
//
// The per-step scale divides by log2 of a horizon recomputed from the
// current step rather than a fixed schedule; this mirrors the reference
// mechanism and is pinned by the strategy's tests.
type hybridConsolidator struct{}

// window returns the largest power of two less than or equal to time.
func window(time int64) int64 {
	return int64(math.Exp2(math.Floor(math.Log2(float64(time)))))
}

func (hybridConsolidator) sample(s *Store, time int64) (noise.Value, error) {
	g := s.generator
	if isPowerOfTwo(time) {
		return g.Laplacian(g.Epsilon()/2, 1)
	}
	horizon := window(time)
	return g.Laplacian((g.Epsilon()/2)/math.Log2(float64(horizon)), 1)
}

func (hc hybridConsolidator) consolidate(s *Store, time int64) error {
	if time == StartTime {
		// The first step seeds the log level.
		return nil
	}
	if isPowerOfTwo(time) {
		// Reset: collapse the whole store into one log-level entry covering
		// every step so far.
		logLevel := s.store[StartTime]
		unit := s.store[time]
		merged := PartialSum{Start: StartTime, Size: time, Noise: logLevel.Noise.Plus(unit.Noise)}
		for _, start := range s.sortedStarts() {
			delete(s.store, start)
		}
		s.store[StartTime] = merged
		return nil
	}
	return hc.treeMerge(s, time)
}

// treeMerge runs the recursive equal-size merge of the Tree strategy, scoped
// to the entries added since the last reset. Merged blocks draw their fresh
// sample with the horizon of the current power-of-two window.
func (hc hybridConsolidator) treeMerge(s *Store, time int64) error {
	p := s.store[time]
	prev, ok := s.store[p.prevStart()]
	if !ok || prev.Size != p.Size {
		return nil
	}
	g := s.generator
	merged, err := g.TreeNoise(g.Epsilon(), g.Delta(), window(time))
	if err != nil {
		return err
	}
	s.store[prev.Start] = PartialSum{Start: prev.Start, Size: 2 * p.Size, Noise: merged}
	delete(s.store, time)
	return hc.treeMerge(s, prev.Start)
}
