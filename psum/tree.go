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

// treeConsolidator implements the binary mechanism for continual release.
// Instead of fixed-size blocks like the Sqrt strategy, it collapses partial
// sums into "power of two"-sized blocks by recursively combining equal-sized
// neighbors until none remain. After every add the stored sizes are exactly
// the powers of two of the binary decomposition of the elapsed step count,
// bounding both storage and per-release noise composition by O(log T).
type treeConsolidator struct{}

func (treeConsolidator) sample(s *Store, _ int64) (noise.Value, error) {
	g := s.generator
	return g.TreeNoise(g.Epsilon(), g.Delta(), g.TimeHorizon())
}

func (tc treeConsolidator) consolidate(s *Store, time int64) error {
	p := s.store[time]
	prev, ok := s.store[p.prevStart()]
	if !ok || prev.Size != p.Size {
		return nil
	}
	// Merging two equal-sized blocks replaces both draws with one fresh
	// sample representing the doubled block.
	g := s.generator
	merged, err := g.TreeNoise(g.Epsilon(), g.Delta(), g.TimeHorizon())
	if err != nil {
		return err
	}
	s.store[prev.Start] = PartialSum{Start: prev.Start, Size: 2 * p.Size, Noise: merged}
	delete(s.store, time)
	return tc.consolidate(s, prev.Start)
}
