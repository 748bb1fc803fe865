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

// sqrtConsolidator computes partial sums of either a block's size or of a
// single step. Whenever the last blockSize steps form a completed block, the
// block is consolidated with one fresh block-level draw, and all block-level
// noise is folded into a single running entry at StartTime for O(1) amortized
// storage. Incomplete tail blocks remain as individual unit entries, at most
// blockSize of them at any time.
//
// Block boundaries are aligned to absolute offsets from StartTime: the check
// for a completed block probes the entry exactly at time−blockSize+1, which
// assumes strictly consecutive integer time steps. If steps are skipped, the
// tail never consolidates.
type sqrtConsolidator struct{}

func (sqrtConsolidator) sample(s *Store, _ int64) (noise.Value, error) {
	g := s.generator
	return g.Laplacian(g.Epsilon(), 1)
}

func (sqrtConsolidator) consolidate(s *Store, time int64) error {
	blockStart := time - s.blockSize + 1
	if _, ok := s.store[blockStart]; !ok {
		return nil
	}
	for t := blockStart; t <= time; t++ {
		delete(s.store, t)
	}
	// The block-level draw accounts for two-step sensitivity, hence the
	// doubled epsilon.
	g := s.generator
	blockNoise, err := g.Laplacian(2*g.Epsilon(), 1)
	if err != nil {
		return err
	}
	if blockStart == StartTime {
		s.store[StartTime] = PartialSum{Start: StartTime, Size: s.blockSize, Noise: blockNoise}
		return nil
	}
	running := s.store[StartTime]
	s.store[StartTime] = PartialSum{
		Start: StartTime,
		Size:  running.Size + s.blockSize,
		Noise: running.Noise.Plus(blockNoise),
	}
	return nil
}
