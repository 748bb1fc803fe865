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

// twoLevelConsolidator maintains at most two live partial sums: one
// accumulating individual unit noises (the single level) and one
// accumulating completed-block noises (the block level). Whenever the single
// level reaches blockSize steps it is promoted: one fresh block-level draw
// replaces the accumulated unit noise and the single level is cleared.
// Storage is strictly O(1) with two-tier error.
type twoLevelConsolidator struct {
	// Start keys of the live entries; 0 marks an empty level.
	singleStart int64
	blockStart  int64
}

func (*twoLevelConsolidator) sample(s *Store, _ int64) (noise.Value, error) {
	g := s.generator
	return g.Laplacian(g.Epsilon(), 1)
}

func (tl *twoLevelConsolidator) consolidate(s *Store, time int64) error {
	// Fold the new unit partial sum into the single-level entry.
	unit := s.store[time]
	if tl.singleStart == 0 {
		tl.singleStart = time
	} else {
		single := s.store[tl.singleStart]
		s.store[tl.singleStart] = PartialSum{
			Start: single.Start,
			Size:  single.Size + 1,
			Noise: single.Noise.Plus(unit.Noise),
		}
		delete(s.store, time)
	}

	// Promote a completed single-level block into the block-level entry.
	single := s.store[tl.singleStart]
	if single.Size < s.blockSize {
		return nil
	}
	// The block-level draw protects the whole prefix it covers, so its
	// sensitivity is the last covered time index.
	g := s.generator
	lastCovered := single.Start + single.Size - 1
	blockNoise, err := g.Laplacian(2*g.Epsilon(), float64(lastCovered))
	if err != nil {
		return err
	}
	if tl.blockStart == 0 {
		delete(s.store, tl.singleStart)
		s.store[StartTime] = PartialSum{Start: StartTime, Size: single.Size, Noise: blockNoise}
		tl.blockStart = StartTime
	} else {
		block := s.store[tl.blockStart]
		delete(s.store, tl.singleStart)
		s.store[tl.blockStart] = PartialSum{
			Start: block.Start,
			Size:  block.Size + single.Size,
			Noise: block.Noise.Plus(blockNoise),
		}
	}
	tl.singleStart = 0
	return nil
}
