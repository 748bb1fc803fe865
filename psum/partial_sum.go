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
	"fmt"

	"github.com/google/continual-dp/noise"
)

// PartialSum is an accumulated noise value covering a contiguous block of
// Size time steps beginning at step Start. Partial sums are immutable: every
// consolidation produces a new PartialSum replacing the old one in the store.
type PartialSum struct {
	Start int64
	Size  int64
	Noise noise.Value
}

// Precedes reports whether p and q are adjacent and mergeable, i.e. whether
// they tile a contiguous range of time steps with q immediately after p.
func (p PartialSum) Precedes(q PartialSum) bool {
	return p.Start+p.Size == q.Start
}

// prevStart returns the start an equally sized partial sum would need so
// that it tiles the range immediately before p. The tree-like strategies
// probe this key for their merge step.
func (p PartialSum) prevStart() int64 {
	return p.Start - p.Size
}

func (p PartialSum) String() string {
	return fmt.Sprintf("PartialSum(start=%d, size=%d)", p.Start, p.Size)
}
