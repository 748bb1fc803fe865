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

// Strategy is an enum type. Its values are the supported consolidation
// strategies of the partial sum store. Each strategy is a distinct point in
// the accuracy/storage/budget-composition design space of continual release.
type Strategy int

// Consolidation strategies for partial sum stores.
const (
	UnrecognisedStrategy Strategy = iota
	// Once spends the entire privacy budget on the first step and reuses
	// that single draw in every release. O(1) storage.
	Once
	// Every spends a full per-step budget on every step and accumulates all
	// draws into one running sum. O(1) storage, linear error growth.
	Every
	// Sqrt consolidates completed blocks of ⌊√T⌋ steps into one running
	// block-level sum. O(1) amortized storage with a ⌊√T⌋ transient tail.
	Sqrt
	// Tree is the binary mechanism: stored sizes always form the binary
	// decomposition of the elapsed step count. O(log T) storage and
	// composition.
	Tree
	// Hybrid combines the tree mechanism with full resets at power-of-two
	// boundaries.
	Hybrid
	// TwoLevel keeps exactly one single-level and one block-level running
	// entry. Strict O(1) storage.
	TwoLevel
)

var strategyNames = map[Strategy]string{
	Once:     "once",
	Every:    "every",
	Sqrt:     "sqrt",
	Tree:     "tree",
	Hybrid:   "hybrid",
	TwoLevel: "two-level",
}

func (st Strategy) String() string {
	if name, ok := strategyNames[st]; ok {
		return name
	}
	return "unrecognised"
}

// ParseStrategy converts a strategy name into a Strategy. Recognized names
// are "once", "every", "sqrt", "tree", "hybrid" and "two-level".
func ParseStrategy(name string) (Strategy, error) {
	for st, n := range strategyNames {
		if n == name {
			return st, nil
		}
	}
	return UnrecognisedStrategy, fmt.Errorf("ParseStrategy: unrecognised strategy %q", name)
}

// consolidator implements the per-strategy behavior of a store: how the
// noise of a newly added unit partial sum is sampled, and how the new entry
// is folded into the existing store.
type consolidator interface {
	// sample returns the noise for the unit partial sum to be inserted at
	// the given time step. It is called before the entry is inserted.
	sample(s *Store, time int64) (noise.Value, error)

	// consolidate folds the unit partial sum previously inserted at the
	// given time step into the store per the strategy's merge rule.
	consolidate(s *Store, time int64) error
}

func newConsolidator(st Strategy) (consolidator, error) {
	switch st {
	case Once:
		return onceConsolidator{}, nil
	case Every:
		return everyConsolidator{}, nil
	case Sqrt:
		return sqrtConsolidator{}, nil
	case Tree:
		return treeConsolidator{}, nil
	case Hybrid:
		return hybridConsolidator{}, nil
	case TwoLevel:
		return &twoLevelConsolidator{}, nil
	}
	return nil, fmt.Errorf("unrecognised strategy (%d)", st)
}

// isPowerOfTwo reports whether val is an exact power of two.
func isPowerOfTwo(val int64) bool {
	return val&(val-1) == 0 && val > 0
}
