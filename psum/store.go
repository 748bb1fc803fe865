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

// Package psum maintains noisy partial sums for continually released
// differentially private running totals.
package psum

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"sort"

	log "github.com/golang/glog"
	"github.com/google/continual-dp/checks"
	"github.com/google/continual-dp/noise"
)

// StartTime is the time index of the first step of a release sequence.
const StartTime int64 = 1

// Store holds the noisy partial sums of one release sequence and folds every
// newly added unit partial sum into the existing structure per its
// consolidation strategy. The sum of all stored noises, added to the true
// running total by the embedder, yields the differentially private release
// for the current step.
//
// A Store assumes exactly one writer advancing time monotonically;
// concurrent use is out of contract. Not thread-safe.
type Store struct {
	// Parameters
	generator  noise.Generator
	strategy   Strategy
	blockSize  int64
	blockLevel bool

	// State variables
	store    map[int64]PartialSum
	lastTime int64
	cons     consolidator
}

// StoreOptions contains the options necessary to initialize a Store.
type StoreOptions struct {
	Generator noise.Generator // Source of the privacy noise. Required.
	Strategy  Strategy        // Consolidation strategy. Required.
	// Number of steps per consolidated block for the Sqrt and TwoLevel
	// strategies. Defaults to ⌊√T⌋ with T taken from the generator.
	BlockSize int64
	// Records whether this store tracks block-level values of the embedding
	// system. The store itself does not consume the flag; it is carried for
	// embedders and round-tripped through serialization.
	BlockLevel bool
}

// NewStore returns a new empty Store, configured with a fixed strategy and
// noise source for the lifetime of a run.
func NewStore(opt *StoreOptions) (*Store, error) {
	if opt == nil {
		opt = &StoreOptions{} // Prevents panicking due to a nil pointer dereference.
	}
	g := opt.Generator
	if g == nil {
		return nil, fmt.Errorf("NewStore: Generator must be set")
	}
	switch g.Kind() {
	case noise.LaplaceNoise, noise.ZeroNoise:
		// The consolidation strategies draw their per-step and block-level
		// noise through the Laplace sampling contract; the zero generator
		// satisfies it trivially.
	default:
		return nil, fmt.Errorf("NewStore: generator of kind %v is not supported, must be Laplace or Zero", g.Kind())
	}
	cons, err := newConsolidator(opt.Strategy)
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	blockSize := opt.BlockSize
	if blockSize == 0 {
		blockSize = int64(math.Sqrt(float64(g.TimeHorizon())))
		if blockSize < 1 {
			blockSize = 1
		}
	}
	if err := checks.CheckBlockSize(blockSize); err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	if opt.BlockSize != 0 && opt.Strategy != Sqrt && opt.Strategy != TwoLevel {
		log.Warningf("NewStore: BlockSize is set but the %v strategy does not consolidate fixed blocks", opt.Strategy)
	}
	return &Store{
		generator:  g,
		strategy:   opt.Strategy,
		blockSize:  blockSize,
		blockLevel: opt.BlockLevel,
		store:      make(map[int64]PartialSum),
		cons:       cons,
	}, nil
}

// Add inserts a new unit partial sum for the given time step and runs the
// strategy's consolidation. If n is nil, the store samples the step's noise
// internally per its strategy; a non-nil n is used verbatim and must have
// the generator's value shape.
//
// Time steps must be added in strictly increasing order beginning at
// StartTime; violations are programmer errors and fail fast.
func (s *Store) Add(time int64, n noise.Value) error {
	if s.lastTime == 0 && time != StartTime {
		return fmt.Errorf("Add: first time step is %d, must be %d", time, StartTime)
	}
	if time <= s.lastTime {
		return fmt.Errorf("Add: time step %d is not past the latest step %d, time must increase strictly", time, s.lastTime)
	}
	if _, ok := s.store[time]; ok {
		return fmt.Errorf("Add: a partial sum starting at %d is already stored", time)
	}
	if n == nil {
		var err error
		n, err = s.cons.sample(s, time)
		if err != nil {
			return fmt.Errorf("Add: %w", err)
		}
	} else if err := n.CheckShape(s.generator.Dimension()); err != nil {
		return fmt.Errorf("Add: %w", err)
	}
	s.store[time] = PartialSum{Start: time, Size: 1, Noise: n}
	s.lastTime = time
	if err := s.cons.consolidate(s, time); err != nil {
		return fmt.Errorf("Add: %w", err)
	}
	return nil
}

// Release returns the elementwise sum of the noise of all stored partial
// sums. An empty store yields the additive identity of the noise shape.
// Release never mutates the store and may be called any number of times.
func (s *Store) Release() noise.Value {
	total := s.generator.Zeros()
	for _, start := range s.sortedStarts() {
		total = total.Plus(s.store[start].Noise)
	}
	return total
}

// Len returns the number of partial sums currently stored.
func (s *Store) Len() int {
	return len(s.store)
}

// Sizes returns the sizes of all stored partial sums, ordered by their start
// time. Under the Tree strategy this is the binary decomposition of the
// elapsed step count.
func (s *Store) Sizes() []int64 {
	sizes := make([]int64, 0, len(s.store))
	for _, start := range s.sortedStarts() {
		sizes = append(sizes, s.store[start].Size)
	}
	return sizes
}

// BlockLevel reports whether the store was configured as block-level by its
// embedder.
func (s *Store) BlockLevel() bool {
	return s.blockLevel
}

// Strategy returns the store's consolidation strategy.
func (s *Store) Strategy() Strategy {
	return s.strategy
}

// sortedStarts returns the stored start keys in increasing order. Summation
// and size listings iterate in this order so that repeated calls are
// deterministic.
func (s *Store) sortedStarts() []int64 {
	starts := make([]int64, 0, len(s.store))
	for start := range s.store {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts
}

// encodableStore can be encoded by the gob package.
type encodableStore struct {
	Strategy   Strategy
	BlockSize  int64
	BlockLevel bool
	LastTime   int64
	Entries    []PartialSum

	// Generator configuration, sufficient to reconstruct the noise source
	// on decoding.
	NoiseKind   noise.Kind
	Epsilon     float64
	Delta       float64
	TimeHorizon int64
	Dimension   int

	// TwoLevel strategy state.
	TwoLevelSingleStart int64
	TwoLevelBlockStart  int64
}

// GobEncode encodes the Store so that a run can be checkpointed between
// releases.
func (s *Store) GobEncode() ([]byte, error) {
	enc := encodableStore{
		Strategy:    s.strategy,
		BlockSize:   s.blockSize,
		BlockLevel:  s.blockLevel,
		LastTime:    s.lastTime,
		NoiseKind:   s.generator.Kind(),
		Epsilon:     s.generator.Epsilon(),
		Delta:       s.generator.Delta(),
		TimeHorizon: s.generator.TimeHorizon(),
		Dimension:   s.generator.Dimension(),
	}
	for _, start := range s.sortedStarts() {
		enc.Entries = append(enc.Entries, s.store[start])
	}
	if tl, ok := s.cons.(*twoLevelConsolidator); ok {
		enc.TwoLevelSingleStart = tl.singleStart
		enc.TwoLevelBlockStart = tl.blockStart
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(enc); err != nil {
		return nil, fmt.Errorf("couldn't encode Store: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode decodes the Store, reconstructing its noise generator from the
// serialized configuration.
func (s *Store) GobDecode(data []byte) error {
	var enc encodableStore
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&enc); err != nil {
		return fmt.Errorf("couldn't decode Store from bytes: %w", err)
	}
	var g noise.Generator
	switch enc.NoiseKind {
	case noise.LaplaceNoise:
		var err error
		g, err = noise.NewLaplaceGenerator(&noise.LaplaceGeneratorOptions{
			Epsilon:     enc.Epsilon,
			Delta:       enc.Delta,
			TimeHorizon: enc.TimeHorizon,
			Dimension:   enc.Dimension,
		})
		if err != nil {
			return fmt.Errorf("couldn't reconstruct generator for decoded Store: %w", err)
		}
	case noise.ZeroNoise:
		g = noise.Zero(enc.TimeHorizon, enc.Dimension)
	default:
		return fmt.Errorf("couldn't reconstruct generator for decoded Store: unrecognised kind (%v)", enc.NoiseKind)
	}
	cons, err := newConsolidator(enc.Strategy)
	if err != nil {
		return fmt.Errorf("couldn't decode Store: %w", err)
	}
	if tl, ok := cons.(*twoLevelConsolidator); ok {
		tl.singleStart = enc.TwoLevelSingleStart
		tl.blockStart = enc.TwoLevelBlockStart
	}
	store := make(map[int64]PartialSum, len(enc.Entries))
	for _, p := range enc.Entries {
		store[p.Start] = p
	}
	*s = Store{
		generator:  g,
		strategy:   enc.Strategy,
		blockSize:  enc.BlockSize,
		blockLevel: enc.BlockLevel,
		store:      store,
		lastTime:   enc.LastTime,
		cons:       cons,
	}
	return nil
}
