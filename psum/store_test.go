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
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/google/continual-dp/noise"
	"github.com/google/continual-dp/stattestutils"
	"github.com/google/go-cmp/cmp"
)

// laplaceCall records the arguments of one Laplacian draw.
type laplaceCall struct {
	epsilon       float64
	l1Sensitivity float64
}

// unitGenerator returns 1.0 in every coordinate for every draw and records
// the arguments of all draws, so that consolidation arithmetic and noise
// scale schedules can be verified deterministically.
type unitGenerator struct {
	epsilon     float64
	delta       float64
	timeHorizon int64
	dimension   int
	kind        noise.Kind

	laplaceCalls []laplaceCall
	treeHorizons []int64
}

func newUnitGenerator(epsilon float64, timeHorizon int64) *unitGenerator {
	return &unitGenerator{
		epsilon:     epsilon,
		timeHorizon: timeHorizon,
		dimension:   1,
		kind:        noise.LaplaceNoise,
	}
}

func (g *unitGenerator) ones() noise.Value {
	res := noise.Zeros(g.dimension)
	for i := range res {
		res[i] = 1
	}
	return res
}

func (g *unitGenerator) Laplacian(epsilon, l1Sensitivity float64) (noise.Value, error) {
	g.laplaceCalls = append(g.laplaceCalls, laplaceCall{epsilon, l1Sensitivity})
	return g.ones(), nil
}

func (g *unitGenerator) TreeNoise(epsilon, delta float64, timeHorizon int64) (noise.Value, error) {
	g.treeHorizons = append(g.treeHorizons, timeHorizon)
	return g.ones(), nil
}

func (g *unitGenerator) Zeros() noise.Value { return noise.Zeros(g.dimension) }
func (g *unitGenerator) Kind() noise.Kind   { return g.kind }
func (g *unitGenerator) Epsilon() float64   { return g.epsilon }
func (g *unitGenerator) Delta() float64     { return g.delta }
func (g *unitGenerator) TimeHorizon() int64 { return g.timeHorizon }
func (g *unitGenerator) Dimension() int     { return g.dimension }

func TestNewStoreArgumentChecking(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		opt     *StoreOptions
		wantErr bool
	}{
		{
			desc:    "nil options",
			opt:     nil,
			wantErr: true,
		},
		{
			desc:    "missing generator",
			opt:     &StoreOptions{Strategy: Tree},
			wantErr: true,
		},
		{
			desc: "unrecognised strategy",
			opt: &StoreOptions{
				Generator: newUnitGenerator(1, 16),
				Strategy:  UnrecognisedStrategy,
			},
			wantErr: true,
		},
		{
			desc: "unsupported generator kind",
			opt: &StoreOptions{
				Generator: &unitGenerator{epsilon: 1, timeHorizon: 16, dimension: 1, kind: noise.Unrecognised},
				Strategy:  Tree,
			},
			wantErr: true,
		},
		{
			desc: "negative block size",
			opt: &StoreOptions{
				Generator: newUnitGenerator(1, 16),
				Strategy:  Sqrt,
				BlockSize: -3,
			},
			wantErr: true,
		},
		{
			desc: "valid Laplace options",
			opt: &StoreOptions{
				Generator: newUnitGenerator(1, 16),
				Strategy:  Tree,
			},
			wantErr: false,
		},
		{
			desc: "valid zero generator",
			opt: &StoreOptions{
				Generator: noise.Zero(16, 1),
				Strategy:  Every,
			},
			wantErr: false,
		},
		{
			desc: "explicit block size",
			opt: &StoreOptions{
				Generator: newUnitGenerator(1, 16),
				Strategy:  TwoLevel,
				BlockSize: 5,
			},
			wantErr: false,
		},
	} {
		_, err := NewStore(tc.opt)
		if (err != nil) != tc.wantErr {
			t.Errorf("With %s, got err %v, wantErr %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestNewStoreDefaultBlockSize(t *testing.T) {
	for _, tc := range []struct {
		timeHorizon   int64
		wantBlockSize int64
	}{
		{timeHorizon: 1, wantBlockSize: 1},
		{timeHorizon: 9, wantBlockSize: 3},
		{timeHorizon: 10, wantBlockSize: 3},
		{timeHorizon: 100, wantBlockSize: 10},
	} {
		s, err := NewStore(&StoreOptions{
			Generator: newUnitGenerator(1, tc.timeHorizon),
			Strategy:  Sqrt,
		})
		if err != nil {
			t.Fatalf("Couldn't initialize store: %v", err)
		}
		if s.blockSize != tc.wantBlockSize {
			t.Errorf("With timeHorizon %d, got blockSize %d, want %d", tc.timeHorizon, s.blockSize, tc.wantBlockSize)
		}
	}
}

func TestAddTimeChecking(t *testing.T) {
	s, err := NewStore(&StoreOptions{Generator: newUnitGenerator(1, 16), Strategy: Every})
	if err != nil {
		t.Fatalf("Couldn't initialize store: %v", err)
	}
	if err := s.Add(3, nil); err == nil {
		t.Errorf("Add(3) on an empty store accepted a first step that is not %d", StartTime)
	}
	if err := s.Add(StartTime, nil); err != nil {
		t.Fatalf("Add(%d) failed: %v", StartTime, err)
	}
	if err := s.Add(StartTime, nil); err == nil {
		t.Errorf("Add(%d) accepted a repeated time step", StartTime)
	}
	if err := s.Add(0, nil); err == nil {
		t.Errorf("Add(0) accepted a time step in the past")
	}
	if err := s.Add(5, nil); err != nil {
		t.Errorf("Add(5) rejected a strictly later step: %v", err)
	}
}

func TestAddExplicitNoise(t *testing.T) {
	g := newUnitGenerator(1, 16)
	s, err := NewStore(&StoreOptions{Generator: g, Strategy: Every})
	if err != nil {
		t.Fatalf("Couldn't initialize store: %v", err)
	}
	if err := s.Add(1, noise.Value{1, 2}); err == nil {
		t.Errorf("Add accepted a noise value of dimension 2 for a generator of dimension 1")
	}
	if err := s.Add(1, noise.Value{42}); err != nil {
		t.Fatalf("Add with explicit noise failed: %v", err)
	}
	if diff := cmp.Diff(noise.Value{42}, s.Release()); diff != "" {
		t.Errorf("Explicit noise was not used verbatim (-want +got):\n%s", diff)
	}
	if len(g.laplaceCalls) != 0 {
		t.Errorf("Add with explicit noise drew %d samples from the generator, want 0", len(g.laplaceCalls))
	}
}

func TestReleaseEmptyStore(t *testing.T) {
	s, err := NewStore(&StoreOptions{Generator: newUnitGenerator(1, 16), Strategy: Tree})
	if err != nil {
		t.Fatalf("Couldn't initialize store: %v", err)
	}
	if diff := cmp.Diff(noise.Zeros(1), s.Release()); diff != "" {
		t.Errorf("Release of an empty store is not the additive identity (-want +got):\n%s", diff)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	for st := range strategyNames {
		s, err := NewStore(&StoreOptions{Generator: newUnitGenerator(1, 64), Strategy: st})
		if err != nil {
			t.Fatalf("With strategy %v, couldn't initialize store: %v", st, err)
		}
		for time := int64(1); time <= 20; time++ {
			if err := s.Add(time, nil); err != nil {
				t.Fatalf("With strategy %v, Add(%d) failed: %v", st, time, err)
			}
		}
		first := s.Release()
		second := s.Release()
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("With strategy %v, repeated Release differs (-first +second):\n%s", st, diff)
		}
	}
}

func TestBlockLevelFlagIsCarried(t *testing.T) {
	s, err := NewStore(&StoreOptions{
		Generator:  newUnitGenerator(1, 16),
		Strategy:   Tree,
		BlockLevel: true,
	})
	if err != nil {
		t.Fatalf("Couldn't initialize store: %v", err)
	}
	if !s.BlockLevel() {
		t.Errorf("BlockLevel() = false, want true")
	}
	if got, want := s.Strategy(), Tree; got != want {
		t.Errorf("Strategy() = %v, want %v", got, want)
	}
}

func roundTrip(t *testing.T, s *Store) *Store {
	t.Helper()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		t.Fatalf("Couldn't encode store: %v", err)
	}
	decoded := &Store{}
	if err := gob.NewDecoder(&buf).Decode(decoded); err != nil {
		t.Fatalf("Couldn't decode store: %v", err)
	}
	return decoded
}

func TestStoreSerializationRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		desc string
		opt  *StoreOptions
	}{
		{
			desc: "tree store with zero noise",
			opt:  &StoreOptions{Generator: noise.Zero(64, 2), Strategy: Tree},
		},
		{
			desc: "two-level store with zero noise",
			opt:  &StoreOptions{Generator: noise.Zero(64, 1), Strategy: TwoLevel, BlockSize: 3},
		},
		{
			desc: "sqrt store with zero noise",
			opt:  &StoreOptions{Generator: noise.Zero(64, 1), Strategy: Sqrt, BlockSize: 4},
		},
	} {
		s, err := NewStore(tc.opt)
		if err != nil {
			t.Fatalf("With %s, couldn't initialize store: %v", tc.desc, err)
		}
		for time := int64(1); time <= 11; time++ {
			if err := s.Add(time, nil); err != nil {
				t.Fatalf("With %s, Add(%d) failed: %v", tc.desc, time, err)
			}
		}
		decoded := roundTrip(t, s)
		if diff := cmp.Diff(s.Sizes(), decoded.Sizes()); diff != "" {
			t.Errorf("With %s, decoded sizes differ (-want +got):\n%s", tc.desc, diff)
		}
		if diff := cmp.Diff(s.Release(), decoded.Release()); diff != "" {
			t.Errorf("With %s, decoded release differs (-want +got):\n%s", tc.desc, diff)
		}
		// The decoded store must be able to continue the run where the
		// original left off, producing the same structure.
		for time := int64(12); time <= 20; time++ {
			if err := s.Add(time, nil); err != nil {
				t.Fatalf("With %s, Add(%d) on the original failed: %v", tc.desc, time, err)
			}
			if err := decoded.Add(time, nil); err != nil {
				t.Fatalf("With %s, Add(%d) on the decoded store failed: %v", tc.desc, time, err)
			}
		}
		if diff := cmp.Diff(s.Sizes(), decoded.Sizes()); diff != "" {
			t.Errorf("With %s, sizes diverge after continued adds (-want +got):\n%s", tc.desc, diff)
		}
	}
}

func TestStoreSerializationPreservesLaplaceGenerator(t *testing.T) {
	g, err := noise.NewLaplaceGenerator(&noise.LaplaceGeneratorOptions{
		Epsilon:     0.5,
		TimeHorizon: 32,
	})
	if err != nil {
		t.Fatalf("Couldn't initialize generator: %v", err)
	}
	s, err := NewStore(&StoreOptions{Generator: g, Strategy: Tree, BlockLevel: true})
	if err != nil {
		t.Fatalf("Couldn't initialize store: %v", err)
	}
	for time := int64(1); time <= 7; time++ {
		if err := s.Add(time, nil); err != nil {
			t.Fatalf("Add(%d) failed: %v", time, err)
		}
	}
	decoded := roundTrip(t, s)
	if diff := cmp.Diff(s.Sizes(), decoded.Sizes()); diff != "" {
		t.Errorf("Decoded sizes differ (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s.Release(), decoded.Release()); diff != "" {
		t.Errorf("Decoded release differs (-want +got):\n%s", diff)
	}
	if !decoded.BlockLevel() {
		t.Errorf("Decoded BlockLevel() = false, want true")
	}
	if err := decoded.Add(8, nil); err != nil {
		t.Errorf("Add(8) on the decoded store failed: %v", err)
	}
}

func TestReleaseStatisticsEveryStrategy(t *testing.T) {
	// With the Every strategy the release at step n is the sum of n
	// independent Laplace samples of scale 1/ε, so its mean is 0 and its
	// variance is n·2/ε². The tolerance of the statistical test accounts
	// for a flakiness of 10⁻²³.
	const (
		numberOfRuns = 2500
		steps        = 4
		epsilon      = 1.0
	)
	releases := make([]float64, numberOfRuns)
	for i := 0; i < numberOfRuns; i++ {
		g, err := noise.NewLaplaceGenerator(&noise.LaplaceGeneratorOptions{
			Epsilon:     epsilon,
			TimeHorizon: steps,
		})
		if err != nil {
			t.Fatalf("Couldn't initialize generator: %v", err)
		}
		s, err := NewStore(&StoreOptions{Generator: g, Strategy: Every})
		if err != nil {
			t.Fatalf("Couldn't initialize store: %v", err)
		}
		for time := int64(1); time <= steps; time++ {
			if err := s.Add(time, nil); err != nil {
				t.Fatalf("Add(%d) failed: %v", time, err)
			}
		}
		releases[i] = s.Release()[0]
	}
	wantVariance := steps * 2 / (epsilon * epsilon)
	tolerance := 4.41717 * math.Sqrt(wantVariance/numberOfRuns)
	if mean := stattestutils.SampleMean(releases); math.Abs(mean) > tolerance {
		t.Errorf("Got mean release %f, want 0 (tolerance %f)", mean, tolerance)
	}
	if variance := stattestutils.SampleVariance(releases); math.Abs(variance-wantVariance) > wantVariance/2 {
		t.Errorf("Got release variance %f, want %f", variance, wantVariance)
	}
}
