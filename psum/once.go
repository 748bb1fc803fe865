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

// onceConsolidator spends the privacy budget entirely on the first step. The
// first noise added is of a magnitude great enough to protect privacy
// throughout the whole run; every subsequent step contributes zero noise and
// is dropped again, leaving a single stored partial sum.
type onceConsolidator struct{}

func (onceConsolidator) sample(s *Store, _ int64) (noise.Value, error) {
	if len(s.store) > 0 {
		return s.generator.Zeros(), nil
	}
	// The budget is pre-divided over the full horizon so that the single
	// draw covers every release.
	g := s.generator
	return g.Laplacian(g.Epsilon()/float64(g.TimeHorizon()), 1)
}

func (onceConsolidator) consolidate(s *Store, time int64) error {
	if time != StartTime {
		delete(s.store, time)
	}
	return nil
}
