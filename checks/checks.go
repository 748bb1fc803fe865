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

// Package checks contains checks for parameters of differentially private
// continual release mechanisms.
package checks

import (
	"fmt"
	"math"

	log "github.com/golang/glog"
)

// CheckEpsilonVeryStrict returns an error if ε is +∞ or less than 2⁻⁵⁰.
//
// The lower bound of 2⁻⁵⁰ keeps the secure noise samplers free of overflow
// artifacts; see the Laplace sampler for details.
func CheckEpsilonVeryStrict(epsilon float64) error {
	if epsilon < math.Exp2(-50.0) || math.IsInf(epsilon, 0) || math.IsNaN(epsilon) {
		return fmt.Errorf("Epsilon is %f, must be at least 2^-50 and finite", epsilon)
	}
	return nil
}

// CheckEpsilonStrict returns an error if ε is nonpositive or +∞.
func CheckEpsilonStrict(epsilon float64) error {
	if epsilon <= 0 || math.IsInf(epsilon, 0) || math.IsNaN(epsilon) {
		return fmt.Errorf("Epsilon is %f, must be strictly positive and finite", epsilon)
	}
	return nil
}

// CheckDelta returns an error if δ is negative or greater than or equal to 1.
func CheckDelta(delta float64) error {
	if math.IsNaN(delta) {
		return fmt.Errorf("Delta is %e, cannot be NaN", delta)
	}
	if delta < 0 {
		return fmt.Errorf("Delta is %e, cannot be negative", delta)
	}
	if delta >= 1 {
		return fmt.Errorf("Delta is %e, must be strictly less than 1", delta)
	}
	return nil
}

// CheckDeltaStrict returns an error if δ is nonpositive or greater than or equal to 1.
func CheckDeltaStrict(delta float64) error {
	if math.IsNaN(delta) {
		return fmt.Errorf("Delta is %e, cannot be NaN", delta)
	}
	if delta <= 0 {
		return fmt.Errorf("Delta is %e, must be strictly positive", delta)
	}
	if delta >= 1 {
		return fmt.Errorf("Delta is %e, must be strictly less than 1", delta)
	}
	return nil
}

// CheckNoDelta returns an error if δ is non-zero.
func CheckNoDelta(delta float64) error {
	if delta != 0 {
		return fmt.Errorf("Delta is %e, must be 0", delta)
	}
	return nil
}

// CheckL1Sensitivity returns an error if l1Sensitivity is nonpositive or +∞.
func CheckL1Sensitivity(l1Sensitivity float64) error {
	if l1Sensitivity <= 0 || math.IsInf(l1Sensitivity, 0) || math.IsNaN(l1Sensitivity) {
		return fmt.Errorf("L1Sensitivity is %f, must be strictly positive and finite", l1Sensitivity)
	}
	return nil
}

// CheckTimeHorizon returns an error if the time horizon T is less than 1.
func CheckTimeHorizon(timeHorizon int64) error {
	if timeHorizon < 1 {
		return fmt.Errorf("TimeHorizon is %d, must be at least 1", timeHorizon)
	}
	if timeHorizon == 1 {
		log.Warningf("TimeHorizon is 1: the mechanism degenerates to a single release")
	}
	return nil
}

// CheckBlockSize returns an error if blockSize is less than 1.
func CheckBlockSize(blockSize int64) error {
	if blockSize < 1 {
		return fmt.Errorf("BlockSize is %d, must be at least 1", blockSize)
	}
	return nil
}

// CheckDimension returns an error if the noise value dimension is less than 1.
func CheckDimension(dimension int) error {
	if dimension < 1 {
		return fmt.Errorf("Dimension is %d, must be at least 1", dimension)
	}
	return nil
}
