// Package trajectory classifies healing direction relative to the previous
// analyzed visit.
package trajectory

import "woundchrono/internal/wat"

// Trajectory is the healing-direction label. Computed once per assessment
// and immutable thereafter; Baseline only when no prior analyzed visit
// exists for the patient.
type Trajectory string

const (
	Baseline      Trajectory = "baseline"
	Improving     Trajectory = "improving"
	Stable        Trajectory = "stable"
	Deteriorating Trajectory = "deteriorating"
)

// delta thresholds on the mean 0-1 dimension score.
const threshold = 0.05

// Classify compares current vs. prior dimension averages. Only dimensions
// present in both sets contribute; with zero overlap the result is Stable.
// The Baseline short-circuit (no prior analyzed visit at all) is the
// caller's responsibility since it depends on the store.
func Classify(current, prior map[wat.Dimension]float64) Trajectory {
	currSum, priorSum := 0.0, 0.0
	count := 0
	for _, d := range wat.Dimensions {
		cv, cok := current[d]
		pv, pok := prior[d]
		if !cok || !pok {
			continue
		}
		currSum += cv
		priorSum += pv
		count++
	}
	if count == 0 {
		return Stable
	}
	delta := currSum/float64(count) - priorSum/float64(count)
	switch {
	case delta > threshold:
		return Improving
	case delta < -threshold:
		return Deteriorating
	default:
		return Stable
	}
}
