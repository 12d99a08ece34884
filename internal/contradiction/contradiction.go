// Package contradiction detects disagreement between the nurse's notes and
// the automated trajectory. A deterministic keyword pre-check handles the
// obvious cases; only ambiguous notes are escalated to model arbitration,
// and arbitration failure is fail-open so a flaky model never inflates an
// alert.
package contradiction

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"woundchrono/internal/trajectory"
)

// Verdict is the detector outcome.
type Verdict struct {
	Contradiction bool   `json:"contradiction"`
	Detail        string `json:"detail,omitempty"`
}

// Arbiter is the model collaborator consulted for ambiguous notes. It
// receives the trajectory label and notes text and returns a boolean
// verdict with an explanation.
type Arbiter interface {
	Arbitrate(ctx context.Context, traj trajectory.Trajectory, notes string) (Verdict, error)
}

var positiveKeywords = []string{
	"better", "improving", "improvement", "healing", "healed", "good progress",
	"cleaner", "contracting", "less pain", "less drainage", "resolved",
	"granulation", "epithelializing", "looks good", "looks great",
}

var negativeKeywords = []string{
	"worse", "worsening", "deteriorat", "infect", "necrotic", "odor",
	"more pain", "increased", "inflamed", "undermined", "purulent",
	"slough", "dehiscence", "no improvement", "not healing",
}

const (
	detailPositiveVsDeteriorating = "Nurse notes indicate improvement while AI assessment shows deterioration. " +
		"Clinical review recommended to resolve this discrepancy."
	detailNegativeVsImproving = "Nurse notes indicate worsening while AI assessment shows improvement. " +
		"Clinical review recommended to resolve this discrepancy."
)

// Detector runs the two-phase check.
type Detector struct {
	arbiter Arbiter
	log     *zap.Logger
}

func New(arbiter Arbiter, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{arbiter: arbiter, log: log}
}

// Rule applies the deterministic keyword phase. The third return value is
// false when the notes are ambiguous (both or neither keyword class) and
// arbitration should decide.
func Rule(traj trajectory.Trajectory, notes string) (Verdict, bool) {
	lower := strings.ToLower(notes)
	hasPositive := containsAny(lower, positiveKeywords)
	hasNegative := containsAny(lower, negativeKeywords)

	if hasPositive && !hasNegative && traj == trajectory.Deteriorating {
		return Verdict{Contradiction: true, Detail: detailPositiveVsDeteriorating}, true
	}
	if hasNegative && !hasPositive && traj == trajectory.Improving {
		return Verdict{Contradiction: true, Detail: detailNegativeVsImproving}, true
	}
	if hasPositive == hasNegative {
		// Both or neither class matched: ambiguous.
		return Verdict{}, false
	}
	// Single-class match consistent with the trajectory.
	return Verdict{}, true
}

// Detect runs Phase 1 and, when it is ambiguous, Phase 2 arbitration. It is
// only meaningful when trajectory is not baseline and notes are present;
// those guards live in the orchestrator.
func (d *Detector) Detect(ctx context.Context, traj trajectory.Trajectory, notes string) Verdict {
	if v, decided := Rule(traj, notes); decided {
		return v
	}
	if d.arbiter == nil {
		return Verdict{}
	}
	v, err := d.arbiter.Arbitrate(ctx, traj, notes)
	if err != nil {
		// Fail open: never escalate an alert off a flaky dependency.
		d.log.Warn("contradiction arbitration failed, assuming none", zap.Error(err))
		return Verdict{}
	}
	return v
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ParseVerdict interprets a parsed arbitration mapping, tolerating
// boolean-as-string encodings.
func ParseVerdict(m map[string]any) Verdict {
	v := Verdict{}
	switch b := m["contradiction"].(type) {
	case bool:
		v.Contradiction = b
	case string:
		v.Contradiction = strings.EqualFold(strings.TrimSpace(b), "true")
	}
	if s, ok := m["detail"].(string); ok && !strings.EqualFold(s, "null") {
		v.Detail = strings.TrimSpace(s)
	}
	return v
}
