// Package alert maps severity, trajectory, contradiction and red flags to
// one of four ordered escalation levels. The state machine is deterministic
// and recomputed fresh each analysis; there is no transition history.
package alert

import (
	"fmt"
	"strings"

	"woundchrono/internal/trajectory"
	"woundchrono/internal/wat"
)

// Level is an ordered escalation level.
type Level string

const (
	Green  Level = "green"
	Yellow Level = "yellow"
	Orange Level = "orange"
	Red    Level = "red"
)

var order = map[Level]int{Green: 0, Yellow: 1, Orange: 2, Red: 3}

// Rank returns the level's position in the escalation order.
func Rank(l Level) int { return order[l] }

// Alert is the derived escalation result. Detail is empty for an
// unremarkable green.
type Alert struct {
	Level  Level  `json:"level"`
	Detail string `json:"detail,omitempty"`
}

// WAT-total band thresholds.
const (
	totalRed    = 56
	totalOrange = 47
	totalYellow = 34
)

// Input bundles everything the state machine consumes.
type Input struct {
	Total         int
	Trajectory    trajectory.Trajectory
	Flags         wat.RedFlags
	Contradiction bool
	// ContradictionDetail is appended or promoted per the escalation rules.
	ContradictionDetail string
}

// Determine runs the escalation order: flags, then the WAT-total base band,
// then one step for a deteriorating trajectory, then at most one further
// step for a contradiction. Escalations are monotonic.
func Determine(in Input) Alert {
	if in.Flags.Any() {
		return Alert{
			Level:  Red,
			Detail: fmt.Sprintf("Critical finding (%s) — immediate clinical review required.", strings.Join(in.Flags.Names(), ", ")),
		}
	}

	a := baseLevel(in.Total)

	if in.Trajectory == trajectory.Deteriorating {
		switch a.Level {
		case Green:
			a = Alert{Yellow, "Wound is deteriorating since last visit — monitor closely."}
		case Yellow:
			a = Alert{Orange, "Deteriorating trajectory on suboptimal severity — care plan review recommended."}
		case Orange:
			a = Alert{Red, "Deteriorating trajectory on high severity — urgent clinical review required."}
		}
	}

	if in.Contradiction {
		detail := in.ContradictionDetail
		if detail == "" {
			detail = "Nurse notes contradict the automated assessment."
		}
		switch a.Level {
		case Green:
			a = Alert{Yellow, detail}
		case Yellow:
			a = Alert{Orange, detail}
		case Orange:
			a.Detail = strings.TrimSpace(a.Detail + " " + detail)
		case Red:
			a.Detail = strings.TrimSpace(a.Detail + " " + detail)
		}
	}

	return a
}

func baseLevel(total int) Alert {
	switch {
	case total >= totalRed:
		return Alert{Red, "Critical wound severity — immediate clinical review required."}
	case total >= totalOrange:
		return Alert{Orange, "High wound severity — prompt clinical review recommended."}
	case total >= totalYellow:
		return Alert{Yellow, "Suboptimal healing indicators — consider care plan review."}
	default:
		return Alert{Level: Green}
	}
}
