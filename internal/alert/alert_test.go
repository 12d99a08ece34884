package alert

import (
	"strings"
	"testing"

	"woundchrono/internal/trajectory"
	"woundchrono/internal/wat"
)

func TestBaseBands(t *testing.T) {
	cases := []struct {
		total int
		want  Level
	}{
		{13, Green},
		{33, Green},
		{34, Yellow},
		{46, Yellow},
		{47, Orange},
		{55, Orange},
		{56, Red},
		{65, Red},
	}
	for _, tc := range cases {
		a := Determine(Input{Total: tc.total, Trajectory: trajectory.Stable})
		if a.Level != tc.want {
			t.Errorf("total %d: level = %s, want %s", tc.total, a.Level, tc.want)
		}
	}
}

func TestFlagsForceRed(t *testing.T) {
	a := Determine(Input{
		Total:      13, // best possible total still goes red
		Trajectory: trajectory.Improving,
		Flags:      wat.RedFlags{BoneExposed: true},
	})
	if a.Level != Red {
		t.Fatalf("level = %s, want red", a.Level)
	}
	if !strings.Contains(a.Detail, "bone_exposed") {
		t.Errorf("detail %q does not name the flag", a.Detail)
	}
}

func TestDeterioratingEscalatesOneStep(t *testing.T) {
	cases := []struct {
		total int
		want  Level
	}{
		{13, Yellow}, // green base
		{34, Orange}, // yellow base
		{47, Red},    // orange base
		{56, Red},    // red base stays red
	}
	for _, tc := range cases {
		a := Determine(Input{Total: tc.total, Trajectory: trajectory.Deteriorating})
		if a.Level != tc.want {
			t.Errorf("total %d deteriorating: level = %s, want %s", tc.total, a.Level, tc.want)
		}
	}
}

func TestContradictionEscalatesOneStep(t *testing.T) {
	a := Determine(Input{
		Total:               13,
		Trajectory:          trajectory.Stable,
		Contradiction:       true,
		ContradictionDetail: "notes disagree",
	})
	if a.Level != Yellow {
		t.Errorf("level = %s, want yellow", a.Level)
	}
	if a.Detail != "notes disagree" {
		t.Errorf("detail = %q", a.Detail)
	}
}

func TestContradictionAtOrangeAppendsDetail(t *testing.T) {
	a := Determine(Input{
		Total:               47,
		Trajectory:          trajectory.Stable,
		Contradiction:       true,
		ContradictionDetail: "notes disagree",
	})
	if a.Level != Orange {
		t.Fatalf("level = %s, want orange (no promotion past the band)", a.Level)
	}
	if !strings.Contains(a.Detail, "High wound severity") || !strings.Contains(a.Detail, "notes disagree") {
		t.Errorf("detail %q missing concatenated reasons", a.Detail)
	}
}

func TestDeterioratingThenContradictionStacks(t *testing.T) {
	// Yellow base, +1 deteriorating, +0 contradiction (already orange):
	// detail carries both reasons.
	a := Determine(Input{
		Total:               34,
		Trajectory:          trajectory.Deteriorating,
		Contradiction:       true,
		ContradictionDetail: "notes disagree",
	})
	if a.Level != Orange {
		t.Fatalf("level = %s, want orange", a.Level)
	}
	if !strings.Contains(a.Detail, "Deteriorating trajectory") || !strings.Contains(a.Detail, "notes disagree") {
		t.Errorf("detail %q missing a reason", a.Detail)
	}
}

func TestContradictionDefaultDetail(t *testing.T) {
	a := Determine(Input{Total: 13, Trajectory: trajectory.Stable, Contradiction: true})
	if a.Detail == "" {
		t.Error("contradiction escalation has no detail")
	}
}

func TestGreenHasNoDetail(t *testing.T) {
	a := Determine(Input{Total: 20, Trajectory: trajectory.Improving})
	if a.Level != Green || a.Detail != "" {
		t.Errorf("got %s %q, want bare green", a.Level, a.Detail)
	}
}

func TestRank(t *testing.T) {
	levels := []Level{Green, Yellow, Orange, Red}
	for i := 1; i < len(levels); i++ {
		if Rank(levels[i]) <= Rank(levels[i-1]) {
			t.Errorf("Rank(%s) not above Rank(%s)", levels[i], levels[i-1])
		}
	}
}
