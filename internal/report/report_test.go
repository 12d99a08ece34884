package report

import (
	"strings"
	"testing"
	"time"

	"woundchrono/internal/contradiction"
	"woundchrono/internal/wat"
)

func sampleResult() *wat.Result {
	items := wat.NeutralItems()
	items.Granulation = 2
	items.Epithelialization = 2
	return &wat.Result{
		Items: items,
		Total: items.Total(),
		Scores: map[wat.Dimension]float64{
			wat.DimTissue:       0.65,
			wat.DimInflammation: 0.5,
			wat.DimMoisture:     0.5,
			wat.DimEdge:         0.42,
		},
		Descriptions: map[wat.Dimension]string{
			wat.DimTissue:       "granulation tissue forming",
			wat.DimInflammation: "mild erythema",
			wat.DimMoisture:     "balanced moisture",
			wat.DimEdge:         "edges attached",
		},
	}
}

func TestParseValidReply(t *testing.T) {
	raw := "```json\n" + `{"summary": "Healing well.", "wound_status": "Granulating.",
		"change_analysis": "Improved since last visit.",
		"interventions": ["Continue foam dressing.", ""],
		"follow_up": "Review in 7 days."}` + "\n```"
	d, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Summary != "Healing well." {
		t.Errorf("summary = %q", d.Summary)
	}
	if len(d.Interventions) != 1 {
		t.Errorf("interventions = %v, want empty strings dropped", d.Interventions)
	}
}

func TestParseRejectsMissingSummary(t *testing.T) {
	if _, err := Parse(`{"wound_status": "fine"}`); err == nil {
		t.Fatal("expected error for reply without summary")
	}
	if _, err := Parse("no json here at all"); err == nil {
		t.Fatal("expected error for non-JSON reply")
	}
}

func TestMarkdownLayout(t *testing.T) {
	d := Data{
		Summary:       "Wound improving.",
		WoundStatus:   "Granulating wound bed.",
		Interventions: []string{"Continue protocol."},
		FollowUp:      "7 days.",
	}
	ctx := Context{
		PatientName:   "Maria Santos",
		WoundType:     "venous ulcer",
		WoundLocation: "left ankle",
		VisitDate:     time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		Trajectory:    "improving",
	}
	md := Markdown(d, ctx, sampleResult())

	for _, want := range []string{
		"## Wound Assessment Report",
		"**Patient:** Maria Santos",
		"**Visit date:** 2026-04-02",
		"### Clinical Summary",
		"- **Tissue:** granulation tissue forming (healing 7/10)",
		"- **Edge:** edges attached (healing 4/10)",
		"**Composite score:** 5/10",
		"### Recommended Interventions",
		"- Continue protocol.",
		"### Follow-up",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Contains(md, "Clinical Guidance") {
		t.Error("Clinical Guidance section should be absent without nurse answers")
	}
}

func TestMarkdownIncludesGuidanceSection(t *testing.T) {
	d := Data{
		Summary:      "Stable.",
		NurseAnswers: []string{"Q: Should I change the dressing? — A: Yes, switch to foam."},
	}
	md := Markdown(d, Context{Trajectory: "stable"}, sampleResult())
	if !strings.Contains(md, "### Clinical Guidance") {
		t.Fatal("expected Clinical Guidance section")
	}
	if !strings.Contains(md, "switch to foam") {
		t.Error("answer not rendered")
	}
}

func TestPreviousHealingScore(t *testing.T) {
	ctx := Context{
		Trajectory: "improving",
		PreviousScores: map[wat.Dimension]float64{
			wat.DimTissue: 0.6,
			wat.DimEdge:   0.5,
		},
	}

	prompt := BuildPrompt(ctx, sampleResult(), "", contradiction.Verdict{})
	if !strings.Contains(prompt, "Previous visit healing score: 6/10") {
		t.Error("prompt missing previous healing score")
	}

	md := Markdown(Data{Summary: "Improving."}, ctx, sampleResult())
	if !strings.Contains(md, "**Previous healing score:** 6/10") {
		t.Error("markdown missing previous healing score")
	}
}

func TestPreviousHealingScoreAbsentAtBaseline(t *testing.T) {
	ctx := Context{Trajectory: "baseline"}

	prompt := BuildPrompt(ctx, sampleResult(), "", contradiction.Verdict{})
	if strings.Contains(prompt, "Previous visit healing score") {
		t.Error("baseline prompt must not carry a previous healing score")
	}
	md := Markdown(Data{}, ctx, sampleResult())
	if strings.Contains(md, "Previous healing score") {
		t.Error("baseline markdown must not carry a previous healing score")
	}
}

func TestMarkdownDefaults(t *testing.T) {
	md := Markdown(Data{}, Context{Trajectory: "baseline"}, sampleResult())
	for _, want := range []string{
		"**Patient:** Not recorded",
		"No summary available.",
		"Baseline assessment, no prior data.",
		"- Continue current care protocol.",
		"Schedule follow-up as clinically indicated.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing default %q", want)
		}
	}
}

func TestBuildPromptQuestionSchema(t *testing.T) {
	res := sampleResult()
	ctx := Context{Trajectory: "stable"}

	plain := BuildPrompt(ctx, res, "Dressing changed today.", contradiction.Verdict{})
	if strings.Contains(plain, "nurse_answers") {
		t.Error("nurse_answers schema should be absent without questions")
	}

	withQ := BuildPrompt(ctx, res, "Dressing changed. Should I switch to alginate?", contradiction.Verdict{})
	if !strings.Contains(withQ, "nurse_answers") {
		t.Error("nurse_answers schema missing when notes contain a question")
	}
	if !strings.Contains(withQ, "## Nurse Notes") {
		t.Error("notes section missing")
	}
}

func TestBuildPromptContradictionSection(t *testing.T) {
	v := contradiction.Verdict{Contradiction: true, Detail: "notes conflict with trajectory"}
	prompt := BuildPrompt(Context{Trajectory: "improving"}, sampleResult(), "looks worse", v)
	if !strings.Contains(prompt, "## Contradiction detected") {
		t.Fatal("contradiction section missing")
	}
	if !strings.Contains(prompt, "notes conflict with trajectory") {
		t.Error("contradiction detail missing")
	}
}
