// Package report builds the clinical wound assessment report: the
// generation prompt, parsing of the model's structured reply, and the
// standardized markdown rendering.
package report

import (
	"fmt"
	"strings"
	"time"

	"woundchrono/internal/contradiction"
	"woundchrono/internal/normalize"
	"woundchrono/internal/wat"
)

// Data is the structured payload the model returns for a report request.
type Data struct {
	Summary        string   `json:"summary"`
	WoundStatus    string   `json:"wound_status"`
	ChangeAnalysis string   `json:"change_analysis"`
	Interventions  []string `json:"interventions"`
	FollowUp       string   `json:"follow_up"`
	NurseAnswers   []string `json:"nurse_answers,omitempty"`
}

// Context carries the patient and visit framing that appears in both the
// prompt and the rendered report header.
type Context struct {
	PatientName   string
	WoundType     string
	WoundLocation string
	VisitDate     time.Time
	Trajectory    string
	ChangeScore   *float64

	// PreviousScores holds the prior visit's dimension scores when one
	// exists; the report shows their mean on the 1..10 scale.
	PreviousScores map[wat.Dimension]float64
}

// previousHealing averages the prior visit's available dimension scores
// onto the ten-point scale. The second return is false on a baseline visit.
func (c Context) previousHealing() (int, bool) {
	if len(c.PreviousScores) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range c.PreviousScores {
		sum += s
	}
	return healingTen(sum / float64(len(c.PreviousScores))), true
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func (c Context) visitDateString() string {
	if c.VisitDate.IsZero() {
		return ""
	}
	return c.VisitDate.Format("2006-01-02")
}

// BuildPrompt assembles the report generation prompt from the scored
// assessment. When the notes contain questions the schema grows a
// nurse_answers field the model must fill.
func BuildPrompt(ctx Context, res *wat.Result, notes string, verdict contradiction.Verdict) string {
	var b strings.Builder
	b.WriteString("You are a wound care specialist. Analyze the wound image and data below.\n")
	b.WriteString("Respond with a JSON object ONLY. No markdown, no explanation outside the JSON.\n\n")

	b.WriteString("## Patient Information\n")
	fmt.Fprintf(&b, "- Patient: %s\n", orDefault(ctx.PatientName, "Not recorded"))
	fmt.Fprintf(&b, "- Wound type: %s\n", orDefault(ctx.WoundType, "Not specified"))
	fmt.Fprintf(&b, "- Wound location: %s\n", orDefault(ctx.WoundLocation, "Not specified"))
	fmt.Fprintf(&b, "- Visit date: %s\n\n", orDefault(ctx.visitDateString(), "Not recorded"))

	b.WriteString("## Wound Assessment\n")
	for _, dim := range wat.Dimensions {
		fmt.Fprintf(&b, "- %s: %s (score %.2f)\n",
			dimensionTitle(dim), res.Descriptions[dim], res.Scores[dim])
	}
	fmt.Fprintf(&b, "- Total item score: %d (range %d best to %d worst)\n\n",
		res.Total, wat.TotalMin, wat.TotalMax)

	fmt.Fprintf(&b, "## Trajectory: %s\n", ctx.Trajectory)
	if ctx.ChangeScore != nil {
		fmt.Fprintf(&b, "Cosine change score: %.4f\n", *ctx.ChangeScore)
	}
	if prev, ok := ctx.previousHealing(); ok {
		fmt.Fprintf(&b, "Previous visit healing score: %d/10\n", prev)
	}
	if notes != "" {
		fmt.Fprintf(&b, "\n## Nurse Notes\n%s\n", notes)
	}
	if verdict.Contradiction {
		fmt.Fprintf(&b, "\n## Contradiction detected\n%s\n", orDefault(verdict.Detail, "N/A"))
	}

	hasQuestions := HasQuestions(notes)
	if hasQuestions {
		b.WriteString("\nIMPORTANT: The nurse notes contain clinical questions. ")
		b.WriteString("Answer each question specifically in the \"nurse_answers\" field, ")
		b.WriteString("grounded in the wound assessment above.\n")
	}

	b.WriteString("\nRespond in English only. Respond with this exact JSON structure:\n")
	b.WriteString(`{"summary": "2-3 sentence clinical summary of wound status",` +
		` "wound_status": "current wound status description",` +
		` "change_analysis": "change since last visit or baseline note",` +
		` "interventions": ["intervention 1", "intervention 2", ...],`)
	if hasQuestions {
		b.WriteString(` "nurse_answers": ["answer to question 1", "answer to question 2", ...],`)
	}
	b.WriteString(` "follow_up": "follow-up timeline recommendation"}`)
	return b.String()
}

// Parse extracts report Data from the model's raw reply. A reply whose JSON
// cannot be recovered, or that lacks a summary, is rejected so the caller
// can fall back to the raw text.
func Parse(raw string) (Data, error) {
	obj, err := normalize.Object(raw)
	if err != nil {
		return Data{}, err
	}
	var d Data
	d.Summary, _ = obj["summary"].(string)
	if strings.TrimSpace(d.Summary) == "" {
		return Data{}, fmt.Errorf("report reply has no summary")
	}
	d.WoundStatus, _ = obj["wound_status"].(string)
	d.ChangeAnalysis, _ = obj["change_analysis"].(string)
	d.FollowUp, _ = obj["follow_up"].(string)
	d.Interventions = stringList(obj["interventions"])
	d.NurseAnswers = stringList(obj["nurse_answers"])
	return d, nil
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// healingTen maps a [0,1] healing score onto the 1..10 scale shown to
// clinicians.
func healingTen(score float64) int {
	n := int(score*10 + 0.5)
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

func dimensionTitle(d wat.Dimension) string {
	switch d {
	case wat.DimTissue:
		return "Tissue"
	case wat.DimInflammation:
		return "Inflammation"
	case wat.DimMoisture:
		return "Moisture"
	case wat.DimEdge:
		return "Edge"
	}
	return string(d)
}

// Markdown renders the standardized report. Layout is fixed regardless of
// what the model returned, so downstream rendering never varies.
func Markdown(d Data, ctx Context, res *wat.Result) string {
	var avg float64
	for _, dim := range wat.Dimensions {
		avg += res.Scores[dim]
	}
	avg /= float64(len(wat.Dimensions))

	lines := []string{
		"## Wound Assessment Report",
		"",
		"**Patient:** " + orDefault(ctx.PatientName, "Not recorded"),
		"**Wound type:** " + orDefault(ctx.WoundType, "Not specified"),
		"**Location:** " + orDefault(ctx.WoundLocation, "Not specified"),
		"**Visit date:** " + orDefault(ctx.visitDateString(), "Not recorded"),
		"**Trajectory:** " + ctx.Trajectory,
		"",
		"### Clinical Summary",
		orDefault(d.Summary, "No summary available."),
		"",
		"### Current Wound Status",
		orDefault(d.WoundStatus, "No status available."),
		"",
		"### Wound Assessment",
	}
	for _, dim := range wat.Dimensions {
		lines = append(lines, fmt.Sprintf("- **%s:** %s (healing %d/10)",
			dimensionTitle(dim), res.Descriptions[dim], healingTen(res.Scores[dim])))
	}
	lines = append(lines,
		fmt.Sprintf("- **Total item score:** %d/%d", res.Total, wat.TotalMax),
		"",
		fmt.Sprintf("**Composite score:** %d/10", healingTen(avg)),
	)
	if prev, ok := ctx.previousHealing(); ok {
		lines = append(lines, fmt.Sprintf("**Previous healing score:** %d/10", prev))
	}
	lines = append(lines,
		"",
		"### Change Analysis",
		orDefault(d.ChangeAnalysis, "Baseline assessment, no prior data."),
		"",
		"### Recommended Interventions",
	)
	if len(d.Interventions) > 0 {
		for _, item := range d.Interventions {
			lines = append(lines, "- "+item)
		}
	} else {
		lines = append(lines, "- Continue current care protocol.")
	}
	if len(d.NurseAnswers) > 0 {
		lines = append(lines, "", "### Clinical Guidance")
		lines = append(lines, "*Answers to nurse questions based on wound assessment:*")
		for _, ans := range d.NurseAnswers {
			lines = append(lines, "- "+ans)
		}
	}
	lines = append(lines,
		"",
		"### Follow-up",
		orDefault(d.FollowUp, "Schedule follow-up as clinically indicated."),
		"",
	)
	return strings.Join(lines, "\n")
}
