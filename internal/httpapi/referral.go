package httpapi

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// referralSummary renders a printable clinical handoff page for the
// referred-to physician.
func (s *Server) referralSummary(c *gin.Context) {
	ref, err := s.st.GetReferral(c.Param("id"))
	if err != nil {
		s.notFoundOr500(c, err, "Referral")
		return
	}
	a, err := s.st.GetAssessment(ref.AssessmentID)
	if err != nil {
		s.notFoundOr500(c, err, "Assessment")
		return
	}
	p, err := s.st.GetPatient(ref.PatientID)
	if err != nil {
		s.notFoundOr500(c, err, "Patient")
		return
	}

	var rows strings.Builder
	scoreSum := 0.0
	scoreCount := 0
	for _, dim := range []struct {
		label string
		typ   string
		score *float64
	}{
		{"Tissue", a.TissueType, a.TissueScore},
		{"Inflammation", a.Inflammation, a.InflammationScore},
		{"Moisture", a.Moisture, a.MoistureScore},
		{"Edge", a.Edge, a.EdgeScore},
	} {
		typ := dim.typ
		if typ == "" {
			typ = "N/A"
		}
		display := "N/A"
		if dim.score != nil {
			scoreSum += *dim.score
			scoreCount++
			display = fmt.Sprintf("%.1f/10", *dim.score*10)
		}
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			dim.label, html.EscapeString(typ), display)
	}
	overall := "N/A"
	if scoreCount > 0 {
		overall = fmt.Sprintf("%.1f/10", scoreSum/float64(scoreCount)*10)
	}

	changeDisplay := "N/A"
	if a.ChangeScore != nil {
		changeDisplay = fmt.Sprintf("%+.2f", *a.ChangeScore)
	}
	trajectory := a.Trajectory
	if trajectory == "" {
		trajectory = "N/A"
	}
	alertLevel := a.AlertLevel
	if alertLevel == "" {
		alertLevel = "N/A"
	}
	reportText := a.ReportText
	if reportText == "" {
		reportText = "No AI report available."
	}
	notes := ref.ReferralNotes
	if notes == "" {
		notes = "None provided."
	}
	urgency := ref.Urgency
	if urgency == "" {
		urgency = "routine"
	}
	comorbidities := "None"
	if len(p.Comorbidities) > 0 {
		comorbidities = strings.Join(p.Comorbidities, ", ")
	}
	age := "N/A"
	if p.Age > 0 {
		age = fmt.Sprintf("%d", p.Age)
	}
	woundType := p.WoundType
	if woundType == "" {
		woundType = "N/A"
	}
	woundLocation := p.WoundLocation
	if woundLocation == "" {
		woundLocation = "N/A"
	}

	page := fmt.Sprintf(referralPage,
		html.EscapeString(p.Name),
		age,
		html.EscapeString(woundType),
		html.EscapeString(woundLocation),
		html.EscapeString(comorbidities),
		html.EscapeString(a.VisitDate.Format("2006-01-02 15:04")),
		rows.String(),
		overall,
		html.EscapeString(trajectory),
		changeDisplay,
		strings.ToLower(html.EscapeString(alertLevel)),
		html.EscapeString(alertLevel),
		html.EscapeString(a.AlertDetail),
		html.EscapeString(reportText),
		html.EscapeString(notes),
		strings.ToLower(html.EscapeString(urgency)),
		html.EscapeString(capitalize(urgency)),
	)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

const referralPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Wound Monitor Clinical Referral</title>
<style>
  body { font-family: Arial, Helvetica, sans-serif; margin: 2em; color: #222; line-height: 1.5; }
  h1 { color: #1a5276; border-bottom: 2px solid #1a5276; padding-bottom: 0.3em; }
  h2 { color: #2c3e50; margin-top: 1.5em; }
  table { border-collapse: collapse; width: 100%%; margin: 0.5em 0; }
  th, td { border: 1px solid #bbb; padding: 0.5em 0.8em; text-align: left; }
  th { background: #eaf2f8; }
  .alert-red { color: #c0392b; font-weight: bold; }
  .alert-orange { color: #e67e22; font-weight: bold; }
  .alert-yellow { color: #f1c40f; font-weight: bold; }
  .alert-green { color: #27ae60; font-weight: bold; }
  .urgency-emergency { color: #c0392b; font-weight: bold; text-transform: uppercase; }
  .urgency-urgent { color: #e67e22; font-weight: bold; text-transform: uppercase; }
  .urgency-routine { color: #2c3e50; }
  .report { background: #f9f9f9; border-left: 4px solid #1a5276; padding: 1em; white-space: pre-wrap; }
  .footer { margin-top: 2em; padding-top: 1em; border-top: 1px solid #ccc; font-size: 0.85em; color: #888; }
</style>
</head>
<body>

<h1>Wound Monitor &mdash; Clinical Referral</h1>

<h2>Patient Information</h2>
<table>
  <tr><th>Name</th><td>%s</td></tr>
  <tr><th>Age</th><td>%s</td></tr>
  <tr><th>Wound Type</th><td>%s</td></tr>
  <tr><th>Wound Location</th><td>%s</td></tr>
  <tr><th>Comorbidities</th><td>%s</td></tr>
</table>

<h2>Assessment</h2>
<p><strong>Date:</strong> %s</p>

<h2>TIME Scores</h2>
<table>
  <tr><th>Dimension</th><th>Type</th><th>Score</th></tr>
  %s
</table>
<p><strong>Overall Healing Score:</strong> %s</p>

<h2>Trajectory &amp; Change</h2>
<p><strong>Trajectory:</strong> %s</p>
<p><strong>Change Score:</strong> %s</p>

<h2>Alert</h2>
<p class="alert-%s"><strong>Level:</strong> %s</p>
<p>%s</p>

<h2>AI Clinical Report</h2>
<div class="report">%s</div>

<h2>Nurse Notes</h2>
<p>%s</p>

<h2>Urgency</h2>
<p class="urgency-%s">%s</p>

<div class="footer">
  Generated by Wound Monitor AI &mdash; For clinical review only
</div>

</body>
</html>`
