package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"woundchrono/internal/wat"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPatientLifecycle(t *testing.T) {
	s := openTestStore(t)

	p, err := s.CreatePatient(NewPatientInput{
		Name:          "Maria Santos",
		Age:           67,
		WoundType:     "diabetic ulcer",
		WoundLocation: "left heel",
		Comorbidities: []string{"diabetes", "hypertension"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Len(t, p.Token, 12)
	assert.Equal(t, []string{"diabetes", "hypertension"}, p.Comorbidities)

	byToken, err := s.GetPatientByToken(p.Token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byToken.ID)

	updated, err := s.UpdatePatient(p.ID, map[string]any{
		"wound_location": "right heel",
		"not_a_column":   "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "right heel", updated.WoundLocation)

	_, err = s.GetPatient("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListPatients()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAssessmentAnalysisFields(t *testing.T) {
	s := openTestStore(t)
	p, err := s.CreatePatient(NewPatientInput{Name: "Test"})
	require.NoError(t, err)

	a, err := s.CreateAssessment(NewAssessmentInput{
		PatientID: p.ID,
		ImagePath: "/uploads/a.jpg",
		TextNotes: "wound looks clean",
	})
	require.NoError(t, err)
	assert.Equal(t, "nurse", a.Source)
	assert.False(t, a.Analyzed())

	items := wat.NeutralItems()
	items.Size = 2
	score := 0.62
	updated, err := s.UpdateAssessment(a.ID, map[string]any{
		"tissue_type":  "granulating",
		"tissue_score": score,
		"wat_items":    marshalJSON(items),
		"wat_total":    items.Total(),
		"red_flags":    marshalJSON([]string{"purulent_discharge"}),
		"embedding":    []byte{1, 2, 3, 4},
		"trajectory":   "improving",
		"alert_level":  "green",
	})
	require.NoError(t, err)
	assert.True(t, updated.Analyzed())
	require.NotNil(t, updated.TissueScore)
	assert.InDelta(t, score, *updated.TissueScore, 1e-9)
	require.NotNil(t, updated.Items)
	assert.Equal(t, 2, updated.Items.Size)
	require.NotNil(t, updated.Total)
	assert.Equal(t, items.Total(), *updated.Total)
	assert.Equal(t, []string{"purulent_discharge"}, updated.RedFlags)

	scores := updated.DimensionScores()
	assert.Len(t, scores, 1)
	assert.InDelta(t, score, scores[wat.DimTissue], 1e-9)
}

func TestLatestAnalyzed(t *testing.T) {
	s := openTestStore(t)
	p, err := s.CreatePatient(NewPatientInput{Name: "Test"})
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		a, err := s.CreateAssessment(NewAssessmentInput{
			PatientID: p.ID,
			VisitDate: base.AddDate(0, 0, i*7),
			ImagePath: "/uploads/x.jpg",
		})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	// Nothing analyzed yet.
	_, err = s.LatestAnalyzed(LatestQuery{PatientID: p.ID})
	assert.ErrorIs(t, err, ErrNotFound)

	for _, id := range ids[:2] {
		_, err := s.UpdateAssessment(id, map[string]any{"embedding": []byte{1}})
		require.NoError(t, err)
	}

	latest, err := s.LatestAnalyzed(LatestQuery{PatientID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, ids[1], latest.ID)

	prior, err := s.LatestAnalyzed(LatestQuery{PatientID: p.ID, ExcludeID: ids[1]})
	require.NoError(t, err)
	assert.Equal(t, ids[0], prior.ID)

	before, err := s.LatestAnalyzed(LatestQuery{PatientID: p.ID, Before: base.AddDate(0, 0, 7)})
	require.NoError(t, err)
	assert.Equal(t, ids[0], before.ID)

	n, err := s.CountUnanalyzedPatientReported(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n) // source was nurse

	unanalyzed, err := s.ListUnanalyzed(10)
	require.NoError(t, err)
	require.Len(t, unanalyzed, 1)
	assert.Equal(t, ids[2], unanalyzed[0].ID)
}

func TestReferralLifecycle(t *testing.T) {
	s := openTestStore(t)
	p, err := s.CreatePatient(NewPatientInput{Name: "Test"})
	require.NoError(t, err)
	a, err := s.CreateAssessment(NewAssessmentInput{PatientID: p.ID, ImagePath: "/uploads/a.jpg"})
	require.NoError(t, err)

	r, err := s.CreateReferral(NewReferralInput{
		AssessmentID:  a.ID,
		PatientID:     p.ID,
		Urgency:       "urgent",
		PhysicianName: "Dr. Chen",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", r.Status)

	updated, err := s.UpdateReferral(r.ID, map[string]any{"status": "accepted"})
	require.NoError(t, err)
	assert.Equal(t, "accepted", updated.Status)

	list, err := s.ListPatientReferrals(p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAssessmentImages(t *testing.T) {
	s := openTestStore(t)
	p, err := s.CreatePatient(NewPatientInput{Name: "Test"})
	require.NoError(t, err)
	a, err := s.CreateAssessment(NewAssessmentInput{PatientID: p.ID, ImagePath: "/uploads/a.jpg"})
	require.NoError(t, err)

	_, err = s.AddAssessmentImage(a.ID, "/uploads/b.jpg", false, "closeup")
	require.NoError(t, err)
	_, err = s.AddAssessmentImage(a.ID, "/uploads/a.jpg", true, "")
	require.NoError(t, err)

	images, err := s.ListAssessmentImages(a.ID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.True(t, images[0].IsPrimary) // primary first
}
