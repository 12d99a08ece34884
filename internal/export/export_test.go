package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"woundchrono/internal/store"
)

func ptr[T any](v T) *T { return &v }

func testPatient() *store.Patient {
	return &store.Patient{
		ID:            "p1",
		Name:          "Maria Santos",
		WoundType:     "venous ulcer",
		WoundLocation: "left ankle",
		Comorbidities: []string{"diabetes", "hypertension"},
	}
}

func TestTrajectoryWorkbook(t *testing.T) {
	assessments := []store.Assessment{
		{
			VisitDate:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
			Source:      "nurse",
			TissueScore: ptr(0.6),
			EdgeScore:   ptr(0.5),
			Total:       ptr(30),
			Trajectory:  "baseline",
			AlertLevel:  "green",
		},
		{
			VisitDate:           time.Date(2026, 5, 8, 0, 0, 0, 0, time.UTC),
			Source:              "patient",
			TissueScore:         ptr(0.45),
			Total:               ptr(38),
			Trajectory:          "deteriorating",
			ChangeScore:         ptr(-0.15),
			AlertLevel:          "orange",
			ContradictionFlag:   true,
			ContradictionDetail: "notes disagree with image",
		},
	}

	data, err := Trajectory(testPatient(), assessments)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Trajectory")
	require.NoError(t, err)

	// Summary block, blank spacer, header, two data rows.
	require.GreaterOrEqual(t, len(rows), 8)
	assert.Equal(t, []string{"Patient", "Maria Santos"}, rows[0][:2])
	assert.Equal(t, "diabetes, hypertension", rows[3][1])

	header := rows[5]
	assert.Equal(t, "Visit Date", header[0])
	assert.Equal(t, "Contradiction", header[len(trajectoryHeader)-1])

	first := rows[6]
	assert.Equal(t, "2026-05-01", first[0])
	assert.Equal(t, "6.0", first[2])
	assert.Equal(t, "30", first[6])

	second := rows[7]
	assert.Equal(t, "deteriorating", second[7])
	assert.Equal(t, "-0.15", second[8])
	assert.Equal(t, "notes disagree with image", second[10])
}

func TestTrajectoryEmptyHistory(t *testing.T) {
	data, err := Trajectory(testPatient(), nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Trajectory")
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "Visit Date", rows[5][0])
}
