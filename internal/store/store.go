// Package store persists patients, assessments, and referrals to SQLite.
package store

import (
	"errors"
	"time"

	"woundchrono/internal/wat"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

type Patient struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Age               int       `json:"age,omitempty"`
	Sex               string    `json:"sex,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	WoundType         string    `json:"wound_type,omitempty"`
	WoundLocation     string    `json:"wound_location,omitempty"`
	Comorbidities     []string  `json:"comorbidities"`
	Physician         string    `json:"referring_physician,omitempty"`
	PhysicianSpecial  string    `json:"referring_physician_specialty,omitempty"`
	PhysicianFacility string    `json:"referring_physician_facility,omitempty"`
	PhysicianPhone    string    `json:"referring_physician_phone,omitempty"`
	PhysicianEmail    string    `json:"referring_physician_email,omitempty"`
	PhysicianContact  string    `json:"referring_physician_preferred_contact,omitempty"`
	Token             string    `json:"patient_token"`
	CreatedAt         time.Time `json:"created_at"`
}

// Assessment is one wound check-in: the uploaded media plus everything the
// analysis pipeline filled in. Pointer fields are NULL until analysis runs.
type Assessment struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	VisitDate time.Time `json:"visit_date"`
	ImagePath string    `json:"image_path"`
	Source    string    `json:"source"`

	TissueType        string   `json:"tissue_type,omitempty"`
	TissueScore       *float64 `json:"tissue_score,omitempty"`
	Inflammation      string   `json:"inflammation,omitempty"`
	InflammationScore *float64 `json:"inflammation_score,omitempty"`
	Moisture          string   `json:"moisture,omitempty"`
	MoistureScore     *float64 `json:"moisture_score,omitempty"`
	Edge              string   `json:"edge,omitempty"`
	EdgeScore         *float64 `json:"edge_score,omitempty"`

	Items    *wat.Items `json:"wat_items,omitempty"`
	Total    *int       `json:"wat_total,omitempty"`
	RedFlags []string   `json:"red_flags,omitempty"`

	Embedding      []byte             `json:"-"`
	ZeroShotScores map[string]float64 `json:"zeroshot_scores,omitempty"`

	AudioPath  string `json:"audio_path,omitempty"`
	NurseNotes string `json:"nurse_notes,omitempty"`
	TextNotes  string `json:"text_notes,omitempty"`

	ChangeScore         *float64 `json:"change_score,omitempty"`
	Trajectory          string   `json:"trajectory,omitempty"`
	ContradictionFlag   bool     `json:"contradiction_flag"`
	ContradictionDetail string   `json:"contradiction_detail,omitempty"`
	ReportText          string   `json:"report_text,omitempty"`
	AlertLevel          string   `json:"alert_level,omitempty"`
	AlertDetail         string   `json:"alert_detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Analyzed reports whether the pipeline has processed this assessment.
// An embedding is written in the same update as the scores, so its
// presence is the marker.
func (a *Assessment) Analyzed() bool {
	return len(a.Embedding) > 0
}

// DimensionScores returns the per-dimension healing scores that have been
// filled in, keyed by dimension.
func (a *Assessment) DimensionScores() map[wat.Dimension]float64 {
	out := map[wat.Dimension]float64{}
	if a.TissueScore != nil {
		out[wat.DimTissue] = *a.TissueScore
	}
	if a.InflammationScore != nil {
		out[wat.DimInflammation] = *a.InflammationScore
	}
	if a.MoistureScore != nil {
		out[wat.DimMoisture] = *a.MoistureScore
	}
	if a.EdgeScore != nil {
		out[wat.DimEdge] = *a.EdgeScore
	}
	return out
}

type AssessmentImage struct {
	ID           string    `json:"id"`
	AssessmentID string    `json:"assessment_id"`
	ImagePath    string    `json:"image_path"`
	IsPrimary    bool      `json:"is_primary"`
	Caption      string    `json:"caption,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Referral struct {
	ID               string    `json:"id"`
	AssessmentID     string    `json:"assessment_id"`
	PatientID        string    `json:"patient_id"`
	Urgency          string    `json:"urgency"`
	PhysicianName    string    `json:"physician_name,omitempty"`
	PhysicianContact string    `json:"physician_contact,omitempty"`
	ReferralNotes    string    `json:"referral_notes,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewPatientInput carries the caller-supplied patient fields; the store
// assigns the ID, access token, and creation time.
type NewPatientInput struct {
	Name              string   `json:"name"`
	Age               int      `json:"age"`
	Sex               string   `json:"sex"`
	Phone             string   `json:"phone"`
	WoundType         string   `json:"wound_type"`
	WoundLocation     string   `json:"wound_location"`
	Comorbidities     []string `json:"comorbidities"`
	Physician         string   `json:"referring_physician"`
	PhysicianSpecial  string   `json:"referring_physician_specialty"`
	PhysicianFacility string   `json:"referring_physician_facility"`
	PhysicianPhone    string   `json:"referring_physician_phone"`
	PhysicianEmail    string   `json:"referring_physician_email"`
	PhysicianContact  string   `json:"referring_physician_preferred_contact"`
}

type NewAssessmentInput struct {
	PatientID string
	VisitDate time.Time
	ImagePath string
	Source    string
	AudioPath string
	TextNotes string
}

type NewReferralInput struct {
	AssessmentID     string `json:"assessment_id"`
	PatientID        string `json:"patient_id"`
	Urgency          string `json:"urgency"`
	PhysicianName    string `json:"physician_name"`
	PhysicianContact string `json:"physician_contact"`
	ReferralNotes    string `json:"referral_notes"`
	Status           string `json:"status"`
}

// LatestQuery selects the most recent analyzed assessment for a patient.
// ExcludeID skips the assessment being analyzed; Before restricts to
// strictly earlier visits when re-analyzing historical entries.
type LatestQuery struct {
	PatientID string
	ExcludeID string
	Before    time.Time
}
