package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"woundchrono/internal/wat"
)

// Store is the SQLite-backed persistence layer. SQLite serves a single
// process here, so the pool is capped at one connection and WAL keeps
// readers from blocking the analysis writer.
type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	age INTEGER,
	sex TEXT,
	phone TEXT,
	wound_type TEXT,
	wound_location TEXT,
	comorbidities TEXT NOT NULL DEFAULT '[]',
	referring_physician TEXT,
	referring_physician_specialty TEXT,
	referring_physician_facility TEXT,
	referring_physician_phone TEXT,
	referring_physician_email TEXT,
	referring_physician_preferred_contact TEXT,
	patient_token TEXT UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS assessments (
	id TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL REFERENCES patients(id),
	visit_date TEXT NOT NULL,
	image_path TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT 'nurse',
	tissue_type TEXT,
	tissue_score REAL,
	inflammation TEXT,
	inflammation_score REAL,
	moisture TEXT,
	moisture_score REAL,
	edge TEXT,
	edge_score REAL,
	wat_items TEXT,
	wat_total INTEGER,
	red_flags TEXT,
	embedding BLOB,
	zeroshot_scores TEXT,
	audio_path TEXT,
	nurse_notes TEXT,
	text_notes TEXT,
	change_score REAL,
	trajectory TEXT,
	contradiction_flag INTEGER NOT NULL DEFAULT 0,
	contradiction_detail TEXT,
	report_text TEXT,
	alert_level TEXT,
	alert_detail TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS assessment_images (
	id TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	image_path TEXT NOT NULL,
	is_primary INTEGER NOT NULL DEFAULT 0,
	caption TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS referrals (
	id TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	patient_id TEXT NOT NULL REFERENCES patients(id),
	urgency TEXT NOT NULL DEFAULT 'routine',
	physician_name TEXT,
	physician_contact TEXT,
	referral_notes TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TEXT NOT NULL
);
`

func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// --- patients ---

const patientCols = `id, name, age, sex, phone, wound_type, wound_location, comorbidities,
	referring_physician, referring_physician_specialty, referring_physician_facility,
	referring_physician_phone, referring_physician_email, referring_physician_preferred_contact,
	patient_token, created_at`

func scanPatient(row interface{ Scan(...any) error }) (*Patient, error) {
	var p Patient
	var age sql.NullInt64
	var sex, phone, woundType, woundLocation sql.NullString
	var physician, specialty, facility, phPhone, phEmail, phContact sql.NullString
	var token sql.NullString
	var comorbidities, createdAt string
	if err := row.Scan(&p.ID, &p.Name, &age, &sex, &phone, &woundType, &woundLocation,
		&comorbidities, &physician, &specialty, &facility, &phPhone, &phEmail, &phContact,
		&token, &createdAt); err != nil {
		return nil, err
	}
	p.Age = int(age.Int64)
	p.Sex = sex.String
	p.Phone = phone.String
	p.WoundType = woundType.String
	p.WoundLocation = woundLocation.String
	p.Physician = physician.String
	p.PhysicianSpecial = specialty.String
	p.PhysicianFacility = facility.String
	p.PhysicianPhone = phPhone.String
	p.PhysicianEmail = phEmail.String
	p.PhysicianContact = phContact.String
	p.Token = token.String
	_ = json.Unmarshal([]byte(comorbidities), &p.Comorbidities)
	if p.Comorbidities == nil {
		p.Comorbidities = []string{}
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func (s *Store) CreatePatient(input NewPatientInput) (*Patient, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := s.db.Exec(`INSERT INTO patients (`+patientCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, input.Name, input.Age, input.Sex, input.Phone, input.WoundType, input.WoundLocation,
		marshalJSON(input.Comorbidities), input.Physician, input.PhysicianSpecial,
		input.PhysicianFacility, input.PhysicianPhone, input.PhysicianEmail, input.PhysicianContact,
		newToken(), timeToString(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return s.GetPatient(id)
}

var patientUpdatable = map[string]bool{
	"name": true, "age": true, "sex": true, "phone": true,
	"wound_type": true, "wound_location": true,
	"referring_physician": true, "referring_physician_specialty": true,
	"referring_physician_facility": true, "referring_physician_phone": true,
	"referring_physician_email": true, "referring_physician_preferred_contact": true,
}

func (s *Store) UpdatePatient(id string, fields map[string]any) (*Patient, error) {
	if err := s.update("patients", id, fields, patientUpdatable); err != nil {
		return nil, err
	}
	return s.GetPatient(id)
}

func (s *Store) GetPatient(id string) (*Patient, error) {
	row := s.db.QueryRow(`SELECT `+patientCols+` FROM patients WHERE id = ?`, id)
	p, err := scanPatient(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) GetPatientByToken(token string) (*Patient, error) {
	row := s.db.QueryRow(`SELECT `+patientCols+` FROM patients WHERE patient_token = ?`, token)
	p, err := scanPatient(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) ListPatients() ([]Patient, error) {
	rows, err := s.db.Query(`SELECT ` + patientCols + ` FROM patients ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// --- assessments ---

const assessmentCols = `id, patient_id, visit_date, image_path, source,
	tissue_type, tissue_score, inflammation, inflammation_score,
	moisture, moisture_score, edge, edge_score,
	wat_items, wat_total, red_flags, embedding, zeroshot_scores,
	audio_path, nurse_notes, text_notes, change_score, trajectory,
	contradiction_flag, contradiction_detail, report_text,
	alert_level, alert_detail, created_at`

func scanAssessment(row interface{ Scan(...any) error }) (*Assessment, error) {
	var a Assessment
	var visitDate, createdAt string
	var source sql.NullString
	var tissueType, inflammation, moisture, edge sql.NullString
	var tissueScore, inflammationScore, moistureScore, edgeScore sql.NullFloat64
	var watItems, redFlags, zeroshot sql.NullString
	var watTotal sql.NullInt64
	var audioPath, nurseNotes, textNotes sql.NullString
	var changeScore sql.NullFloat64
	var trajectory, contradictionDetail, reportText, alertLevel, alertDetail sql.NullString
	var contradictionFlag int
	if err := row.Scan(&a.ID, &a.PatientID, &visitDate, &a.ImagePath, &source,
		&tissueType, &tissueScore, &inflammation, &inflammationScore,
		&moisture, &moistureScore, &edge, &edgeScore,
		&watItems, &watTotal, &redFlags, &a.Embedding, &zeroshot,
		&audioPath, &nurseNotes, &textNotes, &changeScore, &trajectory,
		&contradictionFlag, &contradictionDetail, &reportText,
		&alertLevel, &alertDetail, &createdAt); err != nil {
		return nil, err
	}
	a.VisitDate = parseTime(visitDate)
	a.Source = source.String
	a.TissueType = tissueType.String
	a.Inflammation = inflammation.String
	a.Moisture = moisture.String
	a.Edge = edge.String
	if tissueScore.Valid {
		a.TissueScore = &tissueScore.Float64
	}
	if inflammationScore.Valid {
		a.InflammationScore = &inflammationScore.Float64
	}
	if moistureScore.Valid {
		a.MoistureScore = &moistureScore.Float64
	}
	if edgeScore.Valid {
		a.EdgeScore = &edgeScore.Float64
	}
	if watItems.Valid && watItems.String != "" {
		a.Items = &wat.Items{}
		_ = json.Unmarshal([]byte(watItems.String), a.Items)
	}
	if watTotal.Valid {
		total := int(watTotal.Int64)
		a.Total = &total
	}
	if redFlags.Valid && redFlags.String != "" {
		_ = json.Unmarshal([]byte(redFlags.String), &a.RedFlags)
	}
	if zeroshot.Valid && zeroshot.String != "" {
		_ = json.Unmarshal([]byte(zeroshot.String), &a.ZeroShotScores)
	}
	a.AudioPath = audioPath.String
	a.NurseNotes = nurseNotes.String
	a.TextNotes = textNotes.String
	if changeScore.Valid {
		a.ChangeScore = &changeScore.Float64
	}
	a.Trajectory = trajectory.String
	a.ContradictionFlag = contradictionFlag != 0
	a.ContradictionDetail = contradictionDetail.String
	a.ReportText = reportText.String
	a.AlertLevel = alertLevel.String
	a.AlertDetail = alertDetail.String
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (s *Store) CreateAssessment(input NewAssessmentInput) (*Assessment, error) {
	id := uuid.NewString()
	now := time.Now()
	visit := input.VisitDate
	if visit.IsZero() {
		visit = now
	}
	source := input.Source
	if source == "" {
		source = "nurse"
	}
	_, err := s.db.Exec(`INSERT INTO assessments (id, patient_id, visit_date, image_path, source, audio_path, text_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, input.PatientID, timeToString(visit), input.ImagePath, source,
		nullString(input.AudioPath), nullString(input.TextNotes), timeToString(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert assessment: %w", err)
	}
	return s.GetAssessment(id)
}

func (s *Store) GetAssessment(id string) (*Assessment, error) {
	row := s.db.QueryRow(`SELECT `+assessmentCols+` FROM assessments WHERE id = ?`, id)
	a, err := scanAssessment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

// ListPatientAssessments returns the patient's assessments ordered by visit
// date ascending, so the trajectory chart reads left to right.
func (s *Store) ListPatientAssessments(patientID string) ([]Assessment, error) {
	rows, err := s.db.Query(`SELECT `+assessmentCols+` FROM assessments WHERE patient_id = ? ORDER BY visit_date ASC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

var assessmentUpdatable = map[string]bool{
	"tissue_type": true, "tissue_score": true,
	"inflammation": true, "inflammation_score": true,
	"moisture": true, "moisture_score": true,
	"edge": true, "edge_score": true,
	"wat_items": true, "wat_total": true, "red_flags": true,
	"embedding": true, "zeroshot_scores": true,
	"audio_path": true, "nurse_notes": true, "text_notes": true,
	"change_score": true, "trajectory": true,
	"contradiction_flag": true, "contradiction_detail": true,
	"report_text": true, "alert_level": true, "alert_detail": true,
}

func (s *Store) UpdateAssessment(id string, fields map[string]any) (*Assessment, error) {
	if err := s.update("assessments", id, fields, assessmentUpdatable); err != nil {
		return nil, err
	}
	return s.GetAssessment(id)
}

// LatestAnalyzed returns the most recent assessment matching the query that
// has been through the pipeline. Embedding presence marks analysis.
func (s *Store) LatestAnalyzed(q LatestQuery) (*Assessment, error) {
	conditions := []string{"patient_id = ?", "embedding IS NOT NULL"}
	params := []any{q.PatientID}
	if q.ExcludeID != "" {
		conditions = append(conditions, "id != ?")
		params = append(params, q.ExcludeID)
	}
	if !q.Before.IsZero() {
		conditions = append(conditions, "visit_date < ?")
		params = append(params, timeToString(q.Before))
	}
	query := `SELECT ` + assessmentCols + ` FROM assessments WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY visit_date DESC LIMIT 1`
	row := s.db.QueryRow(query, params...)
	a, err := scanAssessment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

// CountUnanalyzedPatientReported counts patient-submitted check-ins that the
// pipeline has not scored yet.
func (s *Store) CountUnanalyzedPatientReported(patientID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM assessments
		WHERE patient_id = ? AND source = 'patient' AND embedding IS NULL`, patientID).Scan(&n)
	return n, err
}

// ListUnanalyzed returns assessments across all patients that still need
// scoring, oldest first. The background sweep drains this list.
func (s *Store) ListUnanalyzed(limit int) ([]Assessment, error) {
	rows, err := s.db.Query(`SELECT `+assessmentCols+` FROM assessments
		WHERE embedding IS NULL ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// --- assessment images ---

func (s *Store) AddAssessmentImage(assessmentID, imagePath string, isPrimary bool, caption string) (*AssessmentImage, error) {
	img := &AssessmentImage{
		ID:           uuid.NewString(),
		AssessmentID: assessmentID,
		ImagePath:    imagePath,
		IsPrimary:    isPrimary,
		Caption:      caption,
		CreatedAt:    time.Now(),
	}
	_, err := s.db.Exec(`INSERT INTO assessment_images (id, assessment_id, image_path, is_primary, caption, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		img.ID, img.AssessmentID, img.ImagePath, boolToInt(img.IsPrimary),
		nullString(img.Caption), timeToString(img.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert assessment image: %w", err)
	}
	return img, nil
}

func (s *Store) ListAssessmentImages(assessmentID string) ([]AssessmentImage, error) {
	rows, err := s.db.Query(`SELECT id, assessment_id, image_path, is_primary, caption, created_at
		FROM assessment_images WHERE assessment_id = ? ORDER BY is_primary DESC, created_at ASC`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AssessmentImage
	for rows.Next() {
		var img AssessmentImage
		var isPrimary int
		var caption sql.NullString
		var createdAt string
		if err := rows.Scan(&img.ID, &img.AssessmentID, &img.ImagePath, &isPrimary, &caption, &createdAt); err != nil {
			return nil, err
		}
		img.IsPrimary = isPrimary != 0
		img.Caption = caption.String
		img.CreatedAt = parseTime(createdAt)
		out = append(out, img)
	}
	return out, rows.Err()
}

// --- referrals ---

const referralCols = `id, assessment_id, patient_id, urgency, physician_name, physician_contact, referral_notes, status, created_at`

func scanReferral(row interface{ Scan(...any) error }) (*Referral, error) {
	var r Referral
	var physicianName, physicianContact, notes sql.NullString
	var createdAt string
	if err := row.Scan(&r.ID, &r.AssessmentID, &r.PatientID, &r.Urgency,
		&physicianName, &physicianContact, &notes, &r.Status, &createdAt); err != nil {
		return nil, err
	}
	r.PhysicianName = physicianName.String
	r.PhysicianContact = physicianContact.String
	r.ReferralNotes = notes.String
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func (s *Store) CreateReferral(input NewReferralInput) (*Referral, error) {
	id := uuid.NewString()
	urgency := input.Urgency
	if urgency == "" {
		urgency = "routine"
	}
	status := input.Status
	if status == "" {
		status = "pending"
	}
	_, err := s.db.Exec(`INSERT INTO referrals (`+referralCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, input.AssessmentID, input.PatientID, urgency,
		nullString(input.PhysicianName), nullString(input.PhysicianContact),
		nullString(input.ReferralNotes), status, timeToString(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert referral: %w", err)
	}
	return s.GetReferral(id)
}

func (s *Store) GetReferral(id string) (*Referral, error) {
	row := s.db.QueryRow(`SELECT `+referralCols+` FROM referrals WHERE id = ?`, id)
	r, err := scanReferral(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Store) ListPatientReferrals(patientID string) ([]Referral, error) {
	rows, err := s.db.Query(`SELECT `+referralCols+` FROM referrals WHERE patient_id = ? ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Referral
	for rows.Next() {
		r, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

var referralUpdatable = map[string]bool{
	"urgency": true, "physician_name": true, "physician_contact": true,
	"referral_notes": true, "status": true,
}

func (s *Store) UpdateReferral(id string, fields map[string]any) (*Referral, error) {
	if err := s.update("referrals", id, fields, referralUpdatable); err != nil {
		return nil, err
	}
	return s.GetReferral(id)
}

// --- shared helpers ---

// update applies the allowed subset of fields as a single SET clause.
// Column order is sorted so generated SQL is stable for tests and logs.
func (s *Store) update(table, id string, fields map[string]any, allowed map[string]bool) error {
	cols := make([]string, 0, len(fields))
	for k := range fields {
		if allowed[k] {
			cols = append(cols, k)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	sort.Strings(cols)
	set := make([]string, len(cols))
	vals := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		set[i] = c + " = ?"
		vals = append(vals, fields[c])
	}
	vals = append(vals, id)
	res, err := s.db.Exec(`UPDATE `+table+` SET `+strings.Join(set, ", ")+` WHERE id = ?`, vals...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
