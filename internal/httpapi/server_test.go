package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"woundchrono/internal/alert"
	"woundchrono/internal/pipeline"
	"woundchrono/internal/report"
	"woundchrono/internal/store"
	"woundchrono/internal/trajectory"
	"woundchrono/internal/wat"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAnalyzer struct {
	result *pipeline.Result
	err    error
}

func (s *stubAnalyzer) Analyze(_ context.Context, id string) (*pipeline.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	res.AssessmentID = id
	return &res, nil
}

type stubPDF struct{ err error }

func (s *stubPDF) Render(_ context.Context, _ string, _ report.PDFMeta) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

func testServer(t *testing.T, analyzer Analyzer, pdf PDFRenderer) (*gin.Engine, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	uploadDir := filepath.Join(dir, "uploads")
	r := NewRouter(Options{
		Store:     st,
		Analyzer:  analyzer,
		PDF:       pdf,
		UploadDir: uploadDir,
	})
	return r, st, uploadDir
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, content := range files {
		fw, err := mw.CreateFormFile(field, field+".jpg")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func createTestPatient(t *testing.T, st *store.Store) *store.Patient {
	t.Helper()
	p, err := st.CreatePatient(store.NewPatientInput{
		Name:      "Maria Santos",
		Age:       67,
		WoundType: "venous ulcer",
	})
	require.NoError(t, err)
	return p
}

func TestCreateAndGetPatient(t *testing.T) {
	r, _, _ := testServer(t, nil, nil)

	w := doJSON(t, r, http.MethodPost, "/api/patients", map[string]any{
		"name":          "Maria Santos",
		"age":           67,
		"wound_type":    "venous ulcer",
		"comorbidities": []string{"diabetes"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created patientSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Len(t, created.Token, 12)
	assert.Equal(t, 0, created.AssessmentCount)

	w = doJSON(t, r, http.MethodGet, "/api/patients/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/patients/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePatientRequiresName(t *testing.T) {
	r, _, _ := testServer(t, nil, nil)
	w := doJSON(t, r, http.MethodPost, "/api/patients", map[string]any{"age": 50})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreateAssessmentUpload(t *testing.T) {
	r, st, uploadDir := testServer(t, nil, nil)
	p := createTestPatient(t, st)

	body, contentType := multipartBody(t,
		map[string]string{
			"patient_id": p.ID,
			"text_notes": "slight redness",
			"visit_date": "2026-05-01",
		},
		map[string][]byte{"image": []byte("fake-jpeg-bytes")},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/assessments", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp assessmentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, p.ID, resp.PatientID)
	assert.Equal(t, "slight redness", resp.TextNotes)
	assert.True(t, strings.HasPrefix(resp.ImageURL, "/uploads/"), resp.ImageURL)
	require.Len(t, resp.Images, 1)
	assert.True(t, resp.Images[0].IsPrimary)

	// The file landed under the upload dir.
	stored, err := st.GetAssessment(resp.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.ImagePath, uploadDir), stored.ImagePath)
}

func TestCreateAssessmentValidation(t *testing.T) {
	r, st, _ := testServer(t, nil, nil)
	p := createTestPatient(t, st)

	body, contentType := multipartBody(t, map[string]string{"patient_id": "ghost"},
		map[string][]byte{"image": []byte("x")})
	req := httptest.NewRequest(http.MethodPost, "/api/assessments", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body, contentType = multipartBody(t, map[string]string{"patient_id": p.ID}, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/assessments", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func analysisFixture() *pipeline.Result {
	it := wat.NeutralItems()
	it.Size = 2
	it.Granulation = 2
	change := 0.12
	return &pipeline.Result{
		Scored:        wat.NewResult(it, nil),
		ScoringSource: "observation",
		Trajectory:    trajectory.Improving,
		ChangeScore:   &change,
		Report:        "# Wound Assessment Report",
		Alert:         alert.Alert{Level: alert.Green},
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	r, st, _ := testServer(t, &stubAnalyzer{result: analysisFixture()}, nil)
	p := createTestPatient(t, st)
	a, err := st.CreateAssessment(store.NewAssessmentInput{PatientID: p.ID, ImagePath: "/img/x.jpg"})
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodPost, "/api/assessments/"+a.ID+"/analyze", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp analysisResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, a.ID, resp.AssessmentID)
	assert.Equal(t, "improving", resp.Trajectory)
	assert.Equal(t, "green", resp.AlertLevel)
	assert.Equal(t, "observation", resp.ScoringSource)
	assert.Len(t, resp.TimeClassification, 4)
	assert.NotZero(t, resp.WATTotal)
}

func TestAnalyzeMissingAssessment(t *testing.T) {
	r, _, _ := testServer(t, &stubAnalyzer{result: analysisFixture()}, nil)
	w := doJSON(t, r, http.MethodPost, "/api/assessments/ghost/analyze", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyzeWithoutModels(t *testing.T) {
	r, _, _ := testServer(t, nil, nil)
	w := doJSON(t, r, http.MethodPost, "/api/assessments/any/analyze", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAnalyzePipelineError(t *testing.T) {
	fail := &stubAnalyzer{err: &pipeline.StepError{Step: "scoring", Err: errors.New("model down")}}
	r, st, _ := testServer(t, fail, nil)
	p := createTestPatient(t, st)
	a, err := st.CreateAssessment(store.NewAssessmentInput{PatientID: p.ID, ImagePath: "/img/x.jpg"})
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodPost, "/api/assessments/"+a.ID+"/analyze", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTrajectoryEndpoint(t *testing.T) {
	r, st, _ := testServer(t, nil, nil)
	p := createTestPatient(t, st)
	a, err := st.CreateAssessment(store.NewAssessmentInput{PatientID: p.ID, ImagePath: "/img/x.jpg"})
	require.NoError(t, err)
	_, err = st.UpdateAssessment(a.ID, map[string]any{
		"tissue_score": 0.6,
		"trajectory":   "baseline",
	})
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodGet, "/api/patients/"+p.ID+"/trajectory", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var points []trajectoryPoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &points))
	require.Len(t, points, 1)
	require.NotNil(t, points[0].TissueScore)
	assert.Equal(t, 0.6, *points[0].TissueScore)
	assert.Equal(t, "baseline", points[0].Trajectory)
}

func TestPatientReportFlow(t *testing.T) {
	r, st, _ := testServer(t, nil, nil)
	p := createTestPatient(t, st)

	w := doJSON(t, r, http.MethodGet, "/api/patient-report/"+p.Token+"/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "M***", info["patient_name"])

	body, contentType := multipartBody(t, map[string]string{"note": "photo from home"},
		map[string][]byte{"image": []byte("fake")})
	req := httptest.NewRequest(http.MethodPost, "/api/patient-report/"+p.Token, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assessments, err := st.ListPatientAssessments(p.ID)
	require.NoError(t, err)
	require.Len(t, assessments, 1)
	assert.Equal(t, "patient", assessments[0].Source)
	assert.Equal(t, "photo from home", assessments[0].TextNotes)

	w = doJSON(t, r, http.MethodGet, "/api/patient-report/badtoken/info", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReferralLifecycle(t *testing.T) {
	r, st, _ := testServer(t, nil, nil)
	p := createTestPatient(t, st)
	a, err := st.CreateAssessment(store.NewAssessmentInput{PatientID: p.ID, ImagePath: "/img/x.jpg"})
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodPost, "/api/referrals", map[string]any{
		"patient_id":     p.ID,
		"assessment_id":  a.ID,
		"urgency":        "urgent",
		"referral_notes": "needs vascular consult",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ref store.Referral
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ref))
	assert.Equal(t, "pending", ref.Status)

	w = doJSON(t, r, http.MethodPost, "/api/referrals", map[string]any{
		"patient_id":    p.ID,
		"assessment_id": a.ID,
		"urgency":       "asap",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, r, http.MethodPatch, "/api/referrals/"+ref.ID, map[string]any{"status": "sent"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPatch, "/api/referrals/"+ref.ID, map[string]any{"status": "lost"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/patients/"+p.ID+"/referrals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var refs []store.Referral
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refs))
	require.Len(t, refs, 1)
	assert.Equal(t, "sent", refs[0].Status)
}

func TestReferralSummaryHTML(t *testing.T) {
	r, st, _ := testServer(t, nil, nil)
	p := createTestPatient(t, st)
	a, err := st.CreateAssessment(store.NewAssessmentInput{PatientID: p.ID, ImagePath: "/img/x.jpg"})
	require.NoError(t, err)
	_, err = st.UpdateAssessment(a.ID, map[string]any{
		"tissue_type":  "patchy granulation",
		"tissue_score": 0.55,
		"alert_level":  "yellow",
		"trajectory":   "stable",
		"report_text":  "Report body <with markup>",
	})
	require.NoError(t, err)
	ref, err := st.CreateReferral(store.NewReferralInput{
		PatientID:     p.ID,
		AssessmentID:  a.ID,
		Urgency:       "emergency",
		ReferralNotes: "deep tissue involvement",
	})
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodGet, "/api/referrals/"+ref.ID+"/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	html := w.Body.String()
	assert.Contains(t, html, "Maria Santos")
	assert.Contains(t, html, "patchy granulation")
	assert.Contains(t, html, "5.5/10")
	assert.Contains(t, html, "urgency-emergency")
	assert.Contains(t, html, "deep tissue involvement")
	// Report markup is escaped, not injected.
	assert.Contains(t, html, "&lt;with markup&gt;")
}

func TestReportPDFEndpoint(t *testing.T) {
	r, st, _ := testServer(t, nil, &stubPDF{})
	p := createTestPatient(t, st)
	a, err := st.CreateAssessment(store.NewAssessmentInput{PatientID: p.ID, ImagePath: "/img/x.jpg"})
	require.NoError(t, err)

	// No report yet.
	w := doJSON(t, r, http.MethodGet, "/api/assessments/"+a.ID+"/report.pdf", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err = st.UpdateAssessment(a.ID, map[string]any{"report_text": "# Report"})
	require.NoError(t, err)
	w = doJSON(t, r, http.MethodGet, "/api/assessments/"+a.ID+"/report.pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestExportTrajectoryEndpoint(t *testing.T) {
	r, st, _ := testServer(t, nil, nil)
	p := createTestPatient(t, st)
	_, err := st.CreateAssessment(store.NewAssessmentInput{PatientID: p.ID, ImagePath: "/img/x.jpg"})
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodGet, "/api/patients/"+p.ID+"/export.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "wound-trajectory-"+p.ID)
	// xlsx is a zip archive.
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = doJSON(t, r, http.MethodGet, "/api/patients/ghost/export.xlsx", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSHeaders(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	r := NewRouter(Options{Store: st, CORSOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/patients", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
