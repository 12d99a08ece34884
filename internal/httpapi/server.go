// Package httpapi exposes the REST surface: patient and assessment CRUD,
// uploads, the analyze trigger, trajectory series, patient self-reporting
// links and clinical referrals.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"woundchrono/internal/export"
	"woundchrono/internal/pipeline"
	"woundchrono/internal/report"
	"woundchrono/internal/store"
)

// Analyzer runs the scoring pipeline for one assessment.
type Analyzer interface {
	Analyze(ctx context.Context, assessmentID string) (*pipeline.Result, error)
}

// PDFRenderer turns a report's markdown into a printable PDF.
type PDFRenderer interface {
	Render(ctx context.Context, markdown string, meta report.PDFMeta) ([]byte, error)
}

type Server struct {
	st        *store.Store
	analyzer  Analyzer
	pdf       PDFRenderer
	uploadDir string
	log       *zap.Logger
}

type Options struct {
	Store       *store.Store
	Analyzer    Analyzer
	PDF         PDFRenderer
	UploadDir   string
	CORSOrigins []string
	Log         *zap.Logger
}

// NewRouter builds the gin engine with all routes mounted under /api and
// uploaded files served at /uploads.
func NewRouter(opts Options) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		st:        opts.Store,
		analyzer:  opts.Analyzer,
		pdf:       opts.PDF,
		uploadDir: opts.UploadDir,
		log:       log,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log), cors(opts.CORSOrigins))
	r.MaxMultipartMemory = 32 << 20

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.uploadDir != "" {
		r.Static("/uploads", s.uploadDir)
	}

	api := r.Group("/api")
	api.POST("/patients", s.createPatient)
	api.GET("/patients", s.listPatients)
	api.GET("/patients/:id", s.getPatient)
	api.GET("/patients/:id/assessments", s.listPatientAssessments)
	api.GET("/patients/:id/trajectory", s.getTrajectory)
	api.GET("/patients/:id/referrals", s.listPatientReferrals)
	api.GET("/patients/:id/export.xlsx", s.exportTrajectory)

	api.POST("/assessments", s.createAssessment)
	api.GET("/assessments/:id", s.getAssessment)
	api.POST("/assessments/:id/analyze", s.analyzeAssessment)
	api.POST("/assessments/:id/images", s.addAssessmentImages)
	api.GET("/assessments/:id/report.pdf", s.getReportPDF)

	api.GET("/patient-report/:token/info", s.patientReportInfo)
	api.POST("/patient-report/:token", s.patientReportUpload)

	api.POST("/referrals", s.createReferral)
	api.GET("/referrals/:id/summary", s.referralSummary)
	api.PATCH("/referrals/:id", s.updateReferral)

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func cors(origins []string) gin.HandlerFunc {
	allowed := map[string]bool{}
	all := false
	for _, o := range origins {
		if o == "*" {
			all = true
		}
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (all || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func httpError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

// notFoundOr500 maps store lookup failures to the right status.
func (s *Server) notFoundOr500(c *gin.Context, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		httpError(c, http.StatusNotFound, what+" not found.")
		return
	}
	s.log.Error("store error", zap.Error(err))
	httpError(c, http.StatusInternalServerError, err.Error())
}

// patientSummary enriches the stored patient with the latest analysis state
// and the counts the dashboard needs.
type patientSummary struct {
	store.Patient
	LatestTrajectory     string `json:"latest_trajectory,omitempty"`
	LatestAlertLevel     string `json:"latest_alert_level,omitempty"`
	AssessmentCount      int    `json:"assessment_count"`
	PatientReportedCount int    `json:"patient_reported_count"`
}

func (s *Server) patientSummary(p *store.Patient) patientSummary {
	out := patientSummary{Patient: *p}
	if assessments, err := s.st.ListPatientAssessments(p.ID); err == nil {
		out.AssessmentCount = len(assessments)
	}
	if latest, err := s.st.LatestAnalyzed(store.LatestQuery{PatientID: p.ID}); err == nil {
		out.LatestTrajectory = latest.Trajectory
		out.LatestAlertLevel = latest.AlertLevel
	}
	if n, err := s.st.CountUnanalyzedPatientReported(p.ID); err == nil {
		out.PatientReportedCount = n
	}
	return out
}

func (s *Server) createPatient(c *gin.Context) {
	var input store.NewPatientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		httpError(c, http.StatusBadRequest, "invalid patient body: "+err.Error())
		return
	}
	if strings.TrimSpace(input.Name) == "" {
		httpError(c, http.StatusUnprocessableEntity, "name is required")
		return
	}
	p, err := s.st.CreatePatient(input)
	if err != nil {
		httpError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, s.patientSummary(p))
}

func (s *Server) listPatients(c *gin.Context) {
	patients, err := s.st.ListPatients()
	if err != nil {
		httpError(c, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]patientSummary, 0, len(patients))
	for i := range patients {
		out = append(out, s.patientSummary(&patients[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getPatient(c *gin.Context) {
	p, err := s.st.GetPatient(c.Param("id"))
	if err != nil {
		s.notFoundOr500(c, err, "Patient")
		return
	}
	c.JSON(http.StatusOK, s.patientSummary(p))
}

type assessmentResponse struct {
	store.Assessment
	ImageURL string                  `json:"image_url,omitempty"`
	AudioURL string                  `json:"audio_url,omitempty"`
	Images   []store.AssessmentImage `json:"images"`
}

func (s *Server) assessmentResponse(a *store.Assessment) assessmentResponse {
	out := assessmentResponse{
		Assessment: *a,
		ImageURL:   s.toURL(a.ImagePath),
		AudioURL:   s.toURL(a.AudioPath),
		Images:     []store.AssessmentImage{},
	}
	if images, err := s.st.ListAssessmentImages(a.ID); err == nil {
		for i := range images {
			images[i].ImagePath = s.toURL(images[i].ImagePath)
		}
		out.Images = images
	}
	return out
}

// toURL maps a stored upload path to its /uploads URL; paths outside the
// upload dir pass through unchanged.
func (s *Server) toURL(path string) string {
	if path == "" || s.uploadDir == "" {
		return path
	}
	prefix := strings.TrimSuffix(s.uploadDir, "/") + "/"
	if strings.HasPrefix(path, prefix) {
		return "/uploads/" + path[len(prefix):]
	}
	return path
}

func (s *Server) saveUpload(c *gin.Context, file *multipart.FileHeader, subdir string) (string, error) {
	base := filepath.Base(file.Filename)
	if base == "" || base == "." || base == "/" {
		base = "upload"
	}
	base = strings.ReplaceAll(base, " ", "_")
	name := fmt.Sprintf("%s_%s_%s",
		time.Now().UTC().Format("20060102_150405"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		base)
	dir := filepath.Join(s.uploadDir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (s *Server) createAssessment(c *gin.Context) {
	patientID := c.PostForm("patient_id")
	if patientID == "" {
		httpError(c, http.StatusUnprocessableEntity, "patient_id is required")
		return
	}
	if _, err := s.st.GetPatient(patientID); err != nil {
		s.notFoundOr500(c, err, "Patient")
		return
	}
	image, err := c.FormFile("image")
	if err != nil {
		httpError(c, http.StatusUnprocessableEntity, "image file is required")
		return
	}

	imagePath, err := s.saveUpload(c, image, filepath.Join("patients", patientID, "images"))
	if err != nil {
		httpError(c, http.StatusInternalServerError, "failed to save image: "+err.Error())
		return
	}

	var audioPath string
	if audio, aerr := c.FormFile("audio"); aerr == nil {
		audioPath, err = s.saveUpload(c, audio, filepath.Join("patients", patientID, "audio"))
		if err != nil {
			httpError(c, http.StatusInternalServerError, "failed to save audio: "+err.Error())
			return
		}
	}

	var visitDate time.Time
	if raw := c.PostForm("visit_date"); raw != "" {
		visitDate, err = parseVisitDate(raw)
		if err != nil {
			httpError(c, http.StatusUnprocessableEntity, "invalid visit_date: "+err.Error())
			return
		}
	}

	a, err := s.st.CreateAssessment(store.NewAssessmentInput{
		PatientID: patientID,
		VisitDate: visitDate,
		ImagePath: imagePath,
		AudioPath: audioPath,
		TextNotes: c.PostForm("text_notes"),
	})
	if err != nil {
		httpError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.st.AddAssessmentImage(a.ID, imagePath, true, ""); err != nil {
		s.log.Warn("record primary image", zap.Error(err))
	}

	if form, err := c.MultipartForm(); err == nil {
		for _, extra := range form.File["additional_images"] {
			path, err := s.saveUpload(c, extra, filepath.Join("patients", patientID, "images"))
			if err != nil {
				s.log.Warn("save additional image", zap.Error(err))
				continue
			}
			if _, err := s.st.AddAssessmentImage(a.ID, path, false, ""); err != nil {
				s.log.Warn("record additional image", zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusCreated, s.assessmentResponse(a))
}

func parseVisitDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func (s *Server) getAssessment(c *gin.Context) {
	a, err := s.st.GetAssessment(c.Param("id"))
	if err != nil {
		s.notFoundOr500(c, err, "Assessment")
		return
	}
	c.JSON(http.StatusOK, s.assessmentResponse(a))
}

func (s *Server) listPatientAssessments(c *gin.Context) {
	patientID := c.Param("id")
	if _, err := s.st.GetPatient(patientID); err != nil {
		s.notFoundOr500(c, err, "Patient")
		return
	}
	assessments, err := s.st.ListPatientAssessments(patientID)
	if err != nil {
		httpError(c, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]assessmentResponse, 0, len(assessments))
	for i := range assessments {
		out = append(out, s.assessmentResponse(&assessments[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) addAssessmentImages(c *gin.Context) {
	a, err := s.st.GetAssessment(c.Param("id"))
	if err != nil {
		s.notFoundOr500(c, err, "Assessment")
		return
	}
	form, err := c.MultipartForm()
	if err != nil || len(form.File["images"]) == 0 {
		httpError(c, http.StatusUnprocessableEntity, "at least one image is required")
		return
	}
	for _, file := range form.File["images"] {
		path, err := s.saveUpload(c, file, filepath.Join("patients", a.PatientID, "images"))
		if err != nil {
			httpError(c, http.StatusInternalServerError, "failed to save image: "+err.Error())
			return
		}
		if _, err := s.st.AddAssessmentImage(a.ID, path, false, ""); err != nil {
			httpError(c, http.StatusInternalServerError, err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, s.assessmentResponse(a))
}

type timeScore struct {
	Type  string   `json:"type"`
	Score *float64 `json:"score"`
}

type analysisResponse struct {
	AssessmentID        string               `json:"assessment_id"`
	TimeClassification  map[string]timeScore `json:"time_classification"`
	WATItems            map[string]int       `json:"wat_items"`
	WATTotal            int                  `json:"wat_total"`
	ScoringSource       string               `json:"scoring_source"`
	RedFlags            []string             `json:"red_flags"`
	ZeroShotScores      map[string]float64   `json:"zeroshot_scores"`
	Trajectory          string               `json:"trajectory"`
	ChangeScore         *float64             `json:"change_score,omitempty"`
	ContradictionFlag   bool                 `json:"contradiction_flag"`
	ContradictionDetail string               `json:"contradiction_detail,omitempty"`
	ReportText          string               `json:"report_text"`
	AlertLevel          string               `json:"alert_level"`
	AlertDetail         string               `json:"alert_detail,omitempty"`
}

func (s *Server) analyzeAssessment(c *gin.Context) {
	if s.analyzer == nil {
		httpError(c, http.StatusServiceUnavailable,
			"Models not loaded. Set WOUNDCHRONO_MOCK_MODELS=true for dev mode or wait for startup.")
		return
	}
	id := c.Param("id")
	if _, err := s.st.GetAssessment(id); err != nil {
		s.notFoundOr500(c, err, "Assessment")
		return
	}

	res, err := s.analyzer.Analyze(c.Request.Context(), id)
	if err != nil {
		step := pipeline.StepNameFromError(err)
		switch {
		case step == "lookup":
			s.notFoundOr500(c, err, "Assessment")
		case step == "image" && errors.Is(err, fs.ErrNotExist):
			httpError(c, http.StatusNotFound, "Image file not found.")
		case step == "image":
			httpError(c, http.StatusUnprocessableEntity, "Cannot open image file: "+err.Error())
		default:
			s.log.Error("analysis failed", zap.String("assessment_id", id), zap.Error(err))
			httpError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	cls := make(map[string]timeScore, len(res.Scored.Scores))
	for dim, score := range res.Scored.Scores {
		v := score
		cls[string(dim)] = timeScore{Type: res.Scored.Descriptions[dim], Score: &v}
	}
	zeroShot := map[string]float64{}
	if a, err := s.st.GetAssessment(id); err == nil && a.ZeroShotScores != nil {
		zeroShot = a.ZeroShotScores
	}
	flags := res.Flags.Names()
	if flags == nil {
		flags = []string{}
	}
	c.JSON(http.StatusOK, analysisResponse{
		AssessmentID:        res.AssessmentID,
		TimeClassification:  cls,
		WATItems:            res.Scored.Items.ToMap(),
		WATTotal:            res.Scored.Total,
		ScoringSource:       res.ScoringSource,
		RedFlags:            flags,
		ZeroShotScores:      zeroShot,
		Trajectory:          string(res.Trajectory),
		ChangeScore:         res.ChangeScore,
		ContradictionFlag:   res.Verdict.Contradiction,
		ContradictionDetail: res.Verdict.Detail,
		ReportText:          res.Report,
		AlertLevel:          string(res.Alert.Level),
		AlertDetail:         res.Alert.Detail,
	})
}

type trajectoryPoint struct {
	VisitDate         time.Time `json:"visit_date"`
	TissueScore       *float64  `json:"tissue_score,omitempty"`
	InflammationScore *float64  `json:"inflammation_score,omitempty"`
	MoistureScore     *float64  `json:"moisture_score,omitempty"`
	EdgeScore         *float64  `json:"edge_score,omitempty"`
	WATTotal          *int      `json:"wat_total,omitempty"`
	Trajectory        string    `json:"trajectory,omitempty"`
	ChangeScore       *float64  `json:"change_score,omitempty"`
}

func (s *Server) getTrajectory(c *gin.Context) {
	patientID := c.Param("id")
	if _, err := s.st.GetPatient(patientID); err != nil {
		s.notFoundOr500(c, err, "Patient")
		return
	}
	assessments, err := s.st.ListPatientAssessments(patientID)
	if err != nil {
		httpError(c, http.StatusInternalServerError, err.Error())
		return
	}
	points := make([]trajectoryPoint, 0, len(assessments))
	for _, a := range assessments {
		points = append(points, trajectoryPoint{
			VisitDate:         a.VisitDate,
			TissueScore:       a.TissueScore,
			InflammationScore: a.InflammationScore,
			MoistureScore:     a.MoistureScore,
			EdgeScore:         a.EdgeScore,
			WATTotal:          a.Total,
			Trajectory:        a.Trajectory,
			ChangeScore:       a.ChangeScore,
		})
	}
	c.JSON(http.StatusOK, points)
}

func (s *Server) exportTrajectory(c *gin.Context) {
	p, err := s.st.GetPatient(c.Param("id"))
	if err != nil {
		s.notFoundOr500(c, err, "Patient")
		return
	}
	assessments, err := s.st.ListPatientAssessments(p.ID)
	if err != nil {
		httpError(c, http.StatusInternalServerError, err.Error())
		return
	}
	data, err := export.Trajectory(p, assessments)
	if err != nil {
		s.log.Error("export trajectory", zap.Error(err))
		httpError(c, http.StatusInternalServerError, "failed to build workbook: "+err.Error())
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=wound-trajectory-%s.xlsx", p.ID))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (s *Server) patientReportInfo(c *gin.Context) {
	p, err := s.st.GetPatientByToken(c.Param("token"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpError(c, http.StatusNotFound, "Invalid link.")
			return
		}
		httpError(c, http.StatusInternalServerError, err.Error())
		return
	}
	masked := "Patient"
	if p.Name != "" {
		masked = string([]rune(p.Name)[0]) + "***"
	}
	c.JSON(http.StatusOK, gin.H{
		"patient_name":   masked,
		"wound_type":     p.WoundType,
		"wound_location": p.WoundLocation,
	})
}

func (s *Server) patientReportUpload(c *gin.Context) {
	p, err := s.st.GetPatientByToken(c.Param("token"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpError(c, http.StatusNotFound, "Invalid link.")
			return
		}
		httpError(c, http.StatusInternalServerError, err.Error())
		return
	}
	image, err := c.FormFile("image")
	if err != nil {
		httpError(c, http.StatusUnprocessableEntity, "image file is required")
		return
	}
	path, err := s.saveUpload(c, image, filepath.Join("patients", p.ID, "images"))
	if err != nil {
		httpError(c, http.StatusInternalServerError, "failed to save image: "+err.Error())
		return
	}
	a, err := s.st.CreateAssessment(store.NewAssessmentInput{
		PatientID: p.ID,
		ImagePath: path,
		Source:    "patient",
		TextNotes: c.PostForm("note"),
	})
	if err != nil {
		httpError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.st.AddAssessmentImage(a.ID, path, true, ""); err != nil {
		s.log.Warn("record patient-reported image", zap.Error(err))
	}
	c.JSON(http.StatusCreated, gin.H{
		"assessment_id": a.ID,
		"message":       "Photo received. Your nurse will be notified.",
	})
}

var (
	validUrgency        = map[string]bool{"routine": true, "urgent": true, "emergency": true}
	validReferralStatus = map[string]bool{"pending": true, "sent": true, "reviewed": true}
)

func (s *Server) createReferral(c *gin.Context) {
	var input store.NewReferralInput
	if err := c.ShouldBindJSON(&input); err != nil {
		httpError(c, http.StatusBadRequest, "invalid referral body: "+err.Error())
		return
	}
	if _, err := s.st.GetPatient(input.PatientID); err != nil {
		s.notFoundOr500(c, err, "Patient")
		return
	}
	if _, err := s.st.GetAssessment(input.AssessmentID); err != nil {
		s.notFoundOr500(c, err, "Assessment")
		return
	}
	if input.Urgency != "" && !validUrgency[input.Urgency] {
		httpError(c, http.StatusUnprocessableEntity, "Invalid urgency. Must be one of: emergency, routine, urgent")
		return
	}
	ref, err := s.st.CreateReferral(input)
	if err != nil {
		httpError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, ref)
}

func (s *Server) listPatientReferrals(c *gin.Context) {
	patientID := c.Param("id")
	if _, err := s.st.GetPatient(patientID); err != nil {
		s.notFoundOr500(c, err, "Patient")
		return
	}
	refs, err := s.st.ListPatientReferrals(patientID)
	if err != nil {
		httpError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, refs)
}

func (s *Server) updateReferral(c *gin.Context) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if !validReferralStatus[body.Status] {
		httpError(c, http.StatusUnprocessableEntity, "Invalid status. Must be one of: pending, reviewed, sent")
		return
	}
	ref, err := s.st.UpdateReferral(c.Param("id"), map[string]any{"status": body.Status})
	if err != nil {
		s.notFoundOr500(c, err, "Referral")
		return
	}
	c.JSON(http.StatusOK, ref)
}

func (s *Server) getReportPDF(c *gin.Context) {
	if s.pdf == nil {
		httpError(c, http.StatusServiceUnavailable, "PDF rendering is not available.")
		return
	}
	a, err := s.st.GetAssessment(c.Param("id"))
	if err != nil {
		s.notFoundOr500(c, err, "Assessment")
		return
	}
	if a.ReportText == "" {
		httpError(c, http.StatusNotFound, "No report available; run analysis first.")
		return
	}
	meta := report.PDFMeta{
		VisitDate:  a.VisitDate,
		AlertLevel: a.AlertLevel,
		Trajectory: a.Trajectory,
	}
	if p, err := s.st.GetPatient(a.PatientID); err == nil {
		meta.PatientName = p.Name
		meta.WoundType = p.WoundType
	}
	pdf, err := s.pdf.Render(c.Request.Context(), a.ReportText, meta)
	if err != nil {
		s.log.Error("render report pdf", zap.Error(err))
		httpError(c, http.StatusInternalServerError, "failed to render PDF: "+err.Error())
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=wound-report-%s.pdf", a.ID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
