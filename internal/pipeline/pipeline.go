// Package pipeline orchestrates the per-assessment analysis: vision model
// calls, wound scoring with its fallback chain, trajectory, contradiction
// checking, report generation, and alert determination.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"woundchrono/internal/alert"
	"woundchrono/internal/contradiction"
	"woundchrono/internal/model"
	"woundchrono/internal/normalize"
	"woundchrono/internal/report"
	"woundchrono/internal/store"
	"woundchrono/internal/trajectory"
	"woundchrono/internal/wat"
)

// StepError names the pipeline step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepNameFromError extracts the failing step, or "pipeline" for errors
// raised outside a named step.
func StepNameFromError(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return "pipeline"
}

type StepProgressFn func(step, message string)

// AssessmentStore is the persistence surface the pipeline needs.
// *store.Store satisfies it.
type AssessmentStore interface {
	GetAssessment(id string) (*store.Assessment, error)
	GetPatient(id string) (*store.Patient, error)
	LatestAnalyzed(q store.LatestQuery) (*store.Assessment, error)
	UpdateAssessment(id string, fields map[string]any) (*store.Assessment, error)
}

// Agent runs the analysis pipeline. Collaborators are injected at
// construction; the agent itself holds no mutable state, so one agent can
// serve concurrent requests.
type Agent struct {
	store    AssessmentStore
	gen      model.Generator
	vision   model.VisionModel
	asr      model.Transcriber
	detector *contradiction.Detector
	policy   wat.Policy
	log      *zap.Logger
	tracer   trace.Tracer
}

func NewAgent(st AssessmentStore, gen model.Generator, vision model.VisionModel, asr model.Transcriber, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	arbiter := &modelArbiter{gen: gen}
	return &Agent{
		store:    st,
		gen:      gen,
		vision:   vision,
		asr:      asr,
		detector: contradiction.New(arbiter, log),
		policy:   wat.PolicyGeneral,
		log:      log,
		tracer:   otel.Tracer("woundchrono/pipeline"),
	}
}

// Result is the full outcome of one analysis run: the structured values
// plus the persisted field map.
type Result struct {
	AssessmentID  string
	Scored        wat.Result
	Flags         wat.RedFlags
	ScoringSource string
	Trajectory    trajectory.Trajectory
	ChangeScore   *float64
	Verdict       contradiction.Verdict
	NurseNotes    string
	Report        string
	Alert         alert.Alert
	Fields        map[string]any
}

func (a *Agent) Analyze(ctx context.Context, assessmentID string) (*Result, error) {
	return a.analyze(ctx, assessmentID, nil)
}

func (a *Agent) AnalyzeWithProgress(ctx context.Context, assessmentID string, progress StepProgressFn) (*Result, error) {
	return a.analyze(ctx, assessmentID, progress)
}

func (a *Agent) analyze(ctx context.Context, assessmentID string, progress StepProgressFn) (*Result, error) {
	ctx, span := a.tracer.Start(ctx, "pipeline.analyze",
		trace.WithAttributes(attribute.String("assessment.id", assessmentID)))
	defer span.End()
	started := time.Now()

	assessment, err := a.store.GetAssessment(assessmentID)
	if err != nil {
		return nil, &StepError{Step: "lookup", Err: err}
	}
	patient, err := a.store.GetPatient(assessment.PatientID)
	if err != nil {
		return nil, &StepError{Step: "lookup", Err: fmt.Errorf("patient %s: %w", assessment.PatientID, err)}
	}

	image, err := os.ReadFile(assessment.ImagePath)
	if err != nil {
		return nil, &StepError{Step: "image", Err: err}
	}

	isBurn := strings.Contains(strings.ToLower(patient.WoundType), "burn")
	labels := model.WoundLabels
	if isBurn {
		labels = model.BurnLabels
	}

	emit(progress, "embedding", "Computing embedding and zero-shot probabilities")
	embedding, zeroShot, err := a.embedStep(ctx, image, labels)
	if err != nil {
		return nil, &StepError{Step: "embedding", Err: err}
	}

	emit(progress, "scoring", "Scoring wound assessment items")
	scored, flags, source := a.scoreStep(ctx, image, zeroShot)
	scored = ensureItems(scored, assessment.DimensionScores(), zeroShot)

	emit(progress, "trajectory", "Classifying healing trajectory")
	prior, err := a.store.LatestAnalyzed(store.LatestQuery{
		PatientID: assessment.PatientID,
		ExcludeID: assessment.ID,
		Before:    assessment.VisitDate,
	})
	var changeScore *float64
	var priorScores map[wat.Dimension]float64
	traj := trajectory.Baseline
	switch {
	case err == nil:
		if prev, derr := model.DecodeEmbedding(prior.Embedding); derr == nil {
			cs := model.CosineDistance(embedding, prev)
			changeScore = &cs
		}
		priorScores = prior.DimensionScores()
		traj = trajectory.Classify(scored.Scores, priorScores)
	case errors.Is(err, store.ErrNotFound):
		a.log.Info("no prior analyzed assessment, marking baseline",
			zap.String("assessment_id", assessmentID))
	default:
		return nil, &StepError{Step: "trajectory", Err: err}
	}

	notes := a.notesStep(ctx, assessment, progress)

	emit(progress, "contradiction", "Checking notes against trajectory")
	var verdict contradiction.Verdict
	if notes != "" && traj != trajectory.Baseline {
		verdict = a.detector.Detect(ctx, traj, notes)
	}

	emit(progress, "report", "Generating clinical report")
	reportText := a.reportStep(ctx, image, patient, assessment, scored, traj, changeScore, priorScores, notes, verdict)

	emit(progress, "alert", "Determining alert level")
	al := alert.Determine(alert.Input{
		Total:               scored.Total,
		Trajectory:          traj,
		Flags:               flags,
		Contradiction:       verdict.Contradiction,
		ContradictionDetail: verdict.Detail,
	})

	res := &Result{
		AssessmentID:  assessmentID,
		Scored:        scored,
		Flags:         flags,
		ScoringSource: source,
		Trajectory:    traj,
		ChangeScore:   changeScore,
		Verdict:       verdict,
		NurseNotes:    notes,
		Report:        reportText,
		Alert:         al,
	}
	res.Fields = a.persistFields(res, embedding, zeroShot)

	if _, err := a.store.UpdateAssessment(assessmentID, res.Fields); err != nil {
		return nil, &StepError{Step: "persist", Err: err}
	}

	a.log.Info("analysis complete",
		zap.String("assessment_id", assessmentID),
		zap.String("scoring_source", source),
		zap.String("trajectory", string(traj)),
		zap.String("alert", string(al.Level)),
		zap.Duration("elapsed", time.Since(started)),
	)
	span.SetAttributes(
		attribute.String("scoring.source", source),
		attribute.String("trajectory", string(traj)),
		attribute.String("alert.level", string(al.Level)),
	)
	return res, nil
}

func (a *Agent) embedStep(ctx context.Context, image []byte, labels []string) ([]float32, map[string]float64, error) {
	ctx, span := a.tracer.Start(ctx, "pipeline.embed")
	defer span.End()

	embedding, err := a.vision.Embed(ctx, image)
	if err != nil {
		return nil, nil, fmt.Errorf("embed: %w", err)
	}
	zeroShot, err := a.vision.ZeroShot(ctx, image, labels)
	if err != nil {
		// Zero-shot feeds a fallback path only; scoring can proceed without it.
		a.log.Warn("zero-shot classification failed", zap.Error(err))
		zeroShot = map[string]float64{}
	}
	return embedding, zeroShot, nil
}

func (a *Agent) scoreStep(ctx context.Context, image []byte, zeroShot map[string]float64) (wat.Result, wat.RedFlags, string) {
	ctx, span := a.tracer.Start(ctx, "pipeline.score")
	defer span.End()
	return a.scoreWound(ctx, image, zeroShot)
}

// notesStep transcribes audio when present and merges it with typed notes.
// Transcription failure degrades to the typed notes alone.
func (a *Agent) notesStep(ctx context.Context, assessment *store.Assessment, progress StepProgressFn) string {
	notes := ""
	if assessment.AudioPath != "" {
		emit(progress, "transcription", "Transcribing nurse audio notes")
		transcript, err := a.asr.Transcribe(ctx, assessment.AudioPath)
		if err != nil {
			a.log.Warn("audio transcription failed", zap.Error(err))
		} else {
			notes = transcript
		}
	}
	if typed := strings.TrimSpace(assessment.TextNotes); typed != "" {
		if notes != "" {
			notes = notes + "\n\nAdditional typed notes: " + typed
		} else {
			notes = typed
		}
	}
	return notes
}

func (a *Agent) reportStep(ctx context.Context, image []byte, patient *store.Patient, assessment *store.Assessment, scored wat.Result, traj trajectory.Trajectory, changeScore *float64, priorScores map[wat.Dimension]float64, notes string, verdict contradiction.Verdict) string {
	ctx, span := a.tracer.Start(ctx, "pipeline.report")
	defer span.End()

	rctx := report.Context{
		PatientName:    patient.Name,
		WoundType:      patient.WoundType,
		WoundLocation:  patient.WoundLocation,
		VisitDate:      assessment.VisitDate,
		Trajectory:     string(traj),
		ChangeScore:    changeScore,
		PreviousScores: priorScores,
	}
	prompt := report.BuildPrompt(rctx, &scored, notes, verdict)
	raw, err := a.gen.Generate(ctx, image, prompt, model.GenerateOptions{
		Mode:      model.ModeFineTuned,
		MaxTokens: 1500,
	})
	if err != nil {
		a.log.Warn("report generation call failed", zap.Error(err))
		return report.Markdown(report.Data{}, rctx, &scored)
	}

	data, err := report.Parse(raw)
	if err != nil {
		a.log.Warn("report reply unparseable, keeping raw text", zap.Error(err))
		return raw
	}

	if len(data.NurseAnswers) == 0 && report.HasQuestions(notes) {
		data.NurseAnswers = a.answerQuestions(ctx, image, notes, scored)
	}
	return report.Markdown(data, rctx, &scored)
}

// answerQuestions runs the dedicated Q&A pass against the base model. The
// scoring adapter is tuned for structured output and gives poor free-text
// answers, so this call switches it off.
func (a *Agent) answerQuestions(ctx context.Context, image []byte, notes string, scored wat.Result) []string {
	questions := report.ExtractQuestions(notes)
	if len(questions) == 0 {
		return nil
	}
	prompt := report.BuildQuestionPrompt(questions, &scored)
	raw, err := a.gen.Generate(ctx, image, prompt, model.GenerateOptions{
		Mode:      model.ModeBase,
		MaxTokens: 400,
	})
	if err != nil {
		a.log.Warn("nurse question answering failed", zap.Error(err))
		return nil
	}
	return report.ParseAnswers(raw, questions)
}

func (a *Agent) persistFields(res *Result, embedding []float32, zeroShot map[string]float64) map[string]any {
	fields := map[string]any{
		"embedding":            model.EncodeEmbedding(embedding),
		"zeroshot_scores":      marshal(zeroShot),
		"wat_items":            marshal(res.Scored.Items),
		"wat_total":            res.Scored.Total,
		"red_flags":            marshal(res.Flags.Names()),
		"nurse_notes":          res.NurseNotes,
		"trajectory":           string(res.Trajectory),
		"contradiction_flag":   res.Verdict.Contradiction,
		"contradiction_detail": res.Verdict.Detail,
		"report_text":          res.Report,
		"alert_level":          string(res.Alert.Level),
		"alert_detail":         res.Alert.Detail,
	}
	for _, d := range wat.Dimensions {
		fields[string(d)+"_score"] = res.Scored.Scores[d]
	}
	fields["tissue_type"] = res.Scored.Descriptions[wat.DimTissue]
	fields["inflammation"] = res.Scored.Descriptions[wat.DimInflammation]
	fields["moisture"] = res.Scored.Descriptions[wat.DimMoisture]
	fields["edge"] = res.Scored.Descriptions[wat.DimEdge]
	if res.ChangeScore != nil {
		fields["change_score"] = *res.ChangeScore
	}
	return fields
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func emit(progress StepProgressFn, step, message string) {
	if progress != nil {
		progress(step, message)
	}
}

// modelArbiter resolves ambiguous contradiction checks through the
// generator. No image belongs to this call, so the neutral placeholder
// stands in.
type modelArbiter struct {
	gen model.Generator
}

func (m *modelArbiter) Arbitrate(ctx context.Context, traj trajectory.Trajectory, notes string) (contradiction.Verdict, error) {
	prompt := fmt.Sprintf(
		"The wound assessment determined the trajectory is '%s'. "+
			"The nurse recorded the following notes: '%s'. "+
			"Determine if there is a meaningful contradiction between the assessment and nurse notes. "+
			`Return ONLY valid JSON: {"contradiction": true/false, "detail": "explanation or null"}`,
		traj, notes,
	)
	raw, err := m.gen.Generate(ctx, model.PlaceholderImage, prompt, model.GenerateOptions{
		Mode:      model.ModeBase,
		MaxTokens: 200,
	})
	if err != nil {
		return contradiction.Verdict{}, err
	}
	obj, err := normalize.Object(raw)
	if err != nil {
		return contradiction.Verdict{}, err
	}
	return contradiction.ParseVerdict(obj), nil
}
