// Command assess runs the analysis pipeline for one assessment from the
// command line and prints the outcome as JSON. With -image it first creates
// the assessment record, which makes local smoke tests a one-liner:
//
//	assess -db ./data/woundchrono.db -patient <id> -image wound.jpg -mock
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"woundchrono/internal/model"
	"woundchrono/internal/pipeline"
	"woundchrono/internal/store"
)

func main() {
	var (
		dbPath       = flag.String("db", "./data/woundchrono.db", "SQLite database path")
		assessmentID = flag.String("id", "", "Assessment ID to analyze")
		patientID    = flag.String("patient", "", "Patient ID (required with -image)")
		imagePath    = flag.String("image", "", "Create a new assessment from this image first")
		notes        = flag.String("notes", "", "Typed nurse notes for the new assessment")
		mock         = flag.Bool("mock", false, "Use deterministic mock models")
		inferenceURL = flag.String("inference-url", "http://localhost:9090", "Inference server base URL")
		timeout      = flag.Duration("timeout", 5*time.Minute, "Overall analysis timeout")
	)
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	id := *assessmentID
	if *imagePath != "" {
		if *patientID == "" {
			log.Fatal("-patient is required with -image")
		}
		a, err := st.CreateAssessment(store.NewAssessmentInput{
			PatientID: *patientID,
			ImagePath: *imagePath,
			TextNotes: *notes,
		})
		if err != nil {
			log.Fatal(err)
		}
		id = a.ID
		log.Printf("created assessment %s", id)
	}
	if id == "" {
		log.Fatal("either -id or -image is required")
	}

	var gen model.Generator
	var vision model.VisionModel
	var asr model.Transcriber
	if *mock {
		m := model.Mock{}
		gen, vision, asr = m, m, m
	} else {
		c := model.NewInferenceClient(*inferenceURL, *timeout)
		gen, vision, asr = c, c, c
	}

	agent := pipeline.NewAgent(st, gen, vision, asr, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := agent.AnalyzeWithProgress(ctx, id, func(step, message string) {
		log.Printf("[%s] %s", step, message)
	})
	if err != nil {
		log.Fatalf("analysis failed at step %q: %v", pipeline.StepNameFromError(err), err)
	}

	out := map[string]any{
		"assessment_id":  res.AssessmentID,
		"wat_total":      res.Scored.Total,
		"wat_items":      res.Scored.Items.ToMap(),
		"scoring_source": res.ScoringSource,
		"red_flags":      res.Flags.Names(),
		"trajectory":     res.Trajectory,
		"change_score":   res.ChangeScore,
		"contradiction":  res.Verdict.Contradiction,
		"alert_level":    res.Alert.Level,
		"alert_detail":   res.Alert.Detail,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal(err)
	}
	fmt.Fprintln(os.Stderr, "---")
	fmt.Fprintln(os.Stderr, res.Report)
}
