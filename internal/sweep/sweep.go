// Package sweep periodically drains assessments that were uploaded but never
// analyzed, such as patient self-reports submitted outside clinic hours.
package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"woundchrono/internal/pipeline"
	"woundchrono/internal/store"
)

// Analyzer matches the pipeline agent's entry point.
type Analyzer interface {
	Analyze(ctx context.Context, assessmentID string) (*pipeline.Result, error)
}

type Sweeper struct {
	st       *store.Store
	analyzer Analyzer
	log      *zap.Logger

	// BatchLimit caps how many assessments one pass processes.
	BatchLimit int
	// Timeout bounds each individual analysis.
	Timeout time.Duration
}

func New(st *store.Store, analyzer Analyzer, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		st:         st,
		analyzer:   analyzer,
		log:        log,
		BatchLimit: 20,
		Timeout:    5 * time.Minute,
	}
}

// Run processes one batch of pending assessments and returns how many were
// analyzed successfully. Failures are logged and skipped so one bad upload
// cannot wedge the queue.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	pending, err := s.st.ListUnanalyzed(s.BatchLimit)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	s.log.Info("sweep started", zap.Int("pending", len(pending)))

	done := 0
	for _, a := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		actx, cancel := context.WithTimeout(ctx, s.Timeout)
		res, err := s.analyzer.Analyze(actx, a.ID)
		cancel()
		if err != nil {
			s.log.Warn("sweep analysis failed",
				zap.String("assessment_id", a.ID),
				zap.String("step", pipeline.StepNameFromError(err)),
				zap.Error(err))
			continue
		}
		s.log.Info("sweep analyzed",
			zap.String("assessment_id", a.ID),
			zap.String("alert_level", string(res.Alert.Level)),
			zap.String("trajectory", string(res.Trajectory)))
		done++
	}
	return done, nil
}

// Schedule registers the sweep on a cron expression and starts the scheduler.
// The returned cron runs until its Stop is called.
func (s *Sweeper) Schedule(ctx context.Context, expr string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		if _, err := s.Run(ctx); err != nil {
			s.log.Error("sweep pass failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
