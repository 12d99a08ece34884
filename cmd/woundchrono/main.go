package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"woundchrono/internal/config"
	"woundchrono/internal/httpapi"
	"woundchrono/internal/model"
	"woundchrono/internal/pipeline"
	"woundchrono/internal/report"
	"woundchrono/internal/store"
	"woundchrono/internal/sweep"
	"woundchrono/internal/telemetry"
)

func main() {
	var (
		addr   = flag.String("addr", "", "Listen address (overrides WOUNDCHRONO_ADDR)")
		dbPath = flag.String("db", "", "SQLite database path (overrides WOUNDCHRONO_DATABASE_PATH)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Fatal("create upload dir", zap.Error(err))
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	gen, vision, asr, err := buildModels(cfg)
	if err != nil {
		logger.Fatal("init models", zap.Error(err))
	}
	agent := pipeline.NewAgent(st, gen, vision, asr, logger)

	sweeper := sweep.New(st, agent, logger)
	if cfg.SweepSchedule != "" {
		c, err := sweeper.Schedule(ctx, cfg.SweepSchedule)
		if err != nil {
			logger.Fatal("schedule sweep", zap.Error(err))
		}
		defer c.Stop()
	}

	router := httpapi.NewRouter(httpapi.Options{
		Store:       st,
		Analyzer:    agent,
		PDF:         report.NewChromiumPDFRenderer(),
		UploadDir:   cfg.UploadDir,
		CORSOrigins: cfg.CORSOrigins,
		Log:         logger,
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	logger.Info("woundchrono listening",
		zap.String("addr", cfg.Addr),
		zap.String("db", cfg.DBPath),
		zap.String("model_backend", cfg.ModelBackend))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serve", zap.Error(err))
	}
}

// buildModels picks the generator backend and the vision/transcription
// providers. Vision and audio always come from the local inference server
// unless running fully mocked; the hosted APIs only cover text generation.
func buildModels(cfg *config.Config) (model.Generator, model.VisionModel, model.Transcriber, error) {
	if cfg.ModelBackend == "mock" {
		m := model.Mock{}
		return m, m, m, nil
	}

	inference := model.NewInferenceClient(cfg.InferenceURL, 2*time.Minute)
	switch cfg.ModelBackend {
	case "inference":
		return inference, inference, inference, nil
	case "anthropic":
		gen, err := model.NewAnthropicGeneratorFromEnv()
		if err != nil {
			return nil, nil, nil, err
		}
		return gen, inference, inference, nil
	case "openai":
		gen, err := model.NewOpenAIGeneratorFromEnv()
		if err != nil {
			return nil, nil, nil, err
		}
		return gen, inference, inference, nil
	}
	return nil, nil, nil, errors.New("unknown model backend " + cfg.ModelBackend)
}
