// Package config loads service settings from the environment. All
// variables carry the WOUNDCHRONO_ prefix; a local .env file is honored
// when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string
	DBPath    string
	DataDir   string
	UploadDir string

	// ModelBackend selects the generator implementation: "inference" for
	// the local model server, "anthropic", "openai", or "mock".
	ModelBackend string
	InferenceURL string

	MockModels bool

	OTLPEndpoint  string
	SweepSchedule string

	CORSOrigins []string
}

// Load reads .env if present and then the process environment. Environment
// values win over .env, matching godotenv's non-overload semantics.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:          env("ADDR", ":8080"),
		DBPath:        env("DATABASE_PATH", "./data/woundchrono.db"),
		DataDir:       env("DATA_DIR", "./data"),
		UploadDir:     env("UPLOAD_DIR", "./data/uploads"),
		ModelBackend:  env("MODEL_BACKEND", "inference"),
		InferenceURL:  env("INFERENCE_URL", "http://localhost:9090"),
		OTLPEndpoint:  env("OTLP_ENDPOINT", ""),
		SweepSchedule: env("SWEEP_SCHEDULE", "@every 5m"),
		CORSOrigins:   splitList(env("CORS_ORIGINS", "http://localhost:3000")),
	}

	mock, err := boolEnv("MOCK_MODELS", false)
	if err != nil {
		return nil, err
	}
	cfg.MockModels = mock
	if cfg.MockModels {
		cfg.ModelBackend = "mock"
	}

	switch cfg.ModelBackend {
	case "inference", "anthropic", "openai", "mock":
	default:
		return nil, fmt.Errorf("config: unknown model backend %q", cfg.ModelBackend)
	}
	return cfg, nil
}

func env(key, fallback string) string {
	if v := os.Getenv("WOUNDCHRONO_" + key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv("WOUNDCHRONO_" + key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: invalid boolean for WOUNDCHRONO_%s: %q", key, v)
	}
	return parsed, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
