package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "inference", cfg.ModelBackend)
	assert.False(t, cfg.MockModels)
}

func TestMockModelsForcesBackend(t *testing.T) {
	t.Setenv("WOUNDCHRONO_MOCK_MODELS", "true")
	t.Setenv("WOUNDCHRONO_MODEL_BACKEND", "anthropic")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.ModelBackend)
}

func TestInvalidBackend(t *testing.T) {
	t.Setenv("WOUNDCHRONO_MODEL_BACKEND", "llama")
	_, err := Load()
	assert.Error(t, err)
}

func TestCORSOriginList(t *testing.T) {
	t.Setenv("WOUNDCHRONO_CORS_ORIGINS", "http://a.example, http://b.example ,")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
}
