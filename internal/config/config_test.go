package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 10, cfg.Storage.MaxSnapshotsPerProject)
	assert.Equal(t, 3, cfg.Analysis.SpeechWindowSize)
	assert.Equal(t, 200, cfg.Analysis.SpeechMinWords)
	assert.False(t, cfg.LLM.Enabled, "the LLM is opt-in")

	// The shipped voter weights.
	assert.InDelta(t, 0.35, cfg.Analysis.MethodWeights["llm"], 1e-9)
	assert.InDelta(t, 0.30, cfg.Analysis.MethodWeights["embeddings"], 1e-9)
	assert.InDelta(t, 0.20, cfg.Analysis.MethodWeights["morphology"], 1e-9)
	assert.InDelta(t, 0.15, cfg.Analysis.MethodWeights["heuristics"], 1e-9)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"storage": {"type": "memory", "path": "", "busy_timeout_ms": 1000, "max_snapshots_per_project": 5},
		"analysis": {
			"method_weights": {"morphology": 1.0},
			"max_antecedent_distance": 5,
			"use_chapter_boundaries": false,
			"speech_window_size": 4,
			"speech_window_overlap": 1,
			"speech_min_words_per_window": 100,
			"speech_min_confidence": 0.5,
			"metrics_cache_size": 10,
			"min_severity": "warning",
			"redundancy_mode": "fast"
		}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 5, cfg.Storage.MaxSnapshotsPerProject)
	assert.Equal(t, 5, cfg.Analysis.MaxAntecedentDistance)
	assert.Equal(t, "fast", cfg.Analysis.RedundancyMode)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NARRASSIST_STORAGE_TYPE", "memory")
	t.Setenv("NARRASSIST_LOG_LEVEL", "debug")
	t.Setenv("NARRASSIST_MAX_SNAPSHOTS", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Storage.MaxSnapshotsPerProject)
}

func TestValidation(t *testing.T) {
	cfg := Default()
	cfg.Storage.Type = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.Path = ""
	assert.Error(t, cfg.Validate(), "sqlite requires a path")

	cfg = Default()
	cfg.Analysis.MethodWeights = map[string]float64{"morphology": -1}
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Analysis.RedundancyMode = "extreme"
	assert.Error(t, cfg.Validate())
}
