// Package config provides configuration management for the narrative
// analysis server.
//
// Configuration can be loaded from multiple sources (in order of
// precedence):
//  1. Environment variables (highest priority)
//  2. Configuration file (JSON)
//  3. Default values (lowest priority)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pauubach/narrassist/internal/logging"
)

// Config represents the complete server configuration.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	Analysis   AnalysisConfig   `json:"analysis"`
	Embeddings EmbeddingsConfig `json:"embeddings"`
	LLM        LLMConfig        `json:"llm"`
	Identity   IdentityConfig   `json:"identity"`
	Neo4j      Neo4jConfig      `json:"neo4j"`
	Logging    logging.Config   `json:"logging"`
}

// ServerConfig contains server-level configuration.
type ServerConfig struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// StorageConfig selects and tunes the storage backend.
type StorageConfig struct {
	// Type is "sqlite" or "memory".
	Type string `json:"type"`
	// Path is the SQLite database file.
	Path string `json:"path"`
	// BusyTimeoutMs is passed to the SQLite driver.
	BusyTimeoutMs int `json:"busy_timeout_ms"`
	// MaxSnapshotsPerProject caps retained snapshots (newest kept).
	MaxSnapshotsPerProject int `json:"max_snapshots_per_project"`
}

// AnalysisConfig tunes the NLP pipeline.
type AnalysisConfig struct {
	// MethodWeights are the fixed voter weights per scoring method.
	MethodWeights map[string]float64 `json:"method_weights"`
	// MaxAntecedentDistance bounds candidate search, in sentences.
	MaxAntecedentDistance int `json:"max_antecedent_distance"`
	// UseChapterBoundaries keeps candidates within the anaphor's chapter.
	UseChapterBoundaries bool `json:"use_chapter_boundaries"`
	// Speech-change window parameters.
	SpeechWindowSize    int `json:"speech_window_size"`
	SpeechWindowOverlap int `json:"speech_window_overlap"`
	SpeechMinWords      int `json:"speech_min_words_per_window"`
	// SpeechMinConfidence gates speech-change alert creation.
	SpeechMinConfidence float64 `json:"speech_min_confidence"`
	// MetricsCacheSize bounds the speech metrics LRU.
	MetricsCacheSize int `json:"metrics_cache_size"`
	// MinSeverity filters alert creation uniformly across detectors.
	MinSeverity string `json:"min_severity"`
	// RedundancyMode is fast, balanced or thorough.
	RedundancyMode string `json:"redundancy_mode"`
}

// EmbeddingsConfig tunes the embedding capability.
type EmbeddingsConfig struct {
	Enabled   bool   `json:"enabled"`
	Dimension int    `json:"dimension"`
	CacheSize int    `json:"cache_size"`
	CacheTTL  time.Duration `json:"cache_ttl"`
	// PersistPath is accepted in the configuration but no component
	// reads it: the redundancy detector keeps its ANN index in memory.
	PersistPath string `json:"persist_path,omitempty"`
}

// LLMConfig tunes the optional LLM capability.
type LLMConfig struct {
	Enabled     bool          `json:"enabled"`
	BaseURL     string        `json:"base_url"`
	Model       string        `json:"model"`
	Timeout     time.Duration `json:"timeout"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// IdentityConfig tunes the manuscript identity gate.
type IdentityConfig struct {
	// UncertainLimit30d is the rolling-window uncertainty budget per
	// license subject.
	UncertainLimit30d int `json:"uncertain_limit_30d"`
}

// Neo4jConfig enables the optional cross-book graph export. An empty
// URI leaves the no-op exporter in place.
type Neo4jConfig struct {
	URI      string `json:"uri,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:        "narrassist",
			Version:     "dev",
			Environment: "development",
		},
		Storage: StorageConfig{
			Type:                   "sqlite",
			Path:                   "narrassist.db",
			BusyTimeoutMs:          5000,
			MaxSnapshotsPerProject: 10,
		},
		Analysis: AnalysisConfig{
			MethodWeights: map[string]float64{
				"embeddings": 0.30,
				"llm":        0.35,
				"morphology": 0.20,
				"heuristics": 0.15,
			},
			MaxAntecedentDistance: 3,
			UseChapterBoundaries:  true,
			SpeechWindowSize:      3,
			SpeechWindowOverlap:   1,
			SpeechMinWords:        200,
			SpeechMinConfidence:   0.6,
			MetricsCacheSize:      1000,
			MinSeverity:           "info",
			RedundancyMode:        "balanced",
		},
		Embeddings: EmbeddingsConfig{
			Enabled:   true,
			Dimension: 256,
			CacheSize: 10000,
			CacheTTL:  24 * time.Hour,
		},
		LLM: LLMConfig{
			Enabled:     false,
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.1:8b",
			Timeout:     60 * time.Second,
			MaxTokens:   300,
			Temperature: 0.1,
		},
		Identity: IdentityConfig{UncertainLimit30d: 3},
		Logging:  logging.DefaultConfig(),
	}
}

// Load reads configuration from an optional file path and applies
// environment overrides on top of defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from NARRASSIST_* variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("NARRASSIST_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("NARRASSIST_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("NARRASSIST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("NARRASSIST_LLM_ENABLED"); v != "" {
		c.LLM.Enabled = parseBool(v, c.LLM.Enabled)
	}
	if v := os.Getenv("NARRASSIST_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("NARRASSIST_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("NARRASSIST_EMBEDDINGS_ENABLED"); v != "" {
		c.Embeddings.Enabled = parseBool(v, c.Embeddings.Enabled)
	}
	if v := os.Getenv("NARRASSIST_MAX_SNAPSHOTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Storage.MaxSnapshotsPerProject = n
		}
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if c.Storage.Type == "sqlite" && c.Storage.Path == "" {
		return fmt.Errorf("sqlite storage requires a path")
	}
	if c.Storage.MaxSnapshotsPerProject < 1 {
		return fmt.Errorf("max_snapshots_per_project must be >= 1")
	}
	var sum float64
	for m, w := range c.Analysis.MethodWeights {
		if w < 0 {
			return fmt.Errorf("negative weight for method %q", m)
		}
		sum += w
	}
	if len(c.Analysis.MethodWeights) > 0 && sum == 0 {
		return fmt.Errorf("method weights sum to zero")
	}
	switch strings.ToLower(c.Analysis.RedundancyMode) {
	case "fast", "balanced", "thorough":
	default:
		return fmt.Errorf("unknown redundancy mode %q", c.Analysis.RedundancyMode)
	}
	return nil
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}
