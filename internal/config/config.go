// Package config provides configuration management for Evermind.
// Settings come from three layers, later layers overriding earlier ones:
// built-in defaults, an optional YAML file, and environment variables with
// the EVERMIND_ prefix.
//
// All ranking weights, versioning thresholds, and scheduler parameters live
// here so that tests can inject arbitrary configurations deterministically.
// Components receive a *Config snapshot as an argument; nothing reads
// mutable global state. Hot reload is provided by Watcher.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/evermind-ai/evermind/pkg/types"
)

// Config holds all configuration settings for the Evermind memory core.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Versioning VersioningConfig `yaml:"versioning"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: sqlite, postgres (default: sqlite)
	DataPath    string `yaml:"data_path"`    // Path to data directory (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // Postgres connection string (postgres engine only)
}

// RetrievalConfig contains the hybrid ranker weights and thresholds.
// The four signal weights sum to 1.0 by convention; the context score is
// blended in as an additive boost on top.
type RetrievalConfig struct {
	VectorWeight   float64 `yaml:"vector_weight"`   // Embedding similarity weight (default: 0.5)
	EntityWeight   float64 `yaml:"entity_weight"`   // Entity overlap weight (default: 0.3)
	RecencyWeight  float64 `yaml:"recency_weight"`  // Recency weight (default: 0.1)
	TemporalWeight float64 `yaml:"temporal_weight"` // Temporal relevance weight (default: 0.1)

	// ContextBoostWeight scales the context reinstatement boost applied on
	// top of the weighted signal sum (default: 0.1).
	ContextBoostWeight float64 `yaml:"context_boost_weight"`

	// RecencyHalfLifeDays is the half-life of the recency signal (default: 30).
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`

	// AbstentionThreshold: below this top score the ranker abstains entirely
	// (default: 0.3). LowConfidenceThreshold: below this the result set is
	// flagged low-confidence (default: 0.5).
	AbstentionThreshold    float64 `yaml:"abstention_threshold"`
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`

	// MaxFactsPerQuery caps the result list (default: 20).
	MaxFactsPerQuery int `yaml:"max_facts_per_query"`
}

// VersioningConfig contains the fact versioner similarity thresholds.
type VersioningConfig struct {
	// AutoUpdateThreshold: at or above this similarity a candidate is a
	// near-duplicate restatement and is discarded (default: 0.95).
	AutoUpdateThreshold float64 `yaml:"auto_update_threshold"`

	// ConflictSimilarityThreshold: between this and AutoUpdateThreshold a
	// candidate supersedes the current fact (default: 0.85).
	ConflictSimilarityThreshold float64 `yaml:"conflict_similarity_threshold"`

	// RelationFamilyThreshold: embedding similarity at or above which two
	// relation strings are grouped into the same family (default: 0.80).
	RelationFamilyThreshold float64 `yaml:"relation_family_threshold"`
}

// SchedulerConfig contains the spaced-repetition parameters.
type SchedulerConfig struct {
	Parameters types.ParameterVector `yaml:"parameters"`

	// InitialStability seeds the decay state of a newly ingested record
	// before its first review (default: 1.0).
	InitialStability float64 `yaml:"initial_stability"`
}

// EmbeddingConfig contains the embedding collaborator client settings.
type EmbeddingConfig struct {
	Dimension         int     `yaml:"dimension"`           // Vector dimension (default: 1536)
	MaxInputChars     int     `yaml:"max_input_chars"`     // Deterministic truncation bound (default: 8000)
	RequestsPerSecond float64 `yaml:"requests_per_second"` // Rate limit on collaborator calls (default: 10)
	CacheSize         int     `yaml:"cache_size"`          // LRU entries for embedding reuse (default: 4096)
	MaxRetries        int     `yaml:"max_retries"`         // Transient-failure retries (default: 2)
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Retrieval: RetrievalConfig{
			VectorWeight:           0.5,
			EntityWeight:           0.3,
			RecencyWeight:          0.1,
			TemporalWeight:         0.1,
			ContextBoostWeight:     0.1,
			RecencyHalfLifeDays:    30,
			AbstentionThreshold:    0.3,
			LowConfidenceThreshold: 0.5,
			MaxFactsPerQuery:       20,
		},
		Versioning: VersioningConfig{
			AutoUpdateThreshold:         0.95,
			ConflictSimilarityThreshold: 0.85,
			RelationFamilyThreshold:     0.80,
		},
		Scheduler: SchedulerConfig{
			Parameters:       types.DefaultParameters(),
			InitialStability: 1.0,
		},
		Embedding: EmbeddingConfig{
			Dimension:         1536,
			MaxInputChars:     8000,
			RequestsPerSecond: 10,
			CacheSize:         4096,
			MaxRetries:        2,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variable overrides, then validates the result. An empty path
// skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants the components depend on.
func (c *Config) Validate() error {
	r := c.Retrieval
	sum := r.VectorWeight + r.EntityWeight + r.RecencyWeight + r.TemporalWeight
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("config: retrieval signal weights sum to %.4f, want 1.0", sum)
	}
	if r.AbstentionThreshold < 0 || r.AbstentionThreshold > 1 {
		return fmt.Errorf("config: abstention threshold %.3f outside [0,1]", r.AbstentionThreshold)
	}
	if r.LowConfidenceThreshold < r.AbstentionThreshold {
		return fmt.Errorf("config: low-confidence threshold %.3f below abstention threshold %.3f",
			r.LowConfidenceThreshold, r.AbstentionThreshold)
	}
	if r.RecencyHalfLifeDays <= 0 {
		return fmt.Errorf("config: recency half-life must be positive")
	}
	if r.MaxFactsPerQuery < 1 {
		return fmt.Errorf("config: max facts per query must be >= 1")
	}

	v := c.Versioning
	if v.ConflictSimilarityThreshold >= v.AutoUpdateThreshold {
		return fmt.Errorf("config: conflict threshold %.3f must be below auto-update threshold %.3f",
			v.ConflictSimilarityThreshold, v.AutoUpdateThreshold)
	}
	if v.AutoUpdateThreshold > 1 || v.ConflictSimilarityThreshold < 0 {
		return fmt.Errorf("config: versioning thresholds outside [0,1]")
	}
	if v.RelationFamilyThreshold < 0 || v.RelationFamilyThreshold > 1 {
		return fmt.Errorf("config: relation family threshold outside [0,1]")
	}

	if c.Scheduler.InitialStability <= 0 {
		return fmt.Errorf("config: initial stability must be positive")
	}
	if err := c.Scheduler.Parameters.Validate(); err != nil {
		return fmt.Errorf("config: scheduler parameters: %w", err)
	}

	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("config: embedding dimension must be >= 1")
	}
	if c.Embedding.MaxInputChars < 1 {
		return fmt.Errorf("config: embedding max input chars must be >= 1")
	}
	return nil
}

// applyEnvOverrides layers EVERMIND_-prefixed environment variables over cfg.
// Only the knobs that operators commonly tune are exposed; the full
// parameter vector is file-only.
func applyEnvOverrides(cfg *Config) {
	cfg.Storage.Engine = getEnv("EVERMIND_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("EVERMIND_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("EVERMIND_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Retrieval.VectorWeight = getEnvFloat("EVERMIND_VECTOR_WEIGHT", cfg.Retrieval.VectorWeight)
	cfg.Retrieval.EntityWeight = getEnvFloat("EVERMIND_ENTITY_WEIGHT", cfg.Retrieval.EntityWeight)
	cfg.Retrieval.RecencyWeight = getEnvFloat("EVERMIND_RECENCY_WEIGHT", cfg.Retrieval.RecencyWeight)
	cfg.Retrieval.TemporalWeight = getEnvFloat("EVERMIND_TEMPORAL_WEIGHT", cfg.Retrieval.TemporalWeight)
	cfg.Retrieval.AbstentionThreshold = getEnvFloat("EVERMIND_ABSTENTION_THRESHOLD", cfg.Retrieval.AbstentionThreshold)
	cfg.Retrieval.LowConfidenceThreshold = getEnvFloat("EVERMIND_LOW_CONFIDENCE_THRESHOLD", cfg.Retrieval.LowConfidenceThreshold)
	cfg.Retrieval.MaxFactsPerQuery = getEnvInt("EVERMIND_MAX_FACTS_PER_QUERY", cfg.Retrieval.MaxFactsPerQuery)

	cfg.Versioning.AutoUpdateThreshold = getEnvFloat("EVERMIND_AUTO_UPDATE_THRESHOLD", cfg.Versioning.AutoUpdateThreshold)
	cfg.Versioning.ConflictSimilarityThreshold = getEnvFloat("EVERMIND_CONFLICT_THRESHOLD", cfg.Versioning.ConflictSimilarityThreshold)

	cfg.Scheduler.Parameters.TargetRetention = getEnvFloat("EVERMIND_TARGET_RETENTION", cfg.Scheduler.Parameters.TargetRetention)
	cfg.Scheduler.Parameters.MaxIntervalDays = getEnvFloat("EVERMIND_MAX_INTERVAL_DAYS", cfg.Scheduler.Parameters.MaxIntervalDays)

	cfg.Embedding.Dimension = getEnvInt("EVERMIND_EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. An unparsable value falls back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. An unparsable value falls back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
