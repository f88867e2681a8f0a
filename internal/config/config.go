// Package config loads pipeline configuration from environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultDataset            = "finsight"
	DefaultModel              = "gemini-2.5-flash"
	DefaultBatchSize          = 50
	DefaultMaxDrainIterations = 20
	DefaultPort               = "8080"
)

// Config holds the runtime configuration loaded from environment variables.
type Config struct {
	// GeminiAPIKey authenticates calls to the classification backend.
	// Environment variable: GEMINI_API_KEY
	GeminiAPIKey string `koanf:"GEMINI_API_KEY"`

	// ProjectID is the Google Cloud project containing the dataset.
	// Environment variable: BQ_PROJECT_ID
	ProjectID string `koanf:"BQ_PROJECT_ID"`

	// Dataset is the BigQuery dataset holding the bronze and silver tables.
	// Environment variable: BQ_DATASET
	Dataset string `koanf:"BQ_DATASET"`

	// Model is the Gemini model name used for classification.
	// Environment variable: GEMINI_MODEL
	Model string `koanf:"GEMINI_MODEL"`

	// BatchSize is how many pending raw records one cycle claims.
	// Environment variable: PIPELINE_BATCH_SIZE
	BatchSize int `koanf:"PIPELINE_BATCH_SIZE"`

	// MaxDrainIterations caps sequential cycles in a single drain.
	// Environment variable: PIPELINE_MAX_DRAIN_ITERATIONS
	MaxDrainIterations int `koanf:"PIPELINE_MAX_DRAIN_ITERATIONS"`

	// IngestBucket is the GCS bucket statement CSV uploads land in.
	// Environment variable: INGEST_BUCKET
	IngestBucket string `koanf:"INGEST_BUCKET"`

	// Port is the HTTP listen port for the API server.
	// Environment variable: PORT
	Port string `koanf:"PORT"`
}

// ConfigurationError reports required configuration that is absent. It is
// returned before any record is touched.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
}

// Load reads configuration from the environment, applies defaults and
// validates required values.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("config.Load: reading environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("config.Load: unmarshal: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxDrainIterations <= 0 {
		c.MaxDrainIterations = DefaultMaxDrainIterations
	}
	if c.Port == "" {
		c.Port = DefaultPort
	}
}

// Validate returns a ConfigurationError naming every required value that is
// missing.
func (c *Config) Validate() error {
	var missing []string
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.ProjectID == "" {
		missing = append(missing, "BQ_PROJECT_ID")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}
