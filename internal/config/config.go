package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"NW_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"NW_DB_MAX_CONNS" default:"8"`

	// Dedup policy. Both thresholds are compared as similarity >= threshold.
	LexicalThreshold    float64 `envconfig:"LEXICAL_SIMILARITY_THRESHOLD" default:"0.85"`
	SemanticThreshold   float64 `envconfig:"SEMANTIC_SIMILARITY_THRESHOLD" default:"0.85"`
	SemanticWindowHours int     `envconfig:"SEMANTIC_WINDOW_HOURS" default:"48"`

	// EmbeddingDimensions must match the articles table's vector(384)
	// column; migration refuses any other value. It is surfaced so the
	// mismatch is caught at startup, not to make dimensions tunable.
	// Changing it means a new column type, a rebuilt index, and
	// re-embedding every row.
	EmbeddingDimensions int `envconfig:"EMBEDDING_DIMENSIONS" default:"384"`
	EmbeddingIndexLists int `envconfig:"EMBEDDING_INDEX_LISTS" default:"100"`

	EmbedEndpoint       string        `envconfig:"EMBED_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbedModelName      string        `envconfig:"EMBED_MODEL_NAME" default:"paraphrase-multilingual-MiniLM-L12-v2"`
	EmbedBatchSize      int           `envconfig:"EMBED_BATCH_SIZE" default:"32"`
	EmbedMaxRetries     int           `envconfig:"EMBED_MAX_RETRIES" default:"3"`
	EmbedRequestTimeout time.Duration `envconfig:"EMBED_REQUEST_TIMEOUT" default:"45s"`

	RunMaxElapsed time.Duration `envconfig:"RUN_RETRY_MAX_ELAPSED" default:"5m"`

	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("NW_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("NW_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("NW_DB_MIN_CONNS (%d) cannot exceed NW_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.LexicalThreshold <= 0 || c.LexicalThreshold > 1 {
		return fmt.Errorf("LEXICAL_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.SemanticThreshold <= 0 || c.SemanticThreshold > 1 {
		return fmt.Errorf("SEMANTIC_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.SemanticWindowHours < 1 {
		return fmt.Errorf("SEMANTIC_WINDOW_HOURS must be >= 1")
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be >= 1")
	}
	if c.EmbeddingIndexLists < 1 {
		return fmt.Errorf("EMBEDDING_INDEX_LISTS must be >= 1")
	}
	if strings.TrimSpace(c.EmbedEndpoint) == "" {
		return fmt.Errorf("EMBED_ENDPOINT is required")
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be >= 1")
	}
	if c.EmbedMaxRetries < 0 {
		return fmt.Errorf("EMBED_MAX_RETRIES must be >= 0")
	}
	if c.EmbedRequestTimeout <= 0 {
		return fmt.Errorf("EMBED_REQUEST_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("LISTEN_ADDR is required")
	}
	return nil
}

func (c *Config) SemanticWindow() time.Duration {
	return time.Duration(c.SemanticWindowHours) * time.Hour
}
