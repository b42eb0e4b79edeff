package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "PAPERLOOM_CONFIG"
	databasePathEnv    = "PAPERLOOM_DATABASE_PATH"
	vectorPathEnv      = "PAPERLOOM_VECTOR_PATH"
	embeddingsKeyEnv   = "PAPERLOOM_EMBEDDINGS_API_KEY"
	embeddingsModelEnv = "PAPERLOOM_EMBEDDINGS_MODEL"
	logLevelEnv        = "PAPERLOOM_LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Vector     VectorConfig     `yaml:"vector"`
	Sources    SourceConfig     `yaml:"sources"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig describes the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// VectorConfig describes the vector store location.
type VectorConfig struct {
	Path string `yaml:"path"`
}

// SourceConfig groups upstream endpoints for metadata sources.
type SourceConfig struct {
	TaxonomyURL string `yaml:"taxonomyUrl"`
	FeedURL     string `yaml:"feedUrl"`
}

// EmbeddingsConfig defines how to contact the embeddings API.
type EmbeddingsConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"apiKey"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(vectorPathEnv); v != "" {
		c.Vector.Path = v
	}

	if v := os.Getenv(embeddingsKeyEnv); v != "" {
		c.Embeddings.APIKey = v
	}

	if v := os.Getenv(embeddingsModelEnv); v != "" {
		c.Embeddings.Model = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Vector.Path != "" {
		base.Vector = override.Vector
	}

	if override.Sources.TaxonomyURL != "" {
		base.Sources.TaxonomyURL = override.Sources.TaxonomyURL
	}
	if override.Sources.FeedURL != "" {
		base.Sources.FeedURL = override.Sources.FeedURL
	}

	if override.Embeddings.BaseURL != "" {
		base.Embeddings.BaseURL = override.Embeddings.BaseURL
	}
	if override.Embeddings.Model != "" {
		base.Embeddings.Model = override.Embeddings.Model
	}
	if override.Embeddings.APIKey != "" {
		base.Embeddings.APIKey = override.Embeddings.APIKey
	}

	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database:   DatabaseConfig{Path: "paperloom.db"},
		Vector:     VectorConfig{Path: "paperloom_vectors.db"},
		Sources:    SourceConfig{},
		Embeddings: EmbeddingsConfig{Model: "text-embedding-3-small"},
		Logging:    LoggingConfig{Level: "info"},
	}
}
