package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	BlobStore BlobStoreConfig `yaml:"blobstore"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Redactor  RedactorConfig  `yaml:"redactor"`
	Entity    EntityConfig    `yaml:"entity"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// BlobStoreConfig holds blob-store configuration
type BlobStoreConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// MetadataConfig holds metadata-sink configuration.
// Driver is "sqlite" (default) or "postgres".
type MetadataConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// ExtractorConfig holds text-extraction configuration
type ExtractorConfig struct {
	ServiceURL          string        `yaml:"service_url"`
	TesseractCmd        string        `yaml:"tesseract_cmd"`
	Timeout             time.Duration `yaml:"timeout"`
	NormalizeWhitespace bool          `yaml:"normalize_whitespace"`
}

// RedactorConfig holds PII-redaction service configuration
type RedactorConfig struct {
	ServiceURL string        `yaml:"service_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// EntityConfig holds entity-extraction (LLM) configuration
type EntityConfig struct {
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	Category string `yaml:"category"`
}

// PipelineConfig holds orchestrator configuration
type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		BlobStore: BlobStoreConfig{
			Path:     getEnv("BLOB_PATH", "./data/blobs"),
			InMemory: getEnvAsBool("BLOB_IN_MEMORY", false),
		},
		Metadata: MetadataConfig{
			Driver:          getEnv("METADATA_DRIVER", "sqlite"),
			DSN:             getEnv("METADATA_DSN", "./data/metadata.db"),
			MaxConns:        getEnvAsInt32("METADATA_MAX_CONNS", 10),
			MaxConnLifetime: getEnvAsDuration("METADATA_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("METADATA_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("METADATA_DIAL_TIMEOUT", 3*time.Second),
		},
		Extractor: ExtractorConfig{
			ServiceURL:          getEnv("EXTRACTOR_URL", ""),
			TesseractCmd:        getEnv("TESSERACT_CMD", "tesseract"),
			Timeout:             getEnvAsDuration("EXTRACTOR_TIMEOUT", 90*time.Second),
			NormalizeWhitespace: getEnvAsBool("EXTRACTOR_NORMALIZE_WHITESPACE", false),
		},
		Redactor: RedactorConfig{
			ServiceURL: getEnv("REDACTOR_URL", ""),
			Timeout:    getEnvAsDuration("REDACTOR_TIMEOUT", 45*time.Second),
		},
		Entity: EntityConfig{
			BaseURL:  getEnv("ENTITY_LLM_URL", ""),
			Model:    getEnv("ENTITY_LLM_MODEL", ""),
			APIKey:   getEnv("ENTITY_LLM_API_KEY", "none"),
			Category: getEnv("ENTITY_CATEGORY", "MEDICAL_TERM"),
		},
		Pipeline: PipelineConfig{
			Workers: getEnvAsInt("PIPELINE_WORKERS", 4),
		},
	}
}

// ApplyFile overlays values from a YAML config file on top of the current
// config. Zero values in the file leave the existing values untouched.
func (c *Config) ApplyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var overlay Config
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	mergeConfig(c, &overlay)
	return nil
}

func mergeConfig(dst, src *Config) {
	if src.BlobStore.Path != "" {
		dst.BlobStore.Path = src.BlobStore.Path
	}
	if src.BlobStore.InMemory {
		dst.BlobStore.InMemory = true
	}
	if src.Metadata.Driver != "" {
		dst.Metadata.Driver = src.Metadata.Driver
	}
	if src.Metadata.DSN != "" {
		dst.Metadata.DSN = src.Metadata.DSN
	}
	if src.Metadata.MaxConns > 0 {
		dst.Metadata.MaxConns = src.Metadata.MaxConns
	}
	if src.Extractor.ServiceURL != "" {
		dst.Extractor.ServiceURL = src.Extractor.ServiceURL
	}
	if src.Extractor.TesseractCmd != "" {
		dst.Extractor.TesseractCmd = src.Extractor.TesseractCmd
	}
	if src.Extractor.Timeout > 0 {
		dst.Extractor.Timeout = src.Extractor.Timeout
	}
	if src.Extractor.NormalizeWhitespace {
		dst.Extractor.NormalizeWhitespace = true
	}
	if src.Redactor.ServiceURL != "" {
		dst.Redactor.ServiceURL = src.Redactor.ServiceURL
	}
	if src.Redactor.Timeout > 0 {
		dst.Redactor.Timeout = src.Redactor.Timeout
	}
	if src.Entity.BaseURL != "" {
		dst.Entity.BaseURL = src.Entity.BaseURL
	}
	if src.Entity.Model != "" {
		dst.Entity.Model = src.Entity.Model
	}
	if src.Entity.APIKey != "" {
		dst.Entity.APIKey = src.Entity.APIKey
	}
	if src.Entity.Category != "" {
		dst.Entity.Category = src.Entity.Category
	}
	if src.Pipeline.Workers > 0 {
		dst.Pipeline.Workers = src.Pipeline.Workers
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.BlobStore.Path == "" && !c.BlobStore.InMemory {
		return NewAppError("CONFIG_ERROR", "BLOB_PATH is required", ErrValidation)
	}
	if c.Metadata.Driver != "sqlite" && c.Metadata.Driver != "postgres" {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown metadata driver %q", c.Metadata.Driver), ErrValidation)
	}
	if c.Metadata.DSN == "" {
		return NewAppError("CONFIG_ERROR", "METADATA_DSN is required", ErrValidation)
	}
	if c.Redactor.ServiceURL == "" {
		return NewAppError("CONFIG_ERROR", "REDACTOR_URL is required", ErrValidation)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_WORKERS must be positive", ErrValidation)
	}
	return nil
}
