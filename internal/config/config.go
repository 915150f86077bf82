// Package config provides configuration loading and structs for the qpindex server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvDatabaseURL = "QPINDEX_DATABASE_URL"
	EnvPort        = "QPINDEX_PORT"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Describe  DescribeConfig  `yaml:"describe"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Indexing  IndexingConfig  `yaml:"indexing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ExposeErrorDetail bool          `yaml:"expose_error_detail"`
}

// StorageConfig selects the document store.
type StorageConfig struct {
	// Driver is "postgres" (pgvector) or "sqlite" (local, brute-force cosine).
	Driver       string `yaml:"driver"`
	DatabaseURL  string `yaml:"database_url"`
	DatabasePath string `yaml:"database_path"`
	Table        string `yaml:"table"`
	Dimensions   int    `yaml:"dimensions"`
	Deduplicate  bool   `yaml:"deduplicate"`
	MaxConns     int32  `yaml:"max_conns"`
}

// LLMConfig holds the AI provider used for embeddings and generation.
type LLMConfig struct {
	// Provider is "gemini", "openai" or "mock".
	Provider        string   `yaml:"provider"`
	BaseURL         string   `yaml:"base_url"`
	APIKeyEnv       string   `yaml:"api_key_env"`
	EmbeddingModel  string   `yaml:"embedding_model"`
	GenerationModel string   `yaml:"generation_model"`
	// Temperature is nil when unset so an explicit 0 survives defaulting.
	Temperature     *float64 `yaml:"temperature,omitempty"`
	MaxRetries      int      `yaml:"max_retries"`
}

// APIKey reads the provider key from the configured environment variable.
func (c *LLMConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// TemperatureValue returns the configured sampling temperature, or the default when unset.
func (c *LLMConfig) TemperatureValue() float64 {
	if c.Temperature == nil {
		return defaultTemperature
	}
	return *c.Temperature
}

// EmbeddingConfig holds embedding call settings.
type EmbeddingConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

// DescribeConfig selects how question descriptions are produced.
type DescribeConfig struct {
	// Strategy is "template" or "generative".
	Strategy string        `yaml:"strategy"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	DefaultK int `yaml:"default_k"`
	// Projection is "content" (stored description) or "question" (metadata.question).
	Projection string `yaml:"projection"`
}

// IndexingConfig holds batch indexing settings.
type IndexingConfig struct {
	// Concurrency bounds parallel item processing; 1 keeps items strictly sequential.
	Concurrency int `yaml:"concurrency"`
}

// Load reads and parses the config file at path, applies environment overrides and defaults,
// and validates the result. A .env file next to the config (or in the working directory) is
// loaded first; existing environment variables win over it.
func Load(path string) (*Config, error) {
	loadDotEnv(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	if cfg.Storage.DatabasePath != "" {
		cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, filepath.Dir(path))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration built only from defaults and the environment.
// Used when no config file exists.
func Default() (*Config, error) {
	loadDotEnv(".")
	var cfg Config
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides file settings with QPINDEX_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
}

// Validate rejects unknown enum values and impossible sizes.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for the postgres driver"))
		}
	case DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}
	switch c.Describe.Strategy {
	case StrategyTemplate, StrategyGenerative:
	default:
		errs = append(errs, fmt.Errorf("unknown describe.strategy %q", c.Describe.Strategy))
	}
	switch c.Retrieval.Projection {
	case ProjectionContent, ProjectionQuestion:
	default:
		errs = append(errs, fmt.Errorf("unknown retrieval.projection %q", c.Retrieval.Projection))
	}
	if c.LLM.Provider == ProviderMock && c.Describe.Strategy == StrategyGenerative {
		errs = append(errs, errors.New("describe.strategy generative needs a real llm.provider"))
	}
	if c.Storage.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("storage.dimensions must be positive, got %d", c.Storage.Dimensions))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func loadDotEnv(dirs ...string) {
	for _, dir := range dirs {
		p := filepath.Join(dir, ".env")
		if _, err := os.Stat(p); err == nil {
			// Load never overwrites variables already present in the environment.
			_ = godotenv.Load(p)
		}
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
