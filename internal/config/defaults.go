package config

import "time"

// Enumerated config values.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"

	StrategyTemplate   = "template"
	StrategyGenerative = "generative"

	ProjectionContent  = "content"
	ProjectionQuestion = "question"
)

const defaultTemperature = 0.8

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3400
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 50 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 10 * time.Minute
	}
	if cfg.Storage.Driver == "" {
		if cfg.Storage.DatabaseURL != "" {
			cfg.Storage.Driver = DriverPostgres
		} else {
			cfg.Storage.Driver = DriverSQLite
		}
	}
	if cfg.Storage.Driver == DriverSQLite && cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/qpindex.db"
	}
	if cfg.Storage.Table == "" {
		cfg.Storage.Table = "documents"
	}
	if cfg.Storage.Dimensions == 0 {
		cfg.Storage.Dimensions = 3072
	}
	if cfg.Storage.MaxConns == 0 {
		cfg.Storage.MaxConns = 10
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderGemini
	}
	switch cfg.LLM.Provider {
	case ProviderGemini:
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.LLM.EmbeddingModel == "" {
			cfg.LLM.EmbeddingModel = "gemini-embedding-001"
		}
		if cfg.LLM.GenerationModel == "" {
			cfg.LLM.GenerationModel = "gemini-2.5-flash"
		}
	case ProviderOpenAI:
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.LLM.EmbeddingModel == "" {
			cfg.LLM.EmbeddingModel = "text-embedding-3-large"
		}
		if cfg.LLM.GenerationModel == "" {
			cfg.LLM.GenerationModel = "gpt-4o-mini"
		}
	}
	if cfg.LLM.Temperature == nil {
		t := defaultTemperature
		cfg.LLM.Temperature = &t
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Describe.Strategy == "" {
		cfg.Describe.Strategy = StrategyTemplate
	}
	if cfg.Describe.Timeout == 0 {
		cfg.Describe.Timeout = 60 * time.Second
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 5
	}
	if cfg.Retrieval.Projection == "" {
		cfg.Retrieval.Projection = ProjectionContent
	}
	if cfg.Indexing.Concurrency <= 0 {
		cfg.Indexing.Concurrency = 1
	}
}
