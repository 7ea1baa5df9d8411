package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLMConfig configures one model provider endpoint.
type LLMConfig struct {
	Provider string `yaml:"provider" env:"PROVIDER"` // "openai" or "ollama"
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	Key      string `yaml:"key" env:"KEY"`
	Model    string `yaml:"model" env:"MODEL"`
}

// RAGConfig holds the product tuning knobs. All of them have documented
// defaults applied by LoadConfig.
type RAGConfig struct {
	ChunkSize           int     `yaml:"chunk_size"`            // target chunk length, characters
	ChunkOverlap        int     `yaml:"chunk_overlap"`         // overlap between consecutive chunks, characters
	TopK                int     `yaml:"top_k"`                 // retrieved chunks per question
	MinScore            float32 `yaml:"min_score"`             // similarity floor, results below are dropped
	MemoryWindow        int     `yaml:"memory_window"`         // conversation turns kept per session
	ContextBudgetTokens int     `yaml:"context_budget_tokens"` // prompt budget for retrieved excerpts
}

// IndexConfig selects and configures the embedding index backend.
type IndexConfig struct {
	Backend    string `yaml:"backend" env:"INDEX_BACKEND"` // "snapshot", "chromem" or "pg"
	Path       string `yaml:"path" env:"INDEX_PATH"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
}

// DatabaseConfig is only used by the "pg" index backend.
type DatabaseConfig struct {
	URL      string `yaml:"url" env:"URL"`
	Password string `yaml:"password" env:"PASSWORD"`
	Debug    bool   `yaml:"debug"`
}

// RetryConfig bounds the backoff applied to embedding/completion calls.
type RetryConfig struct {
	Attempts    uint `yaml:"attempts"`
	DelayMs     int  `yaml:"delay_ms"`
	MaxDelayMs  int  `yaml:"max_delay_ms"`
	TimeoutSecs int  `yaml:"timeout_secs"`
}

func (rc RetryConfig) Delay() time.Duration { return time.Duration(rc.DelayMs) * time.Millisecond }

func (rc RetryConfig) MaxDelay() time.Duration {
	return time.Duration(rc.MaxDelayMs) * time.Millisecond
}

func (rc RetryConfig) Timeout() time.Duration { return time.Duration(rc.TimeoutSecs) * time.Second }

type Config struct {
	EmbedLLM    LLMConfig      `yaml:"embed_llm" envPrefix:"UNICONNECT_EMBED_"`
	CompleteLLM LLMConfig      `yaml:"complete_llm" envPrefix:"UNICONNECT_COMPLETE_"`
	RAG         RAGConfig      `yaml:"rag"`
	Index       IndexConfig    `yaml:"index" envPrefix:"UNICONNECT_"`
	Database    DatabaseConfig `yaml:"database" envPrefix:"UNICONNECT_DB_"`
	Retry       RetryConfig    `yaml:"retry"`

	// AllowedUploaders backs the default Authorizer. Empty means every
	// caller may ingest.
	AllowedUploaders []string `yaml:"allowed_uploaders"`
}

// LoadConfig reads the YAML config at path, applies environment overrides
// (a .env file is honored when present) and fills in defaults. A missing
// config file is not an error; the defaults stand.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = 1000
	}
	if cfg.RAG.ChunkOverlap <= 0 {
		cfg.RAG.ChunkOverlap = 200
	}
	if cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize / 2
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = 4
	}
	if cfg.RAG.MinScore <= 0 {
		cfg.RAG.MinScore = 0.25
	}
	if cfg.RAG.MemoryWindow <= 0 {
		cfg.RAG.MemoryWindow = 6
	}
	if cfg.RAG.ContextBudgetTokens <= 0 {
		cfg.RAG.ContextBudgetTokens = 3000
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "snapshot"
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = "./data/index.json"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "uniconnect"
	}
	if cfg.Index.Dimension <= 0 {
		cfg.Index.Dimension = 768
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.BaseURL == "" {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "nomic-embed-text"
	}
	if cfg.CompleteLLM.Provider == "" {
		cfg.CompleteLLM.Provider = "openai"
	}
	if cfg.CompleteLLM.Model == "" {
		cfg.CompleteLLM.Model = "gpt-4o-mini"
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.DelayMs <= 0 {
		cfg.Retry.DelayMs = 500
	}
	if cfg.Retry.MaxDelayMs <= 0 {
		cfg.Retry.MaxDelayMs = 5000
	}
	if cfg.Retry.TimeoutSecs <= 0 {
		cfg.Retry.TimeoutSecs = 30
	}
}
