package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"docqa/internal/models"
)

const envPrefix = "DOCQA_"

// Backend types.
const (
	BackendMemory   = "memory"
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderMock   = "mock"
)

type Config struct {
	RAG          RAGConfig       `yaml:"rag" toml:"rag"`
	Embedding    EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	InferenceLLM LLMConfig       `yaml:"inference_llm" toml:"inference_llm"`
	Backend      BackendConfig   `yaml:"backend" toml:"backend"`
	Log          LogConfig       `yaml:"log" toml:"log"`
}

type RAGConfig struct {
	ChunkSize       int  `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap    int  `yaml:"chunk_overlap" toml:"chunk_overlap"`
	MaxTotalChunks  int  `yaml:"max_total_chunks" toml:"max_total_chunks"`
	MaxTotalChars   int  `yaml:"max_total_chars" toml:"max_total_chars"`
	LexicalFallback bool `yaml:"lexical_fallback" toml:"lexical_fallback"`
	TopK            int  `yaml:"top_k" toml:"top_k"`
}

type EmbeddingConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Provider    string `yaml:"provider" toml:"provider"`
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	Key         string `yaml:"key" toml:"key"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
	Retries     int    `yaml:"retries" toml:"retries"`
	BatchSize   int    `yaml:"batch_size" toml:"batch_size"`

	// RequestsPerSecond throttles provider calls; zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

type LLMConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Key     string `yaml:"key" toml:"key"`
	Model   string `yaml:"model" toml:"model"`
}

type BackendConfig struct {
	Type       string         `yaml:"type" toml:"type"`
	Collection string         `yaml:"collection" toml:"collection"`
	Database   DatabaseConfig `yaml:"database" toml:"database"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn" toml:"dsn"`
	Password string `yaml:"password" toml:"password"`
	Driver   string `yaml:"driver" toml:"driver"`
	Table    string `yaml:"table" toml:"table"`
	Debug    bool   `yaml:"debug" toml:"debug"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Default returns the configuration used when no file or environment value
// overrides a key.
func Default() *Config {
	return &Config{
		RAG: RAGConfig{
			ChunkSize:       500,
			ChunkOverlap:    100,
			MaxTotalChunks:  5000,
			MaxTotalChars:   2_000_000,
			LexicalFallback: true,
			TopK:            5,
		},
		Embedding: EmbeddingConfig{
			Enabled:     true,
			Provider:    ProviderOpenAI,
			BaseURL:     "https://api.openai.com/v1",
			Model:       "text-embedding-3-small",
			TimeoutSecs: 30,
			Retries:     1,
			BatchSize:   64,
		},
		InferenceLLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Backend: BackendConfig{
			Type:       BackendMemory,
			Collection: "documents",
			Database: DatabaseConfig{
				Driver: "pgdriver",
				Table:  "retrieval_chunks",
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads path (YAML, or TOML for a .toml extension) over the
// defaults and applies DOCQA_* environment overrides. A missing file is not
// an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate rejects settings the retrieval core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize))
	}
	if c.RAG.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap must not be negative, got %d", c.RAG.ChunkOverlap))
	}
	if c.RAG.MaxTotalChunks <= 0 {
		errs = append(errs, fmt.Errorf("rag.max_total_chunks must be positive, got %d", c.RAG.MaxTotalChunks))
	}
	if c.RAG.MaxTotalChars <= 0 {
		errs = append(errs, fmt.Errorf("rag.max_total_chars must be positive, got %d", c.RAG.MaxTotalChars))
	}
	if c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("embedding.requests_per_second must not be negative, got %g", c.Embedding.RequestsPerSecond))
	}
	if !c.Embedding.Enabled && !c.RAG.LexicalFallback {
		errs = append(errs, errors.New("embeddings are disabled and lexical fallback is not permitted"))
	}
	if c.Embedding.Enabled {
		switch c.Embedding.Provider {
		case ProviderOpenAI, ProviderOllama, ProviderMock:
		default:
			errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
		}
	}
	switch c.Backend.Type {
	case BackendMemory:
	case BackendChromem, BackendPgvector:
		if !c.Embedding.Enabled {
			errs = append(errs, fmt.Errorf("backend %q requires embeddings", c.Backend.Type))
		}
		if c.Backend.Type == BackendPgvector && c.Backend.Database.DSN == "" {
			errs = append(errs, errors.New("backend.database.dsn is required for pgvector"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend.Type))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	ints := map[string]*int{
		"CHUNK_SIZE":             &cfg.RAG.ChunkSize,
		"CHUNK_OVERLAP":          &cfg.RAG.ChunkOverlap,
		"MAX_TOTAL_CHUNKS":       &cfg.RAG.MaxTotalChunks,
		"MAX_TOTAL_CHARS":        &cfg.RAG.MaxTotalChars,
		"TOP_K":                  &cfg.RAG.TopK,
		"EMBEDDING_TIMEOUT_SECS": &cfg.Embedding.TimeoutSecs,
		"EMBEDDING_RETRIES":      &cfg.Embedding.Retries,
		"EMBEDDING_BATCH_SIZE":   &cfg.Embedding.BatchSize,
	}
	floats := map[string]*float64{
		"EMBEDDING_RPS": &cfg.Embedding.RequestsPerSecond,
	}
	bools := map[string]*bool{
		"LEXICAL_FALLBACK":   &cfg.RAG.LexicalFallback,
		"EMBEDDINGS_ENABLED": &cfg.Embedding.Enabled,
		"DATABASE_DEBUG":     &cfg.Backend.Database.Debug,
	}
	strs := map[string]*string{
		"EMBEDDING_PROVIDER": &cfg.Embedding.Provider,
		"EMBEDDING_BASE_URL": &cfg.Embedding.BaseURL,
		"EMBEDDING_KEY":      &cfg.Embedding.Key,
		"EMBEDDING_MODEL":    &cfg.Embedding.Model,
		"LLM_BASE_URL":       &cfg.InferenceLLM.BaseURL,
		"LLM_KEY":            &cfg.InferenceLLM.Key,
		"LLM_MODEL":          &cfg.InferenceLLM.Model,
		"BACKEND":            &cfg.Backend.Type,
		"COLLECTION":         &cfg.Backend.Collection,
		"DATABASE_DSN":       &cfg.Backend.Database.DSN,
		"DATABASE_PASSWORD":  &cfg.Backend.Database.Password,
		"DATABASE_DRIVER":    &cfg.Backend.Database.Driver,
		"LOG_LEVEL":          &cfg.Log.Level,
	}

	for name, dst := range ints {
		if raw, ok := lookup(envPrefix + name); ok && strings.TrimSpace(raw) != "" {
			v, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q is not an integer", models.ErrInvalidConfig, envPrefix, name, raw)
			}
			*dst = v
		}
	}
	for name, dst := range floats {
		if raw, ok := lookup(envPrefix + name); ok && strings.TrimSpace(raw) != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q is not a number", models.ErrInvalidConfig, envPrefix, name, raw)
			}
			*dst = v
		}
	}
	for name, dst := range bools {
		if raw, ok := lookup(envPrefix + name); ok && strings.TrimSpace(raw) != "" {
			v, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q is not a boolean", models.ErrInvalidConfig, envPrefix, name, raw)
			}
			*dst = v
		}
	}
	for name, dst := range strs {
		if raw, ok := lookup(envPrefix + name); ok && raw != "" {
			*dst = raw
		}
	}
	return nil
}
