package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5000, cfg.RAG.MaxTotalChunks)
	assert.Equal(t, 2_000_000, cfg.RAG.MaxTotalChars)
	assert.True(t, cfg.RAG.LexicalFallback)
	assert.True(t, cfg.Embedding.Enabled)
	assert.Equal(t, BackendMemory, cfg.Backend.Type)
}

func TestLoadConfig_FileOverridesOnlyGivenKeys(t *testing.T) {
	path := writeConfig(t, `
rag:
  chunk_size: 800
  max_total_chunks: 10
embedding:
  provider: ollama
  model: nomic-embed-text
backend:
  type: chromem
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 10, cfg.RAG.MaxTotalChunks)
	assert.Equal(t, ProviderOllama, cfg.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, BackendChromem, cfg.Backend.Type)
	assert.Equal(t, "documents", cfg.Backend.Collection)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "rag:\n  chunk_size: 800\n")
	t.Setenv("DOCQA_CHUNK_SIZE", "300")
	t.Setenv("DOCQA_EMBEDDINGS_ENABLED", "false")
	t.Setenv("DOCQA_EMBEDDING_KEY", "sk-test")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.RAG.ChunkSize)
	assert.False(t, cfg.Embedding.Enabled)
	assert.Equal(t, "sk-test", cfg.Embedding.Key)
}

func TestLoadConfig_BadEnvValue(t *testing.T) {
	t.Setenv("DOCQA_MAX_TOTAL_CHARS", "lots")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))
}

func TestLoadConfig_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[rag]
chunk_size = 640
lexical_fallback = false

[embedding]
provider = "ollama"
requests_per_second = 2.5

[backend]
type = "pgvector"

[backend.database]
dsn = "postgres://localhost/docqa"
driver = "pq"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.False(t, cfg.RAG.LexicalFallback)
	assert.Equal(t, ProviderOllama, cfg.Embedding.Provider)
	assert.Equal(t, 2.5, cfg.Embedding.RequestsPerSecond)
	assert.Equal(t, BackendPgvector, cfg.Backend.Type)
	assert.Equal(t, "pq", cfg.Backend.Database.Driver)
	assert.Equal(t, "retrieval_chunks", cfg.Backend.Database.Table)
}

func TestLoadConfig_RateFromEnv(t *testing.T) {
	t.Setenv("DOCQA_EMBEDDING_RPS", "0.5")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Embedding.RequestsPerSecond)

	t.Setenv("DOCQA_EMBEDDING_RPS", "fast")
	_, err = LoadConfig("")
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := writeConfig(t, "rag: [unterminated")
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.RAG.ChunkSize = 0 }},
		{"negative overlap", func(c *Config) { c.RAG.ChunkOverlap = -1 }},
		{"zero chunk ceiling", func(c *Config) { c.RAG.MaxTotalChunks = 0 }},
		{"zero char ceiling", func(c *Config) { c.RAG.MaxTotalChars = 0 }},
		{"no embeddings and no fallback", func(c *Config) {
			c.Embedding.Enabled = false
			c.RAG.LexicalFallback = false
		}},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "carrier-pigeon" }},
		{"unknown backend", func(c *Config) { c.Backend.Type = "faiss" }},
		{"external backend without embeddings", func(c *Config) {
			c.Backend.Type = BackendChromem
			c.Embedding.Enabled = false
		}},
		{"pgvector without dsn", func(c *Config) { c.Backend.Type = BackendPgvector }},
		{"negative rate limit", func(c *Config) { c.Embedding.RequestsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidConfig))
		})
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate_DisabledEmbeddingsIgnoresProvider(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Enabled = false
	cfg.Embedding.Provider = ""
	assert.NoError(t, cfg.Validate())
}
