// Package embedding supplies vectors for chunks and queries. Every failure,
// including timeouts and a disabled configuration, surfaces as
// models.ErrEmbeddingUnavailable so callers can route to lexical search.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docqa/internal/config"
	"docqa/internal/models"
)

// Provider embeds batches of chunks and single queries.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// New builds the provider selected by cfg. A disabled configuration yields
// Disabled; hosted providers are wrapped in a Guarded timeout/retry layer.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	if !cfg.Enabled {
		return Disabled{}, nil
	}

	if cfg.Provider == config.ProviderMock {
		return &Mock{}, nil
	}

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Key != "" {
			opts = append(opts, openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init openai embedding client: %w", err)
		}
		client = llm
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init ollama embedding client: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidConfig, cfg.Provider)
	}

	var embOpts []embeddings.Option
	if cfg.BatchSize > 0 {
		embOpts = append(embOpts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embOpts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	log.Debug().Interface("config", map[string]any{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
		"timeout":  cfg.TimeoutSecs,
		"retries":  cfg.Retries,
		"rps":      cfg.RequestsPerSecond,
	}).Msg("Embedding provider configured")

	name := cfg.Provider + ":" + cfg.Model
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	return NewGuarded(NewLangChain(embedder, name), timeout, cfg.Retries,
		WithRateLimit(cfg.RequestsPerSecond, int(cfg.RequestsPerSecond))), nil
}

// LangChain adapts a langchaingo embedder to Provider.
type LangChain struct {
	embedder embeddings.Embedder
	name     string
}

func NewLangChain(embedder embeddings.Embedder, name string) *LangChain {
	return &LangChain{embedder: embedder, name: name}
}

func (l *LangChain) Name() string { return l.name }

func (l *LangChain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return l.embedder.EmbedDocuments(ctx, texts)
}

func (l *LangChain) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return l.embedder.EmbedQuery(ctx, text)
}

// Disabled always reports the embedding service as unavailable.
type Disabled struct{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: disabled by configuration", models.ErrEmbeddingUnavailable)
}

func (Disabled) EmbedOne(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: disabled by configuration", models.ErrEmbeddingUnavailable)
}
