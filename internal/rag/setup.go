package rag

import (
	"context"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/embedding"
)

// NewFromConfig wires an Index from loaded configuration.
func NewFromConfig(ctx context.Context, cfg *config.Config, provider embedding.Provider) (*Index, error) {
	ch, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	backend, err := NewBackend(ctx, cfg.Backend)
	if err != nil {
		return nil, err
	}
	return NewIndex(Options{
		Chunker:  ch,
		Provider: provider,
		Backend:  backend,
		Guard: CapacityGuard{
			MaxChunks: cfg.RAG.MaxTotalChunks,
			MaxChars:  cfg.RAG.MaxTotalChars,
		},
		EmbeddingsEnabled: cfg.Embedding.Enabled,
		LexicalFallback:   cfg.RAG.LexicalFallback,
		DefaultTopK:       cfg.RAG.TopK,
	})
}
