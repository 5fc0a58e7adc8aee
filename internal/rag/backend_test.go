package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
	"docqa/internal/models"
)

func TestNewBackend(t *testing.T) {
	ctx := context.Background()

	b, err := NewBackend(ctx, config.BackendConfig{Type: config.BackendMemory})
	require.NoError(t, err)
	assert.Equal(t, "memory", b.Name())

	b, err = NewBackend(ctx, config.BackendConfig{Type: config.BackendChromem, Collection: "docs"})
	require.NoError(t, err)
	assert.Equal(t, "chromem", b.Name())

	_, err = NewBackend(ctx, config.BackendConfig{Type: "faiss"})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestMemoryBackend(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	require.NoError(t, m.Add(ctx, []models.Chunk{
		{Text: "x-axis", SourceName: "a", Embedding: []float32{1, 0}},
		{Text: "y-axis", SourceName: "b", Embedding: []float32{0, 1}},
		{Text: "x-axis again", SourceName: "c", Embedding: []float32{2, 0}},
	}))

	res, err := m.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].SourceName, "equal scores keep insertion order")
	assert.Equal(t, "c", res[1].SourceName)
	assert.InDelta(t, 1.0, res[1].Score, 1e-9)

	require.NoError(t, m.Reset(ctx))
	res, err = m.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Enabled = false
	cfg.RAG.TopK = 3

	ix, err := NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, ix.defaultTopK)
	assert.Equal(t, cfg.RAG.MaxTotalChunks, ix.guard.MaxChunks)

	cfg.RAG.ChunkSize = 0
	_, err = NewFromConfig(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}
