package chromemdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/models"
)

func sampleChunks() []models.Chunk {
	return []models.Chunk{
		{Text: "alpha", SourceName: "a.txt", Embedding: []float32{1, 0, 0}},
		{Text: "beta", SourceName: "b.txt", Embedding: []float32{0, 1, 0}},
		{Text: "mostly alpha", SourceName: "a.txt", Embedding: []float32{0.9, 0.1, 0}},
	}
}

func TestQuery_EmptyManager(t *testing.T) {
	m := NewVectorDBManager("")
	res, err := m.Query(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestAddAndQuery(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager("test")
	require.NoError(t, m.Add(ctx, sampleChunks()))

	res, err := m.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "alpha", res[0].Text)
	assert.Equal(t, "a.txt", res[0].SourceName)
	assert.InDelta(t, 1.0, res[0].Score, 1e-5)
	assert.Equal(t, "mostly alpha", res[1].Text)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
}

func TestQuery_ClampsToCount(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager("test")
	require.NoError(t, m.Add(ctx, sampleChunks()))

	res, err := m.Query(ctx, []float32{0, 1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, res, 3)
	assert.Equal(t, "beta", res[0].Text)
}

func TestQuery_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager("test")
	require.NoError(t, m.Add(ctx, sampleChunks()))

	_, err := m.Query(ctx, []float32{1, 0}, 2)
	assert.Error(t, err)
}

func TestAdd_RejectsMissingEmbedding(t *testing.T) {
	m := NewVectorDBManager("test")
	err := m.Add(context.Background(), []models.Chunk{{Text: "x", SourceName: "s"}})
	assert.Error(t, err)
	assert.Nil(t, m.current())
}

func TestAdd_RejectsMixedDimensions(t *testing.T) {
	m := NewVectorDBManager("test")
	err := m.Add(context.Background(), []models.Chunk{
		{Text: "x", SourceName: "s", Embedding: []float32{1, 0}},
		{Text: "y", SourceName: "s", Embedding: []float32{1, 0, 0}},
	})
	assert.Error(t, err)
}

func TestReset_DropsCollection(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager("test")
	require.NoError(t, m.Add(ctx, sampleChunks()))
	require.NoError(t, m.Reset(ctx))

	res, err := m.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)

	// rebuilt on next add
	require.NoError(t, m.Add(ctx, sampleChunks()[:1]))
	res, err = m.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestReset_NoCollection(t *testing.T) {
	assert.NoError(t, NewVectorDBManager("").Reset(context.Background()))
}

func TestQuery_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager("test")
	for _, name := range []string{"first", "second", "third", "fourth"} {
		require.NoError(t, m.Add(ctx, []models.Chunk{
			{Text: name, SourceName: name + ".txt", Embedding: []float32{0, 0, 1}},
		}))
	}

	res, err := m.Query(ctx, []float32{0, 0, 1}, 4)
	require.NoError(t, err)
	require.Len(t, res, 4)
	for i, want := range []string{"first", "second", "third", "fourth"} {
		assert.Equal(t, want, res[i].Text)
	}
}

func TestAdd_CancelledContextWritesNothing(t *testing.T) {
	m := NewVectorDBManager("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Add(ctx, sampleChunks())
	require.ErrorIs(t, err, context.Canceled)

	res, err := m.Query(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}
