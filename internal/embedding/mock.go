package embedding

import (
	"context"
	"math"
	"sync/atomic"

	"docqa/internal/ranker"
)

const mockDimensions = 384

// Mock is a deterministic bag-of-words embedder for tests and offline runs.
// Texts sharing words get similar vectors. BatchErr and QueryErr, when set,
// are returned instead of vectors.
type Mock struct {
	BatchErr error
	QueryErr error

	batchCalls atomic.Int64
	queryCalls atomic.Int64
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	if m.BatchErr != nil {
		return nil, m.BatchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = MockVector(t)
	}
	return out, nil
}

func (m *Mock) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	m.queryCalls.Add(1)
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return MockVector(text), nil
}

func (m *Mock) BatchCalls() int64 { return m.batchCalls.Load() }
func (m *Mock) QueryCalls() int64 { return m.queryCalls.Load() }

// MockVector hashes every token of text into a fixed-size unit vector.
func MockVector(text string) []float32 {
	vec := make([]float32, mockDimensions)
	for _, tok := range ranker.Tokenize(text) {
		vec[simpleHash(tok)%mockDimensions]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func simpleHash(text string) uint32 {
	hash := uint32(2166136261)
	for _, c := range text {
		hash ^= uint32(c)
		hash *= 16777619
	}
	return hash
}
