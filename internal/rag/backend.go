package rag

import (
	"context"
	"fmt"
	"sync"

	"docqa/internal/chromemdb"
	"docqa/internal/config"
	"docqa/internal/db"
	"docqa/internal/models"
	"docqa/internal/ranker"
)

// Backend stores embedded chunks and answers nearest-neighbour queries.
// Query returns at most k results sorted by descending similarity in [0,1]
// (cosine for the in-process backend). Reset drops all state; the next Add
// rebuilds whatever the backend needs.
type Backend interface {
	Name() string
	Add(ctx context.Context, chunks []models.Chunk) error
	Query(ctx context.Context, vec []float32, k int) ([]models.SearchResult, error)
	Reset(ctx context.Context) error
}

// NewBackend builds the storage strategy named in cfg.
func NewBackend(ctx context.Context, cfg config.BackendConfig) (Backend, error) {
	switch cfg.Type {
	case "", config.BackendMemory:
		return NewMemoryBackend(), nil
	case config.BackendChromem:
		return chromemdb.NewVectorDBManager(cfg.Collection), nil
	case config.BackendPgvector:
		store, err := db.NewStore(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", models.ErrInvalidConfig, cfg.Type)
	}
}

// MemoryBackend scans every stored vector on each query.
type MemoryBackend struct {
	mu     sync.RWMutex
	chunks []models.Chunk
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Name() string { return config.BackendMemory }

func (m *MemoryBackend) Add(_ context.Context, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *MemoryBackend) Query(_ context.Context, vec []float32, k int) ([]models.SearchResult, error) {
	m.mu.RLock()
	snapshot := m.chunks[:len(m.chunks):len(m.chunks)]
	m.mu.RUnlock()

	ranked := ranker.RankVector(vec, snapshot)
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked, nil
}

func (m *MemoryBackend) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = nil
	return nil
}
