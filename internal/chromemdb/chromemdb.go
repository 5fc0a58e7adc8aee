// Package chromemdb stores embedded chunks in an in-memory chromem-go
// collection.
package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"docqa/internal/helper"
	"docqa/internal/models"
)

const (
	metaSource = "source"
	metaSeq    = "seq"
)

// VectorDBManager encapsulates the chromem-go database operations.
// The collection is created lazily on first Add and dropped by Reset.
//
// chromem picks its top n by similarity alone, so when equal scores straddle
// the cut the kept ones are arbitrary. Within the returned set, ties are
// ordered by insertion.
type VectorDBManager struct {
	db             *chromem.DB
	collectionName string

	mu         sync.Mutex
	collection *chromem.Collection
	seq        int64
}

func NewVectorDBManager(collectionName string) *VectorDBManager {
	if collectionName == "" {
		collectionName = "documents"
	}
	return &VectorDBManager{
		db:             chromem.NewDB(),
		collectionName: collectionName,
	}
}

func (m *VectorDBManager) Name() string { return "chromem" }

// noEmbedding keeps chromem from calling out to a hosted model; every
// document and query arrives with a precomputed vector.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: chromem collection has no embedding function", models.ErrEmbeddingUnavailable)
}

func (m *VectorDBManager) getOrCreateCollection() (*chromem.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collection != nil {
		return m.collection, nil
	}
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func (m *VectorDBManager) current() *chromem.Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collection
}

// Add stores chunks with their embeddings. Input is validated before
// anything is written.
func (m *VectorDBManager) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	m.mu.Lock()
	base := m.seq
	m.seq += int64(len(chunks))
	m.mu.Unlock()

	docs := make([]chromem.Document, 0, len(chunks))
	ids := make([]string, 0, len(chunks))
	for i, ch := range chunks {
		if !ch.HasEmbedding() {
			return fmt.Errorf("chunk %d from %q has no embedding", i, ch.SourceName)
		}
		if len(ch.Embedding) != len(chunks[0].Embedding) {
			return fmt.Errorf("chunk %d from %q: embedding dimension %d, expected %d",
				i, ch.SourceName, len(ch.Embedding), len(chunks[0].Embedding))
		}
		id, err := helper.GenerateUUID()
		if err != nil {
			return err
		}
		ids = append(ids, id)
		docs = append(docs, chromem.Document{
			ID:      id,
			Content: ch.Text,
			Metadata: map[string]string{
				metaSource: ch.SourceName,
				metaSeq:    strconv.FormatInt(base+int64(i), 10),
			},
			Embedding: ch.Embedding,
		})
	}

	c, err := m.getOrCreateCollection()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	// AddDocuments stops quietly on cancellation, so a cancelled context
	// after the call may mean a partial write.
	err = c.AddDocuments(ctx, docs, runtime.NumCPU())
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.rollback(ctx, c, ids)
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Str("collection", m.collectionName).Int("docs", len(docs)).Int("total", c.Count()).Msg("Documents added")
	return nil
}

// Query returns the k most similar documents. chromem reports cosine
// similarity directly.
func (m *VectorDBManager) Query(ctx context.Context, vec []float32, k int) ([]models.SearchResult, error) {
	c := m.current()
	if c == nil || k <= 0 {
		return nil, nil
	}
	n := min(k, c.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := c.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return seqOf(results[i]) < seqOf(results[j])
	})

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, models.SearchResult{
			Text:       r.Content,
			Score:      float64(r.Similarity),
			SourceName: r.Metadata[metaSource],
		})
	}
	return out, nil
}

func seqOf(r chromem.Result) int64 {
	n, _ := strconv.ParseInt(r.Metadata[metaSeq], 10, 64)
	return n
}

// rollback removes whatever part of a failed batch was written.
func (m *VectorDBManager) rollback(ctx context.Context, c *chromem.Collection, ids []string) {
	if err := c.Delete(context.WithoutCancel(ctx), nil, nil, ids...); err != nil {
		log.Error().Err(err).Str("collection", m.collectionName).Int("docs", len(ids)).Msg("Failed to roll back partial add")
	}
}

// Reset drops the collection.
func (m *VectorDBManager) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collection == nil {
		return nil
	}
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.collection = nil
	return nil
}
