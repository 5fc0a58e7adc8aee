// Package rag holds the document index: chunking, capacity enforcement,
// embedding, storage and ranking behind Ingest/Search/Stats/Reset.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/models"
	"docqa/internal/ranker"
)

// DefaultTopK is used when a search asks for zero or fewer results.
const DefaultTopK = 5

// Mode is the scoring regime a search ran under.
type Mode string

const (
	ModeNone    Mode = "none"
	ModeVector  Mode = "vector"
	ModeLexical Mode = "lexical"
)

// Reason explains why a search did not run in vector mode.
type Reason string

const (
	ReasonEmptyIndex           Reason = "index is empty"
	ReasonEmbeddingsDisabled   Reason = "embeddings disabled"
	ReasonMissingEmbeddings    Reason = "some chunks were stored without embeddings"
	ReasonQueryEmbeddingFailed Reason = "query embedding failed"
	ReasonBackendFailed        Reason = "vector backend query failed"
	ReasonBackendStale         Reason = "vector backend could not be reset"
)

// Outcome is the tagged result of a search.
type Outcome struct {
	Mode   Mode
	Hits   []models.SearchResult
	Reason Reason
}

// IngestResult reports how many chunks an ingestion stored.
type IngestResult struct {
	ChunkCount int `json:"chunkCount"`
}

// Options configures NewIndex.
type Options struct {
	Chunker  *chunker.Chunker
	Provider embedding.Provider
	// Backend defaults to an in-process MemoryBackend.
	Backend Backend
	Guard   CapacityGuard

	EmbeddingsEnabled bool
	LexicalFallback   bool
	DefaultTopK       int
}

// Index is the process-wide document store. It is safe for concurrent use.
type Index struct {
	chunker           *chunker.Chunker
	provider          embedding.Provider
	backend           Backend
	guard             CapacityGuard
	embeddingsEnabled bool
	lexicalFallback   bool
	defaultTopK       int

	mu                sync.RWMutex
	chunks            []models.Chunk
	sources           []string
	sourceCounts      map[string]int
	totalChars        int
	missingEmbeddings int
	// backendStale is set when a backend reset failed; the backend may still
	// hold vectors the ledger no longer knows about.
	backendStale bool
}

// NewIndex validates opts and returns an empty index.
func NewIndex(opts Options) (*Index, error) {
	if opts.Chunker == nil {
		return nil, fmt.Errorf("%w: chunker is required", models.ErrInvalidConfig)
	}
	if !opts.EmbeddingsEnabled && !opts.LexicalFallback {
		return nil, fmt.Errorf("%w: embeddings disabled and lexical fallback not permitted", models.ErrInvalidConfig)
	}
	if opts.Backend == nil {
		opts.Backend = NewMemoryBackend()
	}
	if !opts.EmbeddingsEnabled && opts.Backend.Name() != config.BackendMemory {
		return nil, fmt.Errorf("%w: backend %s requires embeddings", models.ErrInvalidConfig, opts.Backend.Name())
	}
	if opts.Provider == nil || !opts.EmbeddingsEnabled {
		opts.Provider = embedding.Disabled{}
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}

	return &Index{
		chunker:           opts.Chunker,
		provider:          opts.Provider,
		backend:           opts.Backend,
		guard:             opts.Guard.withDefaults(),
		embeddingsEnabled: opts.EmbeddingsEnabled,
		lexicalFallback:   opts.LexicalFallback,
		defaultTopK:       opts.DefaultTopK,
		sourceCounts:      make(map[string]int),
	}, nil
}

// Ingest chunks text and stores it under source. The call either stores
// every chunk or none: capacity and unrecoverable embedding failures leave
// the index untouched. Empty input is a zero-count success.
func (ix *Index) Ingest(ctx context.Context, text, source string) (IngestResult, error) {
	pieces := ix.chunker.Split(text)
	if len(pieces) == 0 {
		return IngestResult{}, nil
	}

	chars := 0
	for _, p := range pieces {
		chars += utf8.RuneCountInString(p)
	}

	ix.mu.RLock()
	err := ix.guard.Check(len(ix.chunks), ix.totalChars, len(pieces), chars)
	ix.mu.RUnlock()
	if err != nil {
		log.Warn().Err(err).Str("source", source).Int("chunks", len(pieces)).Msg("Ingestion rejected")
		return IngestResult{}, err
	}

	vecs, err := ix.embedChunks(ctx, pieces)
	if err != nil {
		if !ix.lexicalFallback {
			return IngestResult{}, fmt.Errorf("ingest %q: %w", source, err)
		}
		log.Warn().Err(err).Str("source", source).Msg("Storing chunks without embeddings")
		vecs = nil
	}

	chunks := make([]models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.Chunk{
			Text:           p,
			NormalizedText: strings.ToLower(p),
			SourceName:     source,
		}
		if vecs != nil {
			chunks[i].Embedding = vecs[i]
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Another ingestion may have committed while we were embedding.
	if err := ix.guard.Check(len(ix.chunks), ix.totalChars, len(chunks), chars); err != nil {
		log.Warn().Err(err).Str("source", source).Int("chunks", len(chunks)).Msg("Ingestion rejected")
		return IngestResult{}, err
	}
	if vecs != nil {
		if ix.backendStale {
			if err := ix.backend.Reset(ctx); err != nil {
				return IngestResult{}, fmt.Errorf("ingest %q: %s backend still holds cleared chunks: %w", source, ix.backend.Name(), err)
			}
			ix.backendStale = false
			log.Info().Str("backend", ix.backend.Name()).Msg("Backend reset recovered")
		}
		if err := ix.backend.Add(ctx, chunks); err != nil {
			return IngestResult{}, fmt.Errorf("store %q in %s backend: %w", source, ix.backend.Name(), err)
		}
	} else {
		ix.missingEmbeddings += len(chunks)
	}

	ix.chunks = append(ix.chunks, chunks...)
	ix.totalChars += chars
	if _, ok := ix.sourceCounts[source]; !ok {
		ix.sources = append(ix.sources, source)
	}
	ix.sourceCounts[source] += len(chunks)

	log.Info().
		Str("source", source).
		Int("chunks", len(chunks)).
		Int("chars", chars).
		Bool("embedded", vecs != nil).
		Int("total_chunks", len(ix.chunks)).
		Msg("Document ingested")

	return IngestResult{ChunkCount: len(chunks)}, nil
}

// embedChunks returns nil vectors without calling the provider when
// embeddings are switched off.
func (ix *Index) embedChunks(ctx context.Context, pieces []string) ([][]float32, error) {
	if !ix.embeddingsEnabled {
		return nil, nil
	}
	vecs, err := ix.provider.EmbedBatch(ctx, pieces)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(pieces) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", models.ErrEmbeddingUnavailable, len(pieces), len(vecs))
	}
	return vecs, nil
}

// Search returns up to topK chunks ranked by relevance. It never fails:
// embedding problems degrade to lexical scoring.
func (ix *Index) Search(ctx context.Context, query string, topK int) []models.SearchResult {
	return ix.SearchDetailed(ctx, query, topK).Hits
}

// SearchDetailed is Search with the scoring mode and fallback reason.
func (ix *Index) SearchDetailed(ctx context.Context, query string, topK int) Outcome {
	if topK <= 0 {
		topK = ix.defaultTopK
	}

	ix.mu.RLock()
	snapshot := ix.chunks[:len(ix.chunks):len(ix.chunks)]
	missing := ix.missingEmbeddings
	stale := ix.backendStale
	ix.mu.RUnlock()

	if len(snapshot) == 0 {
		return Outcome{Mode: ModeNone, Hits: []models.SearchResult{}, Reason: ReasonEmptyIndex}
	}

	var reason Reason
	switch {
	case !ix.embeddingsEnabled:
		reason = ReasonEmbeddingsDisabled
	case stale:
		reason = ReasonBackendStale
	case missing > 0:
		reason = ReasonMissingEmbeddings
	default:
		hits, r := ix.vectorSearch(ctx, query, topK)
		if r == "" {
			log.Debug().Str("mode", string(ModeVector)).Int("hits", len(hits)).Msg("Search completed")
			return Outcome{Mode: ModeVector, Hits: hits}
		}
		reason = r
	}

	hits := ranker.Top(ranker.RankLexical(ranker.Tokenize(query), snapshot), ranker.LexicalFloor, topK)
	log.Debug().Str("mode", string(ModeLexical)).Str("reason", string(reason)).Int("hits", len(hits)).Msg("Search completed")
	return Outcome{Mode: ModeLexical, Hits: hits, Reason: reason}
}

func (ix *Index) vectorSearch(ctx context.Context, query string, topK int) ([]models.SearchResult, Reason) {
	vec, err := ix.provider.EmbedOne(ctx, query)
	if err != nil {
		if !errors.Is(err, models.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %w", models.ErrEmbeddingUnavailable, err)
		}
		log.Warn().Err(err).Msg("Query embedding failed, falling back to lexical search")
		return nil, ReasonQueryEmbeddingFailed
	}

	// Held across the query so a concurrent Ingest commit is seen whole or not at all.
	ix.mu.RLock()
	results, err := ix.backend.Query(ctx, vec, topK)
	ix.mu.RUnlock()
	if err != nil {
		log.Warn().Err(err).Str("backend", ix.backend.Name()).Msg("Vector query failed, falling back to lexical search")
		return nil, ReasonBackendFailed
	}
	return ranker.Top(results, ranker.VectorFloor, topK), ""
}

// Reset empties the index and drops backend state. If the backend cannot be
// reset, searches stay lexical and the next embedded ingestion retries it.
func (ix *Index) Reset(ctx context.Context) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.backendStale = false
	if err := ix.backend.Reset(ctx); err != nil {
		ix.backendStale = true
		log.Error().Err(err).Str("backend", ix.backend.Name()).Msg("Failed to reset backend")
	}
	ix.chunks = nil
	ix.sources = nil
	ix.sourceCounts = make(map[string]int)
	ix.totalChars = 0
	ix.missingEmbeddings = 0

	log.Info().Msg("Index reset")
}
