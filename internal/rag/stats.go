package rag

import "docqa/internal/models"

// Stats reports totals and per-source counts in first-ingest order.
func (ix *Index) Stats() models.Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	sources := make([]models.SourceCount, 0, len(ix.sources))
	for _, name := range ix.sources {
		sources = append(sources, models.SourceCount{Name: name, Chunks: ix.sourceCounts[name]})
	}
	return models.Stats{
		TotalChunks: len(ix.chunks),
		TotalChars:  ix.totalChars,
		Sources:     sources,
	}
}
