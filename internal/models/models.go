package models

// Chunk is a stored slice of a source document.
// Embedding is nil when the chunk was stored while embeddings were unavailable.
type Chunk struct {
	Text           string    `json:"text"`
	NormalizedText string    `json:"-"`
	Embedding      []float32 `json:"-"`
	SourceName     string    `json:"source"`
}

// HasEmbedding reports whether the chunk carries a vector.
func (c Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// SearchResult is a ranked chunk returned to callers.
type SearchResult struct {
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	SourceName string  `json:"source"`
}

// SourceCount is the number of chunks stored under one source name.
type SourceCount struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

// Stats summarises the index contents.
type Stats struct {
	TotalChunks int           `json:"totalChunks"`
	TotalChars  int           `json:"totalChars"`
	Sources     []SourceCount `json:"sources"`
}

// PromptResponse is the answer produced for a question.
type PromptResponse struct {
	Query   string
	Source  string
	Content string
}
