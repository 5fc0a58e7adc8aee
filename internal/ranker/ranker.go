// Package ranker scores stored chunks against a query, either by cosine
// similarity of embeddings or by lexical token overlap.
package ranker

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"docqa/internal/models"
)

const (
	// VectorFloor is the minimum cosine score a vector hit must exceed.
	VectorFloor = 0.1
	// LexicalFloor is the minimum lexical score a hit must exceed.
	LexicalFloor = 0.0

	minTokenLen = 2
)

// Cosine returns the cosine similarity of a and b, or 0 when either has zero
// magnitude. Vectors of different length are compared over the shared prefix.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RankVector scores every chunk by cosine similarity to q and returns them
// sorted by descending score. Ties keep insertion order. Chunks without an
// embedding score 0.
func RankVector(q []float32, chunks []models.Chunk) []models.SearchResult {
	out := make([]models.SearchResult, len(chunks))
	for i, ch := range chunks {
		out[i] = models.SearchResult{
			Text:       ch.Text,
			SourceName: ch.SourceName,
			Score:      Cosine(q, ch.Embedding),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Tokenize lowercases query and returns its distinct alphanumeric runs of at
// least two characters, in order of first appearance.
func Tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenLen {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// RankLexical scores each chunk as the fraction of tokens that occur as
// substrings of its normalized text. Chunks with no hits are dropped; the
// rest are sorted by descending score, ties in insertion order.
func RankLexical(tokens []string, chunks []models.Chunk) []models.SearchResult {
	if len(tokens) == 0 {
		return nil
	}
	total := float64(len(tokens))
	var out []models.SearchResult
	for _, ch := range chunks {
		text := ch.NormalizedText
		if text == "" {
			text = strings.ToLower(ch.Text)
		}
		hits := 0
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		out = append(out, models.SearchResult{
			Text:       ch.Text,
			SourceName: ch.SourceName,
			Score:      float64(hits) / total,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Top keeps results scoring strictly above floor, up to k of them.
// results must already be sorted.
func Top(results []models.SearchResult, floor float64, k int) []models.SearchResult {
	if k <= 0 {
		return []models.SearchResult{}
	}
	out := make([]models.SearchResult, 0, min(k, len(results)))
	for _, r := range results {
		if len(out) == k {
			break
		}
		if r.Score > floor {
			out = append(out, r)
		}
	}
	return out
}
