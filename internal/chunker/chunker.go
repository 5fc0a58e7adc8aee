// Package chunker splits extracted document text into overlapping windows
// that end on sentence boundaries where possible.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"docqa/internal/models"
)

const (
	// MinChunkLen drops trimmed windows that are too short to be useful.
	MinChunkLen = 20

	// breakFraction is how far into a window a sentence break must lie before
	// the window is shortened to end on it.
	breakFraction = 0.3
)

// Chunker splits text into windows of at most Size runes sharing up to
// Overlap runes with their predecessor.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker. size must be positive; overlap is clamped to
// [0, size/2] so every window moves the cursor forward.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidConfig, size)
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > size/2 {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window width in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the effective overlap after clamping.
func (c *Chunker) Overlap() int { return c.overlap }

// Normalize collapses whitespace runs to single spaces and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split chunks text. Empty or whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	clean := []rune(Normalize(text))
	n := len(clean)
	if n == 0 {
		return nil
	}
	if n <= c.size {
		return []string{string(clean)}
	}

	minBreak := breakFraction * float64(c.size)
	var chunks []string
	start := 0
	for start < n {
		end := min(start+c.size, n)

		if end < n {
			if bp := lastBreak(clean, start, end); bp >= 0 && float64(bp) > float64(start)+minBreak {
				end = bp + 1
			}
		}

		chunk := strings.TrimSpace(string(clean[start:end]))
		if utf8.RuneCountInString(chunk) >= MinChunkLen {
			chunks = append(chunks, chunk)
		}

		if end >= n {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastBreak returns the index of the last sentence terminator or newline in
// text[start:end], or -1.
func lastBreak(text []rune, start, end int) int {
	for i := end - 1; i > start; i-- {
		if text[i] == '.' || text[i] == '\n' {
			return i
		}
	}
	return -1
}
