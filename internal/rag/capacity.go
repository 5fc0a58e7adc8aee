package rag

import "docqa/internal/models"

const (
	DefaultMaxChunks = 5000
	DefaultMaxChars  = 2_000_000
)

// CapacityGuard holds the hard ceilings for the whole index.
type CapacityGuard struct {
	MaxChunks int
	MaxChars  int
}

// Check reports whether adding n chunks totalling c characters to an index
// currently holding curChunks/curChars stays within both ceilings.
func (g CapacityGuard) Check(curChunks, curChars, n, c int) error {
	if curChunks+n > g.MaxChunks {
		return &models.CapacityError{Limit: models.LimitChunks, Current: curChunks, Requested: n, Max: g.MaxChunks}
	}
	if curChars+c > g.MaxChars {
		return &models.CapacityError{Limit: models.LimitChars, Current: curChars, Requested: c, Max: g.MaxChars}
	}
	return nil
}

func (g CapacityGuard) withDefaults() CapacityGuard {
	if g.MaxChunks <= 0 {
		g.MaxChunks = DefaultMaxChunks
	}
	if g.MaxChars <= 0 {
		g.MaxChars = DefaultMaxChars
	}
	return g
}
