package models

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned when an ingestion would push the index
	// past its chunk or character ceiling.
	ErrCapacityExceeded = errors.New("index capacity exceeded")

	// ErrEmbeddingUnavailable is returned when the embedding backend failed,
	// timed out, or is disabled by configuration.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrInvalidConfig marks configuration values the core cannot run with.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Limit names a capacity ceiling.
type Limit string

const (
	LimitChunks Limit = "chunks"
	LimitChars  Limit = "characters"
)

// CapacityError reports which ceiling an ingestion would have breached.
type CapacityError struct {
	Limit     Limit
	Current   int
	Requested int
	Max       int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %s limit %d would be exceeded (current %d, adding %d)",
		ErrCapacityExceeded, e.Limit, e.Max, e.Current, e.Requested)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}
