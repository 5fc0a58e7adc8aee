package rag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"docqa/internal/models"
)

func TestCapacityGuard_Check(t *testing.T) {
	g := CapacityGuard{MaxChunks: 10, MaxChars: 100}

	assert.NoError(t, g.Check(0, 0, 10, 100), "exactly at the ceiling")
	assert.NoError(t, g.Check(5, 50, 5, 50))

	err := g.Check(9, 0, 2, 1)
	var ce *models.CapacityError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, models.LimitChunks, ce.Limit)
	assert.Equal(t, 9, ce.Current)
	assert.Equal(t, 2, ce.Requested)

	err = g.Check(1, 90, 1, 11)
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, models.LimitChars, ce.Limit)
}

func TestCapacityGuard_Defaults(t *testing.T) {
	g := CapacityGuard{}.withDefaults()
	assert.Equal(t, DefaultMaxChunks, g.MaxChunks)
	assert.Equal(t, DefaultMaxChars, g.MaxChars)

	g = CapacityGuard{MaxChunks: 3}.withDefaults()
	assert.Equal(t, 3, g.MaxChunks)
}
