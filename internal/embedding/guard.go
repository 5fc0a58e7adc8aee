package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"docqa/internal/models"
)

// Guarded bounds every call to the wrapped provider with a timeout, retries
// failed calls up to retries times, validates the returned vectors, and
// reports every failure as models.ErrEmbeddingUnavailable.
type Guarded struct {
	inner   Provider
	timeout time.Duration
	retries int
	limiter *rate.Limiter
}

type GuardOption func(*Guarded)

// WithRateLimit spaces provider calls, retries included, to rps per second.
func WithRateLimit(rps float64, burst int) GuardOption {
	return func(g *Guarded) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// NewGuarded wraps inner. A zero timeout leaves calls bounded only by the
// caller's context.
func NewGuarded(inner Provider, timeout time.Duration, retries int, opts ...GuardOption) *Guarded {
	g := &Guarded{inner: inner, timeout: timeout, retries: max(retries, 0)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return call(ctx, g, "batch", func(ctx context.Context) ([][]float32, error) {
		vecs, err := g.inner.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))
		}
		if err := checkDimensions(vecs); err != nil {
			return nil, err
		}
		return vecs, nil
	})
}

func (g *Guarded) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return call(ctx, g, "query", func(ctx context.Context) ([]float32, error) {
		vec, err := g.inner.EmbedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, errors.New("empty embedding returned")
		}
		return vec, nil
	})
}

type result[T any] struct {
	val T
	err error
}

func call[T any](ctx context.Context, g *Guarded, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var err error
	for try := 0; try <= g.retries; try++ {
		if g.limiter != nil {
			if werr := g.limiter.Wait(ctx); werr != nil {
				return zero, fmt.Errorf("%w: %s %s: rate limit: %w", models.ErrEmbeddingUnavailable, g.inner.Name(), op, werr)
			}
		}
		var val T
		val, err = runOnce(ctx, g.timeout, fn)
		if err == nil {
			return val, nil
		}
		log.Warn().Err(err).
			Str("provider", g.inner.Name()).
			Str("op", op).
			Int("attempt", try+1).
			Msg("Embedding request failed")
		if errors.Is(err, models.ErrEmbeddingUnavailable) || ctx.Err() != nil {
			break
		}
	}
	if errors.Is(err, models.ErrEmbeddingUnavailable) {
		return zero, err
	}
	return zero, fmt.Errorf("%w: %s %s: %w", models.ErrEmbeddingUnavailable, g.inner.Name(), op, err)
}

// runOnce runs fn once. The result is abandoned when the deadline passes even
// if fn ignores its context.
func runOnce[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func checkDimensions(vecs [][]float32) error {
	dim := -1
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("empty embedding at position %d", i)
		}
		if dim >= 0 && len(v) != dim {
			return fmt.Errorf("embedding dimension mismatch at position %d: %d != %d", i, len(v), dim)
		}
		dim = len(v)
	}
	return nil
}
