package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Embedder is the capability that turns text into a fixed-width vector.
// Dimensionality must be stable across calls for the lifetime of a store.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedAll embeds texts concurrently, preserving input order.
// Returns nil (not error) for empty/nil input.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the provider.

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
