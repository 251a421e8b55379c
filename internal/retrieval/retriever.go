package retrieval

import (
	"context"
)

// Retriever combines embedding and vector search to find relevant context.
type Retriever struct {
	embedder Embedder
	store    *Store
}

// NewRetriever creates a Retriever backed by the given Embedder and Store.
func NewRetriever(embedder Embedder, store *Store) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds the query and returns the topK most similar records.
// An empty store yields an empty result without touching the embedder.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]ScoredRecord, error) {
	if r.store.Count() == 0 {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.store.Query(vec, topK)
}
