package retrieval

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zhaoo/catgpt/internal/chunker"
)

// ErrDimensionMismatch is returned when a vector's width disagrees with the
// store's established dimensionality.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Record is one embedded chunk held by the store.
type Record struct {
	ID        string
	Chunk     chunker.Chunk
	Embedding []float32
}

// ScoredRecord is a Record with a cosine similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}

// Store is an in-memory vector store. Records are append-only for the
// process lifetime; the first insert pins the embedding dimensionality.
// Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records []Record
	dim     int
}

func NewStore() *Store {
	return &Store{}
}

// Add embeds each chunk and inserts the resulting records, returning the
// assigned record IDs in chunk order.
func (s *Store) Add(ctx context.Context, e Embedder, chunks []chunker.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := EmbedAll(ctx, e, texts)
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = uuid.NewString()
		records[i] = Record{ID: ids[i], Chunk: c, Embedding: vectors[i]}
	}
	if err := s.Insert(records); err != nil {
		return nil, err
	}
	return ids, nil
}

// Insert appends pre-embedded records. Every embedding must match the
// store's dimensionality; the first record of an empty store establishes it.
func (s *Store) Insert(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 {
		dim = len(records[0].Embedding)
	}
	for _, r := range records {
		if len(r.Embedding) != dim || dim == 0 {
			return fmt.Errorf("record %s has %d dimensions, store holds %d: %w",
				r.ID, len(r.Embedding), dim, ErrDimensionMismatch)
		}
	}

	s.dim = dim
	s.records = append(s.records, records...)
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Query returns the topK records most similar to vector, ordered by
// descending cosine similarity with ties broken by insertion order.
// An empty store yields an empty result.
func (s *Store) Query(vector []float32, topK int) ([]ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("query has %d dimensions, store holds %d: %w",
			len(vector), s.dim, ErrDimensionMismatch)
	}

	// Brute-force scan keeping the best topK in a min-heap. A candidate
	// only evicts on a strictly better score, so equal-scored records keep
	// insertion order.
	h := &scoredHeap{}
	heap.Init(h)
	for i, r := range s.records {
		score := cosineSimilarity(vector, r.Embedding)
		item := scoredItem{record: ScoredRecord{Record: r, Score: score}, index: i}
		if h.Len() < topK {
			heap.Push(h, item)
		} else if score > (*h)[0].record.Score {
			(*h)[0] = item
			heap.Fix(h, 0)
		}
	}

	items := make([]scoredItem, h.Len())
	copy(items, *h)
	sort.Slice(items, func(i, j int) bool {
		if items[i].record.Score != items[j].record.Score {
			return items[i].record.Score > items[j].record.Score
		}
		return items[i].index < items[j].index
	})
	results := make([]ScoredRecord, len(items))
	for i, item := range items {
		results[i] = item.record
	}
	return results, nil
}

// scoredItem ties a candidate to its insertion index for deterministic
// tie-breaking.
type scoredItem struct {
	record ScoredRecord
	index  int
}

// scoredHeap is a min-heap by score; among equal scores the latest insertion
// sits on top so it is evicted first.
type scoredHeap []scoredItem

func (h scoredHeap) Len() int { return len(h) }

func (h scoredHeap) Less(i, j int) bool {
	if h[i].record.Score != h[j].record.Score {
		return h[i].record.Score < h[j].record.Score
	}
	return h[i].index > h[j].index
}

func (h scoredHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredHeap) Push(x any) { *h = append(*h, x.(scoredItem)) }

func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
