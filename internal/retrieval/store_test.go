package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zhaoo/catgpt/internal/chunker"
)

// mockEmbedder maps text to a fixed vector for deterministic similarity.
type mockEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	vec, ok := m.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return vec, nil
}

func record(id string, text string, embedding []float32) Record {
	return Record{ID: id, Chunk: chunker.Chunk{Text: text}, Embedding: embedding}
}

func TestInsertAndCount(t *testing.T) {
	s := NewStore()
	if s.Count() != 0 {
		t.Fatalf("fresh store Count = %d, want 0", s.Count())
	}

	err := s.Insert([]Record{
		record("a", "alpha", []float32{1, 0, 0}),
		record("b", "beta", []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if s.Count() != 2 {
		t.Errorf("Count = %d, want 2", s.Count())
	}
}

func TestInsert_DimensionMismatch(t *testing.T) {
	s := NewStore()
	if err := s.Insert([]Record{record("a", "alpha", []float32{1, 0, 0})}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	err := s.Insert([]Record{record("b", "beta", []float32{1, 0})})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d after rejected insert, want 1", s.Count())
	}
}

func TestInsert_MixedBatchRejectedWhole(t *testing.T) {
	s := NewStore()
	err := s.Insert([]Record{
		record("a", "alpha", []float32{1, 0}),
		record("b", "beta", []float32{1, 0, 0}),
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0 (batch rejected atomically)", s.Count())
	}
}

func TestQuery_EmptyStore(t *testing.T) {
	s := NewStore()
	results, err := s.Query([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty store, want 0", len(results))
	}
}

func TestQuery_RanksByCosineSimilarity(t *testing.T) {
	s := NewStore()
	must(t, s.Insert([]Record{
		record("far", "far", []float32{0, 1, 0}),
		record("near", "near", []float32{0.9, 0.1, 0}),
		record("exact", "exact", []float32{1, 0, 0}),
	}))

	results, err := s.Query([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "exact" || results[1].ID != "near" {
		t.Errorf("order = %s, %s; want exact, near", results[0].ID, results[1].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %f, %f", results[0].Score, results[1].Score)
	}
}

func TestQuery_TiesKeepInsertionOrder(t *testing.T) {
	s := NewStore()
	// Identical vectors score identically; earlier insertions must win.
	must(t, s.Insert([]Record{
		record("first", "dup", []float32{1, 0}),
		record("second", "dup", []float32{1, 0}),
		record("third", "dup", []float32{1, 0}),
	}))

	results, err := s.Query([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 || results[0].ID != "first" || results[1].ID != "second" {
		t.Errorf("results = %v, want first then second", ids(results))
	}
}

func TestQuery_TopKLargerThanStore(t *testing.T) {
	s := NewStore()
	must(t, s.Insert([]Record{record("only", "only", []float32{1, 0})}))

	results, err := s.Query([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestQuery_DimensionMismatch(t *testing.T) {
	s := NewStore()
	must(t, s.Insert([]Record{record("a", "alpha", []float32{1, 0, 0})}))

	_, err := s.Query([]float32{1, 0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestQuery_ZeroVectorScoresZero(t *testing.T) {
	s := NewStore()
	must(t, s.Insert([]Record{record("zero", "zero", []float32{0, 0})}))

	results, err := s.Query([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Score != 0 {
		t.Errorf("results = %+v, want single zero-scored record", results)
	}
}

func TestAdd_EmbedsAndInserts(t *testing.T) {
	emb := &mockEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0},
		"beta":  {0, 1},
	}}
	s := NewStore()

	ids, err := s.Add(context.Background(), emb, []chunker.Chunk{
		{Text: "alpha"}, {Text: "beta"},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(ids) != 2 || ids[0] == "" || ids[0] == ids[1] {
		t.Fatalf("ids = %v, want two distinct non-empty ids", ids)
	}
	if s.Count() != 2 {
		t.Errorf("Count = %d, want 2", s.Count())
	}

	results, err := s.Query([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Text != "alpha" {
		t.Errorf("results = %v", chunkTexts(results))
	}
}

func TestAdd_EmbedderFailureLeavesStoreUntouched(t *testing.T) {
	emb := &mockEmbedder{err: errors.New("provider down")}
	s := NewStore()

	_, err := s.Add(context.Background(), emb, []chunker.Chunk{{Text: "x"}})
	if err == nil {
		t.Fatal("Add succeeded with failing embedder")
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d after failed Add, want 0", s.Count())
	}
}

func TestAdd_EmptyInput(t *testing.T) {
	s := NewStore()
	ids, err := s.Add(context.Background(), &mockEmbedder{}, nil)
	if err != nil || ids != nil {
		t.Errorf("Add(nil) = %v, %v; want nil, nil", ids, err)
	}
}

func TestEmbedAll_PreservesOrder(t *testing.T) {
	emb := &mockEmbedder{vectors: map[string][]float32{
		"a": {1}, "b": {2}, "c": {3}, "d": {4}, "e": {5}, "f": {6},
	}}

	vecs, err := EmbedAll(context.Background(), emb, []string{"a", "b", "c", "d", "e", "f"})
	if err != nil {
		t.Fatalf("EmbedAll: %v", err)
	}
	for i, want := range []float32{1, 2, 3, 4, 5, 6} {
		if len(vecs[i]) != 1 || vecs[i][0] != want {
			t.Errorf("vecs[%d] = %v, want [%f]", i, vecs[i], want)
		}
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func ids(results []ScoredRecord) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func chunkTexts(results []ScoredRecord) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.Text
	}
	return out
}
