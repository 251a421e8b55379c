// Package ingest wires loading, chunking and embedding into one pipeline.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zhaoo/catgpt/internal/chunker"
	"github.com/zhaoo/catgpt/internal/loader"
	"github.com/zhaoo/catgpt/internal/retrieval"
	"github.com/zhaoo/catgpt/internal/storage"
)

// DocumentLoader resolves a source into documents.
type DocumentLoader interface {
	Load(ctx context.Context, src loader.Source) ([]loader.Document, error)
}

// SourceRegistry records what has been ingested.
type SourceRegistry interface {
	SaveSource(src storage.Source) error
}

// Result summarizes one completed ingestion.
type Result struct {
	SourceID  string
	Documents int
	Chunks    int
	ChunkIDs  []string
}

// Service runs the load, split, embed, insert pipeline.
type Service struct {
	loader    DocumentLoader
	embedder  retrieval.Embedder
	store     *retrieval.Store
	registry  SourceRegistry
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

// New creates a Service. chunkSize <= 0 falls back to the chunker default.
func New(dl DocumentLoader, embedder retrieval.Embedder, store *retrieval.Store, registry SourceRegistry, chunkSize, overlap int, logger *slog.Logger) *Service {
	if chunkSize <= 0 {
		chunkSize = chunker.DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		loader:    dl,
		embedder:  embedder,
		store:     store,
		registry:  registry,
		chunkSize: chunkSize,
		overlap:   overlap,
		logger:    logger,
	}
}

// Ingest loads src, splits it, embeds every chunk into the vector store and
// records the source in the registry.
func (s *Service) Ingest(ctx context.Context, src loader.Source) (Result, error) {
	docs, err := s.loader.Load(ctx, src)
	if err != nil {
		return Result{}, err
	}

	chunks := chunker.Split(docs, s.chunkSize, s.overlap)
	if len(chunks) == 0 {
		return Result{}, fmt.Errorf("source %s %q produced no chunks", src.Kind, src.Location)
	}

	ids, err := s.store.Add(ctx, s.embedder, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("indexing chunks: %w", err)
	}

	sourceID := uuid.NewString()
	location := src.Location
	if src.Kind == loader.KindRawText {
		// Raw text carries its content in Location; don't duplicate it in
		// the registry.
		location = truncate(src.Location, 80)
	}
	if err := s.registry.SaveSource(storage.Source{
		ID:        sourceID,
		Kind:      src.Kind.String(),
		Location:  location,
		Chunks:    len(chunks),
		CreatedAt: time.Now(),
	}); err != nil {
		return Result{}, fmt.Errorf("recording source: %w", err)
	}

	s.logger.Info("ingested source",
		"kind", src.Kind.String(),
		"documents", len(docs),
		"chunks", len(chunks),
	)
	return Result{
		SourceID:  sourceID,
		Documents: len(docs),
		Chunks:    len(chunks),
		ChunkIDs:  ids,
	}, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
