package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Source records one ingested source and how many chunks it produced.
// The vector index itself lives in memory; this registry is what survives
// restarts so users can see (and re-ingest) what they had loaded.
type Source struct {
	ID        string
	Kind      string // "file", "directory", "webpage", "rawtext"
	Location  string
	Chunks    int
	CreatedAt time.Time
}

// Interaction is one answered question with the chunk IDs that grounded it.
type Interaction struct {
	ID        string
	Question  string
	Answer    string
	ChunkIDs  string // JSON array stored as text
	CreatedAt time.Time
}
