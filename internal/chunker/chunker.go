// Package chunker splits loaded documents into fixed-size overlapping
// windows for embedding.
package chunker

import (
	"maps"

	"github.com/zhaoo/catgpt/internal/loader"
)

// Default window configuration.
const (
	DefaultChunkSize = 1024
	DefaultOverlap   = 0
)

// separator is the boundary token a window backs off to rather than
// splitting it.
const separator = '\n'

// Chunk is a bounded window of a document's text. Offset is the rune offset
// of the window within the source document.
type Chunk struct {
	Text     string
	Metadata map[string]string
	Offset   int
}

// Split cuts each document into windows of at most chunkSize runes,
// stepping by chunkSize-overlap. A window that would end mid-text backs off
// to the last separator inside it so the separator is never split.
// Deterministic: identical input yields identical chunks.
func Split(docs []loader.Document, chunkSize, overlap int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultOverlap
	}

	var chunks []Chunk
	for _, doc := range docs {
		chunks = append(chunks, splitOne(doc, chunkSize, overlap)...)
	}
	return chunks
}

func splitOne(doc loader.Document, chunkSize, overlap int) []Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		} else if i := lastSeparator(runes[start:end]); i > 0 {
			end = start + i + 1
		}

		chunks = append(chunks, Chunk{
			Text:     string(runes[start:end]),
			Metadata: maps.Clone(doc.Metadata),
			Offset:   start,
		})

		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			// Overlap would stall the window; fall back to a full step.
			next = end
		}
		start = next
	}
	return chunks
}

func lastSeparator(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == separator {
			return i
		}
	}
	return -1
}
