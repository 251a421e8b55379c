// Package loader turns user-supplied sources, local files, directories, web
// pages and raw text, into plain-text documents ready for chunking.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Kind identifies the source variant. The set is closed; Load rejects
// anything outside it.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindWebPage
	KindRawText
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindWebPage:
		return "webpage"
	case KindRawText:
		return "rawtext"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a wire name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "file":
		return KindFile, nil
	case "directory":
		return KindDirectory, nil
	case "webpage":
		return KindWebPage, nil
	case "rawtext":
		return KindRawText, nil
	default:
		return 0, fmt.Errorf("unknown source kind %q", s)
	}
}

// Source names one thing to load. Location is a filesystem path for KindFile
// and KindDirectory, a URL for KindWebPage, and the content itself for
// KindRawText.
type Source struct {
	Kind     Kind
	Location string
}

// Document is one unit of loaded text plus its provenance metadata.
type Document struct {
	Text     string
	Metadata map[string]string
}

// ErrUnsupportedFormat is returned when a single target file has an
// extension no sub-loader handles, or when a source yields no text at all.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// LoadError wraps an I/O or parse failure with the location that caused it.
type LoadError struct {
	Location string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.Location, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// textExtensions are the extensions loaded verbatim as plain text. JSON and
// PDF have dedicated sub-loaders; everything else is unsupported.
var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".js":   true,
	".ts":   true,
	".jsx":  true,
	".tsx":  true,
	".css":  true,
	".html": true,
	".py":   true,
}

// Loader resolves Sources into Documents.
type Loader struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Load resolves src into one or more Documents. It never returns an empty
// slice without an error: a source that yields no text fails with
// ErrUnsupportedFormat or *LoadError.
func (l *Loader) Load(ctx context.Context, src Source) ([]Document, error) {
	var (
		docs []Document
		err  error
	)
	switch src.Kind {
	case KindFile:
		docs, err = l.loadFile(src.Location)
	case KindDirectory:
		docs, err = l.loadDirectory(src.Location)
	case KindWebPage:
		docs, err = l.loadWebPage(ctx, src.Location)
	case KindRawText:
		docs, err = l.loadRawText(src.Location)
	default:
		return nil, fmt.Errorf("unknown source kind %v", src.Kind)
	}
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("source %s %q: %w", src.Kind, src.Location, ErrUnsupportedFormat)
	}
	return docs, nil
}

// loadFile routes a single path by extension. An extension outside the
// supported set is an error here, unlike during a directory scan.
func (l *Loader) loadFile(path string) ([]Document, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".json":
		return l.loadJSON(path)
	case ext == ".pdf":
		return l.loadPDF(path)
	case textExtensions[ext]:
		return l.loadText(path)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// loadDirectory walks root recursively and loads every supported file,
// skipping unsupported extensions silently.
func (l *Loader) loadDirectory(root string) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fileDocs, err := l.loadFile(path)
		if errors.Is(err, ErrUnsupportedFormat) {
			l.logger.Debug("skipping unsupported file", "path", path)
			return nil
		}
		if err != nil {
			return err
		}
		docs = append(docs, fileDocs...)
		return nil
	})
	if err != nil {
		return nil, &LoadError{Location: root, Err: err}
	}
	return docs, nil
}

func (l *Loader) loadText(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Location: path, Err: err}
	}
	if len(data) == 0 {
		return nil, nil
	}
	return []Document{{
		Text:     string(data),
		Metadata: map[string]string{"source": path, "kind": KindFile.String()},
	}}, nil
}

// loadJSON extracts the top-level "texts" array of strings, one Document
// per entry.
func (l *Loader) loadJSON(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Location: path, Err: err}
	}

	var payload struct {
		Texts []string `json:"texts"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &LoadError{Location: path, Err: err}
	}

	var docs []Document
	for i, text := range payload.Texts {
		if text == "" {
			continue
		}
		docs = append(docs, Document{
			Text: text,
			Metadata: map[string]string{
				"source": fmt.Sprintf("%s#texts[%d]", path, i),
				"kind":   KindFile.String(),
			},
		})
	}
	return docs, nil
}

func (l *Loader) loadRawText(text string) ([]Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []Document{{
		Text:     text,
		Metadata: map[string]string{"kind": KindRawText.String()},
	}}, nil
}
