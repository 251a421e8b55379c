package loader

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// loadPDF extracts the plain text of every page into a single Document.
func (l *Loader) loadPDF(path string) ([]Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, &LoadError{Location: path, Err: err}
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return nil, &LoadError{Location: path, Err: err}
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, &LoadError{Location: path, Err: err}
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return nil, nil
	}
	return []Document{{
		Text:     text,
		Metadata: map[string]string{"source": path, "kind": KindFile.String()},
	}}, nil
}
