// Package extract turns uploaded files into per-page text.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"pdfrag/src/core/rag"
)

// PageExtractor returns the text of every page of a file.
type PageExtractor interface {
	ExtractPages(ctx context.Context, filename string, content []byte) ([]rag.PageText, error)
}

var supported = map[string]bool{
	".pdf": true,
	".txt": true,
}

// Supported reports whether filename has an accepted extension.
func Supported(filename string) bool {
	return supported[strings.ToLower(filepath.Ext(filename))]
}

// Dispatcher selects an extractor by file extension.
type Dispatcher struct {
	pdf  PageExtractor
	text PageExtractor
}

// NewDispatcher returns a Dispatcher using pdf for PDF files. pdf may be nil,
// in which case PDF uploads are rejected.
func NewDispatcher(pdf PageExtractor) *Dispatcher {
	return &Dispatcher{pdf: pdf, text: PlainText{}}
}

func (d *Dispatcher) ExtractPages(ctx context.Context, filename string, content []byte) ([]rag.PageText, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: file %q is empty", rag.ErrValidation, filename)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		if d.pdf == nil {
			return nil, fmt.Errorf("%w: pdf extraction is not configured", rag.ErrValidation)
		}
		return d.pdf.ExtractPages(ctx, filename, content)
	case ".txt":
		return d.text.ExtractPages(ctx, filename, content)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q, only .pdf and .txt are accepted", rag.ErrValidation, filepath.Ext(filename))
	}
}

// PlainText treats form feeds as page breaks.
type PlainText struct{}

func (PlainText) ExtractPages(ctx context.Context, filename string, content []byte) ([]rag.PageText, error) {
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: %q is not valid UTF-8 text", rag.ErrValidation, filename)
	}

	text := strings.TrimSuffix(string(content), "\f")
	parts := strings.Split(text, "\f")
	pages := make([]rag.PageText, len(parts))
	for i, part := range parts {
		pages[i] = rag.PageText{PageNumber: i + 1, Text: part}
	}
	return pages, nil
}
