package rag

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultWindowSize is the number of characters in one fixed window.
const DefaultWindowSize = 1000

// FixedWindowChunker cuts every page into consecutive, non-overlapping windows
// of windowSize runes. A window never crosses a page boundary and windows that
// hold only whitespace are dropped.
type FixedWindowChunker struct {
	windowSize int
}

type ChunkerOption func(*FixedWindowChunker)

// WithWindowSize overrides the window length. Non-positive values are ignored.
func WithWindowSize(n int) ChunkerOption {
	return func(c *FixedWindowChunker) {
		if n > 0 {
			c.windowSize = n
		}
	}
}

func NewChunker(opts ...ChunkerOption) *FixedWindowChunker {
	c := &FixedWindowChunker{windowSize: DefaultWindowSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split returns passages in page order, then text order within a page.
func (c *FixedWindowChunker) Split(pages []PageText) ([]Passage, error) {
	var passages []Passage
	for _, page := range pages {
		runes := []rune(page.Text)
		for start := 0; start < len(runes); start += c.windowSize {
			end := start + c.windowSize
			if end > len(runes) {
				end = len(runes)
			}
			text := string(runes[start:end])
			if strings.TrimSpace(text) == "" {
				continue
			}
			passages = append(passages, Passage{PageNumber: page.PageNumber, Text: text})
		}
	}
	return passages, nil
}

// RecursiveChunker splits each page on natural separators (paragraphs, lines,
// words) up to chunkSize runes, with optional overlap between neighbours.
type RecursiveChunker struct {
	chunkSize    int
	chunkOverlap int
}

func NewRecursiveChunker(chunkSize, chunkOverlap int) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultWindowSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &RecursiveChunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

func (c *RecursiveChunker) Split(pages []PageText) ([]Passage, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.chunkOverlap),
	)

	var passages []Passage
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		parts, err := splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split page %d: %w", page.PageNumber, err)
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			passages = append(passages, Passage{PageNumber: page.PageNumber, Text: part})
		}
	}
	return passages, nil
}
