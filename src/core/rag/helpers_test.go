package rag_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"pdfrag/src/core/rag"
)

// letterEmbedder maps text to a 26-dim vector of letter counts, so identical
// texts embed identically.
type letterEmbedder struct {
	calls atomic.Int32
}

func (e *letterEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return letterVector(text), nil
}

func letterVector(text string) []float32 {
	vec := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec
}

type funcEmbedder func(ctx context.Context, text string) ([]float32, error)

func (f funcEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

type recordingCompleter struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (c *recordingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *recordingCompleter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

// faultyStore wraps a ChunkStore and can fail inserts or hide existing
// documents from Exists.
type faultyStore struct {
	rag.ChunkStore
	failInsertAt int // 1-based insert call that fails; 0 never fails
	hideExisting bool
	inserts      int
	deletes      []string
}

var errStoreDown = errors.New("store unavailable")

func (s *faultyStore) Exists(ctx context.Context, name string) (bool, error) {
	if s.hideExisting {
		return false, nil
	}
	return s.ChunkStore.Exists(ctx, name)
}

func (s *faultyStore) Insert(ctx context.Context, chunk *rag.Chunk) error {
	s.inserts++
	if s.failInsertAt > 0 && s.inserts == s.failInsertAt {
		return errStoreDown
	}
	return s.ChunkStore.Insert(ctx, chunk)
}

func (s *faultyStore) DeleteDocument(ctx context.Context, name string) error {
	s.deletes = append(s.deletes, name)
	return s.ChunkStore.DeleteDocument(ctx, name)
}

type staticRetriever struct {
	chunks []rag.ScoredChunk
}

func (r staticRetriever) Retrieve(ctx context.Context, query []float32, documentName string, k int) ([]rag.ScoredChunk, error) {
	return r.chunks, nil
}
