package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"pdfrag/src/core/rag"
)

type chunkKey struct {
	document string
	index    int
}

// Store is an in-process ChunkStore. Chunks are copied on the way in and out
// so callers cannot mutate stored records.
type Store struct {
	mu     sync.RWMutex
	chunks map[chunkKey]rag.Chunk
}

func NewStore() *Store {
	return &Store{chunks: make(map[chunkKey]rag.Chunk)}
}

func (s *Store) Exists(ctx context.Context, documentName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key := range s.chunks {
		if key.document == documentName {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Insert(ctx context.Context, chunk *rag.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := chunkKey{document: chunk.DocumentName, index: chunk.ChunkIndex}
	if _, ok := s.chunks[key]; ok {
		return fmt.Errorf("%w: %s#%d", rag.ErrDuplicateKey, chunk.DocumentName, chunk.ChunkIndex)
	}
	s.chunks[key] = clone(*chunk)
	return nil
}

// FindByDocument returns the document's chunks ordered by index.
func (s *Store) FindByDocument(ctx context.Context, documentName string) ([]rag.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []rag.Chunk
	for key, c := range s.chunks {
		if key.document == documentName {
			out = append(out, clone(c))
		}
	}
	slices.SortFunc(out, func(a, b rag.Chunk) int { return a.ChunkIndex - b.ChunkIndex })
	return out, nil
}

// FindByIndices returns the chunks of documentName whose index is listed,
// ordered by index. Unknown indices are ignored.
func (s *Store) FindByIndices(ctx context.Context, documentName string, indices []int) ([]rag.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rag.Chunk, 0, len(indices))
	for _, idx := range indices {
		if c, ok := s.chunks[chunkKey{document: documentName, index: idx}]; ok {
			out = append(out, clone(c))
		}
	}
	slices.SortFunc(out, func(a, b rag.Chunk) int { return a.ChunkIndex - b.ChunkIndex })
	return slices.CompactFunc(out, func(a, b rag.Chunk) bool { return a.ChunkIndex == b.ChunkIndex }), nil
}

func (s *Store) DistinctDocumentNames(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	names := []string{}
	for key := range s.chunks {
		if _, ok := seen[key.document]; ok {
			continue
		}
		seen[key.document] = struct{}{}
		names = append(names, key.document)
	}
	slices.Sort(names)
	return names, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.chunks {
		if key.document == documentName {
			delete(s.chunks, key)
		}
	}
	return nil
}

// Count returns the number of chunks stored for documentName.
func (s *Store) Count(documentName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for key := range s.chunks {
		if key.document == documentName {
			n++
		}
	}
	return n
}

func clone(c rag.Chunk) rag.Chunk {
	c.Embedding = slices.Clone(c.Embedding)
	c.Metadata.PageNumbers = slices.Clone(c.Metadata.PageNumbers)
	return c
}
