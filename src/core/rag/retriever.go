package rag

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// BruteForceRetriever scores every chunk of a document against the query.
// It is the reference ranking other Retriever implementations must agree with.
type BruteForceRetriever struct {
	store ChunkStore
}

func NewBruteForceRetriever(store ChunkStore) *BruteForceRetriever {
	return &BruteForceRetriever{store: store}
}

func (r *BruteForceRetriever) Retrieve(ctx context.Context, query []float32, documentName string, k int) ([]ScoredChunk, error) {
	chunks, err := r.store.FindByDocument(ctx, documentName)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	return Rank(query, chunks, k)
}

// Rank scores chunks against query and returns at most k of them ordered by
// score descending, ties broken by ascending chunk index. k <= 0 means
// DefaultTopK.
func Rank(query []float32, chunks []Chunk, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	scored := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		score, err := CosineSimilarity(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %s#%d: %w", c.DocumentName, c.ChunkIndex, err)
		}
		scored = append(scored, ScoredChunk{Chunk: c, Score: score})
	}

	slices.SortStableFunc(scored, func(a, b ScoredChunk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.ChunkIndex, b.Chunk.ChunkIndex)
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
