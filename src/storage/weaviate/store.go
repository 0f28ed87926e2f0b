package weaviate

import (
	"context"
	"fmt"
	"slices"

	"pdfrag/src/core/rag"
	"pdfrag/src/log"
)

// VectorIndex is the subset of SDK used by IndexedStore and Retriever.
type VectorIndex interface {
	AddVector(ctx context.Context, className string, object VectorObject) error
	DeleteByDocument(ctx context.Context, className, documentName string) error
	QueryVectors(ctx context.Context, className string, vector []float32, config QueryConfig) ([]QueryResult, error)
	QueryZeroNorm(ctx context.Context, className, documentName string, limit int) ([]QueryResult, error)
}

// IndexedStore is a rag.ChunkStore that keeps chunks in a primary store and
// mirrors every embedding into a Weaviate class. The primary store stays the
// source of truth for existence and listing.
type IndexedStore struct {
	primary   rag.ChunkStore
	index     VectorIndex
	className string
}

func NewIndexedStore(primary rag.ChunkStore, index VectorIndex, className string) *IndexedStore {
	if className == "" {
		className = DefaultClassName
	}
	return &IndexedStore{primary: primary, index: index, className: className}
}

func (s *IndexedStore) Exists(ctx context.Context, documentName string) (bool, error) {
	return s.primary.Exists(ctx, documentName)
}

// Insert writes the chunk to the primary store first, so a duplicate key is
// detected before anything reaches the index.
func (s *IndexedStore) Insert(ctx context.Context, chunk *rag.Chunk) error {
	if err := s.primary.Insert(ctx, chunk); err != nil {
		return err
	}

	// Zero-norm embeddings are stored without a vector and found through the
	// zeroNorm property instead.
	zeroNorm := isZero(chunk.Embedding)
	object := VectorObject{
		Properties: map[string]interface{}{
			propDocumentName: chunk.DocumentName,
			propChunkIndex:   chunk.ChunkIndex,
			propText:         chunk.Text,
			propPageNumbers:  chunk.Metadata.PageNumbers,
			propZeroNorm:     zeroNorm,
		},
	}
	if !zeroNorm {
		object.Vector = chunk.Embedding
	}

	err := s.index.AddVector(ctx, s.className, object)
	if err != nil {
		return rag.NewBackendError("weaviate", err)
	}
	return nil
}

func (s *IndexedStore) FindByDocument(ctx context.Context, documentName string) ([]rag.Chunk, error) {
	return s.primary.FindByDocument(ctx, documentName)
}

func (s *IndexedStore) DistinctDocumentNames(ctx context.Context) ([]string, error) {
	return s.primary.DistinctDocumentNames(ctx)
}

// DeleteDocument removes the document from both stores. The index is cleaned
// even if the primary delete fails.
func (s *IndexedStore) DeleteDocument(ctx context.Context, documentName string) error {
	primaryErr := s.primary.DeleteDocument(ctx, documentName)
	if err := s.index.DeleteByDocument(ctx, s.className, documentName); err != nil {
		log.Error(err, "failed to delete document vectors", "document", documentName)
		if primaryErr == nil {
			return rag.NewBackendError("weaviate", err)
		}
	}
	return primaryErr
}

// ChunkLoader is implemented by stores that can load part of a document.
type ChunkLoader interface {
	FindByIndices(ctx context.Context, documentName string, indices []int) ([]rag.Chunk, error)
}

// FindByIndices delegates to the primary store, filtering a full load when the
// primary cannot fetch a subset.
func (s *IndexedStore) FindByIndices(ctx context.Context, documentName string, indices []int) ([]rag.Chunk, error) {
	return loadChunks(ctx, s.primary, documentName, indices)
}

func loadChunks(ctx context.Context, store rag.ChunkStore, documentName string, indices []int) ([]rag.Chunk, error) {
	if loader, ok := store.(ChunkLoader); ok {
		return loader.FindByIndices(ctx, documentName, indices)
	}

	chunks, err := store.FindByDocument(ctx, documentName)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(chunks, func(c rag.Chunk) bool {
		return !slices.Contains(indices, c.ChunkIndex)
	}), nil
}

// Retriever ranks a document's chunks using Weaviate to choose which chunks
// to load. The candidate set always holds the true top k: the k nearest
// vectors, every vector tied with the k-th, and the lowest-index zero-norm
// chunks whenever a score of 0 would make the cut. Candidates are re-scored
// with rag.Rank, so results equal rag.BruteForceRetriever's.
type Retriever struct {
	index     VectorIndex
	store     rag.ChunkStore
	className string
	// maxCandidates caps the tie query; hitting it falls back to ranking the
	// whole document.
	maxCandidates int
}

func NewRetriever(index VectorIndex, store rag.ChunkStore, className string) *Retriever {
	if className == "" {
		className = DefaultClassName
	}
	return &Retriever{index: index, store: store, className: className, maxCandidates: 1000}
}

// distanceSlack absorbs float32 rounding of distances reported by Weaviate.
const distanceSlack = 1e-5

func (r *Retriever) Retrieve(ctx context.Context, query []float32, documentName string, k int) ([]rag.ScoredChunk, error) {
	if k <= 0 {
		k = rag.DefaultTopK
	}
	if isZero(query) {
		// Every chunk scores 0; order is by index alone.
		return r.rankAll(ctx, query, documentName, k)
	}

	nearest, err := r.index.QueryVectors(ctx, r.className, query, QueryConfig{
		Fields:       []string{propChunkIndex},
		Limit:        k,
		DocumentName: documentName,
	})
	if err != nil {
		return nil, rag.NewBackendError("weaviate", err)
	}

	candidates := make(map[int]struct{})
	addCandidates(candidates, nearest)
	needZeroNorm := len(nearest) < k

	if len(nearest) >= k {
		kth := 0.0
		for _, res := range nearest {
			kth = max(kth, res.Distance)
		}

		tied, err := r.index.QueryVectors(ctx, r.className, query, QueryConfig{
			Fields:       []string{propChunkIndex},
			Limit:        r.maxCandidates,
			DocumentName: documentName,
			Distance:     kth + distanceSlack,
		})
		if err != nil {
			return nil, rag.NewBackendError("weaviate", err)
		}
		if len(tied) >= r.maxCandidates {
			log.Debug("too many tied candidates, ranking whole document", "document", documentName, "k", k)
			return r.rankAll(ctx, query, documentName, k)
		}
		addCandidates(candidates, tied)

		// A zero-norm chunk scores 0, i.e. distance 1.
		needZeroNorm = kth >= 1-distanceSlack
	}

	if needZeroNorm {
		zero, err := r.index.QueryZeroNorm(ctx, r.className, documentName, k)
		if err != nil {
			return nil, rag.NewBackendError("weaviate", err)
		}
		addCandidates(candidates, zero)
	}

	if len(candidates) == 0 {
		// Nothing indexed for the document; the store may still hold it.
		return r.rankAll(ctx, query, documentName, k)
	}

	indices := make([]int, 0, len(candidates))
	for idx := range candidates {
		indices = append(indices, idx)
	}
	slices.Sort(indices)

	chunks, err := loadChunks(ctx, r.store, documentName, indices)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	log.Debug("weaviate candidates", "document", documentName, "candidates", len(chunks), "k", k)
	return rag.Rank(query, chunks, k)
}

func (r *Retriever) rankAll(ctx context.Context, query []float32, documentName string, k int) ([]rag.ScoredChunk, error) {
	chunks, err := r.store.FindByDocument(ctx, documentName)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	return rag.Rank(query, chunks, k)
}

func addCandidates(set map[int]struct{}, results []QueryResult) {
	for _, res := range results {
		if idx, ok := chunkIndexOf(res); ok {
			set[idx] = struct{}{}
		}
	}
}

func chunkIndexOf(res QueryResult) (int, bool) {
	switch v := res.Properties[propChunkIndex].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
