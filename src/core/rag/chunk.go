package rag

import (
	"context"
	"time"
)

// DefaultTopK is the number of chunks retrieved when a caller does not ask
// for a specific amount.
const DefaultTopK = 5

// PageText is the extracted text of one page of a source document.
type PageText struct {
	PageNumber int
	Text       string
}

// Passage is a slice of one page's text produced by a Chunker, before it is
// given an index and an embedding.
type Passage struct {
	PageNumber int
	Text       string
}

// Metadata describes where a chunk came from.
type Metadata struct {
	FileName    string    `json:"fileName"`
	PageNumbers []int     `json:"pageNumbers"`
	TotalPages  int       `json:"totalPages"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Chunk is the unit stored and retrieved. (DocumentName, ChunkIndex) is unique
// across a store and chunks are never updated once written.
type Chunk struct {
	DocumentName string    `json:"documentName"`
	ChunkIndex   int       `json:"chunkIndex"`
	Text         string    `json:"text"`
	Embedding    []float32 `json:"-"`
	Metadata     Metadata  `json:"metadata"`
}

// ScoredChunk is a chunk paired with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// IngestRequest carries a document that has already been turned into page
// text by an upload collaborator.
type IngestRequest struct {
	DocumentName string
	FileName     string
	Pages        []PageText
}

// IngestionSummary reports what an ingestion stored.
type IngestionSummary struct {
	DocumentName string `json:"documentName"`
	ChunkCount   int    `json:"totalChunks"`
	PageCount    int    `json:"totalPages"`
}

// Source points back at a chunk used to ground an answer.
type Source struct {
	ChunkIndex  int     `json:"chunkIndex"`
	PageNumbers []int   `json:"pageNumbers"`
	Score       float64 `json:"score"`
}

// Answer is the result of asking a question against a document.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Chunker splits page text into passages.
type Chunker interface {
	Split(pages []PageText) ([]Passage, error)
}

// Embedder turns text into a fixed-length vector. Implementations must be
// safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer sends a single prompt to a language model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChunkStore owns chunk records.
type ChunkStore interface {
	Exists(ctx context.Context, documentName string) (bool, error)
	// Insert fails with ErrDuplicateKey when (DocumentName, ChunkIndex) is taken.
	Insert(ctx context.Context, chunk *Chunk) error
	FindByDocument(ctx context.Context, documentName string) ([]Chunk, error)
	DistinctDocumentNames(ctx context.Context) ([]string, error)
	DeleteDocument(ctx context.Context, documentName string) error
}

// Retriever returns the chunks of a document most similar to a query vector,
// best first.
type Retriever interface {
	Retrieve(ctx context.Context, query []float32, documentName string, k int) ([]ScoredChunk, error)
}
