package rag

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Service exposes the three operations callers use: upload a document, list
// known documents and ask a question about one of them.
type Service struct {
	pipeline  *IngestionPipeline
	embedder  Embedder
	store     ChunkStore
	retriever Retriever
	composer  *AnswerComposer
	topK      int
}

func NewService(pipeline *IngestionPipeline, embedder Embedder, store ChunkStore, retriever Retriever, composer *AnswerComposer, topK int) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{
		pipeline:  pipeline,
		embedder:  embedder,
		store:     store,
		retriever: retriever,
		composer:  composer,
		topK:      topK,
	}
}

// Upload ingests a document whose pages have already been extracted.
func (s *Service) Upload(ctx context.Context, req IngestRequest) (*IngestionSummary, error) {
	req.DocumentName = strings.TrimSpace(req.DocumentName)
	if req.DocumentName == "" {
		return nil, validationError("document name is required")
	}
	if len(req.Pages) == 0 {
		return nil, validationError("document has no pages")
	}

	exists, err := s.store.Exists(ctx, req.DocumentName)
	if err != nil {
		return nil, fmt.Errorf("failed to check document existence: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, req.DocumentName)
	}

	return s.pipeline.Ingest(ctx, req)
}

// ListDocuments returns every known document name in ascending order.
func (s *Service) ListDocuments(ctx context.Context) ([]string, error) {
	names, err := s.store.DistinctDocumentNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

// Ask answers question from the chunks of documentName.
func (s *Service) Ask(ctx context.Context, documentName, question string) (*Answer, error) {
	documentName = strings.TrimSpace(documentName)
	question = strings.TrimSpace(question)
	if documentName == "" || question == "" {
		return nil, validationError("question and document name are required")
	}

	exists, err := s.store.Exists(ctx, documentName)
	if err != nil {
		return nil, fmt.Errorf("failed to check document existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, documentName)
	}

	query, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	chunks, err := s.retriever.Retrieve(ctx, query, documentName, s.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve chunks: %w", err)
	}

	text, err := s.composer.Compose(ctx, question, chunks)
	if err != nil {
		return nil, err
	}

	sources := make([]Source, len(chunks))
	for i, c := range chunks {
		sources[i] = Source{
			ChunkIndex:  c.Chunk.ChunkIndex,
			PageNumbers: c.Chunk.Metadata.PageNumbers,
			Score:       c.Score,
		}
	}
	return &Answer{Text: text, Sources: sources}, nil
}
