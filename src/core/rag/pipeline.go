package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pdfrag/src/log"
)

// DefaultConcurrency bounds the number of embedding calls in flight for one
// ingestion.
const DefaultConcurrency = 4

// IngestionPipeline runs Chunker -> Embedder -> ChunkStore for one document.
// A document is either stored completely or not at all.
type IngestionPipeline struct {
	chunker     Chunker
	embedder    Embedder
	store       ChunkStore
	concurrency int
	now         func() time.Time
	progress    func(done, total int)
}

type PipelineOption func(*IngestionPipeline)

// WithConcurrency sets how many embedding calls may run at once.
func WithConcurrency(n int) PipelineOption {
	return func(p *IngestionPipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithClock replaces time.Now for the ingestion timestamp.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *IngestionPipeline) {
		p.now = now
	}
}

// WithProgress registers a callback invoked after every embedded passage. It
// is never called concurrently.
func WithProgress(fn func(done, total int)) PipelineOption {
	return func(p *IngestionPipeline) {
		p.progress = fn
	}
}

func NewIngestionPipeline(chunker Chunker, embedder Embedder, store ChunkStore, opts ...PipelineOption) *IngestionPipeline {
	p := &IngestionPipeline{
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest chunks, embeds and stores req. It fails with ErrDuplicateDocument if
// the name is already present, including when a concurrent ingestion of the
// same name wins the race.
func (p *IngestionPipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestionSummary, error) {
	if req.DocumentName == "" {
		return nil, validationError("document name is required")
	}

	exists, err := p.store.Exists(ctx, req.DocumentName)
	if err != nil {
		return nil, fmt.Errorf("failed to check document existence: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, req.DocumentName)
	}

	passages, err := p.chunker.Split(req.Pages)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}

	embeddings, err := p.embedAll(ctx, passages)
	if err != nil {
		return nil, err
	}

	uploadedAt := p.now().UTC()
	inserted := 0
	for i, passage := range passages {
		chunk := &Chunk{
			DocumentName: req.DocumentName,
			ChunkIndex:   i,
			Text:         passage.Text,
			Embedding:    embeddings[i],
			Metadata: Metadata{
				FileName:    req.FileName,
				PageNumbers: []int{passage.PageNumber},
				TotalPages:  len(req.Pages),
				UploadedAt:  uploadedAt,
			},
		}

		if err := p.store.Insert(ctx, chunk); err != nil {
			if inserted == 0 && errors.Is(err, ErrDuplicateKey) {
				// Another ingestion of the same name got there first.
				return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, req.DocumentName)
			}
			p.cleanup(ctx, req.DocumentName)
			return nil, fmt.Errorf("failed to store chunk %d: %w", i, err)
		}
		inserted++
	}

	log.Info("document ingested",
		"document", req.DocumentName,
		"chunks", len(passages),
		"pages", len(req.Pages))

	return &IngestionSummary{
		DocumentName: req.DocumentName,
		ChunkCount:   len(passages),
		PageCount:    len(req.Pages),
	}, nil
}

// embedAll embeds passages with bounded concurrency. Results are stored by
// passage position so completion order does not matter.
func (p *IngestionPipeline) embedAll(ctx context.Context, passages []Passage) ([][]float32, error) {
	embeddings := make([][]float32, len(passages))

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, passage := range passages {
		g.Go(func() error {
			vec, err := p.embedder.Embed(gctx, passage.Text)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %d: %w", i, err)
			}
			embeddings[i] = vec

			if p.progress != nil {
				mu.Lock()
				done++
				p.progress(done, len(passages))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := 1; i < len(embeddings); i++ {
		if len(embeddings[i]) != len(embeddings[0]) {
			return nil, fmt.Errorf("chunk %d: %w", i, &DimensionMismatchError{Want: len(embeddings[0]), Got: len(embeddings[i])})
		}
	}
	return embeddings, nil
}

// cleanup removes a partially stored document. It runs even if ctx is already
// cancelled; a failure is logged and never replaces the original error.
func (p *IngestionPipeline) cleanup(ctx context.Context, documentName string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := p.store.DeleteDocument(cleanupCtx, documentName); err != nil {
		log.Error(err, "failed to clean up partially ingested document", "document", documentName)
		return
	}
	log.Info("removed partially ingested document", "document", documentName)
}
