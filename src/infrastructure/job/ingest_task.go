package job

import (
	"context"
	"encoding/json"
	"fmt"

	"pdfrag/src/core/rag"
	"pdfrag/src/log"
)

const TaskTypeIngest = "ingest_document"

// IngestPayload describes a document waiting in object storage.
type IngestPayload struct {
	DocumentName string `json:"document_name"`
	FileName     string `json:"file_name"`
	ObjectURL    string `json:"object_url"` // bucket/object
}

// ObjectStore holds archived uploads.
type ObjectStore interface {
	Fetch(ctx context.Context, objectURL string) ([]byte, error)
	Remove(ctx context.Context, objectURL string) error
}

type PageExtractor interface {
	ExtractPages(ctx context.Context, filename string, content []byte) ([]rag.PageText, error)
}

type Uploader interface {
	Upload(ctx context.Context, req rag.IngestRequest) (*rag.IngestionSummary, error)
}

// IngestTask downloads an archived upload, extracts its pages and ingests
// them. An upload that can never be ingested is removed from object storage.
type IngestTask struct {
	objects   ObjectStore
	extractor PageExtractor
	uploader  Uploader
}

func NewIngestTask(objects ObjectStore, extractor PageExtractor, uploader Uploader) *IngestTask {
	return &IngestTask{
		objects:   objects,
		extractor: extractor,
		uploader:  uploader,
	}
}

func (t *IngestTask) HandleIngestTask(ctx context.Context, raw json.RawMessage) error {
	var payload IngestPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: failed to unmarshal ingest payload: %v", rag.ErrValidation, err)
	}

	content, err := t.objects.Fetch(ctx, payload.ObjectURL)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", payload.ObjectURL, err)
	}

	pages, err := t.extractor.ExtractPages(ctx, payload.FileName, content)
	if err != nil {
		err = fmt.Errorf("failed to extract pages: %w", err)
		t.discardIfPermanent(ctx, payload.ObjectURL, err)
		return err
	}

	summary, err := t.uploader.Upload(ctx, rag.IngestRequest{
		DocumentName: payload.DocumentName,
		FileName:     payload.FileName,
		Pages:        pages,
	})
	if err != nil {
		t.discardIfPermanent(ctx, payload.ObjectURL, err)
		return err
	}

	log.Info("ingest job finished",
		"document", summary.DocumentName,
		"chunks", summary.ChunkCount,
		"pages", summary.PageCount)
	return nil
}

func (t *IngestTask) discardIfPermanent(ctx context.Context, objectURL string, cause error) {
	if !isPermanent(cause) {
		return
	}
	if err := t.objects.Remove(ctx, objectURL); err != nil {
		log.Error(err, "failed to remove rejected upload", "object", objectURL)
		return
	}
	log.Info("removed rejected upload", "object", objectURL, "reason", cause.Error())
}
