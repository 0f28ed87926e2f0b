package chunkctrl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"pdfrag/src/core/rag"
)

// Chunk is the database row of one rag.Chunk. (document_name, chunk_index) is
// unique.
type Chunk struct {
	ID           int64           `gorm:"primaryKey" json:"id"`
	DocumentName string          `gorm:"not null;uniqueIndex:idx_document_chunk,priority:1" json:"document_name"`
	ChunkIndex   int             `gorm:"not null;uniqueIndex:idx_document_chunk,priority:2" json:"chunk_index"`
	Text         string          `gorm:"type:text;not null" json:"text"`
	Embedding    pgvector.Vector `gorm:"type:vector" json:"-"`
	FileName     string          `json:"file_name"`
	PageNumbers  []int           `gorm:"serializer:json" json:"page_numbers"`
	TotalPages   int             `json:"total_pages"`
	UploadedAt   time.Time       `json:"uploaded_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (Chunk) TableName() string {
	return "document_chunks"
}

// Migrate enables pgvector and creates the chunk table.
func Migrate(db *gorm.DB) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if err := db.AutoMigrate(&Chunk{}); err != nil {
		return fmt.Errorf("failed to migrate chunks: %w", err)
	}
	return nil
}

// ChunkService is a rag.ChunkStore backed by PostgreSQL. The *gorm.DB must be
// opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
type ChunkService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewChunkService(db *gorm.DB) (*ChunkService, error) {
	node, err := snowflake.NewNode(2) // Node number 2 for chunks
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}

	return &ChunkService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *ChunkService) Exists(ctx context.Context, documentName string) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&Chunk{}).Where("document_name = ?", documentName).Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to count chunks: %w", result.Error)
	}
	return count > 0, nil
}

func (s *ChunkService) Insert(ctx context.Context, chunk *rag.Chunk) error {
	row := toRow(chunk)
	row.ID = s.snowflake.Generate().Int64()

	result := s.db.WithContext(ctx).Create(row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s#%d", rag.ErrDuplicateKey, chunk.DocumentName, chunk.ChunkIndex)
		}
		return fmt.Errorf("failed to create chunk: %w", result.Error)
	}
	return nil
}

func (s *ChunkService) FindByDocument(ctx context.Context, documentName string) ([]rag.Chunk, error) {
	var rows []Chunk
	result := s.db.WithContext(ctx).
		Where("document_name = ?", documentName).
		Order("chunk_index ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", result.Error)
	}

	chunks := make([]rag.Chunk, len(rows))
	for i := range rows {
		chunks[i] = fromRow(&rows[i])
	}
	return chunks, nil
}

func (s *ChunkService) FindByIndices(ctx context.Context, documentName string, indices []int) ([]rag.Chunk, error) {
	if len(indices) == 0 {
		return []rag.Chunk{}, nil
	}

	var rows []Chunk
	result := s.db.WithContext(ctx).
		Where("document_name = ? AND chunk_index IN ?", documentName, indices).
		Order("chunk_index ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", result.Error)
	}

	chunks := make([]rag.Chunk, len(rows))
	for i := range rows {
		chunks[i] = fromRow(&rows[i])
	}
	return chunks, nil
}

func (s *ChunkService) DistinctDocumentNames(ctx context.Context) ([]string, error) {
	names := []string{}
	result := s.db.WithContext(ctx).
		Model(&Chunk{}).
		Distinct("document_name").
		Order("document_name ASC").
		Pluck("document_name", &names)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list documents: %w", result.Error)
	}
	return names, nil
}

func (s *ChunkService) DeleteDocument(ctx context.Context, documentName string) error {
	result := s.db.WithContext(ctx).Where("document_name = ?", documentName).Delete(&Chunk{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete chunks: %w", result.Error)
	}
	return nil
}

func toRow(c *rag.Chunk) *Chunk {
	return &Chunk{
		DocumentName: c.DocumentName,
		ChunkIndex:   c.ChunkIndex,
		Text:         c.Text,
		Embedding:    pgvector.NewVector(c.Embedding),
		FileName:     c.Metadata.FileName,
		PageNumbers:  c.Metadata.PageNumbers,
		TotalPages:   c.Metadata.TotalPages,
		UploadedAt:   c.Metadata.UploadedAt,
	}
}

func fromRow(r *Chunk) rag.Chunk {
	return rag.Chunk{
		DocumentName: r.DocumentName,
		ChunkIndex:   r.ChunkIndex,
		Text:         r.Text,
		Embedding:    r.Embedding.Slice(),
		Metadata: rag.Metadata{
			FileName:    r.FileName,
			PageNumbers: r.PageNumbers,
			TotalPages:  r.TotalPages,
			UploadedAt:  r.UploadedAt.UTC(),
		},
	}
}
