package chunkctrl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pdfrag/src/core/rag"
)

func TestRowConversion(t *testing.T) {
	uploaded := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	chunk := &rag.Chunk{
		DocumentName: "manual",
		ChunkIndex:   3,
		Text:         "some text",
		Embedding:    []float32{0.1, 0.2, 0.3},
		Metadata: rag.Metadata{
			FileName:    "manual.pdf",
			PageNumbers: []int{4},
			TotalPages:  9,
			UploadedAt:  uploaded,
		},
	}

	row := toRow(chunk)
	assert.Equal(t, "manual", row.DocumentName)
	assert.Equal(t, 3, row.ChunkIndex)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, row.Embedding.Slice())
	assert.Equal(t, "document_chunks", row.TableName())

	assert.Equal(t, *chunk, fromRow(row))
}

// newFailingDB opens a connection-less gorm.DB whose create callback fails
// with createErr.
func newFailingDB(t *testing.T, createErr error) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=1 user=test dbname=test sslmode=disable",
	}), &gorm.Config{
		TranslateError:         true,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)

	err = db.Callback().Create().Replace("gorm:create", func(tx *gorm.DB) {
		_ = tx.AddError(createErr)
	})
	require.NoError(t, err)
	return db
}

func TestChunkService_InsertErrors(t *testing.T) {
	tests := []struct {
		name          string
		createErr     error
		wantDuplicate bool
	}{
		{name: "unique violation", createErr: gorm.ErrDuplicatedKey, wantDuplicate: true},
		{name: "other failure", createErr: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewChunkService(newFailingDB(t, tt.createErr))
			require.NoError(t, err)

			err = svc.Insert(context.Background(), &rag.Chunk{
				DocumentName: "manual",
				ChunkIndex:   1,
				Text:         "text",
				Embedding:    []float32{1, 0},
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantDuplicate, errors.Is(err, rag.ErrDuplicateKey))
			if !tt.wantDuplicate {
				assert.ErrorIs(t, err, tt.createErr)
			}
		})
	}
}
