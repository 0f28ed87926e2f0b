package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfrag/src/core/rag"
	"pdfrag/src/extract"
)

// DefaultMaxUploadBytes is the largest accepted upload.
const DefaultMaxUploadBytes int64 = 10 << 20

// RAGService is the core the handlers expose.
type RAGService interface {
	Upload(ctx context.Context, req rag.IngestRequest) (*rag.IngestionSummary, error)
	ListDocuments(ctx context.Context) ([]string, error)
	Ask(ctx context.Context, documentName, question string) (*rag.Answer, error)
}

// Archiver keeps a copy of uploaded originals.
type Archiver interface {
	Archive(ctx context.Context, bucketName, filename string, data []byte) (string, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	service        RAGService
	extractor      extract.PageExtractor
	archiver       Archiver
	bucket         string
	maxUploadBytes int64
	checks         map[string]HealthCheck
}

type Option func(*Handler)

// WithArchive stores every successfully ingested upload in bucket.
func WithArchive(archiver Archiver, bucket string) Option {
	return func(h *Handler) {
		h.archiver = archiver
		h.bucket = bucket
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		h.checks[name] = check
	}
}

func NewHandler(service RAGService, extractor extract.PageExtractor, opts ...Option) *Handler {
	h := &Handler{
		service:        service,
		extractor:      extractor,
		maxUploadBytes: DefaultMaxUploadBytes,
		checks:         map[string]HealthCheck{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/upload", h.Upload)
	r.GET("/documents", h.ListDocuments)
	r.POST("/ask", h.Ask)
	r.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

var errFileTooLarge = errors.New("file exceeds the upload size limit")

func errorStatus(err error) (int, string) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, errFileTooLarge), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"
	case errors.Is(err, rag.ErrValidation):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, rag.ErrDuplicateDocument):
		return http.StatusConflict, "DUPLICATE_DOCUMENT"
	case errors.Is(err, rag.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, rag.ErrBackend):
		return http.StatusBadGateway, "BACKEND_ERROR"
	case errors.Is(err, rag.ErrDimensionMismatch):
		return http.StatusInternalServerError, "DIMENSION_MISMATCH"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func sendError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
