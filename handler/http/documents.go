package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pdfrag/src/core/rag"
	"pdfrag/src/extract"
	"pdfrag/src/log"
)

type uploadResponse struct {
	Message   string                `json:"message"`
	Result    *rag.IngestionSummary `json:"result"`
	ObjectURL string                `json:"objectUrl,omitempty"`
}

type listDocumentsResponse struct {
	Documents []string `json:"documents"`
}

// Upload accepts a multipart form with a document name ("name") and a .pdf or
// .txt file ("file") and ingests it synchronously.
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)

	name := strings.TrimSpace(c.PostForm("name"))
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			sendError(c, errFileTooLarge)
			return
		}
		sendError(c, fmt.Errorf("%w: no file uploaded", rag.ErrValidation))
		return
	}
	if name == "" {
		sendError(c, fmt.Errorf("%w: document name is required", rag.ErrValidation))
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		sendError(c, errFileTooLarge)
		return
	}
	if !extract.Supported(fileHeader.Filename) {
		sendError(c, fmt.Errorf("%w: only .pdf and .txt files are allowed", rag.ErrValidation))
		return
	}

	content, err := readFormFile(fileHeader)
	if err != nil {
		sendError(c, err)
		return
	}

	ctx := c.Request.Context()
	pages, err := h.extractor.ExtractPages(ctx, fileHeader.Filename, content)
	if err != nil {
		sendError(c, err)
		return
	}

	summary, err := h.service.Upload(ctx, rag.IngestRequest{
		DocumentName: name,
		FileName:     fileHeader.Filename,
		Pages:        pages,
	})
	if err != nil {
		sendError(c, err)
		return
	}

	resp := uploadResponse{
		Message: "document uploaded and processed successfully",
		Result:  summary,
	}
	if h.archiver != nil {
		url, err := h.archiver.Archive(ctx, h.bucket, fileHeader.Filename, content)
		if err != nil {
			log.Error(err, "failed to archive upload", "document", summary.DocumentName)
		} else {
			resp.ObjectURL = url
		}
	}

	sendJSON(c, http.StatusOK, resp)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	return data, nil
}

// ListDocuments returns the names of all ingested documents.
func (h *Handler) ListDocuments(c *gin.Context) {
	names, err := h.service.ListDocuments(c.Request.Context())
	if err != nil {
		sendError(c, err)
		return
	}
	sendJSON(c, http.StatusOK, listDocumentsResponse{Documents: names})
}
