package unstructured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"pdfrag/src/core/rag"
	"pdfrag/src/log"
)

const DefaultURL = "http://unstructured:8000"

type UnstructuredService struct {
	baseURL    string
	httpClient *http.Client
}

type UnstructuredElement struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	ElementID string   `json:"element_id"`
	Metadata  Metadata `json:"metadata"`
}

type Metadata struct {
	Filename   string `json:"filename,omitempty"`
	Filetype   string `json:"filetype,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

func NewUnstructuredService(baseURL string, httpClient *http.Client) *UnstructuredService {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &UnstructuredService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Partition sends the file to the partition endpoint and returns its
// elements in document order.
func (s *UnstructuredService) Partition(ctx context.Context, filename string, content []byte) ([]UnstructuredElement, error) {
	var requestBody bytes.Buffer
	multipartWriter := multipart.NewWriter(&requestBody)

	fileWriter, err := multipartWriter.CreateFormFile("files", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(fileWriter, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := multipartWriter.WriteField("strategy", "fast"); err != nil {
		return nil, fmt.Errorf("failed to write strategy: %w", err)
	}
	if err := multipartWriter.WriteField("output_format", "application/json"); err != nil {
		return nil, fmt.Errorf("failed to write output format: %w", err)
	}
	if err := multipartWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/general/v0/general", &requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", multipartWriter.FormDataContentType())

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, rag.NewBackendError("unstructured", fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error(fmt.Errorf("status %s", resp.Status), "failed to partition document",
			"file", filename,
			"response", string(body))
		return nil, rag.NewBackendError("unstructured", fmt.Errorf("conversion service error: %s", resp.Status))
	}

	var elements []UnstructuredElement
	if err := json.NewDecoder(resp.Body).Decode(&elements); err != nil {
		return nil, rag.NewBackendError("unstructured", fmt.Errorf("failed to parse response: %w", err))
	}
	return elements, nil
}

// ExtractPages partitions a document and joins element text per page.
// Elements without a page number belong to page 1.
func (s *UnstructuredService) ExtractPages(ctx context.Context, filename string, content []byte) ([]rag.PageText, error) {
	elements, err := s.Partition(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	return GroupByPage(elements), nil
}

// GroupByPage joins element texts with newlines per page number, in
// ascending page order. Every page from 1 to the highest numbered one is
// emitted, so pages without elements (blank or image-only) appear with empty
// text and still count towards the document's page total.
func GroupByPage(elements []UnstructuredElement) []rag.PageText {
	texts := make(map[int][]string)
	last := 0
	for _, e := range elements {
		page := e.Metadata.PageNumber
		if page <= 0 {
			page = 1
		}
		texts[page] = append(texts[page], e.Text)
		last = max(last, page)
	}

	pages := make([]rag.PageText, 0, last)
	for n := 1; n <= last; n++ {
		pages = append(pages, rag.PageText{PageNumber: n, Text: strings.Join(texts[n], "\n")})
	}
	return pages
}
