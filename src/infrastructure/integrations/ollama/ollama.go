package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"pdfrag/src/core/rag"
	"pdfrag/src/log"
)

const (
	DefaultURL             = "http://ollama:11434"
	DefaultEmbeddingModel  = "nomic-embed-text"
	DefaultCompletionModel = "llama3"
)

// ErrEmptyResponse is returned when the backend answered without content.
var ErrEmptyResponse = errors.New("empty response from ollama")

type Config struct {
	URL             string
	EmbeddingModel  string
	CompletionModel string
	// Timeout bounds a single embedding or generate call. Zero disables it.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to an Ollama server. It implements rag.Embedder and
// rag.Completer.
type Client struct {
	api             *api.Client
	embeddingModel  string
	completionModel string
	timeout         time.Duration
}

// NewClient creates a new Ollama API client
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.CompletionModel == "" {
		cfg.CompletionModel = DefaultCompletionModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", cfg.URL, err)
	}

	return &Client{
		api:             api.NewClient(base, cfg.HTTPClient),
		embeddingModel:  cfg.EmbeddingModel,
		completionModel: cfg.CompletionModel,
		timeout:         cfg.Timeout,
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// GetEmbedding generates an embedding vector for the given text using the specified model
func (c *Client) GetEmbedding(ctx context.Context, model string, text string) ([]float32, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("error requesting embedding: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, ErrEmptyResponse
	}

	embedding32 := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		embedding32[i] = float32(v)
	}
	return embedding32, nil
}

// Generate performs a single non-streaming generation with the given prompt.
func (c *Client) Generate(ctx context.Context, model, system, prompt string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	stream := false
	var answer string
	err := c.api.Generate(ctx, &api.GenerateRequest{
		Model:  model,
		System: system,
		Prompt: prompt,
		Stream: &stream,
	}, func(resp api.GenerateResponse) error {
		answer += resp.Response
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("error generating response: %w", err)
	}
	if answer == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}

// Embed implements rag.Embedder with the configured embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.GetEmbedding(ctx, c.embeddingModel, text)
	if err != nil {
		logFailure(err, "embedding", c.embeddingModel)
		return nil, rag.NewBackendError("embedding", err)
	}
	return vec, nil
}

// Complete implements rag.Completer with the configured completion model.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	answer, err := c.Generate(ctx, c.completionModel, "", prompt)
	if err != nil {
		logFailure(err, "completion", c.completionModel)
		return "", rag.NewBackendError("completion", err)
	}
	return answer, nil
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.api.Heartbeat(ctx); err != nil {
		return rag.NewBackendError("ollama", err)
	}
	return nil
}

// Models lists the models installed on the server.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, rag.NewBackendError("ollama", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func logFailure(err error, op, model string) {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		log.Error(err, "ollama request failed", "op", op, "model", model, "status", statusErr.StatusCode)
		return
	}
	log.Error(err, "ollama request failed", "op", op, "model", model)
}
