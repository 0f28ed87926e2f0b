package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pdfrag/src/core/rag"
	"pdfrag/src/extract"
	"pdfrag/src/infrastructure/integrations/ollama"
	"pdfrag/src/infrastructure/integrations/unstructured"
	"pdfrag/src/log"
	"pdfrag/src/storage/memory"
	"pdfrag/src/storage/minioctrl"
	"pdfrag/src/storage/postgres/chunkctrl"
	"pdfrag/src/storage/weaviate"
)

// app holds the wired core and the resources it owns.
type app struct {
	db      *gorm.DB
	store   rag.ChunkStore
	ollama  *ollama.Client
	service *rag.Service
}

func openDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func newOllamaClient() (*ollama.Client, error) {
	return ollama.NewClient(ollama.Config{
		URL:             viper.GetString("ollama.url"),
		EmbeddingModel:  viper.GetString("ollama.embedding_model"),
		CompletionModel: viper.GetString("ollama.completion_model"),
		Timeout:         viper.GetDuration("ollama.timeout"),
	})
}

func newMinioService(ctx context.Context) (*minioctrl.MinioService, error) {
	if viper.GetString("minio.endpoint") == "" {
		return nil, fmt.Errorf("minio.endpoint is not configured")
	}

	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio service: %w", err)
	}
	if err := minioService.EnsureBucketExists(ctx, viper.GetString("minio.upload_bucket")); err != nil {
		return nil, err
	}
	return minioService, nil
}

func newExtractor() *extract.Dispatcher {
	return extract.NewDispatcher(unstructured.NewUnstructuredService(
		viper.GetString("unstructured.url"),
		&http.Client{Timeout: 5 * time.Minute},
	))
}

func newChunker() (rag.Chunker, error) {
	size := viper.GetInt("rag.chunk_size")
	switch strategy := viper.GetString("rag.chunk_strategy"); strategy {
	case "fixed", "":
		return rag.NewChunker(rag.WithWindowSize(size)), nil
	case "recursive":
		return rag.NewRecursiveChunker(size, size/10), nil
	default:
		return nil, fmt.Errorf("unknown chunk strategy %q", strategy)
	}
}

// buildApp wires the core from configuration. Extra pipeline options are
// appended after the configured ones.
func buildApp(ctx context.Context, opts ...rag.PipelineOption) (*app, error) {
	a := &app{}

	ollamaClient, err := newOllamaClient()
	if err != nil {
		return nil, err
	}
	a.ollama = ollamaClient

	var (
		embedder  rag.Embedder  = ollamaClient
		completer rag.Completer = ollamaClient
	)
	if attempts := viper.GetInt("retry.max_attempts"); attempts > 1 {
		policy := rag.RetryPolicy{
			MaxAttempts:     attempts,
			InitialInterval: viper.GetDuration("retry.initial_interval"),
		}
		embedder = rag.NewRetryingEmbedder(embedder, policy)
		completer = rag.NewRetryingCompleter(completer, policy)
	}

	switch backend := viper.GetString("store.backend"); backend {
	case "memory":
		a.store = memory.NewStore()
	case "postgres":
		db, err := openDatabase()
		if err != nil {
			return nil, err
		}
		if err := chunkctrl.Migrate(db); err != nil {
			return nil, err
		}
		chunkService, err := chunkctrl.NewChunkService(db)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize chunk service: %w", err)
		}
		a.db = db
		a.store = chunkService
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}

	var retriever rag.Retriever
	switch backend := viper.GetString("retriever.backend"); backend {
	case "bruteforce", "":
		retriever = rag.NewBruteForceRetriever(a.store)
	case "weaviate":
		client, err := weaviate.NewClient(viper.GetString("weaviate.scheme"), viper.GetString("weaviate.url"))
		if err != nil {
			return nil, err
		}
		sdk := weaviate.NewSDK(client)
		className := viper.GetString("weaviate.class")
		if err := sdk.EnsureSchema(ctx, className, weaviate.ChunkProperties()); err != nil {
			return nil, err
		}
		a.store = weaviate.NewIndexedStore(a.store, sdk, className)
		retriever = weaviate.NewRetriever(sdk, a.store, className)
	default:
		return nil, fmt.Errorf("unknown retriever backend %q", backend)
	}

	chunker, err := newChunker()
	if err != nil {
		return nil, err
	}

	pipelineOpts := append([]rag.PipelineOption{rag.WithConcurrency(viper.GetInt("ingest.concurrency"))}, opts...)
	pipeline := rag.NewIngestionPipeline(chunker, embedder, a.store, pipelineOpts...)
	a.service = rag.NewService(pipeline, embedder, a.store, retriever, rag.NewAnswerComposer(completer), viper.GetInt("rag.top_k"))

	log.Info("core initialized",
		"store", viper.GetString("store.backend"),
		"retriever", viper.GetString("retriever.backend"),
		"embedding_model", viper.GetString("ollama.embedding_model"))
	return a, nil
}

// pingStore checks the database connection; the in-memory store is always up.
func (a *app) pingStore(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *app) Close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
