package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pdfrag/src/extract"
	jobctrl "pdfrag/src/infrastructure/job"
	"pdfrag/src/log"
	"pdfrag/src/storage/postgres/chunkctrl"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <document-name> <file>",
	Short: "Queue a document for ingestion by the worker",
	Args:  cobra.ExactArgs(2),
	RunE:  runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name, path := strings.TrimSpace(args[0]), args[1]
	if name == "" {
		return fmt.Errorf("document name is required")
	}
	if !extract.Supported(path) {
		return fmt.Errorf("unsupported file %s: only .pdf and .txt are accepted", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := jobctrl.Migrate(db); err != nil {
		return err
	}

	// The worker rejects duplicates too; checking here keeps them out of
	// object storage in the common case.
	if viper.GetString("store.backend") == "postgres" {
		if err := chunkctrl.Migrate(db); err != nil {
			return err
		}
		chunks, err := chunkctrl.NewChunkService(db)
		if err != nil {
			return fmt.Errorf("failed to initialize chunk service: %w", err)
		}
		exists, err := chunks.Exists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("document %q already exists", name)
		}
	}

	minioService, err := newMinioService(ctx)
	if err != nil {
		return err
	}

	logger := jobctrl.NewLoggerAdapter()
	publisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(viper.GetString("amqp.url")), logger)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer publisher.Close()

	filename := filepath.Base(path)
	objectURL, err := minioService.Archive(ctx, viper.GetString("minio.upload_bucket"), filename, content)
	if err != nil {
		return err
	}

	jobService := jobctrl.NewJobService(publisher, jobctrl.NewPostgresJobRepository(db), logger, nil)
	job, err := jobService.EnqueueIngest(ctx, jobctrl.IngestPayload{
		DocumentName: name,
		FileName:     filename,
		ObjectURL:    objectURL,
	})
	if err != nil {
		if rmErr := minioService.Remove(ctx, objectURL); rmErr != nil {
			log.Error(rmErr, "failed to remove archived upload", "object", objectURL)
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Successfully enqueued job with ID: %d\n", job.ID)
	return nil
}
