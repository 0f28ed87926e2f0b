package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pdfrag/src/core/rag"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <document-name> <file>",
	Short: "Ingest a .pdf or .txt file synchronously",
	Args:  cobra.ExactArgs(2),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name, path := args[0], args[1]

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var bar *progressbar.ProgressBar
	progress := rag.WithProgress(func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("embedding"),
				progressbar.OptionShowCount(),
			)
		}
		_ = bar.Set(done)
	})

	a, err := buildApp(ctx, progress)
	if err != nil {
		return err
	}
	defer a.Close()

	filename := filepath.Base(path)
	pages, err := newExtractor().ExtractPages(ctx, filename, content)
	if err != nil {
		return err
	}

	summary, err := a.service.Upload(ctx, rag.IngestRequest{
		DocumentName: name,
		FileName:     filename,
		Pages:        pages,
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %q: %d chunks from %d pages\n",
		summary.DocumentName, summary.ChunkCount, summary.PageCount)
	return nil
}
