package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "pdfrag/handler/http"
	"pdfrag/src/log"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document question answering server",
	Long: `The serve command starts an HTTP server exposing POST /upload,
GET /documents, POST /ask and GET /health.`,
	RunE: RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []httpHdlr.Option{
		httpHdlr.WithMaxUploadBytes(viper.GetInt64("server.max_upload_bytes")),
		httpHdlr.WithHealthCheck("store", a.pingStore),
		httpHdlr.WithHealthCheck("ollama", a.ollama.Ping),
	}
	if viper.GetString("minio.endpoint") != "" {
		minioService, err := newMinioService(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, httpHdlr.WithArchive(minioService, viper.GetString("minio.upload_bucket")))
	}

	r := gin.Default()
	httpHdlr.NewHandler(a.service, newExtractor(), opts...).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			log.Error(err, "server failed")
			return err
		}
	}
	log.Info("shutting down server")

	timeout := viper.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}
	log.Info("server exited")
	return nil
}
