package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpus/internal/adapters/driving/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the HTTP API for remote ingestion and querying.

Endpoints:
  POST   /ingest                  submit a document (JSON or multipart)
  GET    /ingest/jobs/{id}        job status
  GET    /ingest/jobs/{id}/events job progress (server-sent events)
  DELETE /ingest/jobs/{id}        cancel a job
  POST   /query                   retrieve answer context
  GET    /documents               list documents
  GET    /documents/{id}          document details
  DELETE /documents/{id}          delete a document`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8420", "listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if ingestService == nil || retrievalService == nil || documentService == nil {
		return errors.New("services not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := httpapi.New(ingestService, retrievalService, documentService)

	cmd.Printf("Serving on http://%s\n", serveAddr)
	if err := server.ListenAndServe(ctx, serveAddr); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	cmd.Println("Server stopped.")
	return nil
}
