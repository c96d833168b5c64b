package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driving"
)

var ingestNoWait bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [url-or-path]",
	Short: "Ingest a document into the corpus",
	Long: `Ingests one document: fetches or reads it, normalises the content,
chunks it, and indexes the chunks for retrieval.

The argument is either an http(s) URL to fetch or a path to a local
file. By default the command waits for the ingestion job to finish,
printing progress as it goes; use --no-wait to submit and return the
job ID immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestNoWait, "no-wait", false, "submit the job and return without waiting")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	req, err := buildIngestRequest(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	receipt, err := ingestService.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	cmd.Printf("Job %s started for document %s\n", receipt.JobID, receipt.DocumentID)

	if ingestNoWait {
		return nil
	}

	events, unsubscribe := ingestService.Subscribe(receipt.JobID)
	defer unsubscribe()
	for event := range events {
		printProgress(cmd, event)
	}

	job, err := ingestService.Wait(ctx, receipt.JobID)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	return printJobOutcome(cmd, job)
}

// buildIngestRequest maps a URL argument to a fetch request and a path
// argument to an upload.
func buildIngestRequest(arg string) (driving.IngestRequest, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return driving.IngestRequest{URL: arg}, nil
	}

	content, err := os.ReadFile(arg)
	if err != nil {
		return driving.IngestRequest{}, fmt.Errorf("read file: %w", err)
	}
	return driving.IngestRequest{
		Filename: filepath.Base(arg),
		Content:  content,
	}, nil
}

func printProgress(cmd *cobra.Command, event domain.ProgressEvent) {
	if event.Total > 0 {
		cmd.Printf("\r%s: %d/%d (%.0f%%)", event.Message, event.Completed, event.Total, event.Progress*100)
		return
	}
	cmd.Printf("\r%s (%.0f%%)", event.Message, event.Progress*100)
}

func printJobOutcome(cmd *cobra.Command, job *domain.IngestJob) error {
	cmd.Println()
	switch job.Status {
	case domain.JobCompleted:
		cmd.Printf("Ingested: %d/%d chunks embedded\n", job.ChunksEmbedded, job.ChunksTotal)
		if len(job.Errors) > 0 {
			cmd.Printf("Completed with %d errors:\n", len(job.Errors))
			for _, msg := range job.Errors {
				cmd.Printf("  - %s\n", msg)
			}
		}
		return nil
	case domain.JobFailed:
		for _, msg := range job.Errors {
			cmd.Printf("  - %s\n", msg)
		}
		return fmt.Errorf("ingestion failed for document %s", job.DocumentID)
	default:
		return fmt.Errorf("job ended in unexpected status %s", job.Status)
	}
}
