// Package cli implements the corpus command-line interface using cobra.
// Commands depend on the driving ports only; concrete services are
// injected by main at startup.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpus/internal/core/ports/driving"
	"github.com/custodia-labs/corpus/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	ingestService    driving.IngestService
	retrievalService driving.RetrievalService
	documentService  driving.DocumentService
)

// Services carries the service implementations the commands use.
type Services struct {
	Ingest    driving.IngestService
	Retrieval driving.RetrievalService
	Document  driving.DocumentService
}

// SetServices injects the services for all commands.
func SetServices(s Services) {
	ingestService = s.Ingest
	retrievalService = s.Retrieval
	documentService = s.Document
}

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Corpus ingests documents and retrieves answer context",
	Long: `Corpus is a retrieval pipeline for question answering.

It ingests documents from URLs or local files, normalises and chunks
them, and indexes each chunk in three ways: dense vectors, BM25
keywords, and a term co-occurrence graph. Queries run all three
strategies and fuse the results into a ranked, token-bounded context
block with citations.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
