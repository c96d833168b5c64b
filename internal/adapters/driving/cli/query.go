package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

var (
	queryK             int
	queryJSON          bool
	queryAllowDegraded bool
	queryMaxPerDoc     int
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Query the corpus for answer context",
	Long: `Runs the ensemble retrieval (vector, keyword, and co-occurrence
search) for a question and prints the assembled answer context with
its sources and confidence.

When nothing relevant is indexed the command says so explicitly
rather than printing unrelated text.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "limit", "n", 10, "maximum number of chunks to retrieve")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryAllowDegraded, "allow-degraded", false, "continue without vector search if embedding is unavailable")
	queryCmd.Flags().IntVar(&queryMaxPerDoc, "max-per-document", 0, "cap chunks per document (0 = no cap)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	opts := domain.RetrieveOptions{
		K:              queryK,
		MaxPerDocument: queryMaxPerDoc,
		AllowDegraded:  queryAllowDegraded,
	}

	answer, err := retrievalService.Answer(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputAnswerJSON(cmd, answer)
	}
	return outputAnswerText(cmd, answer)
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.AnswerContext) error {
	data, err := json.MarshalIndent(answer, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputAnswerText(cmd *cobra.Command, answer *domain.AnswerContext) error {
	if !answer.Found {
		cmd.Println("No relevant context found.")
		printStrategyStates(cmd, answer.StrategyStates)
		return nil
	}

	cmd.Println(answer.Context)
	cmd.Println()
	cmd.Printf("Confidence: %.2f (%d tokens)\n", answer.Confidence, answer.TokenCount)
	cmd.Println("Sources:")
	for i, src := range answer.Sources {
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, src.DisplayReference, src.RelevanceScore)
	}
	printStrategyStates(cmd, answer.StrategyStates)
	return nil
}

// printStrategyStates surfaces degraded strategies so quality drops
// are visible, and stays quiet when everything is healthy.
func printStrategyStates(cmd *cobra.Command, states map[domain.Strategy]domain.StrategyState) {
	for _, strategy := range []domain.Strategy{domain.StrategyVector, domain.StrategyLexical, domain.StrategyCooccurrence} {
		state := states[strategy]
		if state == domain.StrategyTimedOut || state == domain.StrategyFailed {
			cmd.Printf("Warning: %s search %s\n", strategy, state)
		}
	}
}
