package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/logger"
)

// snippetRuneLimit bounds the evidence excerpt on a Source.
const snippetRuneLimit = 200

// Answer runs the ensemble retrieval and assembles the bounded context
// block for the downstream generator.
func (r *Retriever) Answer(ctx context.Context, query string, opts domain.RetrieveOptions) (*domain.AnswerContext, error) {
	result, err := r.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	if len(result.Chunks) == 0 {
		// The explicit no-context signal. Callers must answer "don't
		// know", never fabricate from an empty context.
		return &domain.AnswerContext{
			Found:          false,
			Confidence:     0,
			Sources:        []domain.Source{},
			StrategyStates: result.StrategyStates,
		}, nil
	}

	var (
		blocks     []string
		sources    []domain.Source
		usedTokens int
		titles     = make(map[string]string)
	)

	for _, rc := range result.Chunks {
		block := contextBlock(rc.Chunk)
		tokens := r.counter.CountTokens(block)

		// Chunks are included whole or not at all. An oversized chunk
		// is skipped and packing continues down the ranking.
		if usedTokens+tokens > r.contextBudget {
			continue
		}
		usedTokens += tokens
		blocks = append(blocks, block)

		title, ok := titles[rc.Chunk.DocumentID]
		if !ok {
			if doc, docErr := r.docStore.GetDocument(ctx, rc.Chunk.DocumentID); docErr == nil {
				title = doc.Title
			}
			titles[rc.Chunk.DocumentID] = title
		}

		sources = append(sources, domain.Source{
			ChunkID:          rc.Chunk.ID,
			DocumentID:       rc.Chunk.DocumentID,
			DisplayReference: displayReference(title, rc.Chunk),
			Snippet:          snippet(rc.Chunk.Text),
			RelevanceScore:   rc.FusedScore,
		})
	}

	if len(blocks) == 0 {
		logger.Warn("No retrieved chunk fits the %d token context budget", r.contextBudget)
		return &domain.AnswerContext{
			Found:          false,
			Confidence:     0,
			Sources:        []domain.Source{},
			StrategyStates: result.StrategyStates,
		}, nil
	}

	return &domain.AnswerContext{
		Found:          true,
		Context:        strings.Join(blocks, "\n\n"),
		Sources:        sources,
		Confidence:     confidence(result.Chunks),
		TokenCount:     usedTokens,
		StrategyStates: result.StrategyStates,
	}, nil
}

// contextBlock renders one chunk for the generator, led by its
// structural context so table rows and section bodies stay
// self-describing.
func contextBlock(chunk domain.Chunk) string {
	if chunk.StructuralContext == "" {
		return chunk.Text
	}
	return chunk.StructuralContext + "\n" + chunk.Text
}

// displayReference builds a human-readable citation like
// "Travel Rates, Expenses > Mileage #3".
func displayReference(title string, chunk domain.Chunk) string {
	var b strings.Builder
	if title != "" {
		b.WriteString(title)
	}
	if chunk.StructuralContext != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(chunk.StructuralContext)
	}
	if b.Len() == 0 {
		b.WriteString(chunk.DocumentID)
	}
	fmt.Fprintf(&b, " #%d", chunk.SequenceIndex)
	return b.String()
}

// snippet truncates chunk text at a rune boundary.
func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetRuneLimit {
		return text
	}
	return string(runes[:snippetRuneLimit]) + "..."
}

// confidence scores the retrieval overall: the top fused score scaled
// by the gap to the runner-up. A clear winner raises confidence, a
// flat distribution lowers it.
func confidence(ranked []domain.RetrievedChunk) float64 {
	if len(ranked) == 0 {
		return 0
	}

	top := ranked[0].FusedScore
	gap := top
	if len(ranked) > 1 {
		gap = top - ranked[1].FusedScore
	}

	c := top * (0.6 + 0.4*gap)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
