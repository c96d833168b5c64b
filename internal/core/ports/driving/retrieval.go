package driving

import (
	"context"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

// RetrievalService answers queries against the ingested corpus.
type RetrievalService interface {
	// Retrieve runs the ensemble search and returns ranked chunks with
	// fused scores and per-strategy health.
	Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) (*domain.RetrievalResult, error)

	// Answer runs Retrieve and assembles the bounded answer context for
	// the downstream generator. An explicit not-found result is
	// returned when nothing relevant exists; it is never fabricated.
	Answer(ctx context.Context, query string, opts domain.RetrieveOptions) (*domain.AnswerContext, error)
}
