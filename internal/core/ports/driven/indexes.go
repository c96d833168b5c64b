package driven

import (
	"context"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

// VectorIndex provides dense similarity search over chunk embeddings.
// The index has a fixed dimension; mixing dimensions is a configuration
// error surfaced as domain.ErrDimensionMismatch.
type VectorIndex interface {
	// Upsert inserts or replaces the vector for a chunk.
	Upsert(ctx context.Context, chunkID string, embedding []float32) error

	// Delete removes a chunk's vector from the index.
	Delete(ctx context.Context, chunkID string) error

	// Search returns up to k chunks ordered by descending cosine
	// similarity. Ties break by insertion order so results are
	// deterministic.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)
}

// VectorHit is a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score in [-1,1].
	Similarity float64
}

// LexicalIndex provides BM25-style keyword search over chunk text.
// Query tokenisation is identical to ingest-time tokenisation.
type LexicalIndex interface {
	// Index adds or updates a chunk in the inverted index.
	Index(ctx context.Context, chunk domain.Chunk) error

	// Delete removes a chunk from the index.
	Delete(ctx context.Context, chunkID string) error

	// Search returns up to k chunks by BM25 score. Ties break by chunk
	// recency (later indexed first), then insertion order.
	Search(ctx context.Context, query string, k int) ([]LexicalHit, error)
}

// LexicalHit is a keyword search result.
type LexicalHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the BM25 relevance score.
	Score float64
}

// CooccurrenceIndex maintains a term-proximity graph over all ingested
// chunks. It recovers compound-term queries whose terms never co-occur
// as a phrase but cluster within a token window.
type CooccurrenceIndex interface {
	// IndexDocument adds the co-occurrence contributions of one
	// document's chunks. The document's edge delta is applied
	// atomically with respect to concurrent searches.
	IndexDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error

	// DeleteDocument removes the document's contributions from the
	// graph.
	DeleteDocument(ctx context.Context, documentID string) error

	// Search returns up to k chunks scored by summed edge weight across
	// all query-term pairs found in that chunk. Ties break by the
	// chunk's total occurrence count of query terms.
	Search(ctx context.Context, query string, k int) ([]CooccurrenceHit, error)

	// EdgeWeight reports the aggregate weight between two terms,
	// zero when no edge exists. Primarily for diagnostics and tests.
	EdgeWeight(termA, termB string) float64
}

// CooccurrenceHit is a proximity search result.
type CooccurrenceHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the summed pair-edge weight within the chunk.
	Score float64

	// TermMatches is the chunk's total occurrence count of query terms,
	// used as the tie-breaker.
	TermMatches int
}
