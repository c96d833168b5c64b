package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown MIME or source type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Ingestion errors.

	// ErrContentUnavailable indicates the source fetch failed after
	// retries and no cached fallback exists. The ingestion job fails.
	ErrContentUnavailable = errors.New("content unavailable")

	// ErrParseFailure indicates content was fetched but failed
	// structural validation (too short, unparseable).
	ErrParseFailure = errors.New("parse failure")

	// ErrEmbeddingFailure indicates a chunk could not be embedded.
	// Recovered locally: the chunk is marked unembedded and ingestion
	// continues with reduced vector coverage.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrJobCancelled indicates an ingestion job was cancelled.
	// Already-committed chunks remain valid.
	ErrJobCancelled = errors.New("ingestion job cancelled")

	// Query-time errors.

	// ErrEmbeddingUnavailable indicates the query's own embedding call
	// failed. Vector search is impossible for that query; the caller is
	// told rather than silently degraded to lexical-only.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrDimensionMismatch indicates the query vector dimension does not
	// match the store's fixed dimension. A configuration error: fail
	// fast, never silently degrade.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrStrategyTimeout indicates one retrieval strategy exceeded its
	// individual timeout. Recovered locally as an empty contribution.
	ErrStrategyTimeout = errors.New("retrieval strategy timeout")
)
