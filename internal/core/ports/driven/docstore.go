package driven

import (
	"context"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

// DocumentStore persists documents and chunks.
// Backed by SQLite for metadata storage.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// SaveChunks stores chunks for a document.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetDocumentBySourceURI retrieves a document by its source URI.
	// Returns domain.ErrNotFound when the URI was never ingested.
	GetDocumentBySourceURI(ctx context.Context, uri string) (*domain.Document, error)

	// GetChunks retrieves all chunks for a document, ordered by
	// sequence index.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a specific chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// DeleteChunks removes the given chunks from storage.
	DeleteChunks(ctx context.Context, chunkIDs []string) error

	// ListDocuments returns all stored documents.
	ListDocuments(ctx context.Context) ([]domain.Document, error)
}

// JobStore persists ingestion job state so job status survives
// process restarts and is queryable over the HTTP API.
type JobStore interface {
	// SaveJob stores or updates a job.
	SaveJob(ctx context.Context, job *domain.IngestJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, id string) (*domain.IngestJob, error)

	// ListJobs returns all stored jobs, most recent first.
	ListJobs(ctx context.Context) ([]domain.IngestJob, error)
}
