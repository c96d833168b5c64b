package driving

import (
	"context"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

// IngestRequest describes one source to ingest: either a URL to fetch
// or uploaded bytes with a declared content type.
type IngestRequest struct {
	// URL is the location to fetch. Mutually exclusive with Content.
	URL string

	// Filename names an uploaded file. Used for source URI and type
	// detection when ContentType is absent.
	Filename string

	// Content is the uploaded raw bytes.
	Content []byte

	// ContentType is the declared MIME type of Content. Sniffed when
	// empty.
	ContentType string
}

// IngestReceipt is returned immediately on submission; ingestion
// proceeds asynchronously.
type IngestReceipt struct {
	// JobID identifies the asynchronous job.
	JobID string

	// DocumentID identifies the document being created.
	DocumentID string

	// Status is the initial job status.
	Status domain.JobStatus
}

// IngestService runs the ingestion pipeline:
// fetch → normalise → chunk → embed → index.
type IngestService interface {
	// Submit validates the request and starts an asynchronous ingestion
	// job. The returned receipt carries the job and document IDs.
	Submit(ctx context.Context, req IngestRequest) (*IngestReceipt, error)

	// JobStatus returns the current state of a job.
	JobStatus(ctx context.Context, jobID string) (*domain.IngestJob, error)

	// Cancel halts a running job by ID. Already-committed chunks remain
	// valid; the document is marked failed, never silently ready.
	Cancel(ctx context.Context, jobID string) error

	// Subscribe returns a channel of progress events for a job plus an
	// unsubscribe function. The channel closes when the job finishes.
	Subscribe(jobID string) (<-chan domain.ProgressEvent, func())

	// Wait blocks until the job reaches a terminal status or ctx is
	// cancelled. Used by the CLI's synchronous mode.
	Wait(ctx context.Context, jobID string) (*domain.IngestJob, error)
}

// DocumentService manages ingested documents.
type DocumentService interface {
	// List returns all documents.
	List(ctx context.Context) ([]domain.Document, error)

	// Get returns one document by ID.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// Delete removes a document, cascading to its chunks and to all
	// three retrieval indexes.
	Delete(ctx context.Context, id string) error
}
