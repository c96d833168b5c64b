package domain

import "time"

// JobStatus tracks the lifecycle of an asynchronous ingestion job.
type JobStatus string

const (
	// JobPending means the job is queued but not started.
	JobPending JobStatus = "pending"

	// JobProcessing means the job is running.
	JobProcessing JobStatus = "processing"

	// JobCompleted means the job finished, possibly with per-chunk
	// embedding failures recorded in Errors.
	JobCompleted JobStatus = "completed"

	// JobFailed means the job failed irrecoverably or was cancelled.
	JobFailed JobStatus = "failed"
)

// IngestJob tracks one asynchronous document ingestion.
type IngestJob struct {
	// ID is the unique job identifier.
	ID string

	// DocumentID is the document being ingested.
	DocumentID string

	// Status is the job lifecycle state.
	Status JobStatus

	// Progress is the completed fraction in [0,1].
	Progress float64

	// ChunksTotal and ChunksEmbedded track embedding coverage.
	ChunksTotal    int
	ChunksEmbedded int

	// Errors collects non-fatal error messages (e.g. unembedded chunks).
	Errors []string

	// CreatedAt is when the job was submitted.
	CreatedAt time.Time

	// UpdatedAt is when the job state last changed.
	UpdatedAt time.Time
}

// ProgressEvent is a push update delivered to job subscribers while
// ingestion runs.
type ProgressEvent struct {
	// JobID identifies the job.
	JobID string

	// Status is the job state at the time of the event.
	Status JobStatus

	// Progress is the completed fraction in [0,1].
	Progress float64

	// Message is a short human-readable description of the step.
	Message string

	// Completed and Total count pipeline units (chunks during the
	// embedding phase).
	Completed int
	Total     int

	// Errors is the number of non-fatal errors so far.
	Errors int
}
