package domain

import "time"

// SourceType identifies the original format of an ingested document.
type SourceType string

// Supported source types.
const (
	SourceTypeHTML     SourceType = "html"
	SourceTypePDF      SourceType = "pdf"
	SourceTypeMarkdown SourceType = "markdown"
	SourceTypeText     SourceType = "text"
	SourceTypeCSV      SourceType = "csv"
	SourceTypeDOCX     SourceType = "docx"
)

// DocumentStatus tracks the ingestion lifecycle of a document.
type DocumentStatus string

const (
	// DocumentPending means the document was created but not yet indexed.
	DocumentPending DocumentStatus = "pending"

	// DocumentReady means all chunks are embedded and indexed.
	DocumentReady DocumentStatus = "ready"

	// DocumentPartial means the document is indexed but some chunks
	// could not be embedded. Those chunks remain searchable via the
	// lexical and co-occurrence indexes.
	DocumentPartial DocumentStatus = "partial"

	// DocumentFailed means loading or parsing failed irrecoverably,
	// or ingestion was cancelled.
	DocumentFailed DocumentStatus = "failed"
)

// Document represents a single ingested source (URL fetch or uploaded file).
// It is the canonical representation after normalisation.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// SourceURI is the original location (URL or upload filename).
	SourceURI string

	// SourceType is the detected content format.
	SourceType SourceType

	// Title is the human-readable title extracted during normalisation.
	Title string

	// Content is the full text content after normalisation.
	// This is the complete document text before chunking.
	Content string

	// RawContentHash is the SHA-256 of the raw bytes, used for change
	// detection and idempotent re-ingestion.
	RawContentHash string

	// Status is the ingestion lifecycle state.
	Status DocumentStatus

	// Metadata contains arbitrary key-value pairs, including the
	// structural annotations produced by normalisers (headings, tables).
	Metadata map[string]any

	// FetchedAt is when the raw content was fetched or uploaded.
	FetchedAt time.Time

	// CreatedAt is when the document was first indexed.
	CreatedAt time.Time

	// UpdatedAt is when the document was last updated.
	UpdatedAt time.Time
}

// Heading is a structural annotation produced during normalisation.
// Offset locates the heading line in the normalised Content, letting
// the chunker attach the nearest heading path to each chunk.
type Heading struct {
	// Level is the heading depth (1 for top-level).
	Level int

	// Text is the heading text.
	Text string

	// Offset is the byte offset of the heading in the document Content.
	Offset int
}

// MetadataHeadings is the Document.Metadata key under which normalisers
// record []Heading.
const MetadataHeadings = "headings"

// Chunk represents a contiguous span of normalised text within a document.
// Chunks are immutable once created: re-ingestion creates new chunks and
// invalidates old ones rather than mutating in place.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Text is the chunk's plain text content.
	Text string

	// SequenceIndex is the ordinal position within the document.
	SequenceIndex int

	// StartOffset and EndOffset locate the chunk in the normalised
	// document text. Consecutive chunks may overlap in text span.
	StartOffset int
	EndOffset   int

	// StructuralContext carries the nearest heading or table caption,
	// used to make a chunk self-describing out of context.
	StructuralContext string

	// TokenCount is the tokenizer's count for Text.
	TokenCount int

	// Embedding is the dense vector representation, nil when the chunk
	// could not be embedded (it stays available to non-vector search).
	Embedding []float32

	// Embedded reports whether an embedding was successfully produced.
	Embedded bool

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any
}
