// Package domain defines the core business entities for Corpus.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An ingested source with lifecycle status
//   - Chunk: A searchable unit within a document
//   - RawDocument: Opaque bytes before normalisation
//   - RetrievedChunk / AnswerContext: query-time results
//   - IngestJob: asynchronous ingestion tracking
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
