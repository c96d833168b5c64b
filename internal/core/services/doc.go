// Package services implements the core application logic: the
// ingestion pipeline (fetch, normalise, chunk, embed, index), the
// ensemble retriever with weighted score fusion, the answer context
// builder, and document management. Services depend only on ports,
// never on concrete adapters.
package services
