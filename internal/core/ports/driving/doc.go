// Package driving provides interfaces for application entry points
// (primary/inbound ports): ingestion, retrieval, and document
// management. CLI commands and HTTP handlers depend on these, never on
// concrete services.
package driving
