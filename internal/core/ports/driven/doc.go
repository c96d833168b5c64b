// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): storage, the three retrieval indexes,
// embedding, content fetching, caching, and normalisation.
package driven
