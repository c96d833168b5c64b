package driven

import (
	"context"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

// ContentFetcher retrieves raw content from a URL.
// Implementations retry transient failures with backoff and fall back
// to previously cached content before reporting
// domain.ErrContentUnavailable.
type ContentFetcher interface {
	// Fetch downloads the URL and returns the raw document with its
	// Content-Type as reported by the server.
	Fetch(ctx context.Context, url string) (*domain.RawDocument, error)
}

// Cache is a TTL key-value store injected into components that need
// one, replacing ad hoc module-level caches.
type Cache interface {
	// Get returns the cached value and whether it was present and
	// unexpired.
	Get(key string) ([]byte, bool)

	// Set stores a value with the cache's TTL.
	Set(key string, value []byte)

	// Has reports whether an unexpired value exists.
	Has(key string) bool

	// Delete removes a key.
	Delete(key string)
}

// CommandRunner executes an external command and returns its stdout.
// Used by the PDF normaliser to invoke pdftotext; an interface so tests
// can stub the binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}
