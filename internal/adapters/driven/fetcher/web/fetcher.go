// Package web implements the ContentFetcher port over HTTP. Transient
// failures are retried with backoff; when every attempt fails, a
// previously cached response is served before giving up with
// domain.ErrContentUnavailable.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
	"github.com/custodia-labs/corpus/internal/logger"
	"github.com/custodia-labs/corpus/internal/retry"
)

// Ensure Fetcher implements the interface.
var _ driven.ContentFetcher = (*Fetcher)(nil)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize caps the response body at 32 MiB. Larger
	// documents are rejected rather than buffered.
	DefaultMaxBodySize = 32 << 20

	userAgent = "corpus/1.0"
)

// Fetcher downloads raw documents over HTTP.
type Fetcher struct {
	client      *http.Client
	cache       driven.Cache
	maxBodySize int64
	retryOpts   retry.Options
}

// Option configures the fetcher.
type Option func(*Fetcher)

// WithClient overrides the HTTP client.
func WithClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithCache enables the stale-content fallback. Without a cache the
// fetcher still retries, it just has nothing to fall back to.
func WithCache(cache driven.Cache) Option {
	return func(f *Fetcher) {
		f.cache = cache
	}
}

// WithMaxBodySize overrides the response body cap.
func WithMaxBodySize(limit int64) Option {
	return func(f *Fetcher) {
		if limit > 0 {
			f.maxBodySize = limit
		}
	}
}

// WithRetryOptions overrides the backoff settings.
func WithRetryOptions(opts retry.Options) Option {
	return func(f *Fetcher) {
		f.retryOpts = opts
	}
}

// New creates a web fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      &http.Client{Timeout: DefaultTimeout},
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// fetchResult carries the body and content type through a retried
// attempt.
type fetchResult struct {
	body        []byte
	contentType string
}

// errStatus marks HTTP status failures so retryability can depend on
// the code.
type errStatus struct {
	code int
	url  string
}

func (e *errStatus) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %d", e.url, e.code)
}

// Fetch downloads the URL. Server errors (5xx) and 429 retry with
// backoff; client errors fail immediately. On exhaustion a cached copy
// is returned when one exists, otherwise domain.ErrContentUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*domain.RawDocument, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: unsupported URL scheme in %q", domain.ErrInvalidInput, url)
	}

	result, err := retry.Do(ctx, func() (fetchResult, error) {
		return f.attempt(ctx, url)
	}, f.retryOptions())
	if err != nil {
		if doc, ok := f.cached(url); ok {
			logger.Warn("fetch failed for %s, serving cached copy: %v", url, err)
			return doc, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrContentUnavailable, url, err)
	}

	doc := &domain.RawDocument{
		SourceURI: url,
		MIMEType:  result.contentType,
		Content:   result.body,
		Metadata: map[string]any{
			"fetchedAt": time.Now().UTC().Format(time.RFC3339),
		},
	}
	f.store(url, doc)
	return doc, nil
}

func (f *Fetcher) attempt(ctx context.Context, url string) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchResult{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fetchResult{}, &errStatus{code: resp.StatusCode, url: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return fetchResult{}, err
	}
	if int64(len(body)) > f.maxBodySize {
		return fetchResult{}, fmt.Errorf("response body exceeds %d bytes", f.maxBodySize)
	}

	return fetchResult{
		body:        body,
		contentType: parseContentType(resp.Header.Get("Content-Type")),
	}, nil
}

func (f *Fetcher) retryOptions() retry.Options {
	opts := f.retryOpts
	if opts.IsRetryable == nil {
		opts.IsRetryable = isRetryable
	}
	return opts
}

// isRetryable treats network errors, 5xx and 429 as transient. Other
// HTTP statuses and malformed requests fail immediately.
func isRetryable(err error) bool {
	var status *errStatus
	if errors.As(err, &status) {
		return status.code >= 500 || status.code == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (f *Fetcher) cached(url string) (*domain.RawDocument, bool) {
	if f.cache == nil {
		return nil, false
	}
	body, ok := f.cache.Get(bodyKey(url))
	if !ok {
		return nil, false
	}
	contentType := "application/octet-stream"
	if ct, ok := f.cache.Get(typeKey(url)); ok {
		contentType = string(ct)
	}
	return &domain.RawDocument{
		SourceURI: url,
		MIMEType:  contentType,
		Content:   body,
		Metadata:  map[string]any{"fromCache": true},
	}, true
}

func (f *Fetcher) store(url string, doc *domain.RawDocument) {
	if f.cache == nil {
		return
	}
	f.cache.Set(bodyKey(url), doc.Content)
	f.cache.Set(typeKey(url), []byte(doc.MIMEType))
}

func bodyKey(url string) string { return "fetch:body:" + url }
func typeKey(url string) string { return "fetch:type:" + url }

// parseContentType strips parameters like charset, leaving the bare
// MIME type the normaliser registry matches on.
func parseContentType(header string) string {
	if header == "" {
		return "application/octet-stream"
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	return mediaType
}
