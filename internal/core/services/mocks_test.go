package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus/internal/adapters/driven/index/cooccur"
	"github.com/custodia-labs/corpus/internal/adapters/driven/index/lexical"
	"github.com/custodia-labs/corpus/internal/adapters/driven/index/vector"
	"github.com/custodia-labs/corpus/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
	"github.com/custodia-labs/corpus/internal/normalisers"
	"github.com/custodia-labs/corpus/internal/normalisers/csv"
	"github.com/custodia-labs/corpus/internal/normalisers/html"
	"github.com/custodia-labs/corpus/internal/normalisers/markdown"
	"github.com/custodia-labs/corpus/internal/normalisers/plaintext"
	"github.com/custodia-labs/corpus/internal/postprocessors"
	"github.com/custodia-labs/corpus/internal/postprocessors/chunker"
	"github.com/custodia-labs/corpus/internal/tokenizer"
)

const testDimensions = 8

// charVector builds a deterministic vector from text so vector search
// is stable without a real embedding model.
func charVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	for i, r := range strings.ToLower(text) {
		v[i%dims] += float32(r%17) / 17
	}
	return v
}

// mockEmbedder produces deterministic character vectors. It can be
// made to fail, or gated so embedding blocks until released.
type mockEmbedder struct {
	dims int
	gate chan struct{}

	mu       sync.Mutex
	failWith error
	calls    int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dims: testDimensions}
}

func (m *mockEmbedder) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.gate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.gate:
		}
	}

	m.mu.Lock()
	m.calls++
	failWith := m.failWith
	m.mu.Unlock()

	if failWith != nil {
		return nil, failWith
	}
	return charVector(text, m.dims), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error, error) {
	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	failed := 0
	for i, text := range texts {
		v, err := m.Embed(ctx, text)
		if err != nil {
			errs[i] = err
			failed++
			continue
		}
		vectors[i] = v
	}
	if len(texts) > 0 && failed == len(texts) {
		return vectors, errs, fmt.Errorf("%w: no text succeeded", domain.ErrEmbeddingFailure)
	}
	return vectors, errs, nil
}

func (m *mockEmbedder) Dimensions() int   { return m.dims }
func (m *mockEmbedder) ModelName() string { return "mock-embedder" }
func (m *mockEmbedder) Close() error      { return nil }

// mockFetcher serves a configured raw document or error.
type mockFetcher struct {
	mu  sync.Mutex
	raw *domain.RawDocument
	err error
}

func (f *mockFetcher) serve(raw *domain.RawDocument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = raw
	f.err = nil
}

func (f *mockFetcher) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *mockFetcher) Fetch(_ context.Context, url string) (*domain.RawDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	raw := *f.raw
	raw.SourceURI = url
	return &raw, nil
}

// failingCooccur errors on every search, for degradation tests.
type failingCooccur struct{}

func (failingCooccur) IndexDocument(context.Context, string, []domain.Chunk) error { return nil }
func (failingCooccur) DeleteDocument(context.Context, string) error                { return nil }
func (failingCooccur) Search(context.Context, string, int) ([]driven.CooccurrenceHit, error) {
	return nil, fmt.Errorf("cooccurrence graph corrupt")
}
func (failingCooccur) EdgeWeight(string, string) float64 { return 0 }

// fixture wires the services to in-memory adapters and real indexes.
type fixture struct {
	docStore  *memory.DocumentStore
	jobStore  *memory.JobStore
	embedder  *mockEmbedder
	fetcher   *mockFetcher
	vector    *vector.Index
	lexical   *lexical.Index
	cooccur   *cooccur.Index
	ingest    *IngestOrchestrator
	retriever *Retriever
	docs      *DocumentManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	vectorIndex, err := vector.New(testDimensions)
	require.NoError(t, err)

	registry := normalisers.NewRegistry()
	registry.Register(html.New())
	registry.Register(markdown.New())
	registry.Register(plaintext.New())
	registry.Register(csv.New())

	pipeline := postprocessors.NewPipeline(chunker.New(
		chunker.WithTokenCounter(tokenizer.EstimateCounter{}),
	))

	f := &fixture{
		docStore: memory.NewDocumentStore(),
		jobStore: memory.NewJobStore(),
		embedder: newMockEmbedder(),
		fetcher:  &mockFetcher{},
		vector:   vectorIndex,
		lexical:  lexical.New(),
		cooccur:  cooccur.New(),
	}

	f.ingest = NewIngestOrchestrator(
		f.fetcher, registry, pipeline,
		f.docStore, f.jobStore, f.embedder,
		f.vector, f.lexical, f.cooccur,
	)
	f.retriever = NewRetriever(
		f.embedder, f.vector, f.lexical, f.cooccur, f.docStore,
		WithTokenCounter(tokenizer.EstimateCounter{}),
	)
	f.docs = NewDocumentManager(f.docStore, f.vector, f.lexical, f.cooccur)

	return f
}

// seedDocument stores a document with its chunks and indexes them in
// all three indexes, bypassing the ingestion pipeline.
func (f *fixture) seedDocument(t *testing.T, doc domain.Document, chunks []domain.Chunk) {
	t.Helper()
	ctx := context.Background()

	if doc.Status == "" {
		doc.Status = domain.DocumentReady
	}
	require.NoError(t, f.docStore.SaveDocument(ctx, &doc))

	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		if chunks[i].Embedding == nil {
			chunks[i].Embedding = charVector(chunks[i].Text, testDimensions)
			chunks[i].Embedded = true
		}
		require.NoError(t, f.lexical.Index(ctx, chunks[i]))
		if chunks[i].Embedded && len(chunks[i].Embedding) > 0 {
			require.NoError(t, f.vector.Upsert(ctx, chunks[i].ID, chunks[i].Embedding))
		}
	}
	require.NoError(t, f.cooccur.IndexDocument(ctx, doc.ID, chunks))
	require.NoError(t, f.docStore.SaveChunks(ctx, chunks))
}
