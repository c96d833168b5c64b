// Command corpus is the entry point: it loads configuration, wires the
// adapters to the core services, rebuilds the in-memory indexes from
// the store, and hands control to the CLI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	cachememory "github.com/custodia-labs/corpus/internal/adapters/driven/cache/memory"
	"github.com/custodia-labs/corpus/internal/adapters/driven/config/file"
	"github.com/custodia-labs/corpus/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/corpus/internal/adapters/driven/fetcher/web"
	"github.com/custodia-labs/corpus/internal/adapters/driven/index/cooccur"
	"github.com/custodia-labs/corpus/internal/adapters/driven/index/lexical"
	"github.com/custodia-labs/corpus/internal/adapters/driven/index/vector"
	"github.com/custodia-labs/corpus/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/corpus/internal/adapters/driving/cli"
	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
	"github.com/custodia-labs/corpus/internal/core/services"
	"github.com/custodia-labs/corpus/internal/logger"
	"github.com/custodia-labs/corpus/internal/normalisers"
	"github.com/custodia-labs/corpus/internal/normalisers/csv"
	"github.com/custodia-labs/corpus/internal/normalisers/docx"
	"github.com/custodia-labs/corpus/internal/normalisers/html"
	"github.com/custodia-labs/corpus/internal/normalisers/markdown"
	"github.com/custodia-labs/corpus/internal/normalisers/pdf"
	"github.com/custodia-labs/corpus/internal/normalisers/plaintext"
	"github.com/custodia-labs/corpus/internal/postprocessors"
	"github.com/custodia-labs/corpus/internal/retry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := file.Load(os.Getenv("CORPUS_CONFIG_DIR"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	embedder := buildEmbedder(cfg.Embedding)
	defer embedder.Close()

	vectorIndex, err := vector.New(embedder.Dimensions())
	if err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}
	lexicalIndex := lexical.New()
	cooccurIndex := cooccur.New(
		cooccur.WithWindow(cfg.Cooccur.Window),
		cooccur.WithDecayBands(decayBands(cfg.Cooccur)),
	)

	registry := normalisers.NewRegistry()
	registry.Register(html.New())
	registry.Register(markdown.New())
	registry.Register(plaintext.New())
	registry.Register(csv.New())
	registry.Register(pdf.New())
	registry.Register(docx.New())

	pipeline, err := postprocessors.NewDefaultRegistry().BuildPipeline(postprocessors.Stage{
		Name: "chunker",
		Config: map[string]any{
			"target_tokens":   cfg.Chunking.TargetTokens,
			"overlap_percent": cfg.Chunking.OverlapPercent,
		},
	})
	if err != nil {
		return fmt.Errorf("building processing pipeline: %w", err)
	}

	fetcher := web.New(
		web.WithClient(&http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second}),
		web.WithCache(cachememory.New(cachememory.WithTTL(time.Duration(cfg.Fetch.CacheTTLMinutes)*time.Minute))),
		web.WithRetryOptions(retry.Options{MaxAttempts: cfg.Fetch.MaxAttempts}),
	)

	docStore := store.DocumentStore()
	jobStore := store.JobStore()

	ingest := services.NewIngestOrchestrator(
		fetcher, registry, pipeline,
		docStore, jobStore, embedder,
		vectorIndex, lexicalIndex, cooccurIndex,
		services.WithEmbedWorkers(cfg.Embedding.Workers),
		services.WithEmbedBatchSize(cfg.Embedding.BatchSize),
		services.WithMinContentRunes(cfg.Ingest.MinContentLength),
	)

	retriever := services.NewRetriever(
		embedder, vectorIndex, lexicalIndex, cooccurIndex, docStore,
		services.WithFusionWeights(fusionWeights(cfg.Retrieval)),
		services.WithStrategyTimeout(time.Duration(cfg.Retrieval.StrategyTimeoutMS)*time.Millisecond),
		services.WithOverfetchFactor(cfg.Retrieval.OverfetchFactor),
		services.WithContextTokenBudget(cfg.Retrieval.ContextTokenBudget),
	)

	documents := services.NewDocumentManager(docStore, vectorIndex, lexicalIndex, cooccurIndex)

	// The in-memory indexes are rebuilt from the store on every start
	// so retrieval state survives across invocations.
	if err := documents.RebuildIndexes(context.Background()); err != nil {
		logger.Warn("Index rebuild: %v", err)
	}

	cli.SetServices(cli.Services{
		Ingest:    ingest,
		Retrieval: retriever,
		Document:  documents,
	})

	return cli.Execute()
}

// buildEmbedder constructs the configured embedding service. When the
// API key is missing the process still starts: ingestion completes
// partial and queries report the outage instead of failing at boot.
func buildEmbedder(cfg file.EmbeddingConfig) driven.EmbeddingService {
	svc, err := openai.NewEmbeddingService(openai.Config{
		APIKey:            cfg.APIKey(),
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Dimensions:        cfg.Dimensions,
		BatchSize:         cfg.BatchSize,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		logger.Warn("Embedding unavailable (%v); vector search disabled", err)
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = 1536
		}
		return &unavailableEmbedder{dims: dims, model: cfg.Model}
	}
	return svc
}

// unavailableEmbedder stands in when no embedding provider is
// configured. Every call reports the outage.
type unavailableEmbedder struct {
	dims  int
	model string
}

var _ driven.EmbeddingService = (*unavailableEmbedder)(nil)

func (u *unavailableEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, domain.ErrEmbeddingUnavailable
}

func (u *unavailableEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, []error, error) {
	errs := make([]error, len(texts))
	for i := range errs {
		errs[i] = domain.ErrEmbeddingFailure
	}
	return make([][]float32, len(texts)), errs, domain.ErrEmbeddingUnavailable
}

func (u *unavailableEmbedder) Dimensions() int   { return u.dims }
func (u *unavailableEmbedder) ModelName() string { return u.model }
func (u *unavailableEmbedder) Close() error      { return nil }

// decayBands converts configured decay bands to the index schedule.
// An empty result leaves the index on its built-in schedule.
func decayBands(cfg file.CooccurConfig) []cooccur.DecayBand {
	bands := make([]cooccur.DecayBand, len(cfg.DecayBands))
	for i, band := range cfg.DecayBands {
		bands[i] = cooccur.DecayBand{MaxDistance: band.MaxDistance, Weight: band.Weight}
	}
	return bands
}

// fusionWeights normalises the configured weights to sum to one.
func fusionWeights(cfg file.RetrievalConfig) services.FusionWeights {
	total := cfg.VectorWeight + cfg.LexicalWeight + cfg.CooccurWeight
	if total <= 0 {
		return services.DefaultFusionWeights()
	}
	return services.FusionWeights{
		Vector:       cfg.VectorWeight / total,
		Lexical:      cfg.LexicalWeight / total,
		Cooccurrence: cfg.CooccurWeight / total,
	}
}
