package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/corpus/internal/analysis"
	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
	"github.com/custodia-labs/corpus/internal/core/ports/driving"
	"github.com/custodia-labs/corpus/internal/logger"
	"github.com/custodia-labs/corpus/internal/tokenizer"
)

// Ensure Retriever implements the interface.
var _ driving.RetrievalService = (*Retriever)(nil)

const (
	// DefaultK is the result count when the caller does not specify one.
	DefaultK = 10

	// DefaultStrategyTimeout bounds each strategy's query individually.
	DefaultStrategyTimeout = 3 * time.Second

	// DefaultOverfetchFactor is how many times k each strategy fetches
	// to give fusion room to rerank.
	DefaultOverfetchFactor = 3

	// DefaultContextTokenBudget bounds the assembled answer context.
	DefaultContextTokenBudget = 2000

	// dedupJaccardThreshold is the token-set similarity above which two
	// chunks are considered near-duplicates.
	dedupJaccardThreshold = 0.9
)

// FusionWeights are the per-strategy weights for score fusion.
// Co-occurrence and vector outrank pure lexical matching because they
// carry the compound-term scenarios lexical search misses.
type FusionWeights struct {
	Vector       float64
	Lexical      float64
	Cooccurrence float64
}

// DefaultFusionWeights returns the standard weighting.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Vector: 0.40, Lexical: 0.25, Cooccurrence: 0.35}
}

// Retriever answers queries by fusing vector, lexical, and
// co-occurrence search results.
type Retriever struct {
	embedder driven.EmbeddingService
	vector   driven.VectorIndex
	lexical  driven.LexicalIndex
	cooccur  driven.CooccurrenceIndex
	docStore driven.DocumentStore
	counter  tokenizer.Counter

	weights         FusionWeights
	strategyTimeout time.Duration
	overfetchFactor int
	contextBudget   int
}

// RetrieverOption configures the retriever.
type RetrieverOption func(*Retriever)

// WithFusionWeights sets the strategy fusion weights.
func WithFusionWeights(w FusionWeights) RetrieverOption {
	return func(r *Retriever) {
		if w.Vector >= 0 && w.Lexical >= 0 && w.Cooccurrence >= 0 &&
			w.Vector+w.Lexical+w.Cooccurrence > 0 {
			r.weights = w
		}
	}
}

// WithStrategyTimeout sets the per-strategy query timeout.
func WithStrategyTimeout(timeout time.Duration) RetrieverOption {
	return func(r *Retriever) {
		if timeout > 0 {
			r.strategyTimeout = timeout
		}
	}
}

// WithOverfetchFactor sets the per-strategy overfetch multiplier.
func WithOverfetchFactor(factor int) RetrieverOption {
	return func(r *Retriever) {
		if factor > 0 {
			r.overfetchFactor = factor
		}
	}
}

// WithContextTokenBudget sets the answer context token budget.
func WithContextTokenBudget(budget int) RetrieverOption {
	return func(r *Retriever) {
		if budget > 0 {
			r.contextBudget = budget
		}
	}
}

// WithTokenCounter sets the token counter used for context assembly.
func WithTokenCounter(counter tokenizer.Counter) RetrieverOption {
	return func(r *Retriever) {
		if counter != nil {
			r.counter = counter
		}
	}
}

// NewRetriever creates the retrieval service.
func NewRetriever(
	embedder driven.EmbeddingService,
	vector driven.VectorIndex,
	lexical driven.LexicalIndex,
	cooccur driven.CooccurrenceIndex,
	docStore driven.DocumentStore,
	opts ...RetrieverOption,
) *Retriever {
	r := &Retriever{
		embedder:        embedder,
		vector:          vector,
		lexical:         lexical,
		cooccur:         cooccur,
		docStore:        docStore,
		counter:         tokenizer.NewTiktokenCounter(""),
		weights:         DefaultFusionWeights(),
		strategyTimeout: DefaultStrategyTimeout,
		overfetchFactor: DefaultOverfetchFactor,
		contextBudget:   DefaultContextTokenBudget,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// strategyResult carries one strategy's raw scores and health.
type strategyResult struct {
	scores map[string]float64
	state  domain.StrategyState
}

// Retrieve runs the ensemble search.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) (*domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	k := opts.K
	if k <= 0 {
		k = DefaultK
	}
	fetch := k * r.overfetchFactor

	logger.Section("Retrieval")
	logger.Debug("Query: %q, k=%d, overfetch=%d", query, k, fetch)

	// The query embedding is mandatory for vector search. Failure is
	// surfaced, not silently degraded, unless the caller opted in.
	queryVec, embedErr := r.embedder.Embed(ctx, query)
	if embedErr != nil && !opts.AllowDegraded {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, embedErr)
	}

	results := map[domain.Strategy]*strategyResult{
		domain.StrategyVector:       {scores: map[string]float64{}, state: domain.StrategyEmpty},
		domain.StrategyLexical:      {scores: map[string]float64{}, state: domain.StrategyEmpty},
		domain.StrategyCooccurrence: {scores: map[string]float64{}, state: domain.StrategyEmpty},
	}

	g, gctx := errgroup.WithContext(ctx)

	if embedErr != nil {
		logger.Warn("Query embedding failed, continuing degraded: %v", embedErr)
		results[domain.StrategyVector].state = domain.StrategyFailed
	} else {
		g.Go(func() error {
			r.runStrategy(gctx, results[domain.StrategyVector], func(tctx context.Context) (map[string]float64, error) {
				hits, err := r.vector.Search(tctx, queryVec, fetch)
				if err != nil {
					return nil, err
				}
				scores := make(map[string]float64, len(hits))
				for _, h := range hits {
					scores[h.ChunkID] = h.Similarity
				}
				return scores, nil
			})
			return nil
		})
	}

	g.Go(func() error {
		r.runStrategy(gctx, results[domain.StrategyLexical], func(tctx context.Context) (map[string]float64, error) {
			hits, err := r.lexical.Search(tctx, query, fetch)
			if err != nil {
				return nil, err
			}
			scores := make(map[string]float64, len(hits))
			for _, h := range hits {
				scores[h.ChunkID] = h.Score
			}
			return scores, nil
		})
		return nil
	})

	g.Go(func() error {
		r.runStrategy(gctx, results[domain.StrategyCooccurrence], func(tctx context.Context) (map[string]float64, error) {
			hits, err := r.cooccur.Search(tctx, query, fetch)
			if err != nil {
				return nil, err
			}
			scores := make(map[string]float64, len(hits))
			for _, h := range hits {
				scores[h.ChunkID] = h.Score
			}
			return scores, nil
		})
		return nil
	})

	_ = g.Wait()

	states := make(map[domain.Strategy]domain.StrategyState, len(results))
	for strategy, res := range results {
		states[strategy] = res.state
		logger.Debug("Strategy %s: %d hits, state=%s", strategy, len(res.scores), res.state)
	}

	fused := r.fuse(results)
	ranked, err := r.hydrate(ctx, fused)
	if err != nil {
		return nil, err
	}

	ranked = dedupNearIdentical(ranked)
	ranked = filterDocuments(ranked, opts)
	ranked = capPerDocument(ranked, opts.MaxPerDocument)

	if len(ranked) > k {
		ranked = ranked[:k]
	}

	logger.Info("Retrieved %d chunks", len(ranked))
	return &domain.RetrievalResult{Chunks: ranked, StrategyStates: states}, nil
}

// runStrategy executes one strategy under its individual timeout,
// degrading errors and timeouts to empty contributions.
func (r *Retriever) runStrategy(ctx context.Context, res *strategyResult, search func(context.Context) (map[string]float64, error)) {
	tctx, cancel := context.WithTimeout(ctx, r.strategyTimeout)
	defer cancel()

	scores, err := search(tctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Retrieval strategy timed out: %v", domain.ErrStrategyTimeout)
		res.state = domain.StrategyTimedOut
	case err != nil:
		logger.Warn("Retrieval strategy failed: %v", err)
		res.state = domain.StrategyFailed
	case len(scores) == 0:
		res.state = domain.StrategyEmpty
	default:
		res.scores = scores
		res.state = domain.StrategyOK
	}
}

// fusedChunk pairs a chunk ID with its fused score and per-strategy
// contributions.
type fusedChunk struct {
	chunkID       string
	score         float64
	contributions map[domain.Strategy]float64
}

// fuse normalises each strategy's scores to [0,1] and combines them by
// weighted sum.
func (r *Retriever) fuse(results map[domain.Strategy]*strategyResult) []fusedChunk {
	weights := map[domain.Strategy]float64{
		domain.StrategyVector:       r.weights.Vector,
		domain.StrategyLexical:      r.weights.Lexical,
		domain.StrategyCooccurrence: r.weights.Cooccurrence,
	}

	combined := make(map[string]*fusedChunk)
	for strategy, res := range results {
		for chunkID, score := range minMaxNormalise(res.scores) {
			fc, ok := combined[chunkID]
			if !ok {
				fc = &fusedChunk{chunkID: chunkID, contributions: make(map[domain.Strategy]float64)}
				combined[chunkID] = fc
			}
			fc.contributions[strategy] = score
			fc.score += weights[strategy] * score
		}
	}

	fused := make([]fusedChunk, 0, len(combined))
	for _, fc := range combined {
		fused = append(fused, *fc)
	}

	// Chunk ID breaks score ties so identical inputs always produce an
	// identical ranking.
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].chunkID < fused[j].chunkID
	})

	return fused
}

// hydrate loads the chunks behind the fused IDs, dropping references
// whose chunks no longer exist.
func (r *Retriever) hydrate(ctx context.Context, fused []fusedChunk) ([]domain.RetrievedChunk, error) {
	ranked := make([]domain.RetrievedChunk, 0, len(fused))
	for _, fc := range fused {
		chunk, err := r.docStore.GetChunk(ctx, fc.chunkID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hydrate chunk %s: %w", fc.chunkID, err)
		}
		ranked = append(ranked, domain.RetrievedChunk{
			Chunk:         *chunk,
			FusedScore:    fc.score,
			Contributions: fc.contributions,
		})
	}
	return ranked, nil
}

// minMaxNormalise maps a strategy's raw scores onto [0,1]. A flat or
// single-entry result set maps to 1.0 for every member.
func minMaxNormalise(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return scores
	}

	first := true
	var lo, hi float64
	for _, s := range scores {
		if first {
			lo, hi = s, s
			first = false
			continue
		}
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	normalised := make(map[string]float64, len(scores))
	for id, s := range scores {
		if hi == lo {
			normalised[id] = 1.0
			continue
		}
		normalised[id] = (s - lo) / (hi - lo)
	}
	return normalised
}

// dedupNearIdentical removes near-duplicate chunks (overlapping chunk
// windows produce them), keeping the highest-scoring instance. Input is
// already ranked, so the first instance seen wins.
func dedupNearIdentical(ranked []domain.RetrievedChunk) []domain.RetrievedChunk {
	kept := make([]domain.RetrievedChunk, 0, len(ranked))
	keptTerms := make([]map[string]struct{}, 0, len(ranked))

	for _, rc := range ranked {
		terms := termSet(rc.Chunk.Text)
		duplicate := false
		for _, existing := range keptTerms {
			if jaccard(terms, existing) >= dedupJaccardThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, rc)
		keptTerms = append(keptTerms, terms)
	}

	return kept
}

// filterDocuments applies the include and exclude document filters.
func filterDocuments(ranked []domain.RetrievedChunk, opts domain.RetrieveOptions) []domain.RetrievedChunk {
	if len(opts.IncludeDocumentIDs) == 0 && len(opts.ExcludeDocumentIDs) == 0 {
		return ranked
	}

	include := make(map[string]struct{}, len(opts.IncludeDocumentIDs))
	for _, id := range opts.IncludeDocumentIDs {
		include[id] = struct{}{}
	}
	exclude := make(map[string]struct{}, len(opts.ExcludeDocumentIDs))
	for _, id := range opts.ExcludeDocumentIDs {
		exclude[id] = struct{}{}
	}

	filtered := ranked[:0]
	for _, rc := range ranked {
		if _, out := exclude[rc.Chunk.DocumentID]; out {
			continue
		}
		if len(include) > 0 {
			if _, in := include[rc.Chunk.DocumentID]; !in {
				continue
			}
		}
		filtered = append(filtered, rc)
	}
	return filtered
}

// capPerDocument limits how many chunks one document contributes, in
// rank order, so a single source cannot dominate the results.
func capPerDocument(ranked []domain.RetrievedChunk, limit int) []domain.RetrievedChunk {
	if limit <= 0 {
		return ranked
	}

	counts := make(map[string]int)
	capped := ranked[:0]
	for _, rc := range ranked {
		if counts[rc.Chunk.DocumentID] >= limit {
			continue
		}
		counts[rc.Chunk.DocumentID]++
		capped = append(capped, rc)
	}
	return capped
}

// termSet is the set of analysis terms in a text.
func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, term := range analysis.Terms(text) {
		set[term] = struct{}{}
	}
	return set
}

// jaccard is the token-set Jaccard similarity of two sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	intersection := 0
	for term := range a {
		if _, ok := b[term]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
