// Package cooccur maintains a term-proximity graph across all ingested
// chunks. It exists for compound-term queries: terms that never appear
// as a phrase anywhere in the corpus can still cluster tightly inside a
// token window, and the graph scores chunks by how strongly the query
// terms attract each other there.
package cooccur

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/corpus/internal/analysis"
	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.CooccurrenceIndex = (*Index)(nil)

// DefaultWindow is the maximum token distance between two terms for
// them to contribute an edge.
const DefaultWindow = 100

// maxSampleContexts bounds the chunk references kept per edge.
const maxSampleContexts = 5

// DecayBand maps a distance range to an edge weight. Terms at token
// distance d receive the weight of the first band with d <= MaxDistance.
type DecayBand struct {
	MaxDistance int
	Weight      float64
}

// DefaultDecayBands weights adjacency highest and tapers off with
// distance. The schedule must be monotonically non-increasing.
func DefaultDecayBands() []DecayBand {
	bands := []DecayBand{{MaxDistance: 1, Weight: 1.0}}
	// Linear falloff 0.9 .. 0.1 over distances 2..10.
	for d := 2; d <= 10; d++ {
		bands = append(bands, DecayBand{MaxDistance: d, Weight: 1.0 - float64(d-1)*0.1})
	}
	bands = append(bands,
		DecayBand{MaxDistance: 20, Weight: 0.08},
		DecayBand{MaxDistance: 50, Weight: 0.05},
		DecayBand{MaxDistance: 100, Weight: 0.02},
	)
	return bands
}

// pairKey orders the two terms so (a,b) and (b,a) share one edge.
type pairKey struct {
	a, b string
}

func makePairKey(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// edge aggregates co-occurrence evidence for one term pair.
type edge struct {
	// chunkWeights is the summed decayed weight per chunk.
	chunkWeights map[string]float64

	// docTotals is the summed weight contributed per document, kept so
	// DeleteDocument can subtract exactly what a document added.
	docTotals map[string]float64

	// samples holds up to maxSampleContexts chunk IDs where the pair
	// was observed.
	samples []string
}

// docDelta is the fully-built contribution of one document, merged into
// the graph in a single critical section.
type docDelta struct {
	// edges maps pair -> chunk -> weight.
	edges map[pairKey]map[string]float64

	// termCounts maps chunk -> term -> occurrence count, used for the
	// tie-break at query time.
	termCounts map[string]map[string]int
}

// Index is the in-memory co-occurrence graph.
type Index struct {
	mu sync.RWMutex

	window int
	bands  []DecayBand

	edges map[pairKey]*edge

	// docChunks maps document -> its chunk IDs, driving per-document
	// removal.
	docChunks map[string][]string

	// chunkTerms maps chunk -> term -> count.
	chunkTerms map[string]map[string]int

	// chunkDoc maps chunk -> owning document.
	chunkDoc map[string]string
}

// Option configures the index.
type Option func(*Index)

// WithWindow overrides the co-occurrence token window.
func WithWindow(window int) Option {
	return func(ix *Index) {
		if window > 0 {
			ix.window = window
		}
	}
}

// WithDecayBands overrides the distance decay schedule. Bands must be
// sorted by MaxDistance with non-increasing weights; invalid schedules
// are ignored.
func WithDecayBands(bands []DecayBand) Option {
	return func(ix *Index) {
		if validBands(bands) {
			ix.bands = bands
		}
	}
}

func validBands(bands []DecayBand) bool {
	if len(bands) == 0 {
		return false
	}
	for i := 1; i < len(bands); i++ {
		if bands[i].MaxDistance <= bands[i-1].MaxDistance {
			return false
		}
		if bands[i].Weight > bands[i-1].Weight {
			return false
		}
	}
	return true
}

// New creates an empty co-occurrence graph.
func New(opts ...Option) *Index {
	ix := &Index{
		window:     DefaultWindow,
		bands:      DefaultDecayBands(),
		edges:      make(map[pairKey]*edge),
		docChunks:  make(map[string][]string),
		chunkTerms: make(map[string]map[string]int),
		chunkDoc:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

func (ix *Index) weightForDistance(distance int) float64 {
	if distance > ix.window {
		return 0
	}
	for _, band := range ix.bands {
		if distance <= band.MaxDistance {
			return band.Weight
		}
	}
	return 0
}

// IndexDocument computes the document's full edge delta in memory, then
// merges it under one write lock so concurrent searches see either none
// or all of the document's contributions.
func (ix *Index) IndexDocument(_ context.Context, documentID string, chunks []domain.Chunk) error {
	delta := ix.buildDelta(chunks)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.docChunks[documentID]; exists {
		ix.removeDocumentLocked(documentID)
	}

	chunkIDs := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		chunkIDs = append(chunkIDs, chunk.ID)
	}
	ix.docChunks[documentID] = chunkIDs

	for chunkID, counts := range delta.termCounts {
		ix.chunkTerms[chunkID] = counts
		ix.chunkDoc[chunkID] = documentID
	}

	for key, chunkWeights := range delta.edges {
		e, ok := ix.edges[key]
		if !ok {
			e = &edge{
				chunkWeights: make(map[string]float64),
				docTotals:    make(map[string]float64),
			}
			ix.edges[key] = e
		}
		for chunkID, weight := range chunkWeights {
			e.chunkWeights[chunkID] += weight
			e.docTotals[documentID] += weight
			if len(e.samples) < maxSampleContexts {
				e.samples = append(e.samples, chunkID)
			}
		}
	}

	return nil
}

func (ix *Index) buildDelta(chunks []domain.Chunk) docDelta {
	delta := docDelta{
		edges:      make(map[pairKey]map[string]float64),
		termCounts: make(map[string]map[string]int),
	}

	for _, chunk := range chunks {
		text := chunk.Text
		if chunk.StructuralContext != "" {
			text = chunk.StructuralContext + "\n" + text
		}
		tokens := analysis.Tokenize(text)

		counts := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			counts[tok.Term]++
		}
		delta.termCounts[chunk.ID] = counts

		for i := 0; i < len(tokens); i++ {
			for j := i + 1; j < len(tokens); j++ {
				distance := tokens[j].Position - tokens[i].Position
				if distance > ix.window {
					break
				}
				if tokens[i].Term == tokens[j].Term {
					continue
				}
				weight := ix.weightForDistance(distance)
				if weight == 0 {
					continue
				}
				key := makePairKey(tokens[i].Term, tokens[j].Term)
				if delta.edges[key] == nil {
					delta.edges[key] = make(map[string]float64)
				}
				delta.edges[key][chunk.ID] += weight
			}
		}
	}

	return delta
}

// DeleteDocument removes the document's contributions from the graph.
// Unknown documents are a no-op.
func (ix *Index) DeleteDocument(_ context.Context, documentID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeDocumentLocked(documentID)
	return nil
}

func (ix *Index) removeDocumentLocked(documentID string) {
	chunkIDs, ok := ix.docChunks[documentID]
	if !ok {
		return
	}
	owned := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		owned[id] = struct{}{}
		delete(ix.chunkTerms, id)
		delete(ix.chunkDoc, id)
	}

	for key, e := range ix.edges {
		if _, contributed := e.docTotals[documentID]; !contributed {
			continue
		}
		delete(e.docTotals, documentID)
		for chunkID := range owned {
			delete(e.chunkWeights, chunkID)
		}
		filtered := e.samples[:0]
		for _, sample := range e.samples {
			if _, gone := owned[sample]; !gone {
				filtered = append(filtered, sample)
			}
		}
		e.samples = filtered
		if len(e.chunkWeights) == 0 {
			delete(ix.edges, key)
		}
	}

	delete(ix.docChunks, documentID)
}

// Search sums, per chunk, the edge weights of every query-term pair.
// Ties break by the chunk's total occurrence count of query terms, then
// by chunk ID for a total deterministic order.
func (ix *Index) Search(_ context.Context, query string, k int) ([]driven.CooccurrenceHit, error) {
	terms := uniqueTerms(analysis.Terms(query))
	if len(terms) < 2 || k <= 0 {
		return []driven.CooccurrenceHit{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	scores := make(map[string]float64)
	for i := 0; i < len(terms); i++ {
		for j := i + 1; j < len(terms); j++ {
			e, ok := ix.edges[makePairKey(terms[i], terms[j])]
			if !ok {
				continue
			}
			for chunkID, weight := range e.chunkWeights {
				scores[chunkID] += weight
			}
		}
	}

	hits := make([]driven.CooccurrenceHit, 0, len(scores))
	for chunkID, score := range scores {
		matches := 0
		counts := ix.chunkTerms[chunkID]
		for _, term := range terms {
			matches += counts[term]
		}
		hits = append(hits, driven.CooccurrenceHit{
			ChunkID:     chunkID,
			Score:       score,
			TermMatches: matches,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].TermMatches != hits[j].TermMatches {
			return hits[i].TermMatches > hits[j].TermMatches
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// EdgeWeight reports the aggregate weight between two terms across all
// chunks, zero when no edge exists.
func (ix *Index) EdgeWeight(termA, termB string) float64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.edges[makePairKey(termA, termB)]
	if !ok {
		return 0
	}
	total := 0.0
	for _, weight := range e.chunkWeights {
		total += weight
	}
	return total
}

// SampleContexts returns up to five chunk IDs where the term pair was
// observed, for diagnostics.
func (ix *Index) SampleContexts(termA, termB string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.edges[makePairKey(termA, termB)]
	if !ok {
		return nil
	}
	out := make([]string, len(e.samples))
	copy(out, e.samples)
	return out
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}
