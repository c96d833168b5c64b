// Package lexical provides an in-memory BM25 inverted index over chunk
// text. Tokenisation is shared with the query path via the analysis
// package, so index-time and query-time terms always agree.
package lexical

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/corpus/internal/analysis"
	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.LexicalIndex = (*Index)(nil)

// BM25 parameters. k1 controls term-frequency saturation, b controls
// document-length normalisation.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

type posting struct {
	chunkID string
	tf      int
}

type chunkStats struct {
	length int
	// order is a monotonically increasing insertion counter. Re-indexing
	// a chunk refreshes it, which is what makes recency win ties.
	order int
}

// Index is a BM25 inverted index.
type Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	// postings maps term -> chunk postings.
	postings map[string][]posting
	chunks   map[string]chunkStats

	totalLength int
	nextOrder   int
}

// Option configures the index.
type Option func(*Index)

// WithParameters overrides the BM25 k1 and b constants.
func WithParameters(k1, b float64) Option {
	return func(ix *Index) {
		if k1 > 0 {
			ix.k1 = k1
		}
		if b >= 0 && b <= 1 {
			ix.b = b
		}
	}
}

// New creates an empty BM25 index.
func New(opts ...Option) *Index {
	ix := &Index{
		k1:       DefaultK1,
		b:        DefaultB,
		postings: make(map[string][]posting),
		chunks:   make(map[string]chunkStats),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Index adds or updates a chunk. The structural context is indexed
// together with the text so a table chunk matches its heading terms.
func (ix *Index) Index(_ context.Context, chunk domain.Chunk) error {
	text := chunk.Text
	if chunk.StructuralContext != "" {
		text = chunk.StructuralContext + "\n" + text
	}
	terms := analysis.Terms(text)

	freq := make(map[string]int, len(terms))
	for _, term := range terms {
		freq[term]++
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.chunks[chunk.ID]; exists {
		ix.removeLocked(chunk.ID)
	}

	for term, tf := range freq {
		ix.postings[term] = append(ix.postings[term], posting{chunkID: chunk.ID, tf: tf})
	}
	ix.chunks[chunk.ID] = chunkStats{length: len(terms), order: ix.nextOrder}
	ix.nextOrder++
	ix.totalLength += len(terms)

	return nil
}

// Delete removes a chunk from the index. Absent chunks are a no-op.
func (ix *Index) Delete(_ context.Context, chunkID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(chunkID)
	return nil
}

func (ix *Index) removeLocked(chunkID string) {
	stats, ok := ix.chunks[chunkID]
	if !ok {
		return
	}
	for term, list := range ix.postings {
		filtered := list[:0]
		for _, p := range list {
			if p.chunkID != chunkID {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(ix.postings, term)
		} else {
			ix.postings[term] = filtered
		}
	}
	ix.totalLength -= stats.length
	delete(ix.chunks, chunkID)
}

// Search returns up to k chunks scored by BM25, descending. Ties break
// by chunk recency (most recently indexed first), then insertion order
// which is the same counter, so ordering is total and deterministic.
func (ix *Index) Search(_ context.Context, query string, k int) ([]driven.LexicalHit, error) {
	queryTerms := analysis.Terms(query)
	if len(queryTerms) == 0 || k <= 0 {
		return []driven.LexicalHit{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := float64(len(ix.chunks))
	if n == 0 {
		return []driven.LexicalHit{}, nil
	}
	avgLen := float64(ix.totalLength) / n

	scores := make(map[string]float64)
	for _, term := range queryTerms {
		list, ok := ix.postings[term]
		if !ok {
			continue
		}
		idf := math.Log((n-float64(len(list))+0.5)/(float64(len(list))+0.5) + 1.0)
		for _, p := range list {
			stats := ix.chunks[p.chunkID]
			tf := float64(p.tf)
			denom := tf + ix.k1*(1.0-ix.b+ix.b*(float64(stats.length)/avgLen))
			scores[p.chunkID] += idf * (tf * (ix.k1 + 1.0) / denom)
		}
	}

	hits := make([]driven.LexicalHit, 0, len(scores))
	for chunkID, score := range scores {
		hits = append(hits, driven.LexicalHit{ChunkID: chunkID, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return ix.chunks[hits[i].ChunkID].order > ix.chunks[hits[j].ChunkID].order
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}
