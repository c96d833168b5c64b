// Package vector provides an in-memory cosine-similarity index over
// chunk embeddings. The index is rebuilt from the document store at
// startup, so persistence stays in SQLite and search stays in memory.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

type entry struct {
	chunkID string
	vector  []float32
	norm    float64
	// order preserves insertion sequence for stable tie-breaking.
	order int
}

// Index is an exact nearest-neighbour index using cosine similarity.
// All vectors share one fixed dimension set at construction.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]*entry
	nextOrder int
}

// New creates an index for vectors of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d",
			domain.ErrInvalidInput, dimension)
	}
	return &Index{
		dimension: dimension,
		entries:   make(map[string]*entry),
	}, nil
}

// Dimension returns the fixed vector dimension.
func (ix *Index) Dimension() int {
	return ix.dimension
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Upsert inserts or replaces the vector for a chunk. A replacement
// keeps the chunk's original insertion order so search stays stable.
func (ix *Index) Upsert(_ context.Context, chunkID string, embedding []float32) error {
	if len(embedding) != ix.dimension {
		return fmt.Errorf("%w: index dimension %d, vector dimension %d",
			domain.ErrDimensionMismatch, ix.dimension, len(embedding))
	}
	for _, v := range embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite component in vector for chunk %s",
				domain.ErrInvalidInput, chunkID)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	if existing, ok := ix.entries[chunkID]; ok {
		existing.vector = vec
		existing.norm = norm(vec)
		return nil
	}

	ix.entries[chunkID] = &entry{
		chunkID: chunkID,
		vector:  vec,
		norm:    norm(vec),
		order:   ix.nextOrder,
	}
	ix.nextOrder++
	return nil
}

// Delete removes a chunk's vector. Deleting an absent chunk is a no-op.
func (ix *Index) Delete(_ context.Context, chunkID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, chunkID)
	return nil
}

// Search returns up to k chunks ordered by descending cosine
// similarity, ties broken by insertion order.
func (ix *Index) Search(_ context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("%w: index dimension %d, query dimension %d",
			domain.ErrDimensionMismatch, ix.dimension, len(query))
	}
	if k <= 0 {
		return []driven.VectorHit{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	queryNorm := norm(query)
	if queryNorm == 0 {
		return []driven.VectorHit{}, nil
	}

	type scored struct {
		hit   driven.VectorHit
		order int
	}
	results := make([]scored, 0, len(ix.entries))
	for _, e := range ix.entries {
		if e.norm == 0 {
			continue
		}
		results = append(results, scored{
			hit: driven.VectorHit{
				ChunkID:    e.chunkID,
				Similarity: dot(query, e.vector) / (queryNorm * e.norm),
			},
			order: e.order,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].hit.Similarity != results[j].hit.Similarity {
			return results[i].hit.Similarity > results[j].hit.Similarity
		}
		return results[i].order < results[j].order
	})

	if k > len(results) {
		k = len(results)
	}
	hits := make([]driven.VectorHit, k)
	for i := 0; i < k; i++ {
		hits[i] = results[i].hit
	}
	return hits, nil
}

// CosineSimilarity computes dot(a,b) / (|a| * |b|), range [-1,1].
// Returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
