package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/tokenizer"
)

// seedTravelCorpus stores a small corpus: a rates table document and
// two prose documents.
func seedTravelCorpus(t *testing.T, f *fixture) {
	t.Helper()

	f.seedDocument(t, domain.Document{
		ID:        "doc-rates",
		SourceURI: "file:///rates.csv",
		Title:     "Travel Rates",
	}, []domain.Chunk{
		{
			ID:                "chunk-ontario",
			Text:              "Province: Ontario | Rate: 62.5 cents/km",
			SequenceIndex:     0,
			StructuralContext: "Kilometric Rates",
		},
		{
			ID:                "chunk-quebec",
			Text:              "Province: Quebec | Rate: 61.0 cents/km",
			SequenceIndex:     1,
			StructuralContext: "Kilometric Rates",
		},
	})

	f.seedDocument(t, domain.Document{
		ID:        "doc-policy",
		SourceURI: "file:///policy.md",
		Title:     "Expenses Policy",
	}, []domain.Chunk{
		{
			ID:            "chunk-policy-1",
			Text:          "Travel costs are reimbursed within thirty days of filing the claim.",
			SequenceIndex: 0,
		},
		{
			ID:            "chunk-policy-2",
			Text:          "Receipts are required for any meal expense above the daily allowance.",
			SequenceIndex: 1,
		},
	})

	f.seedDocument(t, domain.Document{
		ID:        "doc-handbook",
		SourceURI: "file:///handbook.txt",
		Title:     "Employee Handbook",
	}, []domain.Chunk{
		{
			ID:            "chunk-handbook-1",
			Text:          "Office access badges must be renewed annually by every employee.",
			SequenceIndex: 0,
		},
	})
}

func TestRetrieve_CompoundTermScenario(t *testing.T) {
	f := newFixture(t)
	seedTravelCorpus(t, f)

	// Neither "kilometric" nor "rate" nor "62.5" co-occurs with
	// "Ontario" as a phrase anywhere in prose, yet the table row must
	// surface at the top.
	result, err := f.retriever.Retrieve(context.Background(), "Ontario kilometric rate", domain.RetrieveOptions{K: 3})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)

	top := result.Chunks[0]
	assert.Contains(t, top.Chunk.Text, "62.5")
	assert.Positive(t, top.FusedScore)
	assert.NotEmpty(t, top.Contributions)
}

func TestRetrieve_EmbeddingUnavailableIsStrict(t *testing.T) {
	f := newFixture(t)
	seedTravelCorpus(t, f)

	f.embedder.fail(errors.New("api down"))

	_, err := f.retriever.Retrieve(context.Background(), "travel reimbursement", domain.RetrieveOptions{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestRetrieve_AllowDegradedContinuesWithoutVector(t *testing.T) {
	f := newFixture(t)
	seedTravelCorpus(t, f)

	f.embedder.fail(errors.New("api down"))

	result, err := f.retriever.Retrieve(context.Background(), "travel reimbursement claim", domain.RetrieveOptions{
		K:             5,
		AllowDegraded: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)

	// The degradation is visible, never hidden.
	assert.Equal(t, domain.StrategyFailed, result.StrategyStates[domain.StrategyVector])
	for _, rc := range result.Chunks {
		assert.NotContains(t, rc.Contributions, domain.StrategyVector)
	}
}

func TestRetrieve_PartialStrategyFailureResilience(t *testing.T) {
	f := newFixture(t)
	seedTravelCorpus(t, f)

	// Swap in a co-occurrence index that errors on every search.
	broken := NewRetriever(
		f.embedder, f.vector, f.lexical, failingCooccur{}, f.docStore,
		WithTokenCounter(tokenizer.EstimateCounter{}),
	)

	result, err := broken.Retrieve(context.Background(), "travel reimbursement claim", domain.RetrieveOptions{K: 5})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, domain.StrategyFailed, result.StrategyStates[domain.StrategyCooccurrence])
}

func TestRetrieve_FusionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	seedTravelCorpus(t, f)
	ctx := context.Background()

	first, err := f.retriever.Retrieve(ctx, "travel expense reimbursement province", domain.RetrieveOptions{K: 5})
	require.NoError(t, err)
	second, err := f.retriever.Retrieve(ctx, "travel expense reimbursement province", domain.RetrieveOptions{K: 5})
	require.NoError(t, err)

	require.Len(t, second.Chunks, len(first.Chunks))
	for i := range first.Chunks {
		assert.Equal(t, first.Chunks[i].Chunk.ID, second.Chunks[i].Chunk.ID)
		assert.Equal(t, first.Chunks[i].FusedScore, second.Chunks[i].FusedScore)
	}
}

func TestRetrieve_NothingRelevantReturnsEmpty(t *testing.T) {
	// Empty corpus: every strategy comes back empty and the result is
	// an explicit empty list, not an error.
	f := newFixture(t)

	result, err := f.retriever.Retrieve(context.Background(), "quantum chromodynamics", domain.RetrieveOptions{K: 5})
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
	assert.Equal(t, domain.StrategyEmpty, result.StrategyStates[domain.StrategyVector])
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	f := newFixture(t)

	_, err := f.retriever.Retrieve(context.Background(), "   ", domain.RetrieveOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRetrieve_DocumentFilters(t *testing.T) {
	f := newFixture(t)
	seedTravelCorpus(t, f)
	ctx := context.Background()

	result, err := f.retriever.Retrieve(ctx, "travel province reimbursement", domain.RetrieveOptions{
		K:                  10,
		IncludeDocumentIDs: []string{"doc-policy"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)
	for _, rc := range result.Chunks {
		assert.Equal(t, "doc-policy", rc.Chunk.DocumentID)
	}

	result, err = f.retriever.Retrieve(ctx, "travel province reimbursement", domain.RetrieveOptions{
		K:                  10,
		ExcludeDocumentIDs: []string{"doc-rates"},
	})
	require.NoError(t, err)
	for _, rc := range result.Chunks {
		assert.NotEqual(t, "doc-rates", rc.Chunk.DocumentID)
	}
}

func TestRetrieve_PerDocumentCap(t *testing.T) {
	f := newFixture(t)
	seedTravelCorpus(t, f)

	result, err := f.retriever.Retrieve(context.Background(), "province rate cents", domain.RetrieveOptions{
		K:              10,
		MaxPerDocument: 1,
	})
	require.NoError(t, err)

	perDoc := make(map[string]int)
	for _, rc := range result.Chunks {
		perDoc[rc.Chunk.DocumentID]++
		assert.LessOrEqual(t, perDoc[rc.Chunk.DocumentID], 1)
	}
}

func TestRetrieve_DeduplicatesNearIdenticalChunks(t *testing.T) {
	f := newFixture(t)

	// Overlapping chunk windows produce near-identical text. The two
	// texts share 11 of 12 distinct terms, a Jaccard of 0.92.
	text := "Travel costs are reimbursed within thirty days of filing the expense claim form with the finance department."
	f.seedDocument(t, domain.Document{ID: "doc-a", SourceURI: "file:///a.txt", Title: "A"}, []domain.Chunk{
		{ID: "chunk-a1", Text: text, SequenceIndex: 0},
		{ID: "chunk-a2", Text: text + " Late.", SequenceIndex: 1},
	})

	result, err := f.retriever.Retrieve(context.Background(), "travel reimbursement claim", domain.RetrieveOptions{K: 10})
	require.NoError(t, err)

	seen := 0
	for _, rc := range result.Chunks {
		if strings.Contains(rc.Chunk.Text, "thirty days") {
			seen++
		}
	}
	assert.Equal(t, 1, seen)
}

func TestMinMaxNormalise(t *testing.T) {
	assert.Empty(t, minMaxNormalise(map[string]float64{}))

	// A flat result set maps every member to 1.
	flat := minMaxNormalise(map[string]float64{"a": 3, "b": 3})
	assert.Equal(t, 1.0, flat["a"])
	assert.Equal(t, 1.0, flat["b"])

	spread := minMaxNormalise(map[string]float64{"a": 1, "b": 2, "c": 3})
	assert.Equal(t, 0.0, spread["a"])
	assert.Equal(t, 0.5, spread["b"])
	assert.Equal(t, 1.0, spread["c"])
}

func TestJaccard(t *testing.T) {
	a := map[string]struct{}{"one": {}, "two": {}, "three": {}}
	b := map[string]struct{}{"one": {}, "two": {}, "three": {}}
	assert.Equal(t, 1.0, jaccard(a, b))

	c := map[string]struct{}{"one": {}, "four": {}}
	assert.InDelta(t, 0.25, jaccard(a, c), 1e-9)

	assert.Equal(t, 1.0, jaccard(map[string]struct{}{}, map[string]struct{}{}))
}
