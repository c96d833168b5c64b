package domain

// Strategy identifies one of the ensemble retrieval strategies.
type Strategy string

const (
	// StrategyVector is dense vector similarity search.
	StrategyVector Strategy = "vector"

	// StrategyLexical is BM25-style keyword search.
	StrategyLexical Strategy = "lexical"

	// StrategyCooccurrence is term-proximity co-occurrence search.
	StrategyCooccurrence Strategy = "cooccurrence"
)

// StrategyState describes how a strategy contributed to a retrieval.
type StrategyState string

const (
	// StrategyOK means the strategy returned results normally.
	StrategyOK StrategyState = "ok"

	// StrategyEmpty means the strategy ran but matched nothing.
	StrategyEmpty StrategyState = "empty"

	// StrategyTimedOut means the strategy exceeded its timeout and was
	// treated as an empty contribution.
	StrategyTimedOut StrategyState = "timeout"

	// StrategyFailed means the strategy errored and was treated as an
	// empty contribution.
	StrategyFailed StrategyState = "failed"
)

// RetrieveOptions configures an ensemble retrieval.
type RetrieveOptions struct {
	// K is the maximum number of chunks to return.
	K int

	// IncludeDocumentIDs restricts results to these documents when
	// non-empty.
	IncludeDocumentIDs []string

	// ExcludeDocumentIDs removes results from these documents.
	ExcludeDocumentIDs []string

	// MaxPerDocument caps the number of chunks from one document.
	// Zero means no cap.
	MaxPerDocument int

	// AllowDegraded permits retrieval to continue without vector search
	// when the query embedding fails. The degradation is reported in
	// the per-strategy states, never hidden.
	AllowDegraded bool
}

// RetrievedChunk is one ranked result from the ensemble retriever.
type RetrievedChunk struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// FusedScore is the weighted combination of strategy scores,
	// normalised to [0,1].
	FusedScore float64

	// Contributions holds each strategy's normalised score for this
	// chunk. A strategy absent from the map contributed 0.
	Contributions map[Strategy]float64
}

// RetrievalResult is the full output of one ensemble retrieval,
// including per-strategy health for observability.
type RetrievalResult struct {
	// Chunks is the ranked result list, best first.
	Chunks []RetrievedChunk

	// StrategyStates records how each strategy behaved, so callers can
	// detect degraded retrieval quality.
	StrategyStates map[Strategy]StrategyState
}

// Source is a ranked reference returned alongside an answer.
// Computed fresh per query, never persisted.
type Source struct {
	// ChunkID is the evidencing chunk.
	ChunkID string

	// DocumentID is the chunk's parent document.
	DocumentID string

	// DisplayReference is a human-readable citation,
	// e.g. "Travel Rates, section 3 #12".
	DisplayReference string

	// Snippet is the excerpt used as evidence.
	Snippet string

	// RelevanceScore is the normalised fused score in [0,1].
	RelevanceScore float64
}

// AnswerContext is the bounded context block handed to the generator.
type AnswerContext struct {
	// Found is false when no relevant chunks were available. Callers
	// must produce a "don't know" response, not fabricate an answer.
	Found bool

	// Context is the assembled text, empty when Found is false.
	Context string

	// Sources lists the chunks used, in inclusion order.
	Sources []Source

	// Confidence is an overall score in [0,1]: a function of the top
	// result's fused score and its gap to the runner-up. Zero when
	// Found is false.
	Confidence float64

	// TokenCount is the token total of Context.
	TokenCount int

	// StrategyStates carries the retrieval health through to callers.
	StrategyStates map[Strategy]StrategyState
}
