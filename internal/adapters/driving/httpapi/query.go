package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

type queryRequest struct {
	Query              string   `json:"query" binding:"required"`
	K                  int      `json:"k"`
	IncludeDocumentIDs []string `json:"include_document_ids"`
	ExcludeDocumentIDs []string `json:"exclude_document_ids"`
	MaxPerDocument     int      `json:"max_per_document"`
	AllowDegraded      bool     `json:"allow_degraded"`
}

type sourceResponse struct {
	ChunkID          string  `json:"chunk_id"`
	DocumentID       string  `json:"document_id"`
	DisplayReference string  `json:"display_reference"`
	Snippet          string  `json:"snippet"`
	RelevanceScore   float64 `json:"relevance_score"`
}

type queryResponse struct {
	Found          bool              `json:"found"`
	Context        string            `json:"context,omitempty"`
	Sources        []sourceResponse  `json:"sources"`
	Confidence     float64           `json:"confidence"`
	TokenCount     int               `json:"token_count"`
	StrategyStates map[string]string `json:"strategy_states"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var body queryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, domain.ErrInvalidInput)
		return
	}

	opts := domain.RetrieveOptions{
		K:                  body.K,
		IncludeDocumentIDs: body.IncludeDocumentIDs,
		ExcludeDocumentIDs: body.ExcludeDocumentIDs,
		MaxPerDocument:     body.MaxPerDocument,
		AllowDegraded:      body.AllowDegraded,
	}

	answer, err := s.retrieval.Answer(c.Request.Context(), body.Query, opts)
	if err != nil {
		writeError(c, err)
		return
	}

	sources := make([]sourceResponse, 0, len(answer.Sources))
	for _, src := range answer.Sources {
		sources = append(sources, sourceResponse{
			ChunkID:          src.ChunkID,
			DocumentID:       src.DocumentID,
			DisplayReference: src.DisplayReference,
			Snippet:          src.Snippet,
			RelevanceScore:   src.RelevanceScore,
		})
	}

	states := make(map[string]string, len(answer.StrategyStates))
	for strategy, state := range answer.StrategyStates {
		states[string(strategy)] = string(state)
	}

	c.JSON(http.StatusOK, queryResponse{
		Found:          answer.Found,
		Context:        answer.Context,
		Sources:        sources,
		Confidence:     answer.Confidence,
		TokenCount:     answer.TokenCount,
		StrategyStates: states,
	})
}
