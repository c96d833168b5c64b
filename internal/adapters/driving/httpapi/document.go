package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

type documentResponse struct {
	ID         string    `json:"id"`
	SourceURI  string    `json:"source_uri"`
	SourceType string    `json:"source_type"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	FetchedAt  time.Time `json:"fetched_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toDocumentResponse(doc *domain.Document) documentResponse {
	return documentResponse{
		ID:         doc.ID,
		SourceURI:  doc.SourceURI,
		SourceType: string(doc.SourceType),
		Title:      doc.Title,
		Status:     string(doc.Status),
		FetchedAt:  doc.FetchedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func (s *Server) handleDocumentList(c *gin.Context) {
	docs, err := s.documents.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, toDocumentResponse(&docs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"documents": out, "total": len(out)})
}

func (s *Server) handleDocumentGet(c *gin.Context) {
	doc, err := s.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleDocumentDelete(c *gin.Context) {
	if err := s.documents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
