// Package httpapi exposes the ingestion and retrieval services over
// HTTP using gin. Handlers depend on the driving ports only.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driving"
	"github.com/custodia-labs/corpus/internal/logger"
)

// Server is the HTTP API over the corpus services.
type Server struct {
	ingest    driving.IngestService
	retrieval driving.RetrievalService
	documents driving.DocumentService
	engine    *gin.Engine
	http      *http.Server
}

// New creates the API server and registers all routes.
func New(
	ingest driving.IngestService,
	retrieval driving.RetrievalService,
	documents driving.DocumentService,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		ingest:    ingest,
		retrieval: retrieval,
		documents: documents,
		engine:    engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	s.engine.POST("/ingest", s.handleIngest)
	s.engine.GET("/ingest/jobs/:id", s.handleJobStatus)
	s.engine.GET("/ingest/jobs/:id/events", s.handleJobEvents)
	s.engine.DELETE("/ingest/jobs/:id", s.handleJobCancel)

	s.engine.POST("/query", s.handleQuery)

	s.engine.GET("/documents", s.handleDocumentList)
	s.engine.GET("/documents/:id", s.handleDocumentGet)
	s.engine.DELETE("/documents/:id", s.handleDocumentDelete)
}

// Handler returns the http.Handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks serving requests until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	logger.Info("HTTP API listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": "1"})
}

// writeError maps domain sentinel errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnsupportedType):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
