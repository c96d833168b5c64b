package httpapi

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driving"
)

// ingestRequest accepts either a URL to fetch or inline content.
// Content arrives base64-encoded in JSON bodies, or raw via multipart.
type ingestRequest struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

type ingestResponse struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// handleIngest submits an ingestion job. Accepts a JSON body or a
// multipart upload with a "file" part.
func (s *Server) handleIngest(c *gin.Context) {
	req, err := parseIngestRequest(c)
	if err != nil {
		writeError(c, err)
		return
	}

	receipt, err := s.ingest.Submit(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, ingestResponse{
		JobID:      receipt.JobID,
		DocumentID: receipt.DocumentID,
		Status:     string(receipt.Status),
	})
}

func parseIngestRequest(c *gin.Context) (driving.IngestRequest, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return parseMultipartIngest(c)
	}

	var body ingestRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return driving.IngestRequest{}, domain.ErrInvalidInput
	}

	req := driving.IngestRequest{
		URL:         body.URL,
		Filename:    body.Filename,
		ContentType: body.ContentType,
	}
	if body.Content != "" {
		content, err := base64.StdEncoding.DecodeString(body.Content)
		if err != nil {
			return driving.IngestRequest{}, domain.ErrInvalidInput
		}
		req.Content = content
	}
	return req, nil
}

func parseMultipartIngest(c *gin.Context) (driving.IngestRequest, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return driving.IngestRequest{}, domain.ErrInvalidInput
	}

	file, err := fileHeader.Open()
	if err != nil {
		return driving.IngestRequest{}, domain.ErrInvalidInput
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return driving.IngestRequest{}, domain.ErrInvalidInput
	}

	return driving.IngestRequest{
		Filename:    fileHeader.Filename,
		Content:     content,
		ContentType: fileHeader.Header.Get("Content-Type"),
	}, nil
}

type jobResponse struct {
	ID             string   `json:"id"`
	DocumentID     string   `json:"document_id"`
	Status         string   `json:"status"`
	Progress       float64  `json:"progress"`
	ChunksTotal    int      `json:"chunks_total"`
	ChunksEmbedded int      `json:"chunks_embedded"`
	Errors         []string `json:"errors,omitempty"`
}

func (s *Server) handleJobStatus(c *gin.Context) {
	job, err := s.ingest.JobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobResponse{
		ID:             job.ID,
		DocumentID:     job.DocumentID,
		Status:         string(job.Status),
		Progress:       job.Progress,
		ChunksTotal:    job.ChunksTotal,
		ChunksEmbedded: job.ChunksEmbedded,
		Errors:         job.Errors,
	})
}

func (s *Server) handleJobCancel(c *gin.Context) {
	if err := s.ingest.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

// handleJobEvents streams job progress as server-sent events. The
// stream ends when the job finishes or the client disconnects.
func (s *Server) handleJobEvents(c *gin.Context) {
	jobID := c.Param("id")

	// An unknown job still gets a (closed) channel; report not found
	// instead of an empty stream.
	if _, err := s.ingest.JobStatus(c.Request.Context(), jobID); err != nil {
		writeError(c, err)
		return
	}

	events, unsubscribe := s.ingest.Subscribe(jobID)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	c.Stream(func(_ io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", gin.H{
				"job_id":    event.JobID,
				"status":    string(event.Status),
				"progress":  event.Progress,
				"message":   event.Message,
				"completed": event.Completed,
				"total":     event.Total,
				"errors":    event.Errors,
			})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
