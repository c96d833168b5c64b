package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driving"
)

// mockIngestService implements driving.IngestService for handler tests.
type mockIngestService struct {
	submitted driving.IngestRequest
	submitErr error
	job       *domain.IngestJob
	jobErr    error
	cancelErr error
	events    []domain.ProgressEvent
}

func (m *mockIngestService) Submit(_ context.Context, req driving.IngestRequest) (*driving.IngestReceipt, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = req
	return &driving.IngestReceipt{JobID: "job-1", DocumentID: "doc-1", Status: domain.JobPending}, nil
}

func (m *mockIngestService) JobStatus(_ context.Context, _ string) (*domain.IngestJob, error) {
	if m.jobErr != nil {
		return nil, m.jobErr
	}
	return m.job, nil
}

func (m *mockIngestService) Cancel(_ context.Context, _ string) error {
	return m.cancelErr
}

func (m *mockIngestService) Subscribe(_ string) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent, len(m.events))
	for _, event := range m.events {
		ch <- event
	}
	close(ch)
	return ch, func() {}
}

func (m *mockIngestService) Wait(_ context.Context, _ string) (*domain.IngestJob, error) {
	return m.job, m.jobErr
}

// mockRetrievalService implements driving.RetrievalService.
type mockRetrievalService struct {
	answer *domain.AnswerContext
	err    error
}

func (m *mockRetrievalService) Retrieve(_ context.Context, _ string, _ domain.RetrieveOptions) (*domain.RetrievalResult, error) {
	return nil, m.err
}

func (m *mockRetrievalService) Answer(_ context.Context, _ string, _ domain.RetrieveOptions) (*domain.AnswerContext, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

// mockDocumentService implements driving.DocumentService.
type mockDocumentService struct {
	docs      []domain.Document
	deleteErr error
	getErr    error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.docs, nil
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for i := range m.docs {
		if m.docs[i].ID == id {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) Delete(_ context.Context, _ string) error {
	return m.deleteErr
}

var (
	_ driving.IngestService    = (*mockIngestService)(nil)
	_ driving.RetrievalService = (*mockRetrievalService)(nil)
	_ driving.DocumentService  = (*mockDocumentService)(nil)
)

type testServer struct {
	ingest    *mockIngestService
	retrieval *mockRetrievalService
	documents *mockDocumentService
	server    *Server
}

func newTestServer() *testServer {
	ts := &testServer{
		ingest:    &mockIngestService{},
		retrieval: &mockRetrievalService{},
		documents: &mockDocumentService{},
	}
	ts.server = New(ts.ingest, ts.retrieval, ts.documents)
	return ts
}

// closeNotifyRecorder adds the http.CloseNotifier method gin's
// Context.Stream requires, which httptest.ResponseRecorder lacks.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
}

func (c *closeNotifyRecorder) CloseNotify() <-chan bool { return make(chan bool) }

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(&closeNotifyRecorder{rec}, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestIngest_SubmitURL(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/ingest", jsonBody{"url": "https://example.com/policy.md"})

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp["job_id"])
	assert.Equal(t, "doc-1", resp["document_id"])
	assert.Equal(t, "https://example.com/policy.md", ts.ingest.submitted.URL)
}

func TestIngest_SubmitBase64Content(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/ingest", jsonBody{
		"filename": "notes.md",
		"content":  "IyBOb3Rlcw==", // "# Notes"
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "notes.md", ts.ingest.submitted.Filename)
	assert.Equal(t, "# Notes", string(ts.ingest.submitted.Content))
}

func TestIngest_SubmitMultipart(t *testing.T) {
	ts := newTestServer()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "upload.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text body"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(&closeNotifyRecorder{rec}, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "upload.txt", ts.ingest.submitted.Filename)
	assert.Equal(t, "plain text body", string(ts.ingest.submitted.Content))
}

func TestIngest_InvalidBody(t *testing.T) {
	ts := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(&closeNotifyRecorder{rec}, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_SubmitValidationError(t *testing.T) {
	ts := newTestServer()
	ts.ingest.submitErr = fmt.Errorf("%w: url and content are mutually exclusive", domain.ErrInvalidInput)

	rec := ts.do(t, http.MethodPost, "/ingest", jsonBody{"url": "https://example.com", "content": "aGk="})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "mutually exclusive")
}

func TestJobStatus(t *testing.T) {
	ts := newTestServer()
	ts.ingest.job = &domain.IngestJob{
		ID:             "job-1",
		DocumentID:     "doc-1",
		Status:         domain.JobCompleted,
		Progress:       1.0,
		ChunksTotal:    4,
		ChunksEmbedded: 4,
	}

	rec := ts.do(t, http.MethodGet, "/ingest/jobs/job-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp["status"])
	assert.InDelta(t, 1.0, resp["progress"], 1e-9)
}

func TestJobStatus_Unknown(t *testing.T) {
	ts := newTestServer()
	ts.ingest.jobErr = domain.ErrNotFound

	rec := ts.do(t, http.MethodGet, "/ingest/jobs/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobCancel(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodDelete, "/ingest/jobs/job-1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cancelling")
}

func TestJobEvents_StreamsUntilClose(t *testing.T) {
	ts := newTestServer()
	ts.ingest.job = &domain.IngestJob{ID: "job-1", Status: domain.JobProcessing}
	ts.ingest.events = []domain.ProgressEvent{
		{JobID: "job-1", Status: domain.JobProcessing, Progress: 0.5, Message: "Embedding chunks"},
		{JobID: "job-1", Status: domain.JobCompleted, Progress: 1.0, Message: "Done"},
	}

	rec := ts.do(t, http.MethodGet, "/ingest/jobs/job-1/events", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Embedding chunks")
	assert.Contains(t, body, "completed")
}

func TestJobEvents_UnknownJob(t *testing.T) {
	ts := newTestServer()
	ts.ingest.jobErr = domain.ErrNotFound

	rec := ts.do(t, http.MethodGet, "/ingest/jobs/nope/events", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuery_ReturnsAnswer(t *testing.T) {
	ts := newTestServer()
	ts.retrieval.answer = &domain.AnswerContext{
		Found:      true,
		Context:    "Kilometric Rates\nProvince: Ontario | Rate: 62.5 cents/km",
		Confidence: 0.82,
		TokenCount: 14,
		Sources: []domain.Source{{
			ChunkID:          "chunk-1",
			DocumentID:       "doc-1",
			DisplayReference: "Travel Rates, Kilometric Rates #0",
			Snippet:          "Province: Ontario | Rate: 62.5 cents/km",
			RelevanceScore:   0.91,
		}},
		StrategyStates: map[domain.Strategy]domain.StrategyState{
			domain.StrategyVector:       domain.StrategyOK,
			domain.StrategyLexical:      domain.StrategyOK,
			domain.StrategyCooccurrence: domain.StrategyOK,
		},
	}

	rec := ts.do(t, http.MethodPost, "/query", jsonBody{"query": "Ontario kilometric rate", "k": 5})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Found)
	assert.Contains(t, resp.Context, "62.5")
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "Travel Rates, Kilometric Rates #0", resp.Sources[0].DisplayReference)
	assert.Equal(t, "ok", resp.StrategyStates["vector"])
}

func TestQuery_NotFoundSignal(t *testing.T) {
	ts := newTestServer()
	ts.retrieval.answer = &domain.AnswerContext{
		Found:   false,
		Sources: []domain.Source{},
		StrategyStates: map[domain.Strategy]domain.StrategyState{
			domain.StrategyVector: domain.StrategyEmpty,
		},
	}

	rec := ts.do(t, http.MethodPost, "/query", jsonBody{"query": "anything"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Found)
	assert.Empty(t, resp.Context)
	assert.Zero(t, resp.Confidence)
}

func TestQuery_MissingQuery(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/query", jsonBody{"k": 5})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_EmbeddingUnavailable(t *testing.T) {
	ts := newTestServer()
	ts.retrieval.err = domain.ErrEmbeddingUnavailable

	rec := ts.do(t, http.MethodPost, "/query", jsonBody{"query": "anything"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDocuments_List(t *testing.T) {
	ts := newTestServer()
	ts.documents.docs = []domain.Document{
		{ID: "doc-1", Title: "Travel Rates", Status: domain.DocumentReady},
		{ID: "doc-2", Title: "Expenses Policy", Status: domain.DocumentPartial},
	}

	rec := ts.do(t, http.MethodGet, "/documents", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 2, resp["total"], 1e-9)
}

func TestDocuments_Get(t *testing.T) {
	ts := newTestServer()
	ts.documents.docs = []domain.Document{{ID: "doc-1", Title: "Travel Rates"}}

	rec := ts.do(t, http.MethodGet, "/documents/doc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Travel Rates")

	rec = ts.do(t, http.MethodGet, "/documents/doc-9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocuments_Delete(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodDelete, "/documents/doc-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	ts.documents.deleteErr = domain.ErrNotFound
	rec = ts.do(t, http.MethodDelete, "/documents/doc-9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// jsonBody is shorthand for request bodies.
type jsonBody = map[string]any
