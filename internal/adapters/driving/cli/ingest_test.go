package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driving"
)

// mockIngestService implements driving.IngestService for command tests.
type mockIngestService struct {
	submitted driving.IngestRequest
	submitErr error
	job       *domain.IngestJob
	cancelErr error
}

func (m *mockIngestService) Submit(_ context.Context, req driving.IngestRequest) (*driving.IngestReceipt, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = req
	return &driving.IngestReceipt{JobID: "job-1", DocumentID: "doc-1", Status: domain.JobPending}, nil
}

func (m *mockIngestService) JobStatus(_ context.Context, _ string) (*domain.IngestJob, error) {
	return m.job, nil
}

func (m *mockIngestService) Cancel(_ context.Context, _ string) error {
	return m.cancelErr
}

func (m *mockIngestService) Subscribe(_ string) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent)
	close(ch)
	return ch, func() {}
}

func (m *mockIngestService) Wait(_ context.Context, _ string) (*domain.IngestJob, error) {
	return m.job, nil
}

var _ driving.IngestService = (*mockIngestService)(nil)

func setupIngestTest(mock *mockIngestService) func() {
	old := ingestService
	ingestService = mock
	return func() {
		ingestService = old
	}
}

// execute runs the root command with args and captures output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestIngestCmd_Use(t *testing.T) {
	assert.Equal(t, "ingest [url-or-path]", ingestCmd.Use)
}

func TestIngestCmd_URL(t *testing.T) {
	mock := &mockIngestService{
		job: &domain.IngestJob{
			ID:             "job-1",
			DocumentID:     "doc-1",
			Status:         domain.JobCompleted,
			ChunksTotal:    3,
			ChunksEmbedded: 3,
		},
	}
	cleanup := setupIngestTest(mock)
	defer cleanup()

	out, err := execute(t, "ingest", "https://example.com/policy.md")

	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/policy.md", mock.submitted.URL)
	assert.Empty(t, mock.submitted.Content)
	assert.Contains(t, out, "Job job-1 started")
	assert.Contains(t, out, "3/3 chunks embedded")
}

func TestIngestCmd_LocalFile(t *testing.T) {
	mock := &mockIngestService{
		job: &domain.IngestJob{ID: "job-1", Status: domain.JobCompleted},
	}
	cleanup := setupIngestTest(mock)
	defer cleanup()

	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes\n\nSome content."), 0o600))

	_, err := execute(t, "ingest", path)

	assert.NoError(t, err)
	assert.Equal(t, "notes.md", mock.submitted.Filename)
	assert.Equal(t, "# Notes\n\nSome content.", string(mock.submitted.Content))
}

func TestIngestCmd_NoWait(t *testing.T) {
	mock := &mockIngestService{}
	cleanup := setupIngestTest(mock)
	defer cleanup()
	defer func() {
		ingestNoWait = false
	}()

	out, err := execute(t, "ingest", "--no-wait", "https://example.com/doc")

	assert.NoError(t, err)
	assert.Contains(t, out, "Job job-1 started")
	assert.NotContains(t, out, "chunks embedded")
}

func TestIngestCmd_FailedJob(t *testing.T) {
	mock := &mockIngestService{
		job: &domain.IngestJob{
			ID:         "job-1",
			DocumentID: "doc-1",
			Status:     domain.JobFailed,
			Errors:     []string{"content unavailable: connection refused"},
		},
	}
	cleanup := setupIngestTest(mock)
	defer cleanup()

	out, err := execute(t, "ingest", "https://example.com/doc")

	assert.Error(t, err)
	assert.Contains(t, out, "content unavailable")
}

func TestIngestCmd_MissingFile(t *testing.T) {
	cleanup := setupIngestTest(&mockIngestService{})
	defer cleanup()

	_, err := execute(t, "ingest", filepath.Join(t.TempDir(), "absent.md"))

	assert.Error(t, err)
}

func TestIngestCmd_ServiceNotConfigured(t *testing.T) {
	old := ingestService
	ingestService = nil
	defer func() {
		ingestService = old
	}()

	_, err := execute(t, "ingest", "https://example.com/doc")

	assert.EqualError(t, err, "ingest service not configured")
}
