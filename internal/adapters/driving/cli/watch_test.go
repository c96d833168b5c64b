package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

func TestShouldIngestEvent(t *testing.T) {
	dir := t.TempDir()

	visible := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(visible, []byte("# Notes"), 0o600))

	hidden := filepath.Join(dir, ".draft.md")
	require.NoError(t, os.WriteFile(hidden, []byte("wip"), 0o600))

	unsupported := filepath.Join(dir, "archive.zip")
	require.NoError(t, os.WriteFile(unsupported, []byte("zip"), 0o600))

	subdir := filepath.Join(dir, "nested.md")
	require.NoError(t, os.Mkdir(subdir, 0o755))

	tests := []struct {
		name     string
		event    fsnotify.Event
		expected bool
	}{
		{
			name:     "created markdown file",
			event:    fsnotify.Event{Name: visible, Op: fsnotify.Create},
			expected: true,
		},
		{
			name:     "written markdown file",
			event:    fsnotify.Event{Name: visible, Op: fsnotify.Write},
			expected: true,
		},
		{
			name:     "chmod is ignored",
			event:    fsnotify.Event{Name: visible, Op: fsnotify.Chmod},
			expected: false,
		},
		{
			name:     "remove is ignored",
			event:    fsnotify.Event{Name: visible, Op: fsnotify.Remove},
			expected: false,
		},
		{
			name:     "hidden file skipped",
			event:    fsnotify.Event{Name: hidden, Op: fsnotify.Create},
			expected: false,
		},
		{
			name:     "unsupported extension skipped",
			event:    fsnotify.Event{Name: unsupported, Op: fsnotify.Create},
			expected: false,
		},
		{
			name:     "directory skipped",
			event:    fsnotify.Event{Name: subdir, Op: fsnotify.Create},
			expected: false,
		},
		{
			name:     "vanished file skipped",
			event:    fsnotify.Event{Name: filepath.Join(dir, "gone.md"), Op: fsnotify.Create},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shouldIngestEvent(tt.event))
		})
	}
}

func TestIngestFile(t *testing.T) {
	mock := &mockIngestService{
		job: &domain.IngestJob{ID: "job-1", Status: domain.JobCompleted},
	}

	path := filepath.Join(t.TempDir(), "policy.md")
	require.NoError(t, os.WriteFile(path, []byte("# Policy\n\nBody."), 0o600))

	err := ingestFile(context.Background(), mock, path)

	assert.NoError(t, err)
	assert.Equal(t, "policy.md", mock.submitted.Filename)
	assert.Equal(t, "# Policy\n\nBody.", string(mock.submitted.Content))
}

func TestIngestFile_JobErrorsSurface(t *testing.T) {
	mock := &mockIngestService{
		job: &domain.IngestJob{
			ID:     "job-1",
			Status: domain.JobFailed,
			Errors: []string{"parse failure: content too short"},
		},
	}

	path := filepath.Join(t.TempDir(), "tiny.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	err := ingestFile(context.Background(), mock, path)

	assert.EqualError(t, err, "parse failure: content too short")
}

func TestWatchCmd_RejectsNonDirectory(t *testing.T) {
	cleanup := setupIngestTest(&mockIngestService{})
	defer cleanup()

	path := filepath.Join(t.TempDir(), "file.md")
	require.NoError(t, os.WriteFile(path, []byte("body"), 0o600))

	_, err := execute(t, "watch", path)

	assert.EqualError(t, err, "watch target must be a directory")
}
