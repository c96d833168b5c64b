package postprocessors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

// stubProcessor appends one chunk per call and records the chunks it
// received.
type stubProcessor struct {
	name     string
	err      error
	received []domain.Chunk
}

func (s *stubProcessor) Name() string { return s.name }

func (s *stubProcessor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.received = chunks
	return append(chunks, domain.Chunk{ID: s.name, DocumentID: doc.ID}), nil
}

func TestPipeline_RunsProcessorsInOrder(t *testing.T) {
	first := &stubProcessor{name: "first"}
	second := &stubProcessor{name: "second"}
	pipeline := NewPipeline(first, second)

	chunks, err := pipeline.Process(context.Background(), &domain.Document{ID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "first", chunks[0].ID)
	assert.Equal(t, "second", chunks[1].ID)

	// The second processor saw the first processor's output.
	require.Len(t, second.received, 1)
	assert.Equal(t, "first", second.received[0].ID)
}

func TestPipeline_ProcessorErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	pipeline := NewPipeline(&stubProcessor{name: "ok"}, &stubProcessor{name: "bad", err: boom})

	_, err := pipeline.Process(context.Background(), &domain.Document{ID: "doc-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")
}

func TestPipeline_NilDocument(t *testing.T) {
	pipeline := NewPipeline(&stubProcessor{name: "only"})

	_, err := pipeline.Process(context.Background(), nil)
	assert.Error(t, err)
}

func TestPipeline_Add(t *testing.T) {
	pipeline := NewPipeline()
	assert.Equal(t, 0, pipeline.Len())

	pipeline.Add(&stubProcessor{name: "late"})
	assert.Equal(t, 1, pipeline.Len())

	chunks, err := pipeline.Process(context.Background(), &domain.Document{ID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "late", chunks[0].ID)
}
