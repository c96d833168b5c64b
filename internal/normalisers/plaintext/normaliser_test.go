package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

func TestNormalise_NilInput(t *testing.T) {
	_, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNormalise_CleansWhitespace(t *testing.T) {
	result, err := New().Normalise(context.Background(), &domain.RawDocument{
		SourceURI: "file:///notes/meeting_notes.txt",
		MIMEType:  "text/plain",
		Content:   []byte("First line\r\nSecond line\n\n\n\nThird line\n"),
	})
	require.NoError(t, err)

	doc := result.Document
	assert.Equal(t, "First line\nSecond line\n\nThird line", doc.Content)
	assert.Equal(t, "meeting notes", doc.Title)
	assert.Equal(t, domain.SourceTypeText, doc.SourceType)
	assert.Equal(t, "plaintext", doc.Metadata["format"])
}

func TestNormalise_IsFallback(t *testing.T) {
	n := New()
	assert.Contains(t, n.SupportedMIMETypes(), "text/plain")
	assert.Contains(t, n.SupportedMIMETypes(), "application/octet-stream")
	assert.Less(t, n.Priority(), 10)
}
