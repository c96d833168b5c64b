package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
	"github.com/custodia-labs/corpus/internal/core/ports/driving"
	"github.com/custodia-labs/corpus/internal/logger"
)

// Ensure DocumentManager implements the interface.
var _ driving.DocumentService = (*DocumentManager)(nil)

// DocumentManager manages ingested documents and keeps the in-memory
// indexes consistent with the store.
type DocumentManager struct {
	docStore driven.DocumentStore
	vector   driven.VectorIndex
	lexical  driven.LexicalIndex
	cooccur  driven.CooccurrenceIndex
}

// NewDocumentManager creates the document service.
func NewDocumentManager(
	docStore driven.DocumentStore,
	vector driven.VectorIndex,
	lexical driven.LexicalIndex,
	cooccur driven.CooccurrenceIndex,
) *DocumentManager {
	return &DocumentManager{
		docStore: docStore,
		vector:   vector,
		lexical:  lexical,
		cooccur:  cooccur,
	}
}

// List returns all documents.
func (m *DocumentManager) List(ctx context.Context) ([]domain.Document, error) {
	return m.docStore.ListDocuments(ctx)
}

// Get returns one document by ID.
func (m *DocumentManager) Get(ctx context.Context, id string) (*domain.Document, error) {
	return m.docStore.GetDocument(ctx, id)
}

// Delete removes a document, cascading to its chunks and to all three
// retrieval indexes.
func (m *DocumentManager) Delete(ctx context.Context, id string) error {
	if _, err := m.docStore.GetDocument(ctx, id); err != nil {
		return err
	}

	chunks, err := m.docStore.GetChunks(ctx, id)
	if err != nil {
		return fmt.Errorf("get chunks: %w", err)
	}

	var errs []error
	for _, chunk := range chunks {
		if err := m.vector.Delete(ctx, chunk.ID); err != nil {
			errs = append(errs, fmt.Errorf("vector delete %s: %w", chunk.ID, err))
		}
		if err := m.lexical.Delete(ctx, chunk.ID); err != nil {
			errs = append(errs, fmt.Errorf("lexical delete %s: %w", chunk.ID, err))
		}
	}
	if err := m.cooccur.DeleteDocument(ctx, id); err != nil {
		errs = append(errs, fmt.Errorf("cooccurrence delete: %w", err))
	}

	if err := m.docStore.DeleteDocument(ctx, id); err != nil {
		errs = append(errs, fmt.Errorf("store delete: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info("Deleted document %s with %d chunks", id, len(chunks))
	return nil
}

// RebuildIndexes reconstructs the in-memory indexes from the store.
// Called at process start so retrieval state survives restarts.
func (m *DocumentManager) RebuildIndexes(ctx context.Context) error {
	docs, err := m.docStore.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	rebuilt := 0
	for _, doc := range docs {
		if doc.Status == domain.DocumentFailed {
			continue
		}

		chunks, err := m.docStore.GetChunks(ctx, doc.ID)
		if err != nil {
			logger.Warn("Rebuild: get chunks for %s: %v", doc.ID, err)
			continue
		}

		for i := range chunks {
			if err := m.lexical.Index(ctx, chunks[i]); err != nil {
				logger.Warn("Rebuild: lexical index %s: %v", chunks[i].ID, err)
			}
			if chunks[i].Embedded && len(chunks[i].Embedding) > 0 {
				if err := m.vector.Upsert(ctx, chunks[i].ID, chunks[i].Embedding); err != nil {
					logger.Warn("Rebuild: vector index %s: %v", chunks[i].ID, err)
				}
			}
		}
		if err := m.cooccur.IndexDocument(ctx, doc.ID, chunks); err != nil {
			logger.Warn("Rebuild: cooccurrence index %s: %v", doc.ID, err)
		}

		rebuilt += len(chunks)
	}

	logger.Info("Rebuilt indexes: %d documents, %d chunks", len(docs), rebuilt)
	return nil
}
