// Package csv normalises CSV documents. The first record is treated as
// the header row and every data row is rendered as a single
// "Header: value | Header: value" line, so a row keeps its meaning
// when it later lands in a chunk without its neighbours.
package csv

import (
	"bytes"
	"context"
	stdcsv "encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles CSV documents.
type Normaliser struct{}

// New creates a new CSV normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/csv", "application/csv"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise converts a CSV document to one self-describing line per row.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	reader := stdcsv.NewReader(bytes.NewReader(raw.Content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var headers []string
	var lines []string
	rowCount := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parsing csv: %v", domain.ErrParseFailure, err)
		}

		if headers == nil {
			headers = record
			continue
		}

		parts := make([]string, 0, len(record))
		for i, value := range record {
			value = strings.TrimSpace(value)
			if i < len(headers) && strings.TrimSpace(headers[i]) != "" {
				parts = append(parts, strings.TrimSpace(headers[i])+": "+value)
			} else {
				parts = append(parts, value)
			}
		}
		lines = append(lines, strings.Join(parts, " | "))
		rowCount++
	}

	doc := domain.Document{
		ID:         uuid.New().String(),
		SourceURI:  raw.SourceURI,
		SourceType: domain.SourceTypeCSV,
		Title:      titleFromFilename(raw.SourceURI),
		Content:    strings.Join(lines, "\n"),
		Metadata:   copyMetadata(raw.Metadata),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	doc.Metadata["mime_type"] = raw.MIMEType
	doc.Metadata["format"] = "csv"
	doc.Metadata["columns"] = headers
	doc.Metadata["rows"] = rowCount

	return &driven.NormaliseResult{
		Document: doc,
	}, nil
}

// titleFromFilename derives a readable title from the URI's base name.
func titleFromFilename(uri string) string {
	filename := filepath.Base(uri)
	ext := filepath.Ext(filename)
	if ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}

// copyMetadata creates a shallow copy of metadata.
func copyMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
