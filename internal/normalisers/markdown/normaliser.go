// Package markdown normalises Markdown documents. Formatting is
// stripped, but the heading hierarchy is kept as content lines and
// recorded in document metadata for the chunker.
package markdown

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise converts a markdown document to plain text with heading
// annotations.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	rawContent := string(raw.Content)

	title := extractMarkdownTitle(rawContent, raw.SourceURI)
	content, headings := stripMarkdown(rawContent)

	doc := domain.Document{
		ID:         uuid.New().String(),
		SourceURI:  raw.SourceURI,
		SourceType: domain.SourceTypeMarkdown,
		Title:      title,
		Content:    content,
		Metadata:   copyMetadata(raw.Metadata),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	doc.Metadata["mime_type"] = raw.MIMEType
	doc.Metadata["format"] = "markdown"
	if len(headings) > 0 {
		doc.Metadata[domain.MetadataHeadings] = headings
	}

	return &driven.NormaliseResult{
		Document: doc,
	}, nil
}

// extractMarkdownTitle extracts a title from the first H1 heading or
// falls back to the filename.
func extractMarkdownTitle(content, uri string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}

	filename := filepath.Base(uri)
	ext := filepath.Ext(filename)
	if ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}

// Pre-compiled regular expressions for markdown stripping.
var (
	codeBlock    = regexp.MustCompile("(?s)```.*?```")
	inlineCode   = regexp.MustCompile("`[^`]+`")
	images       = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headingLine  = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	blockquote   = regexp.MustCompile(`(?m)^>\s*`)
	hrLine       = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	listMarkers  = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedList = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	emphasis     = regexp.MustCompile(`[*_]{1,3}([^*_]+)[*_]{1,3}`)
	tableDivider = regexp.MustCompile(`^\s*\|?[\s:|-]+\|?\s*$`)
)

// stripMarkdown removes markdown formatting, returning plain text with
// heading annotations. Pipe-table rows are rendered with their column
// headers so each row stands alone.
func stripMarkdown(content string) (string, []domain.Heading) {
	content = codeBlock.ReplaceAllString(content, "")
	content = images.ReplaceAllString(content, "")
	content = links.ReplaceAllString(content, "$1")
	content = inlineCode.ReplaceAllString(content, "")
	content = blockquote.ReplaceAllString(content, "")
	content = hrLine.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "")
	content = numberedList.ReplaceAllString(content, "")
	content = emphasis.ReplaceAllString(content, "$1")

	var (
		builder      strings.Builder
		headings     []domain.Heading
		tableHeaders []string
		blankPending bool
	)

	emit := func(line string) {
		if blankPending && builder.Len() > 0 {
			builder.WriteByte('\n')
		}
		blankPending = false
		builder.WriteString(line)
		builder.WriteByte('\n')
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blankPending = true
			tableHeaders = nil
			continue
		}

		if m := headingLine.FindStringSubmatch(trimmed); m != nil {
			text := strings.TrimSpace(m[2])
			if text == "" {
				continue
			}
			if blankPending && builder.Len() > 0 {
				builder.WriteByte('\n')
				blankPending = false
			}
			headings = append(headings, domain.Heading{
				Level:  len(m[1]),
				Text:   text,
				Offset: builder.Len(),
			})
			builder.WriteString(text)
			builder.WriteByte('\n')
			tableHeaders = nil
			continue
		}

		if strings.HasPrefix(trimmed, "|") || strings.Count(trimmed, "|") >= 2 {
			if tableDivider.MatchString(trimmed) {
				continue
			}
			cells := splitTableRow(trimmed)
			if len(cells) > 0 {
				if tableHeaders == nil {
					tableHeaders = cells
					continue
				}
				emit(renderRow(tableHeaders, cells))
				continue
			}
		}

		emit(trimmed)
	}

	return strings.TrimRight(builder.String(), "\n"), headings
}

// splitTableRow splits a markdown pipe-table row into trimmed cells.
func splitTableRow(line string) []string {
	line = strings.Trim(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, 0, len(parts))
	for _, part := range parts {
		cells = append(cells, strings.TrimSpace(part))
	}
	return cells
}

// renderRow prefixes each cell with its column header.
func renderRow(headers, cells []string) string {
	parts := make([]string, 0, len(cells))
	for i, cell := range cells {
		if i < len(headers) && headers[i] != "" {
			parts = append(parts, headers[i]+": "+cell)
		} else {
			parts = append(parts, cell)
		}
	}
	return strings.Join(parts, " | ")
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
