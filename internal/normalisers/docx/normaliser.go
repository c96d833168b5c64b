// Package docx normalises DOCX documents by walking word/document.xml
// inside the ZIP container. Paragraph styles Heading1..Heading6 are
// recorded as heading positions, and tables are rendered one row per
// line in the same "Header: value | Header: value" shape the CSV and
// HTML normalisers produce.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser
}

// Normalise converts a DOCX document to plain text with heading positions.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	reader, err := zip.NewReader(bytes.NewReader(raw.Content), int64(len(raw.Content)))
	if err != nil {
		return nil, fmt.Errorf("%w: opening docx archive: %v", domain.ErrParseFailure, err)
	}

	content, headings, err := extractDocumentText(reader)
	if err != nil {
		return nil, err
	}

	doc := domain.Document{
		ID:         uuid.New().String(),
		SourceURI:  raw.SourceURI,
		SourceType: domain.SourceTypeDOCX,
		Title:      extractTitle(reader, raw.SourceURI),
		Content:    content,
		Metadata:   copyMetadata(raw.Metadata),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	doc.Metadata["mime_type"] = raw.MIMEType
	doc.Metadata["format"] = "docx"
	if len(headings) > 0 {
		doc.Metadata[domain.MetadataHeadings] = headings
	}

	return &driven.NormaliseResult{
		Document: doc,
	}, nil
}

// extractDocumentText locates word/document.xml and parses its body.
func extractDocumentText(reader *zip.Reader) (string, []domain.Heading, error) {
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", nil, fmt.Errorf("%w: reading document.xml: %v", domain.ErrParseFailure, err)
		}

		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", nil, fmt.Errorf("%w: reading document.xml: %v", domain.ErrParseFailure, err)
		}

		return parseDocumentXML(content)
	}
	return "", nil, fmt.Errorf("%w: docx archive has no word/document.xml", domain.ErrParseFailure)
}

type paragraph struct {
	Props struct {
		Style struct {
			Val string `xml:"val,attr"`
		} `xml:"pStyle"`
	} `xml:"pPr"`
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

type table struct {
	Rows []tableRow `xml:"tr"`
}

type tableRow struct {
	Cells []tableCell `xml:"tc"`
}

type tableCell struct {
	Paragraphs []paragraph `xml:"p"`
}

// parseDocumentXML walks the body token by token so paragraphs and
// tables come out in document order. Paragraphs inside table cells are
// consumed by the table decode and never seen twice.
func parseDocumentXML(content []byte) (string, []domain.Heading, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))

	var (
		builder  strings.Builder
		headings []domain.Heading
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("%w: parsing document.xml: %v", domain.ErrParseFailure, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "p":
			var para paragraph
			if err := decoder.DecodeElement(&para, &start); err != nil {
				return "", nil, fmt.Errorf("%w: parsing document.xml: %v", domain.ErrParseFailure, err)
			}
			writeParagraph(&builder, &headings, para)
		case "tbl":
			var tbl table
			if err := decoder.DecodeElement(&tbl, &start); err != nil {
				return "", nil, fmt.Errorf("%w: parsing document.xml: %v", domain.ErrParseFailure, err)
			}
			writeTable(&builder, tbl)
		}
	}

	return strings.TrimSpace(builder.String()), headings, nil
}

// writeParagraph appends one paragraph line, recording a heading
// position when the paragraph carries a Heading style. The offset
// points at the paragraph's first byte in the assembled content.
func writeParagraph(builder *strings.Builder, headings *[]domain.Heading, para paragraph) {
	text := paragraphText(para)
	if text == "" {
		return
	}

	if level := headingLevel(para.Props.Style.Val); level > 0 {
		*headings = append(*headings, domain.Heading{
			Level:  level,
			Text:   text,
			Offset: builder.Len(),
		})
	}

	builder.WriteString(text)
	builder.WriteString("\n")
}

// writeTable renders the first row as headers and each data row as a
// self-describing "Header: value" line, matching the CSV normaliser.
func writeTable(builder *strings.Builder, tbl table) {
	if len(tbl.Rows) == 0 {
		return
	}

	headers := make([]string, 0, len(tbl.Rows[0].Cells))
	for _, cell := range tbl.Rows[0].Cells {
		headers = append(headers, cellText(cell))
	}

	if len(tbl.Rows) == 1 {
		builder.WriteString(strings.Join(headers, " | "))
		builder.WriteString("\n")
		return
	}

	for _, row := range tbl.Rows[1:] {
		parts := make([]string, 0, len(row.Cells))
		for i, cell := range row.Cells {
			value := cellText(cell)
			if i < len(headers) && headers[i] != "" {
				parts = append(parts, headers[i]+": "+value)
			} else {
				parts = append(parts, value)
			}
		}
		builder.WriteString(strings.Join(parts, " | "))
		builder.WriteString("\n")
	}
}

// paragraphText joins the text runs of a paragraph.
func paragraphText(para paragraph) string {
	var builder strings.Builder
	for _, run := range para.Runs {
		for _, text := range run.Text {
			builder.WriteString(text.Content)
		}
	}
	return strings.TrimSpace(builder.String())
}

// cellText joins a table cell's paragraphs with single spaces.
func cellText(cell tableCell) string {
	parts := make([]string, 0, len(cell.Paragraphs))
	for _, para := range cell.Paragraphs {
		if text := paragraphText(para); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// headingLevel maps a paragraph style to a heading level. Word names
// its built-in styles Heading1 through Heading9; Title maps to level 1
// and anything deeper than 6 is clamped.
func headingLevel(style string) int {
	if style == "Title" {
		return 1
	}
	digits, found := strings.CutPrefix(style, "Heading")
	if !found {
		return 0
	}
	level, err := strconv.Atoi(digits)
	if err != nil || level < 1 {
		return 0
	}
	if level > 6 {
		level = 6
	}
	return level
}

// coreXML represents the structure of docProps/core.xml.
type coreXML struct {
	Title string `xml:"title"`
}

// extractTitle reads the title from docProps/core.xml or falls back to
// the filename.
func extractTitle(reader *zip.Reader, uri string) string {
	for _, file := range reader.File {
		if file.Name != "docProps/core.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			break
		}

		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			break
		}

		var core coreXML
		if err := xml.Unmarshal(content, &core); err == nil && core.Title != "" {
			return strings.TrimSpace(core.Title)
		}
		break
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
