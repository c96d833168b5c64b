// Package html normalises HTML documents. Boilerplate regions (nav,
// header, footer, aside, script, style) are stripped, tables are
// rendered as self-describing rows and the heading hierarchy is
// recorded in document metadata.
package html

import (
	"context"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise converts an HTML document to plain text. Headings are kept
// as content lines and recorded with offsets in metadata; table rows
// become "Header: value | Header: value" lines so each row stays
// meaningful on its own.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	rawContent := string(raw.Content)

	title := extractHTMLTitle(rawContent, raw.SourceURI)
	content, headings := extractText(rawContent)

	doc := domain.Document{
		ID:         uuid.New().String(),
		SourceURI:  raw.SourceURI,
		SourceType: domain.SourceTypeHTML,
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
	doc.Metadata["format"] = "html"
	if len(headings) > 0 {
		doc.Metadata[domain.MetadataHeadings] = headings
	}

	return &driven.NormaliseResult{
		Document: doc,
	}, nil
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	titleTag     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptTag    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag     = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag  = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag      = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag       = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	navTag       = regexp.MustCompile(`(?is)<nav[^>]*>.*?</nav>`)
	headerTag    = regexp.MustCompile(`(?is)<header[^>]*>.*?</header>`)
	footerTag    = regexp.MustCompile(`(?is)<footer[^>]*>.*?</footer>`)
	asideTag     = regexp.MustCompile(`(?is)<aside[^>]*>.*?</aside>`)
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)

	tableTag   = regexp.MustCompile(`(?is)<table[^>]*>.*?</table>`)
	captionTag = regexp.MustCompile(`(?is)<caption[^>]*>(.*?)</caption>`)
	rowTag     = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	cellTag    = regexp.MustCompile(`(?is)<t[hd][^>]*>(.*?)</t[hd]>`)
	headerCell = regexp.MustCompile(`(?is)<th[^>]*>`)

	headingTag = regexp.MustCompile(`(?is)<h([1-6])[^>]*>(.*?)</h[1-6]>`)

	blockElements     = regexp.MustCompile(`(?i)</(p|div|br|hr|li|tr|blockquote|pre|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|li|tr|blockquote|pre|section|article)[^>]*>`)
	brTags            = regexp.MustCompile(`(?i)<br\s*/?>`)
	hrTags            = regexp.MustCompile(`(?i)<hr\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t]+`)
)

// Heading lines are tagged with sentinels during stripping so their
// offsets in the final text can be recorded.
const headingSentinel = "\x00H"

// extractHTMLTitle extracts a title from the HTML content or falls back to filename.
func extractHTMLTitle(content, uri string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) > 1 {
		title := strings.TrimSpace(html.UnescapeString(matches[1]))
		if title != "" {
			return title
		}
	}
	return titleFromFilename(uri)
}

// extractText converts HTML to plain text, returning the text and the
// heading annotations found in it.
func extractText(content string) (string, []domain.Heading) {
	// Drop non-content and boilerplate regions entirely.
	for _, re := range []*regexp.Regexp{
		scriptTag, styleTag, noscriptTag, headTag, svgTag,
		navTag, headerTag, footerTag, asideTag, htmlComments,
	} {
		content = re.ReplaceAllString(content, "")
	}

	// Render tables before generic tag stripping.
	content = tableTag.ReplaceAllStringFunc(content, renderTable)

	// Tag heading text so offsets survive the strip.
	content = headingTag.ReplaceAllString(content, "\n"+headingSentinel+"$1\x00$2\n")

	content = openBlockElements.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n")
	content = brTags.ReplaceAllString(content, "\n")
	content = hrTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	var (
		builder  strings.Builder
		headings []domain.Heading
	)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, headingSentinel) {
			rest := line[len(headingSentinel):]
			sep := strings.IndexByte(rest, '\x00')
			if sep > 0 {
				level, err := strconv.Atoi(rest[:sep])
				text := strings.TrimSpace(rest[sep+1:])
				if err == nil && text != "" {
					headings = append(headings, domain.Heading{
						Level:  level,
						Text:   text,
						Offset: builder.Len(),
					})
					line = text
				} else {
					line = text
				}
			}
			if line == "" {
				continue
			}
		}

		builder.WriteString(line)
		builder.WriteByte('\n')
	}

	return strings.TrimRight(builder.String(), "\n"), headings
}

// renderTable converts a <table> block into one line per row, each
// cell prefixed with its column header.
func renderTable(table string) string {
	caption := ""
	if m := captionTag.FindStringSubmatch(table); len(m) > 1 {
		caption = strings.TrimSpace(html.UnescapeString(allTags.ReplaceAllString(m[1], "")))
	}

	rows := rowTag.FindAllStringSubmatch(table, -1)
	if len(rows) == 0 {
		return "\n"
	}

	var headers []string
	var lines []string
	if caption != "" {
		lines = append(lines, caption)
	}

	for _, row := range rows {
		cells := cellTag.FindAllStringSubmatch(row[1], -1)
		if len(cells) == 0 {
			continue
		}

		values := make([]string, 0, len(cells))
		for _, cell := range cells {
			text := strings.TrimSpace(html.UnescapeString(allTags.ReplaceAllString(cell[1], "")))
			values = append(values, text)
		}

		// A header-cell row defines the column names.
		if headers == nil && headerCell.MatchString(row[1]) {
			headers = values
			continue
		}

		parts := make([]string, 0, len(values))
		for i, value := range values {
			if headers != nil && i < len(headers) && headers[i] != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", headers[i], value))
			} else {
				parts = append(parts, value)
			}
		}
		lines = append(lines, strings.Join(parts, " | "))
	}

	return "\n" + strings.Join(lines, "\n") + "\n"
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
