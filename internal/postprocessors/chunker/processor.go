// Package chunker provides a structure-aware text chunking processor.
// Prose is packed at paragraph and sentence boundaries under a token
// budget with a configurable overlap between consecutive chunks.
// Self-describing table rows are kept whole, and heading positions
// recorded by the normalisers propagate into each chunk's structural
// context.
package chunker

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
	"github.com/custodia-labs/corpus/internal/tokenizer"
)

// DefaultTargetTokens is the default token budget per chunk.
const DefaultTargetTokens = 400

// DefaultOverlapPercent is the default overlap between consecutive
// chunks, as a percentage of the token budget.
const DefaultOverlapPercent = 15

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor splits document content into chunks.
type Processor struct {
	targetTokens   int
	overlapPercent int
	counter        tokenizer.Counter
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithTargetTokens sets the token budget per chunk.
func WithTargetTokens(tokens int) Option {
	return func(p *Processor) {
		if tokens > 0 {
			p.targetTokens = tokens
		}
	}
}

// WithOverlapPercent sets the overlap between consecutive chunks as a
// percentage of the token budget.
func WithOverlapPercent(percent int) Option {
	return func(p *Processor) {
		if percent >= 0 && percent < 100 {
			p.overlapPercent = percent
		}
	}
}

// WithTokenCounter sets the token counter.
func WithTokenCounter(counter tokenizer.Counter) Option {
	return func(p *Processor) {
		if counter != nil {
			p.counter = counter
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		targetTokens:   DefaultTargetTokens,
		overlapPercent: DefaultOverlapPercent,
		counter:        tokenizer.NewTiktokenCounter(""),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// unit is an indivisible span of document text: one line, one
// self-describing table row, or one sentence of an oversized line.
type unit struct {
	text   string
	start  int
	end    int
	tokens int
}

// Process splits the document content into chunks. Input chunks are
// ignored; this processor creates new chunks from document content.
func (p *Processor) Process(_ context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, domain.ErrInvalidInput
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	headingAt := headingOffsets(doc)
	units := p.splitUnits(doc.Content)
	overlapTokens := p.targetTokens * p.overlapPercent / 100

	var (
		chunks    []domain.Chunk
		current   []unit
		curTokens int
		path      []domain.Heading
		sequence  int
	)

	flush := func(carryOverlap bool) {
		if len(current) == 0 {
			return
		}

		texts := make([]string, len(current))
		for i, u := range current {
			texts[i] = u.text
		}
		text := strings.Join(texts, "\n")

		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, domain.Chunk{
				ID:                uuid.New().String(),
				DocumentID:        doc.ID,
				Text:              text,
				SequenceIndex:     sequence,
				StartOffset:       current[0].start,
				EndOffset:         current[len(current)-1].end,
				StructuralContext: headingPath(path),
				TokenCount:        p.counter.CountTokens(text),
				Metadata:          make(map[string]any),
			})
			sequence++
		}

		if carryOverlap && overlapTokens > 0 {
			current, curTokens = overlapTail(current, overlapTokens)
		} else {
			current, curTokens = nil, 0
		}
	}

	for _, u := range units {
		if h, ok := headingAt[u.start]; ok {
			// A heading starts a new section. No overlap is carried
			// across the boundary.
			flush(false)
			path = pushHeading(path, h)
			current = append(current, u)
			curTokens += u.tokens
			continue
		}

		if len(current) > 0 && curTokens+u.tokens > p.targetTokens {
			flush(true)
		}
		current = append(current, u)
		curTokens += u.tokens
	}
	flush(false)

	return chunks, nil
}

// splitUnits breaks the content into packable units with byte offsets
// into the original text.
func (p *Processor) splitUnits(content string) []unit {
	var units []unit

	offset := 0
	for offset < len(content) {
		next := strings.IndexByte(content[offset:], '\n')
		end := len(content)
		if next >= 0 {
			end = offset + next
		}

		line := content[offset:end]
		if strings.TrimSpace(line) != "" {
			units = append(units, p.lineUnits(line, offset)...)
		}

		if next < 0 {
			break
		}
		offset = end + 1
	}

	return units
}

// lineUnits turns one line into units. Table rows are kept whole no
// matter their size so a row is never torn apart; oversized prose
// lines are split at sentence boundaries.
func (p *Processor) lineUnits(line string, base int) []unit {
	tokens := p.counter.CountTokens(line)
	if tokens <= p.targetTokens || isTableRow(line) {
		return []unit{{text: line, start: base, end: base + len(line), tokens: tokens}}
	}

	spans := sentenceSpans(line)
	units := make([]unit, 0, len(spans))
	for _, s := range spans {
		text := line[s.start:s.end]
		units = append(units, unit{
			text:   text,
			start:  base + s.start,
			end:    base + s.end,
			tokens: p.counter.CountTokens(text),
		})
	}
	return units
}

// isTableRow reports whether a line is a self-describing table row as
// rendered by the normalisers.
func isTableRow(line string) bool {
	return strings.Contains(line, " | ")
}

type span struct {
	start int
	end   int
}

// sentenceSpans splits text after sentence punctuation followed by
// whitespace or end of text. Decimal points ("62.5") do not end a
// sentence because no whitespace follows them.
func sentenceSpans(text string) []span {
	var spans []span

	start := 0
	i := 0
	for i < len(text) {
		c := text[i]
		if c == '.' || c == '!' || c == '?' {
			j := i + 1
			for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
				j++
			}
			if j == len(text) || j > i+1 {
				spans = append(spans, span{start, j})
				start = j
				i = j
				continue
			}
		}
		i++
	}
	if start < len(text) {
		spans = append(spans, span{start, len(text)})
	}

	return spans
}

// overlapTail returns the trailing units whose token total fits the
// overlap budget, to be carried into the next chunk.
func overlapTail(units []unit, budget int) ([]unit, int) {
	total := 0
	i := len(units)
	for i > 0 && total+units[i-1].tokens <= budget {
		total += units[i-1].tokens
		i--
	}
	if i == len(units) {
		return nil, 0
	}
	tail := make([]unit, len(units)-i)
	copy(tail, units[i:])
	return tail, total
}

// headingOffsets maps heading byte offsets recorded by the normaliser
// to their headings.
func headingOffsets(doc *domain.Document) map[int]domain.Heading {
	headings, ok := doc.Metadata[domain.MetadataHeadings].([]domain.Heading)
	if !ok {
		return nil
	}
	m := make(map[int]domain.Heading, len(headings))
	for _, h := range headings {
		m[h.Offset] = h
	}
	return m
}

// pushHeading replaces the heading path entries at or below the new
// heading's level.
func pushHeading(path []domain.Heading, h domain.Heading) []domain.Heading {
	for len(path) > 0 && path[len(path)-1].Level >= h.Level {
		path = path[:len(path)-1]
	}
	return append(path, h)
}

// headingPath renders the heading path for a chunk's structural context.
func headingPath(path []domain.Heading) string {
	if len(path) == 0 {
		return ""
	}
	parts := make([]string, len(path))
	for i, h := range path {
		parts[i] = h.Text
	}
	return strings.Join(parts, " > ")
}
