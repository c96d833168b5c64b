package html

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus/internal/core/domain"
)

func normalise(t *testing.T, content string) domain.Document {
	t.Helper()
	result, err := New().Normalise(context.Background(), &domain.RawDocument{
		SourceURI: "https://example.com/page.html",
		MIMEType:  "text/html",
		Content:   []byte(content),
	})
	require.NoError(t, err)
	return result.Document
}

func TestNormalise_NilInput(t *testing.T) {
	_, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNormalise_TitleAndBody(t *testing.T) {
	doc := normalise(t, `<html><head><title>Travel Policy</title></head>
		<body><p>Employees may claim mileage.</p></body></html>`)

	assert.Equal(t, "Travel Policy", doc.Title)
	assert.Equal(t, domain.SourceTypeHTML, doc.SourceType)
	assert.Contains(t, doc.Content, "Employees may claim mileage.")
	assert.Equal(t, "html", doc.Metadata["format"])
}

func TestNormalise_TitleFallsBackToFilename(t *testing.T) {
	doc := normalise(t, `<html><body><p>content</p></body></html>`)
	assert.Equal(t, "page", doc.Title)
}

func TestNormalise_StripsBoilerplate(t *testing.T) {
	doc := normalise(t, `<html><body>
		<nav><a href="/">Home</a><a href="/about">About</a></nav>
		<header>Site banner</header>
		<aside>Related links</aside>
		<script>trackVisit();</script>
		<p>The actual article text.</p>
		<footer>Copyright 2026</footer>
	</body></html>`)

	assert.Contains(t, doc.Content, "The actual article text.")
	assert.NotContains(t, doc.Content, "Home")
	assert.NotContains(t, doc.Content, "Site banner")
	assert.NotContains(t, doc.Content, "Related links")
	assert.NotContains(t, doc.Content, "trackVisit")
	assert.NotContains(t, doc.Content, "Copyright")
}

func TestNormalise_RecordsHeadings(t *testing.T) {
	doc := normalise(t, `<html><body>
		<h1>Expenses</h1>
		<p>Overview text.</p>
		<h2>Mileage</h2>
		<p>Rates below.</p>
	</body></html>`)

	headings, ok := doc.Metadata[domain.MetadataHeadings].([]domain.Heading)
	require.True(t, ok)
	require.Len(t, headings, 2)

	assert.Equal(t, domain.Heading{Level: 1, Text: "Expenses", Offset: headings[0].Offset}, headings[0])
	assert.Equal(t, 2, headings[1].Level)
	assert.Equal(t, "Mileage", headings[1].Text)

	// Offsets point at the heading lines inside the content.
	assert.Equal(t, "Expenses", doc.Content[headings[0].Offset:headings[0].Offset+len("Expenses")])
	assert.Equal(t, "Mileage", doc.Content[headings[1].Offset:headings[1].Offset+len("Mileage")])
}

func TestNormalise_TableRowsAreSelfDescribing(t *testing.T) {
	doc := normalise(t, `<html><body>
		<h2>Mileage Reimbursement Rates</h2>
		<table>
			<tr><th>Province</th><th>Rate</th></tr>
			<tr><td>Ontario</td><td>62.5 cents/km</td></tr>
			<tr><td>Quebec</td><td>59 cents/km</td></tr>
		</table>
	</body></html>`)

	assert.Contains(t, doc.Content, "Province: Ontario | Rate: 62.5 cents/km")
	assert.Contains(t, doc.Content, "Province: Quebec | Rate: 59 cents/km")
	// The header row itself is not emitted as data.
	assert.NotContains(t, doc.Content, "Province: Province")
}

func TestNormalise_TableCaption(t *testing.T) {
	doc := normalise(t, `<html><body><table>
		<caption>Provincial Rates</caption>
		<tr><th>Province</th><th>Rate</th></tr>
		<tr><td>Ontario</td><td>62.5</td></tr>
	</table></body></html>`)

	assert.Contains(t, doc.Content, "Provincial Rates")
	assert.Contains(t, doc.Content, "Province: Ontario | Rate: 62.5")
}

func TestNormalise_TableWithoutHeaderRow(t *testing.T) {
	doc := normalise(t, `<html><body><table>
		<tr><td>Ontario</td><td>62.5</td></tr>
	</table></body></html>`)

	assert.Contains(t, doc.Content, "Ontario | 62.5")
}

func TestNormalise_DecodesEntities(t *testing.T) {
	doc := normalise(t, `<html><body><p>Profit &amp; Loss &mdash; Q1</p></body></html>`)
	assert.Contains(t, doc.Content, "Profit & Loss")
}

func TestSupportedMIMETypes(t *testing.T) {
	n := New()
	assert.Contains(t, n.SupportedMIMETypes(), "text/html")
	assert.Equal(t, 50, n.Priority())
}
