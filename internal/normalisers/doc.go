// Package normalisers contains format-specific document normalisers
// and the registry that dispatches raw documents to them by MIME type.
//
// Each normaliser converts one format (HTML, Markdown, PDF, CSV, DOCX,
// plain text) into a Document whose Content is plain text. Structural
// annotations — heading hierarchy, table captions — are recorded in
// Document.Metadata so the chunker can keep chunks self-describing.
package normalisers
