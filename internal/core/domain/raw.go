package domain

// RawDocument represents opaque bytes before normalisation.
// It is the Content Loader's output: either a URL fetch or an upload.
type RawDocument struct {
	// SourceURI is the original location (URL or upload filename).
	SourceURI string

	// MIMEType is the declared or sniffed content type
	// (e.g., "text/html", "application/pdf").
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata contains loader-specific key-value pairs.
	Metadata map[string]any
}
