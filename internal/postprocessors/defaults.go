package postprocessors

import (
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
	"github.com/custodia-labs/corpus/internal/postprocessors/chunker"
)

// NewDefaultRegistry returns a registry with every built-in processor
// registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("chunker", buildChunker)
	return r
}

// buildChunker creates the chunking processor. Config keys:
//   - target_tokens (int): token budget per chunk
//   - overlap_percent (int): overlap between consecutive chunks as a
//     percentage of the budget
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option
	if tokens := intSetting(cfg, "target_tokens"); tokens > 0 {
		opts = append(opts, chunker.WithTargetTokens(tokens))
	}
	if percent := intSetting(cfg, "overlap_percent"); percent > 0 {
		opts = append(opts, chunker.WithOverlapPercent(percent))
	}
	return chunker.New(opts...), nil
}

// intSetting reads an integer setting, tolerating the numeric types
// TOML and JSON decoding produce.
func intSetting(cfg map[string]any, key string) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
