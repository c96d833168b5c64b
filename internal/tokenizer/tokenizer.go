// Package tokenizer counts tokens for chunk budgets and context
// assembly. It wraps tiktoken with a lazy-initialised encoding and a
// character-based estimate as fallback, since tiktoken may need to
// download encoding data on first use.
package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/corpus/internal/logger"
)

// DefaultEncoding is the tiktoken encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens in text.
type Counter interface {
	// CountTokens returns the token count for text.
	CountTokens(text string) int
}

// TiktokenCounter counts tokens using a tiktoken encoding, falling back
// to the estimator when the encoding cannot be initialised.
type TiktokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTiktokenCounter creates a counter for the given encoding name.
// An empty name selects DefaultEncoding.
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenCounter{encoding: encoding}
}

func (c *TiktokenCounter) init() error {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			c.initErr = err
			return
		}
		c.enc = enc
	})
	return c.initErr
}

// CountTokens returns the token count for text. When the encoding is
// unavailable it falls back to Estimate and logs once per process.
func (c *TiktokenCounter) CountTokens(text string) int {
	if err := c.init(); err != nil {
		logger.Warn("tiktoken encoding %s unavailable, using estimate: %v", c.encoding, err)
		return Estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateCounter counts tokens with the character heuristic only.
// Used in tests and when no encoding data should be fetched.
type EstimateCounter struct{}

// CountTokens returns the estimated token count for text.
func (EstimateCounter) CountTokens(text string) int {
	return Estimate(text)
}

// Estimate approximates the token count as one token per four
// characters, with a floor of one for non-empty text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
