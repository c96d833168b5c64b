package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Ontario | 62.5 cents/km")

	require.Len(t, tokens, 4)
	assert.Equal(t, "ontario", tokens[0].Term)
	assert.Equal(t, "62.5", tokens[1].Term)
	assert.Equal(t, "cents", tokens[2].Term)
	assert.Equal(t, "km", tokens[3].Term)
}

func TestTokenizePositionsAreSequential(t *testing.T) {
	tokens := Tokenize("alpha beta gamma")

	require.Len(t, tokens, 3)
	for i, tok := range tokens {
		assert.Equal(t, i, tok.Position)
	}
}

func TestTokenizeDropsStopwords(t *testing.T) {
	tokens := Tokenize("the rate for Ontario is 62.5")

	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	assert.Equal(t, []string{"rate", "ontario", "62.5"}, terms)
}

func TestTokenizeStopwordsDoNotConsumePositions(t *testing.T) {
	// "rate" and "ontario" are adjacent once "the" and "for" are gone.
	tokens := Tokenize("rate for the Ontario")

	require.Len(t, tokens, 2)
	assert.Equal(t, 0, tokens[0].Position)
	assert.Equal(t, 1, tokens[1].Position)
}

func TestTokenizeLowercases(t *testing.T) {
	tokens := Tokenize("ONTARIO Ontario ontario")

	require.Len(t, tokens, 3)
	for _, tok := range tokens {
		assert.Equal(t, "ontario", tok.Term)
	}
}

func TestTokenizeTrimsDanglingDots(t *testing.T) {
	tokens := Tokenize("End of sentence. Next")

	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	assert.Equal(t, []string{"end", "sentence", "next"}, terms)
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"hello", "world"}, Terms("Hello, World!"))
	assert.Empty(t, Terms(""))
	assert.Empty(t, Terms("   \t\n"))
}

func TestIsStopword(t *testing.T) {
	assert.True(t, IsStopword("the"))
	assert.True(t, IsStopword("The"))
	assert.False(t, IsStopword("ontario"))
}
