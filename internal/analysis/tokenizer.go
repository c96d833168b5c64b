// Package analysis provides the term tokenisation shared by the lexical
// and co-occurrence indexes. Queries are tokenised with exactly the same
// rules as chunk text at ingestion time, so term lookups always agree.
package analysis

import (
	"strings"
	"unicode"
)

// stopwords are dropped from both index and query terms. The list is
// deliberately small: aggressive stopword removal hurts compound-term
// queries where function words carry positional information.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "with": {},
}

// Token is a term with its position in the source token stream.
// Positions count all emitted tokens, so distances between terms are
// measured in tokens, not characters.
type Token struct {
	Term     string
	Position int
}

// Terms tokenises text into lowercase terms with stopwords removed.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Tokenize splits text into positioned terms. Letters and digits group
// into tokens; everything else separates. Terms keep interior digits
// and decimal points so numeric values like "62.5" survive intact.
func Tokenize(text string) []Token {
	var tokens []Token
	var current strings.Builder
	position := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		term := strings.Trim(current.String(), ".")
		current.Reset()
		if term == "" {
			return
		}
		if _, skip := stopwords[term]; skip {
			return
		}
		tokens = append(tokens, Token{Term: term, Position: position})
		position++
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(unicode.ToLower(r))
		case r == '.' && current.Len() > 0:
			// Keep decimal points inside numbers ("62.5").
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}

// IsStopword reports whether the lowercase term is in the stopword list.
func IsStopword(term string) bool {
	_, ok := stopwords[strings.ToLower(term)]
	return ok
}
