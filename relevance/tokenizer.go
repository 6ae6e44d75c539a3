// Package relevance implements the textual relevance toolkit behind memory
// search: tokenization, TF-IDF weighting, BM25 ranking, cosine and Jaccard
// similarity, keyword extraction and document ranking.
package relevance

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it into word tokens. Word characters
// are letters, digits and underscore; any other character terminates the
// current token, so punctuation and symbols act as separators instead of
// hiding inside tokens. Empty tokens are dropped.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
