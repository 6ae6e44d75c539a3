package relevance

import (
	"sort"
	"unicode/utf8"
)

// Defaults for keyword extraction.
const (
	DefaultMinTermLength = 2
	DefaultTopKeywords   = 10
)

// Keyword pairs an extracted term with its TF-IDF weight.
type Keyword struct {
	Term  string
	Score float64
}

// KeywordOption configures ExtractKeywords.
type KeywordOption func(*keywordConfig)

type keywordConfig struct {
	minTermLength int
	topN          int
}

// WithMinTermLength sets the minimum token length, in runes, kept during
// keyword extraction.
func WithMinTermLength(n int) KeywordOption {
	return func(c *keywordConfig) {
		c.minTermLength = n
	}
}

// WithTopKeywords sets how many keywords ExtractKeywords returns.
func WithTopKeywords(n int) KeywordOption {
	return func(c *keywordConfig) {
		c.topN = n
	}
}

// ExtractKeywords tokenizes the text, drops tokens shorter than the minimum
// length, weights the remainder with TF-IDF against the corpus, and returns
// the top keywords by descending score. Equal scores order alphabetically
// so extraction is deterministic.
func ExtractKeywords(text string, c *Corpus, opts ...KeywordOption) []Keyword {
	cfg := keywordConfig{
		minTermLength: DefaultMinTermLength,
		topN:          DefaultTopKeywords,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var doc []string
	for _, term := range Tokenize(text) {
		if utf8.RuneCountInString(term) < cfg.minTermLength {
			continue
		}
		doc = append(doc, term)
	}

	scores := TFIDF(doc, c)
	keywords := make([]Keyword, 0, len(scores))
	for term, score := range scores {
		keywords = append(keywords, Keyword{Term: term, Score: score})
	}

	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Score != keywords[j].Score {
			return keywords[i].Score > keywords[j].Score
		}
		return keywords[i].Term < keywords[j].Term
	})

	if cfg.topN > 0 && len(keywords) > cfg.topN {
		keywords = keywords[:cfg.topN]
	}

	return keywords
}

// Document is a unit of rankable content.
type Document struct {
	ID      string
	Content string
}

// RankedDocument pairs a document with its BM25 score against a query.
type RankedDocument struct {
	Document

	// Score is the document's BM25 relevance to the query. Higher is more
	// relevant.
	Score float64
}

// RankDocuments tokenizes the query and every document, builds the corpus
// from the documents themselves, and returns them sorted by descending BM25
// score. The sort is stable: equal scores preserve input order.
func RankDocuments(docs []Document, query string) []RankedDocument {
	queryTerms := Tokenize(query)

	tokenized := make([][]string, len(docs))
	for i, doc := range docs {
		tokenized[i] = Tokenize(doc.Content)
	}
	corpus := NewCorpus(tokenized...)

	ranked := make([]RankedDocument, len(docs))
	for i, doc := range docs {
		ranked[i] = RankedDocument{
			Document: doc,
			Score:    corpus.BM25(tokenized[i], queryTerms),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked
}
