package relevance

import "math"

// BM25 tuning parameters.
const (
	// BM25K1 controls term-frequency saturation.
	BM25K1 = 1.5

	// BM25B controls document-length normalization.
	BM25B = 0.75
)

// TermFreq returns the raw term frequency count/docLen, or 0 for an empty
// document.
func TermFreq(term string, doc []string) float64 {
	if len(doc) == 0 {
		return 0
	}
	return float64(countTerm(term, doc)) / float64(len(doc))
}

// SmoothTermFreq returns the add-one smoothed frequency
// (count+1)/(docLen+1), which stays positive for terms absent from the
// document.
func SmoothTermFreq(term string, doc []string) float64 {
	return float64(countTerm(term, doc)+1) / float64(len(doc)+1)
}

// InverseDocFreq returns ln(N/df), or 0 when the term appears in no
// document.
func (c *Corpus) InverseDocFreq(term string) float64 {
	df := c.DocFreq(term)
	if df == 0 {
		return 0
	}
	return math.Log(float64(c.docCount) / float64(df))
}

// SmoothInverseDocFreq returns ln((N+1)/(df+1)), which is finite for unseen
// terms and zero for terms present in every document.
func (c *Corpus) SmoothInverseDocFreq(term string) float64 {
	return math.Log(float64(c.docCount+1) / float64(c.DocFreq(term)+1))
}

// TFIDF weights each distinct term of the document with smoothed TF times
// smoothed IDF against the corpus, returned as a term-to-score map.
func TFIDF(doc []string, c *Corpus) map[string]float64 {
	scores := make(map[string]float64)
	for _, term := range doc {
		if _, ok := scores[term]; ok {
			continue
		}
		scores[term] = SmoothTermFreq(term, doc) * c.SmoothInverseDocFreq(term)
	}
	return scores
}

// BM25 scores the document against the query using the corpus statistics.
// Each unique query term contributes
// idf * (tf*(k1+1)) / (tf + k1*(1-b+b*docLen/avgdl)); terms absent from the
// document contribute nothing. An empty query scores 0.
func (c *Corpus) BM25(doc, query []string) float64 {
	if len(query) == 0 {
		return 0
	}

	counts := make(map[string]int, len(doc))
	for _, term := range doc {
		counts[term]++
	}

	docLen := float64(len(doc))
	avgdl := c.AvgDocLen()
	if avgdl <= 0 {
		// Degenerate corpus: fall back to the document's own length so the
		// normalization factor is 1.
		avgdl = docLen
	}

	seen := make(map[string]struct{}, len(query))
	var score float64
	for _, term := range query {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}

		tf := float64(counts[term])
		if tf == 0 {
			continue
		}

		idf := c.SmoothInverseDocFreq(term)
		norm := BM25K1 * (1 - BM25B + BM25B*docLen/avgdl)
		score += idf * (tf * (BM25K1 + 1)) / (tf + norm)
	}

	return score
}

// CosineSimilarity computes the cosine of two sparse vectors keyed by term.
// The dot product runs over the shared keys; if either vector has zero
// norm the similarity is 0.
func CosineSimilarity(a, b map[string]float64) float64 {
	var dot float64
	for term, av := range a {
		if bv, ok := b[term]; ok {
			dot += av * bv
		}
	}

	var normA, normB float64
	for _, v := range a {
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Jaccard computes set overlap between two token slices:
// |intersection| / |union| over the distinct tokens. Two empty inputs are
// identical and score 1.
func Jaccard(a, b []string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	intersection := 0
	for term := range setA {
		if _, ok := setB[term]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func countTerm(term string, doc []string) int {
	n := 0
	for _, t := range doc {
		if t == term {
			n++
		}
	}
	return n
}
