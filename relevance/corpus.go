package relevance

// Corpus is a document-frequency index over tokenized documents. It carries
// the statistics the IDF variants and BM25 need: document count, per-term
// document frequency and mean document length.
type Corpus struct {
	docCount int
	totalLen int
	docFreq  map[string]int
}

// NewCorpus builds a corpus from already-tokenized documents.
func NewCorpus(docs ...[]string) *Corpus {
	c := &Corpus{docFreq: make(map[string]int)}
	for _, doc := range docs {
		c.Add(doc)
	}
	return c
}

// Add indexes one tokenized document. Each distinct term counts once toward
// its document frequency no matter how often it repeats inside the document.
func (c *Corpus) Add(doc []string) {
	c.docCount++
	c.totalLen += len(doc)

	seen := make(map[string]struct{}, len(doc))
	for _, term := range doc {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		c.docFreq[term]++
	}
}

// Len returns the number of indexed documents.
func (c *Corpus) Len() int {
	return c.docCount
}

// DocFreq returns how many indexed documents contain the term.
func (c *Corpus) DocFreq(term string) int {
	return c.docFreq[term]
}

// AvgDocLen returns the mean document length in tokens, or 0 for an empty
// corpus.
func (c *Corpus) AvgDocLen() float64 {
	if c.docCount == 0 {
		return 0
	}
	return float64(c.totalLen) / float64(c.docCount)
}
