package relevance

import (
	"testing"
)

func extractionCorpus() *Corpus {
	return NewCorpus(
		Tokenize("the quick brown fox"),
		Tokenize("the lazy dog"),
		Tokenize("the quick dog runs"),
	)
}

func TestExtractKeywords_FiltersShortTerms(t *testing.T) {
	keywords := ExtractKeywords("a quick fox in a box", extractionCorpus())

	for _, kw := range keywords {
		if kw.Term == "a" {
			t.Fatal("single-rune term survived the default minimum length")
		}
	}
}

func TestExtractKeywords_OrderAndTruncation(t *testing.T) {
	keywords := ExtractKeywords(
		"The quick fox is a quick animal!",
		extractionCorpus(),
		WithTopKeywords(3),
	)

	if len(keywords) != 3 {
		t.Fatalf("got %d keywords, want 3", len(keywords))
	}

	// "is" and "animal" are unseen in the corpus and tie on score; the tie
	// breaks alphabetically. "fox" appears in one document and comes next.
	want := []string{"animal", "is", "fox"}
	for i, term := range want {
		if keywords[i].Term != term {
			t.Errorf("keyword[%d] = %q (%.4f), want %q",
				i, keywords[i].Term, keywords[i].Score, term)
		}
	}

	for i := 1; i < len(keywords); i++ {
		if keywords[i].Score > keywords[i-1].Score {
			t.Errorf("keywords not sorted: %v before %v",
				keywords[i-1].Score, keywords[i].Score)
		}
	}
}

func TestExtractKeywords_UbiquitousTermScoresZero(t *testing.T) {
	keywords := ExtractKeywords(
		"the the the",
		extractionCorpus(),
	)

	if len(keywords) != 1 {
		t.Fatalf("got %d keywords, want 1", len(keywords))
	}
	if keywords[0].Term != "the" || !approx(keywords[0].Score, 0) {
		t.Errorf("keyword = %q (%v), want \"the\" with score 0",
			keywords[0].Term, keywords[0].Score)
	}
}

func TestExtractKeywords_MinTermLengthOption(t *testing.T) {
	keywords := ExtractKeywords(
		"go is ok",
		extractionCorpus(),
		WithMinTermLength(3),
	)

	if len(keywords) != 0 {
		t.Errorf("got %d keywords, want 0 after length filter", len(keywords))
	}
}

func TestRankDocuments(t *testing.T) {
	docs := []Document{
		{ID: "settings", Content: "user clicked settings button"},
		{ID: "theme", Content: "user prefers dark theme"},
		{ID: "weather", Content: "weather is sunny"},
	}

	ranked := RankDocuments(docs, "dark theme")

	if len(ranked) != 3 {
		t.Fatalf("got %d ranked documents, want 3", len(ranked))
	}
	if ranked[0].ID != "theme" {
		t.Errorf("top document = %q, want \"theme\"", ranked[0].ID)
	}
	if ranked[0].Score <= 0 {
		t.Errorf("top document score = %v, want > 0", ranked[0].Score)
	}

	// The remaining documents match nothing; the stable sort keeps their
	// input order.
	if ranked[1].ID != "settings" || ranked[2].ID != "weather" {
		t.Errorf("tail order = %q, %q; want \"settings\", \"weather\"",
			ranked[1].ID, ranked[2].ID)
	}
	if ranked[1].Score != 0 || ranked[2].Score != 0 {
		t.Errorf("unmatched documents scored %v and %v, want 0",
			ranked[1].Score, ranked[2].Score)
	}
}

func TestRankDocuments_EmptyInputs(t *testing.T) {
	if got := RankDocuments(nil, "query"); len(got) != 0 {
		t.Errorf("RankDocuments(nil) returned %d results", len(got))
	}

	ranked := RankDocuments([]Document{{ID: "a", Content: "text"}}, "")
	if len(ranked) != 1 || ranked[0].Score != 0 {
		t.Errorf("empty query should rank with zero scores, got %+v", ranked)
	}
}
