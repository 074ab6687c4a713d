package e2e

import (
	"strings"
	"testing"
)

func TestBuildCorpus_Size(t *testing.T) {
	c := BuildCorpus(45)
	if c.TotalDocs != 45 || len(c.Documents) != 45 {
		t.Errorf("expected 45 documents, got %d/%d", c.TotalDocs, len(c.Documents))
	}
	if c.TotalQueries != len(topics) {
		t.Errorf("expected %d queries, got %d", len(topics), c.TotalQueries)
	}
}

func TestBuildCorpus_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for _, d := range BuildCorpus(60).Documents {
		if seen[d.ID] {
			t.Errorf("duplicate id %q", d.ID)
		}
		seen[d.ID] = true
	}
}

func TestBuildCorpus_ExpectedDocsContainQueryPhrase(t *testing.T) {
	c := BuildCorpus(len(topics) * 2)
	docByID := make(map[string]SupportDocument)
	for _, d := range c.Documents {
		docByID[d.ID] = d
	}
	for _, tc := range c.TestCases {
		if len(tc.ExpectedIDs) != 2 {
			t.Errorf("%q: expected 2 docs, got %v", tc.Query, tc.ExpectedIDs)
		}
		for _, id := range tc.ExpectedIDs {
			doc, ok := docByID[id]
			if !ok {
				t.Errorf("expected doc %q not in corpus", id)
				continue
			}
			if !containsPhrase(doc, tc.Query) {
				t.Errorf("doc %q does not contain query phrase %q", id, tc.Query)
			}
		}
	}
}

func TestBuildCorpus_SmallCorpusSkipsMissingTopics(t *testing.T) {
	c := BuildCorpus(3)
	if c.TotalQueries != 3 {
		t.Errorf("expected 3 queries for 3 docs, got %d", c.TotalQueries)
	}
}

func TestSupportDocument_Text(t *testing.T) {
	d := SupportDocument{Title: "Refunds", Content: "Money back."}
	if got := d.Text(); !strings.HasPrefix(got, "Refunds\n\n") || !strings.HasSuffix(got, "Money back.") {
		t.Errorf("Text() = %q", got)
	}
}

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		doc     SupportDocument
		phrase  string
		contain bool
	}{
		{SupportDocument{Title: "Gift cards", Content: "redeemed at checkout"}, "checkout", true},
		{SupportDocument{Title: "Gift cards", Content: "redeemed at checkout"}, "refund", false},
		{SupportDocument{Title: "Student discount", Content: "half price"}, "Student discount", true},
	}
	for i, tt := range tests {
		if got := containsPhrase(tt.doc, tt.phrase); got != tt.contain {
			t.Errorf("test %d: containsPhrase(%q) = %v, want %v", i, tt.phrase, got, tt.contain)
		}
	}
}
