package main

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractKeywordsBasics(t *testing.T) {
	got := ExtractKeywords("Hey <@U123> the dashboard is broken")
	want := []string{"dashboard", "broken"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected keywords (-want +got):\n%s", diff)
	}
}

func TestExtractKeywordsProperties(t *testing.T) {
	messages := []string{
		"The export report page at <https://app.example.com/reports|reports> keeps timing out for everyone on the team",
		"payments webhook retries failing since this morning, seeing 500s https://status.example.com",
		"Can someone look at the iOS push notification delays? Multiple customers reporting it",
	}
	for _, msg := range messages {
		keywords := ExtractKeywords(msg)
		if len(keywords) > 8 {
			t.Fatalf("expected at most 8 keywords, got %d for %q", len(keywords), msg)
		}
		for _, kw := range keywords {
			if kw != strings.ToLower(kw) {
				t.Fatalf("keyword %q not lowercase", kw)
			}
			if len(kw) <= 2 {
				t.Fatalf("keyword %q too short", kw)
			}
			if stopWords[kw] {
				t.Fatalf("keyword %q is a stop-word", kw)
			}
			if strings.Contains(kw, "http") {
				t.Fatalf("keyword %q looks like URL residue", kw)
			}
		}
	}
}

func TestExtractKeywordsStopWordsOnly(t *testing.T) {
	if got := ExtractKeywords("the is a an and"); len(got) != 0 {
		t.Fatalf("expected empty keywords, got %v", got)
	}
	if got := ExtractKeywords(""); len(got) != 0 {
		t.Fatalf("expected empty keywords for empty input, got %v", got)
	}
	if got := ExtractKeywords("   \n\t "); len(got) != 0 {
		t.Fatalf("expected empty keywords for whitespace input, got %v", got)
	}
}

func TestExtractKeywordsTruncatesToEight(t *testing.T) {
	msg := "alpha bravo charlie delta echofox golfclub hotelzulu indiana juliet kilogram"
	got := ExtractKeywords(msg)
	if len(got) != 8 {
		t.Fatalf("expected exactly 8 keywords, got %d: %v", len(got), got)
	}
	if got[0] != "alpha" || got[7] != "indiana" {
		t.Fatalf("expected original order preserved, got %v", got)
	}
}

func TestSearchQueryJoinsWithSpaces(t *testing.T) {
	got := SearchQuery("Dashboard is broken for everyone")
	if got != "dashboard broken everyone" {
		t.Fatalf("unexpected search query: %q", got)
	}
	if SearchQuery("the and for") != "" {
		t.Fatal("expected empty query for stop-words-only message")
	}
}

func TestExtractKeywordsStripsMentionsAndLinks(t *testing.T) {
	msg := "<@U999> see <#C123|support> thread <https://example.com/x?y=1> about checkout errors"
	got := ExtractKeywords(msg)
	for _, kw := range got {
		if kw == "u999" || kw == "c123" {
			t.Fatalf("markup leaked into keywords: %v", got)
		}
	}
	found := false
	for _, kw := range got {
		if kw == "checkout" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'checkout' in keywords, got %v", got)
	}
}
