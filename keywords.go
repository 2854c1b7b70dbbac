package main

import (
	"regexp"
	"strings"
)

const maxKeywords = 8

var (
	mentionRegex    = regexp.MustCompile(`<@[A-Za-z0-9]+>`)
	bracketedLink   = regexp.MustCompile(`<https?://[^>|]+(\|[^>]*)?>`)
	bareURLRegex    = regexp.MustCompile(`https?://\S+`)
	nonWordRegex    = regexp.MustCompile(`[^\w-]+`)
	channelRefRegex = regexp.MustCompile(`<#[A-Za-z0-9]+(\|[^>]*)?>`)
)

// stopWords are common English function words dropped from search queries.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "any": true, "can": true,
	"had": true, "her": true, "was": true, "one": true, "our": true,
	"out": true, "has": true, "him": true, "his": true, "how": true,
	"its": true, "may": true, "new": true, "now": true, "old": true,
	"see": true, "two": true, "who": true, "why": true, "did": true,
	"get": true, "got": true, "let": true, "say": true, "she": true,
	"too": true, "use": true, "that": true, "this": true, "with": true,
	"have": true, "from": true, "they": true, "been": true, "were": true,
	"said": true, "each": true, "which": true, "their": true, "will": true,
	"would": true, "there": true, "what": true, "about": true, "when": true,
	"into": true, "them": true, "then": true, "some": true, "could": true,
	"than": true, "other": true, "after": true, "also": true, "just": true,
	"should": true, "because": true, "these": true, "those": true,
	"only": true, "over": true, "very": true, "still": true, "being": true,
	"does": true, "doing": true, "having": true, "here": true, "where": true,
	"your": true, "ours": true, "mine": true, "such": true, "both": true,
	"more": true, "most": true, "same": true, "like": true, "while": true,
	"again": true, "once": true, "under": true, "anyone": true,
	"someone": true, "something": true, "anything": true, "getting": true,
	"seems": true, "seem": true, "please": true, "thanks": true, "hey": true,
}

// ExtractKeywords reduces a message to a bounded ordered list of salient
// terms: strip mention/link markup, lowercase, drop stop-words and tokens
// of length <= 2, keep original order, cap at maxKeywords.
func ExtractKeywords(message string) []string {
	text := mentionRegex.ReplaceAllString(message, " ")
	text = channelRefRegex.ReplaceAllString(text, " ")
	text = bracketedLink.ReplaceAllString(text, " ")
	text = bareURLRegex.ReplaceAllString(text, " ")
	text = nonWordRegex.ReplaceAllString(text, " ")
	text = strings.ToLower(text)

	var keywords []string
	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, "-_")
		if len(token) <= 2 || stopWords[token] {
			continue
		}
		keywords = append(keywords, token)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// SearchQuery is the joined-string form of ExtractKeywords, used as the
// tracker full-text query. Empty when the message has no usable terms.
func SearchQuery(message string) string {
	return strings.Join(ExtractKeywords(message), " ")
}
