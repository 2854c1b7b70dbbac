package main

import (
	"regexp"
	"strings"
)

// PatternCategory names one lexical signal class. Categories are checked in
// a fixed priority order and the first hit becomes the single-label
// suggestion; context references are advisory and multi-label.
type PatternCategory string

const (
	PatternExistingTicket PatternCategory = "existing_ticket_signal"
	PatternNewTicket      PatternCategory = "new_ticket_created"
	PatternNotABug        PatternCategory = "not_a_bug_signal"
	PatternNeedsInfo      PatternCategory = "needs_info_signal"
	PatternResolved       PatternCategory = "resolved_signal"
)

// categoryPatterns is priority-ordered: existing-ticket beats new-ticket
// beats not-a-bug beats needs-info; resolved is checked last.
var categoryPatterns = []struct {
	Category PatternCategory
	Regex    *regexp.Regexp
}{
	{PatternExistingTicket, regexp.MustCompile(`(?i)\b(already (tracked|reported|filed|known)|known issue|duplicate of|same as [A-Za-z]+-\d+|tracked in)\b`)},
	{PatternNewTicket, regexp.MustCompile(`(?i)\b(filed|created|opened) (a |the )?(ticket|issue|bug)\b`)},
	{PatternNotABug, regexp.MustCompile(`(?i)\b(feature request|works as (intended|designed|expected)|not a bug|how (do|can) (i|we)|typo|wrong wording|copy (change|fix))\b`)},
	{PatternNeedsInfo, regexp.MustCompile(`(?i)\b(need(s)? more (info|information|details)|can('t|not) reproduce|steps to reproduce\?|which (account|browser|version)\b.*\?)`)},
	{PatternResolved, regexp.MustCompile(`(?i)\b(resolved|fixed now|working (again|now)|no longer (happening|an issue)|false alarm)\b`)},
}

// contextRefPatterns flag references to prior context the message alone
// cannot resolve. All matches are returned together.
var contextRefPatterns = []struct {
	Name  string
	Regex *regexp.Regexp
}{
	{"same_issue", regexp.MustCompile(`(?i)\b(same (issue|problem|thing|error)|this again|happening again)\b`)},
	{"prior_thread", regexp.MustCompile(`(?i)\b(as (mentioned|discussed|reported) (above|earlier|before)|see (above|thread)|per (the|my) (thread|message))\b`)},
	{"bare_demonstrative", regexp.MustCompile(`(?i)^\s*(this|that|it)\b`)},
	{"followup", regexp.MustCompile(`(?i)\b(any update|still (broken|failing|happening)|bump(ing)?)\b`)},
}

var ticketIDRegex = regexp.MustCompile(`\b[A-Za-z]+-\d+\b`)

// LexicalScan is the result of matching a message against the fixed
// pattern groups. Suggestion is empty when no category matched.
type LexicalScan struct {
	Suggestion  PatternCategory
	ContextRefs []string
	TicketIDs   []string
}

// ScanMessage classifies free text against the fixed pattern groups.
// Matching is case-insensitive; blank input yields an empty scan.
func ScanMessage(text string) LexicalScan {
	var scan LexicalScan
	if strings.TrimSpace(text) == "" {
		return scan
	}

	for _, p := range categoryPatterns {
		if p.Regex.MatchString(text) {
			scan.Suggestion = p.Category
			break
		}
	}

	for _, p := range contextRefPatterns {
		if p.Regex.MatchString(text) {
			scan.ContextRefs = append(scan.ContextRefs, p.Name)
		}
	}

	seen := make(map[string]bool)
	for _, id := range ticketIDRegex.FindAllString(text, -1) {
		id = strings.ToUpper(id)
		if !seen[id] {
			seen[id] = true
			scan.TicketIDs = append(scan.TicketIDs, id)
		}
	}
	return scan
}
