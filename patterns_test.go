package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScanMessageEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t"} {
		scan := ScanMessage(input)
		if scan.Suggestion != "" || len(scan.ContextRefs) != 0 || len(scan.TicketIDs) != 0 {
			t.Fatalf("expected empty scan for %q, got %+v", input, scan)
		}
	}
}

func TestScanMessageCategoryPriority(t *testing.T) {
	// Both an existing-ticket phrase and a not-a-bug phrase: priority says
	// the existing-ticket signal wins.
	scan := ScanMessage("This is a known issue, not a bug")
	if scan.Suggestion != PatternExistingTicket {
		t.Fatalf("expected existing-ticket signal to win, got %s", scan.Suggestion)
	}
}

func TestScanMessageCategories(t *testing.T) {
	tests := []struct {
		text string
		want PatternCategory
	}{
		{"this is already tracked in the backlog", PatternExistingTicket},
		{"duplicate of the login outage", PatternExistingTicket},
		{"I filed a ticket for this yesterday", PatternNewTicket},
		{"that's a feature request, not broken behavior", PatternNotABug},
		{"works as intended per the docs", PatternNotABug},
		{"need more info before we can look at this", PatternNeedsInfo},
		{"this is resolved as of the last deploy", PatternResolved},
		{"checkout is throwing 500s for everyone", ""},
	}
	for _, tc := range tests {
		scan := ScanMessage(tc.text)
		if scan.Suggestion != tc.want {
			t.Fatalf("ScanMessage(%q).Suggestion = %q, want %q", tc.text, scan.Suggestion, tc.want)
		}
	}
}

func TestScanMessageCaseInsensitive(t *testing.T) {
	scan := ScanMessage("KNOWN ISSUE — see the pinned message")
	if scan.Suggestion != PatternExistingTicket {
		t.Fatalf("expected case-insensitive match, got %q", scan.Suggestion)
	}
}

func TestScanMessageTicketIDs(t *testing.T) {
	scan := ScanMessage("same as PLAT-1423, maybe also pay-88 and PLAT-1423 again")
	want := []string{"PLAT-1423", "PAY-88"}
	if diff := cmp.Diff(want, scan.TicketIDs); diff != "" {
		t.Fatalf("unexpected ticket IDs (-want +got):\n%s", diff)
	}
}

func TestScanMessageContextRefsMultiLabel(t *testing.T) {
	scan := ScanMessage("This again — same issue as mentioned above, any update?")
	if len(scan.ContextRefs) < 3 {
		t.Fatalf("expected multiple context refs, got %v", scan.ContextRefs)
	}
	names := make(map[string]bool)
	for _, ref := range scan.ContextRefs {
		names[ref] = true
	}
	for _, want := range []string{"same_issue", "prior_thread", "followup", "bare_demonstrative"} {
		if !names[want] {
			t.Fatalf("expected context ref %q in %v", want, scan.ContextRefs)
		}
	}
}
