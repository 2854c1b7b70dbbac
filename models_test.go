package main

import "testing"

func TestParseActionClosedSet(t *testing.T) {
	for _, a := range allActions {
		got, err := ParseAction(string(a))
		if err != nil || got != a {
			t.Fatalf("ParseAction(%q) = %v, %v", a, got, err)
		}
	}
	if _, err := ParseAction("escalate"); err == nil {
		t.Fatal("expected error for unknown action")
	}
	if _, err := ParseAction(""); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestTrackerLevelMapping(t *testing.T) {
	tests := []struct {
		priority TicketPriority
		level    int
	}{
		{PriorityUrgent, 1},
		{PriorityHigh, 2},
		{PriorityMedium, 3},
		{PriorityLow, 4},
	}
	for _, tc := range tests {
		if got := tc.priority.TrackerLevel(); got != tc.level {
			t.Fatalf("%s.TrackerLevel() = %d, want %d", tc.priority, got, tc.level)
		}
	}
}

func TestMatchResultApplicable(t *testing.T) {
	if !MatchYes.Applicable() || !MatchNo.Applicable() {
		t.Fatal("yes/no must be applicable")
	}
	if MatchNA.Applicable() {
		t.Fatal("na must not be applicable")
	}
}

func TestExpectedOutcomeLabeled(t *testing.T) {
	if (ExpectedOutcome{}).Labeled() {
		t.Fatal("empty outcome should be unlabeled")
	}
	if !(ExpectedOutcome{Action: ActionDefer}).Labeled() {
		t.Fatal("outcome with action should be labeled")
	}
}
