package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const validNewBugJSON = `{
	"action": "new_bug",
	"explanation": "Checkout broken for all users, reproducible",
	"confidence": "high",
	"new_ticket": {
		"team": "payments",
		"title": "Checkout returns 500 for all users",
		"description": "Every checkout attempt fails with a 500 since the morning deploy.",
		"priority": "urgent"
	}
}`

func mustParse(t *testing.T, raw string) TriageDecision {
	t.Helper()
	decision, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}
	return decision
}

func assertMalformed(t *testing.T, raw, wantReason string) {
	t.Helper()
	_, err := ParseDecision(raw)
	if err == nil {
		t.Fatalf("expected ParseDecision to fail for %q", raw)
	}
	var malformedErr *MalformedResponseError
	if !errors.As(err, &malformedErr) {
		t.Fatalf("expected *MalformedResponseError, got %T: %v", err, err)
	}
	if wantReason != "" && !strings.Contains(malformedErr.Reason, wantReason) {
		t.Fatalf("expected reason containing %q, got %q", wantReason, malformedErr.Reason)
	}
}

func TestParseDecisionFenceRoundTrip(t *testing.T) {
	plain := mustParse(t, validNewBugJSON)
	fenced := mustParse(t, "```json\n"+validNewBugJSON+"\n```")
	bareFence := mustParse(t, "```\n"+validNewBugJSON+"\n```")

	if diff := cmp.Diff(plain, fenced); diff != "" {
		t.Fatalf("fenced parse differs from plain (-plain +fenced):\n%s", diff)
	}
	if diff := cmp.Diff(plain, bareFence); diff != "" {
		t.Fatalf("bare-fence parse differs from plain (-plain +fenced):\n%s", diff)
	}
}

func TestParseDecisionValidExistingTicket(t *testing.T) {
	decision := mustParse(t, `{
		"action": "existing_ticket",
		"explanation": "Same 403 on /events as PLAT-1423",
		"confidence": "medium",
		"ticket_link": "https://tracker.example.com/PLAT-1423"
	}`)
	if decision.Action != ActionExistingTicket {
		t.Fatalf("unexpected action: %s", decision.Action)
	}
	if decision.TicketLink == "" {
		t.Fatal("expected ticket link to be preserved")
	}
}

func TestParseDecisionMissingFields(t *testing.T) {
	assertMalformed(t, `{"explanation": "x", "confidence": "high"}`, "missing action")
	assertMalformed(t, `{"action": "defer", "confidence": "high"}`, "missing explanation")
	assertMalformed(t, `{"action": "defer", "explanation": "x"}`, "missing confidence")
}

func TestParseDecisionBadEnums(t *testing.T) {
	assertMalformed(t, `{"action": "escalate", "explanation": "x", "confidence": "high"}`, "unknown action")
	assertMalformed(t, `{"action": "defer", "explanation": "x", "confidence": "certain"}`, "unknown confidence")
}

func TestParseDecisionUnparseableInput(t *testing.T) {
	assertMalformed(t, "I think this is probably a bug.", "invalid JSON")
	assertMalformed(t, "", "invalid JSON")
	assertMalformed(t, "```json\nnot json\n```", "invalid JSON")
}

func TestParseDecisionPayloadPresenceInvariant(t *testing.T) {
	// ticket_link without existing_ticket
	assertMalformed(t, `{"action": "defer", "explanation": "x", "confidence": "low", "ticket_link": "https://t/X-1"}`, "ticket_link not allowed")
	// existing_ticket without ticket_link
	assertMalformed(t, `{"action": "existing_ticket", "explanation": "x", "confidence": "high"}`, "requires ticket_link")
	// new_bug without payload
	assertMalformed(t, `{"action": "new_bug", "explanation": "x", "confidence": "high"}`, "requires new_ticket")
	// payload on a non-new_bug action
	assertMalformed(t, `{"action": "not_a_bug", "explanation": "x", "confidence": "high",
		"new_ticket": {"team": "platform", "title": "t", "description": "d", "priority": "low"}}`, "not allowed")
}

func TestParseDecisionNewBugRequiresHighConfidence(t *testing.T) {
	for _, conf := range []string{"medium", "low"} {
		raw := `{"action": "new_bug", "explanation": "x", "confidence": "` + conf + `",
			"new_ticket": {"team": "platform", "title": "t", "description": "d", "priority": "high"}}`
		assertMalformed(t, raw, "requires high confidence")
	}
}

func TestParseDecisionNewBugPayloadValidation(t *testing.T) {
	assertMalformed(t, `{"action": "new_bug", "explanation": "x", "confidence": "high",
		"new_ticket": {"team": "growth", "title": "t", "description": "d", "priority": "high"}}`, "unknown team")
	assertMalformed(t, `{"action": "new_bug", "explanation": "x", "confidence": "high",
		"new_ticket": {"team": "platform", "title": "", "description": "d", "priority": "high"}}`, "requires a title")
	assertMalformed(t, `{"action": "new_bug", "explanation": "x", "confidence": "high",
		"new_ticket": {"team": "platform", "title": "t", "description": "d", "priority": "someday"}}`, "unknown priority")
}
