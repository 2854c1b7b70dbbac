package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MalformedResponseError marks oracle output that could not be turned into
// a valid TriageDecision. Batch callers count it as an incorrect case and
// keep going; interactive callers surface it.
type MalformedResponseError struct {
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	raw := e.Raw
	if len(raw) > 256 {
		raw = raw[:256] + fmt.Sprintf("... [truncated, total_length=%d]", len(e.Raw))
	}
	return fmt.Sprintf("malformed oracle response: %s (response: %s)", e.Reason, raw)
}

func malformed(raw, format string, args ...any) error {
	return &MalformedResponseError{Reason: fmt.Sprintf(format, args...), Raw: raw}
}

// ParseDecision converts raw oracle text into a TriageDecision. It strips a
// surrounding fenced code block (with or without a language tag), decodes
// the JSON, and enforces the decision invariants: required fields, closed
// enums, payload presence matching the action, and high confidence on
// new_bug.
func ParseDecision(raw string) (TriageDecision, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var d TriageDecision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return TriageDecision{}, malformed(raw, "invalid JSON: %v", err)
	}

	if d.Action == "" {
		return TriageDecision{}, malformed(raw, "missing action")
	}
	if !d.Action.Valid() {
		return TriageDecision{}, malformed(raw, "unknown action %q", d.Action)
	}
	if strings.TrimSpace(d.Explanation) == "" {
		return TriageDecision{}, malformed(raw, "missing explanation")
	}
	if d.Confidence == "" {
		return TriageDecision{}, malformed(raw, "missing confidence")
	}
	if !d.Confidence.Valid() {
		return TriageDecision{}, malformed(raw, "unknown confidence %q", d.Confidence)
	}

	switch d.Action {
	case ActionExistingTicket:
		if strings.TrimSpace(d.TicketLink) == "" {
			return TriageDecision{}, malformed(raw, "existing_ticket requires ticket_link")
		}
		if d.NewTicket != nil {
			return TriageDecision{}, malformed(raw, "new_ticket payload not allowed for existing_ticket")
		}
	case ActionNewBug:
		if d.NewTicket == nil {
			return TriageDecision{}, malformed(raw, "new_bug requires new_ticket payload")
		}
		if d.TicketLink != "" {
			return TriageDecision{}, malformed(raw, "ticket_link not allowed for new_bug")
		}
		if d.Confidence != ConfidenceHigh {
			return TriageDecision{}, malformed(raw, "new_bug requires high confidence, got %q", d.Confidence)
		}
		if !d.NewTicket.Team.Valid() {
			return TriageDecision{}, malformed(raw, "new_ticket has unknown team %q", d.NewTicket.Team)
		}
		if strings.TrimSpace(d.NewTicket.Title) == "" {
			return TriageDecision{}, malformed(raw, "new_ticket requires a title")
		}
		if strings.TrimSpace(d.NewTicket.Description) == "" {
			return TriageDecision{}, malformed(raw, "new_ticket requires a description")
		}
		if !d.NewTicket.Priority.Valid() {
			return TriageDecision{}, malformed(raw, "new_ticket has unknown priority %q", d.NewTicket.Priority)
		}
	default:
		if d.TicketLink != "" {
			return TriageDecision{}, malformed(raw, "ticket_link not allowed for %s", d.Action)
		}
		if d.NewTicket != nil {
			return TriageDecision{}, malformed(raw, "new_ticket payload not allowed for %s", d.Action)
		}
	}

	return d, nil
}
