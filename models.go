package main

import (
	"fmt"
	"time"
)

// Action is the triage outcome assigned to a message. Exactly one action per
// decision; the set is closed so that adding an action is a compile-visible
// change across the parser, the executor, and the statistics code.
type Action string

const (
	ActionExistingTicket Action = "existing_ticket"
	ActionNewBug         Action = "new_bug"
	ActionNotABug        Action = "not_a_bug"
	ActionNeedsInfo      Action = "needs_info"
	ActionDefer          Action = "defer"
)

var allActions = []Action{ActionExistingTicket, ActionNewBug, ActionNotABug, ActionNeedsInfo, ActionDefer}

func (a Action) Valid() bool {
	for _, known := range allActions {
		if a == known {
			return true
		}
	}
	return false
}

func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q (valid: existing_ticket, new_bug, not_a_bug, needs_info, defer)", s)
	}
	return a, nil
}

// Confidence is the decision's self-reported certainty. It gates side
// effects (new_bug requires high) and feeds calibration analysis.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func (c Confidence) Valid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

func ParseConfidence(s string) (Confidence, error) {
	c := Confidence(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown confidence %q (valid: high, medium, low)", s)
	}
	return c, nil
}

// Team is the owning team a new bug is routed to.
type Team string

const (
	TeamPlatform Team = "platform"
	TeamPayments Team = "payments"
	TeamMobile   Team = "mobile"
	TeamData     Team = "data"
	TeamSecurity Team = "security"
	TeamSupport  Team = "support"
)

var allTeams = []Team{TeamPlatform, TeamPayments, TeamMobile, TeamData, TeamSecurity, TeamSupport}

func (t Team) Valid() bool {
	for _, known := range allTeams {
		if t == known {
			return true
		}
	}
	return false
}

func ParseTeam(s string) (Team, error) {
	t := Team(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown team %q", s)
	}
	return t, nil
}

// teamRoutingGuide is the routing description embedded in the decision
// prompt. Ordered so prompt rendering is deterministic.
var teamRoutingGuide = []struct {
	Team  Team
	Guide string
}{
	{TeamPlatform, "web app, APIs, auth/login, permissions, page errors (403/500), dashboards"},
	{TeamPayments, "billing, invoices, subscriptions, charges, refunds, payment methods"},
	{TeamMobile, "iOS/Android apps, push notifications, app crashes, app store builds"},
	{TeamData, "reports, exports, analytics numbers, data pipelines, stale or missing data"},
	{TeamSecurity, "suspicious access, vulnerabilities, token/secret exposure, abuse"},
	{TeamSupport, "copy/content defects, help articles, account administration requests"},
}

// TicketPriority is the priority attached to a created issue.
type TicketPriority string

const (
	PriorityUrgent TicketPriority = "urgent"
	PriorityHigh   TicketPriority = "high"
	PriorityMedium TicketPriority = "medium"
	PriorityLow    TicketPriority = "low"
)

func (p TicketPriority) Valid() bool {
	return p == PriorityUrgent || p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// TrackerLevel maps the priority to the tracker's numeric scale (1 = urgent).
func (p TicketPriority) TrackerLevel() int {
	switch p {
	case PriorityUrgent:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	default:
		return 4
	}
}

// PolicyVersion selects which decision-policy prompt is used. Both versions
// share the same request/response contract; only the guidance text differs.
type PolicyVersion string

const (
	PolicyV1 PolicyVersion = "v1"
	PolicyV2 PolicyVersion = "v2"
)

func (v PolicyVersion) Valid() bool {
	return v == PolicyV1 || v == PolicyV2
}

// SourceKind records where an evaluation case came from. It never affects
// scoring.
type SourceKind string

const (
	SourceObserved  SourceKind = "observed"
	SourceSynthetic SourceKind = "synthetic"
)

// CandidateIssue is one pre-fetched (or mocked) tracker search result.
type CandidateIssue struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Status     string `json:"status,omitempty"`
	Team       Team   `json:"team,omitempty"`
	URL        string `json:"url,omitempty"`
}

// ExpectedOutcome is the human label on a case. A zero Action means the
// case is unlabeled and is excluded from accuracy scoring.
type ExpectedOutcome struct {
	Action     Action     `json:"action,omitempty"`
	Team       Team       `json:"team,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

func (e ExpectedOutcome) Labeled() bool { return e.Action != "" }

// TriageCase is one unit of evaluation input.
//
// CandidateIssues distinguishes nil (not supplied: the harness derives
// candidates via keyword search) from an empty non-nil slice (supplied as
// "search found nothing").
type TriageCase struct {
	ID              string           `json:"id"`
	SourceKind      SourceKind       `json:"source_kind,omitempty"`
	MessageText     string           `json:"message_text"`
	ReporterID      string           `json:"reporter_id,omitempty"`
	CandidateIssues []CandidateIssue `json:"candidate_issues,omitempty"`
	Expected        ExpectedOutcome  `json:"expected,omitempty"`
}

// NewTicketPayload is the issue to create when the action is new_bug.
type NewTicketPayload struct {
	Team        Team           `json:"team"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    TicketPriority `json:"priority"`
}

// TriageDecision is the policy's output for one message. TicketLink is
// present iff the action is existing_ticket; NewTicket is present iff the
// action is new_bug. ParseDecision rejects anything else.
type TriageDecision struct {
	Action      Action            `json:"action"`
	Explanation string            `json:"explanation"`
	Confidence  Confidence        `json:"confidence"`
	TicketLink  string            `json:"ticket_link,omitempty"`
	NewTicket   *NewTicketPayload `json:"new_ticket,omitempty"`
}

// MatchResult is a tri-state comparison outcome. NA (unlabeled) must never
// be folded into "no": aggregate accuracy counts only yes/no entries.
type MatchResult string

const (
	MatchYes MatchResult = "yes"
	MatchNo  MatchResult = "no"
	MatchNA  MatchResult = "na"
)

func (m MatchResult) Applicable() bool { return m == MatchYes || m == MatchNo }

// ScoredResult pairs a case with the decision it produced.
type ScoredResult struct {
	CaseID      string          `json:"case_id"`
	Expected    ExpectedOutcome `json:"expected,omitempty"`
	Decision    TriageDecision  `json:"decision"`
	ActionMatch MatchResult     `json:"action_match"`
	TeamMatch   MatchResult     `json:"team_match"`
	Error       string          `json:"error,omitempty"`
}

// EvaluationReport is one immutable scored run over a corpus.
type EvaluationReport struct {
	Model         string         `json:"model"`
	PolicyVersion PolicyVersion  `json:"policy_version"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Results       []ScoredResult `json:"results"`
	Scored        int            `json:"scored"`
	Correct       int            `json:"correct"`
	Accuracy      float64        `json:"accuracy"`
}

// Corpus is a collection of triage cases. Cases are only ever appended or
// merged by ID; labeling fills Expected in place.
type Corpus struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Cases       []TriageCase `json:"cases"`
}
