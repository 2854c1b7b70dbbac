package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/slack-go/slack"
)

// Triager runs the live pipeline: one message at a time through search,
// decision, action execution, and the decision log.
type Triager struct {
	cfg     Config
	db      *sql.DB
	chat    *ChatClient
	tracker *TrackerClient
}

func NewTriager(cfg Config, db *sql.DB, chat *ChatClient, tracker *TrackerClient) *Triager {
	return &Triager{cfg: cfg, db: db, chat: chat, tracker: tracker}
}

// SweepChannel triages every unprocessed message in the lookback window.
// Per-message failures are logged and skipped; one bad message never
// aborts the sweep.
func (t *Triager) SweepChannel(ctx context.Context) error {
	oldest := time.Now().Add(-time.Duration(t.cfg.SweepLookbackHours) * time.Hour)
	messages, err := t.chat.FetchMessagesSince(t.cfg.TriageChannelID, oldest)
	if err != nil {
		return fmt.Errorf("sweep fetch: %w", err)
	}
	log.Printf("sweep channel=%s lookback=%dh messages=%d", t.cfg.TriageChannelID, t.cfg.SweepLookbackHours, len(messages))

	processed := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if processed > 0 {
			time.Sleep(t.cfg.MessageDelay())
		}
		handled, err := t.TriageMessage(ctx, msg)
		if err != nil {
			log.Printf("triage failed channel=%s ts=%s: %v", t.cfg.TriageChannelID, msg.Timestamp, err)
		}
		if handled || err != nil {
			processed++
		}
	}
	log.Printf("sweep done processed=%d", processed)
	return nil
}

// TriageMessage runs one message through the pipeline. Returns false when
// the message was skipped (already processed, or empty after filtering).
func (t *Triager) TriageMessage(ctx context.Context, msg slack.Message) (bool, error) {
	ref := MessageRef(t.cfg.TriageChannelID, msg.Timestamp)

	logged, err := HasDecisionForMessage(t.db, ref)
	if err != nil {
		return false, fmt.Errorf("decision lookup: %w", err)
	}
	if logged {
		t.cfg.vlogf("skip already-logged ref=%s", ref)
		return false, nil
	}
	replied, err := t.chat.HasBotReply(t.cfg.TriageChannelID, msg.Timestamp)
	if err != nil {
		return false, fmt.Errorf("reply check: %w", err)
	}
	if replied {
		t.cfg.vlogf("skip already-replied ref=%s", ref)
		return false, nil
	}

	text := MessageText(msg)

	var candidates []CandidateIssue
	if t.tracker != nil {
		if query := SearchQuery(text); query != "" {
			found, err := t.tracker.SearchIssues(ctx, query)
			if err != nil {
				// Search is advisory on the live path; decide without it.
				log.Printf("issue search failed ref=%s: %v", ref, err)
			} else {
				candidates = found
			}
		}
	}

	decision, usage, err := Decide(ctx, t.cfg, DecisionRequest{
		Message:      text,
		ReporterName: t.chat.DisplayName(msg.User),
		Candidates:   candidates,
		Policy:       t.cfg.Policy(),
	})
	if err != nil {
		return true, fmt.Errorf("decide: %w", err)
	}
	log.Printf("decision ref=%s action=%s confidence=%s tokens=%d", ref, decision.Action, decision.Confidence, usage.TotalTokens())

	if err := t.executeDecision(ctx, msg, decision); err != nil {
		return true, err
	}

	record := DecisionRecord{
		MessageRef:    ref,
		ReporterID:    msg.User,
		Action:        decision.Action,
		Confidence:    decision.Confidence,
		Explanation:   decision.Explanation,
		TicketLink:    decision.TicketLink,
		LLMProvider:   t.cfg.LLMProvider,
		LLMModel:      DecisionModel(t.cfg),
		PolicyVersion: t.cfg.Policy(),
	}
	if decision.NewTicket != nil {
		record.NewTicketTeam = decision.NewTicket.Team
		record.NewTicketTitle = decision.NewTicket.Title
	}
	if _, err := InsertDecision(t.db, record); err != nil {
		return true, fmt.Errorf("logging decision: %w", err)
	}
	return true, nil
}

// executeDecision performs the decision's side effect. Defer is
// deliberately silent: an uncertain bot that stays quiet is cheaper than
// one that files wrong tickets or pings humans needlessly.
func (t *Triager) executeDecision(ctx context.Context, msg slack.Message, decision TriageDecision) error {
	channelID := t.cfg.TriageChannelID

	switch decision.Action {
	case ActionExistingTicket:
		reply := fmt.Sprintf("This looks like a known issue: %s\n%s", decision.TicketLink, decision.Explanation)
		return t.chat.PostThreadReply(channelID, msg.Timestamp, reply)

	case ActionNewBug:
		if t.tracker == nil {
			return fmt.Errorf("new_bug decision but no tracker configured")
		}
		payload := decision.NewTicket
		issue, err := t.tracker.CreateIssue(ctx, payload.Team, payload.Title, payload.Description, payload.Priority.TrackerLevel())
		if err != nil {
			return fmt.Errorf("creating tracked issue: %w", err)
		}
		log.Printf("created issue %s team=%s priority=%s", issue.Identifier, payload.Team, payload.Priority)
		reply := fmt.Sprintf("Filed %s for the %s team: %s", issue.Identifier, payload.Team, issue.URL)
		return t.chat.PostThreadReply(channelID, msg.Timestamp, reply)

	case ActionNotABug:
		reply := fmt.Sprintf("This doesn't look like a bug: %s", decision.Explanation)
		return t.chat.PostThreadReply(channelID, msg.Timestamp, reply)

	case ActionNeedsInfo:
		reply := "Could you add some detail? A description of what you saw, where, and for whom helps us triage."
		return t.chat.PostThreadReply(channelID, msg.Timestamp, reply)

	case ActionDefer:
		t.cfg.vlogf("deferred ts=%s: %s", msg.Timestamp, decision.Explanation)
		return nil
	}
	return fmt.Errorf("unhandled action %q", decision.Action)
}

// IngestCases converts recent channel messages into observed corpus cases
// for later labeling. No decisions are made and nothing is posted.
func (t *Triager) IngestCases(hours int) ([]TriageCase, error) {
	oldest := time.Now().Add(-time.Duration(hours) * time.Hour)
	messages, err := t.chat.FetchMessagesSince(t.cfg.TriageChannelID, oldest)
	if err != nil {
		return nil, err
	}

	cases := make([]TriageCase, 0, len(messages))
	for _, msg := range messages {
		text := MessageText(msg)
		if text == "" {
			continue
		}
		cases = append(cases, TriageCase{
			ID:          MessageRef(t.cfg.TriageChannelID, msg.Timestamp),
			SourceKind:  SourceObserved,
			MessageText: text,
			ReporterID:  msg.User,
		})
	}
	return cases, nil
}
