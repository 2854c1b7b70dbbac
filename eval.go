package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// IssueSearcher is the external search collaborator the harness queries
// when a case does not supply its own candidate list.
type IssueSearcher interface {
	SearchIssues(ctx context.Context, query string) ([]CandidateIssue, error)
}

// DecideFunc produces a decision for one case. The production
// implementation wraps Decide; tests substitute stubs.
type DecideFunc func(ctx context.Context, c TriageCase, candidates []CandidateIssue) (TriageDecision, error)

type EvalOptions struct {
	Model         string
	PolicyVersion PolicyVersion

	// LabeledOnly skips cases without an expected action instead of
	// recording them with not-applicable matches.
	LabeledOnly bool

	// Limit stops after N processed cases when > 0.
	Limit int

	// Delay is the pause between consecutive cases (external rate limits).
	Delay time.Duration

	// Searcher supplies candidates for cases that carry none. Nil means
	// such cases are decided with an empty candidate list.
	Searcher IssueSearcher

	Verbose bool
}

// Evaluate replays a corpus through a decision function and scores each
// case against its label.
//
// Scoring rules: an unlabeled case records not-applicable matches and is
// excluded from the accuracy denominator. Team match applies only when the
// expected action is new_bug and a team label exists. A decision-function
// failure records a synthetic needs_info/low decision whose action match
// is "no" — failures count against accuracy, never as not-applicable.
func Evaluate(ctx context.Context, cases []TriageCase, opts EvalOptions, decide DecideFunc) (EvaluationReport, error) {
	report := EvaluationReport{
		Model:         opts.Model,
		PolicyVersion: opts.PolicyVersion,
		GeneratedAt:   time.Now().UTC(),
	}

	processed := 0
	for _, c := range cases {
		if opts.LabeledOnly && !c.Expected.Labeled() {
			continue
		}
		if opts.Limit > 0 && processed >= opts.Limit {
			break
		}
		if processed > 0 && opts.Delay > 0 {
			time.Sleep(opts.Delay)
		}
		processed++

		result := scoreCase(ctx, c, opts, decide)
		report.Results = append(report.Results, result)

		if result.ActionMatch.Applicable() {
			report.Scored++
			if result.ActionMatch == MatchYes {
				report.Correct++
			}
		}
		if opts.Verbose {
			log.Printf("eval case=%s action=%s match=%s", c.ID, result.Decision.Action, result.ActionMatch)
		}
	}

	if report.Scored > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Scored)
	}
	return report, ctx.Err()
}

func scoreCase(ctx context.Context, c TriageCase, opts EvalOptions, decide DecideFunc) ScoredResult {
	result := ScoredResult{
		CaseID:      c.ID,
		Expected:    c.Expected,
		ActionMatch: MatchNA,
		TeamMatch:   MatchNA,
	}

	candidates := c.CandidateIssues
	var failure error
	if candidates == nil && opts.Searcher != nil {
		if query := SearchQuery(c.MessageText); query != "" {
			found, err := opts.Searcher.SearchIssues(ctx, query)
			if err != nil {
				failure = fmt.Errorf("issue search: %w", err)
			} else {
				candidates = found
			}
		}
	}

	var decision TriageDecision
	if failure == nil {
		var err error
		decision, err = decide(ctx, c, candidates)
		if err != nil {
			failure = err
		}
	}

	if failure != nil {
		log.Printf("eval case=%s failed: %v", c.ID, failure)
		result.Error = failure.Error()
		result.Decision = TriageDecision{
			Action:      ActionNeedsInfo,
			Explanation: "triage failed: " + failure.Error(),
			Confidence:  ConfidenceLow,
		}
		// A failed case always counts against accuracy.
		result.ActionMatch = MatchNo
		return result
	}

	result.Decision = decision
	if c.Expected.Labeled() {
		result.ActionMatch = matchOf(decision.Action == c.Expected.Action)
		if c.Expected.Action == ActionNewBug && c.Expected.Team != "" {
			result.TeamMatch = MatchNo
			if decision.NewTicket != nil && decision.NewTicket.Team == c.Expected.Team {
				result.TeamMatch = MatchYes
			}
		}
	}
	return result
}

func matchOf(ok bool) MatchResult {
	if ok {
		return MatchYes
	}
	return MatchNo
}

// --- Corpus files ---

// LoadCorpus reads a corpus file. A missing file is an error: accuracy
// tooling must never silently start from empty state.
func LoadCorpus(path string) (Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Corpus{}, fmt.Errorf("read corpus %s: %w", path, err)
	}
	var corpus Corpus
	if err := json.Unmarshal(data, &corpus); err != nil {
		return Corpus{}, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	return corpus, nil
}

// SaveCorpus writes the whole file in one operation.
func SaveCorpus(path string, corpus Corpus) error {
	data, err := json.MarshalIndent(corpus, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal corpus: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// MergeCases merges by case ID: a known ID replaces the stored case, a new
// ID appends. Returns the number of newly appended cases.
func MergeCases(corpus *Corpus, add []TriageCase) int {
	index := make(map[string]int, len(corpus.Cases))
	for i, c := range corpus.Cases {
		index[c.ID] = i
	}
	added := 0
	for _, c := range add {
		if i, ok := index[c.ID]; ok {
			corpus.Cases[i] = c
			continue
		}
		index[c.ID] = len(corpus.Cases)
		corpus.Cases = append(corpus.Cases, c)
		added++
	}
	return added
}

// LabelCase fills the expected outcome of an existing case.
func LabelCase(corpus *Corpus, id string, expected ExpectedOutcome) error {
	for i := range corpus.Cases {
		if corpus.Cases[i].ID == id {
			corpus.Cases[i].Expected = expected
			return nil
		}
	}
	return fmt.Errorf("case %q not found in corpus", id)
}

// --- Report files ---

func LoadReport(path string) (EvaluationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EvaluationReport{}, fmt.Errorf("read report %s: %w", path, err)
	}
	var report EvaluationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return EvaluationReport{}, fmt.Errorf("parse report %s: %w", path, err)
	}
	return report, nil
}

func SaveReport(path string, report EvaluationReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
