package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "triagebot",
		Short:         "Bug-triage bot for a support channel, with offline evaluation tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newSweepCmd(),
		newEvalCmd(),
		newCompareCmd(),
		newCorpusCmd(),
		newCalibrationCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot daemon (scheduled channel sweeps)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			triager, cleanup, err := buildTriager(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			scheduler, err := StartSweepScheduler(cfg, triager)
			if err != nil {
				return err
			}
			defer scheduler.Stop()

			log.Println("Starting triage bot...")
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			log.Println("Shutting down")
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Triage unprocessed channel messages once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			triager, cleanup, err := buildTriager(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return triager.SweepChannel(cmd.Context())
		},
	}
}

func buildTriager(cfg Config) (*Triager, func(), error) {
	if err := cfg.RequireSlack(); err != nil {
		return nil, nil, err
	}
	if err := cfg.RequireLLM(); err != nil {
		return nil, nil, err
	}

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	chat, err := NewChatClient(cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	var tracker *TrackerClient
	if cfg.TrackerURL != "" && cfg.TrackerToken != "" {
		tracker = NewTrackerClient(cfg)
	} else {
		log.Println("No tracker configured; new_bug decisions will fail to execute")
	}
	return NewTriager(cfg, db, chat, tracker), func() { db.Close() }, nil
}

func newEvalCmd() *cobra.Command {
	var (
		corpusPath  string
		outPath     string
		policy      string
		labeledOnly bool
		limit       int
		useSearch   bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score a decision policy against a labeled corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			if err := cfg.RequireLLM(); err != nil {
				return err
			}
			version := PolicyVersion(policy)
			if policy == "" {
				version = cfg.Policy()
			}
			if !version.Valid() {
				return fmt.Errorf("invalid --policy %q (valid: v1, v2)", policy)
			}

			corpus, err := LoadCorpus(corpusPath)
			if err != nil {
				return err
			}

			opts := EvalOptions{
				Model:         DecisionModel(cfg),
				PolicyVersion: version,
				LabeledOnly:   labeledOnly,
				Limit:         limit,
				Delay:         cfg.MessageDelay(),
				Verbose:       cfg.Verbose,
			}
			if useSearch {
				if err := cfg.RequireTracker(); err != nil {
					return err
				}
				opts.Searcher = NewTrackerClient(cfg)
			}

			decide := func(ctx context.Context, c TriageCase, candidates []CandidateIssue) (TriageDecision, error) {
				decision, _, err := Decide(ctx, cfg, DecisionRequest{
					Message:      c.MessageText,
					ReporterName: c.ReporterID,
					Candidates:   candidates,
					Policy:       version,
				})
				return decision, err
			}

			report, err := Evaluate(cmd.Context(), corpus.Cases, opts, decide)
			if err != nil {
				return err
			}
			if err := SaveReport(outPath, report); err != nil {
				return err
			}
			fmt.Printf("Evaluated %d cases (%d scored): accuracy %.1f%% -> %s\n",
				len(report.Results), report.Scored, report.Accuracy*100, outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "corpus file (required)")
	cmd.Flags().StringVar(&outPath, "out", "", "output report file (required)")
	cmd.Flags().StringVar(&policy, "policy", "", "policy version v1|v2 (default: config)")
	cmd.Flags().BoolVar(&labeledOnly, "labeled-only", false, "skip unlabeled cases")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after N cases (0 = all)")
	cmd.Flags().BoolVar(&useSearch, "search", false, "query the tracker for cases without candidate issues")
	cmd.MarkFlagRequired("corpus")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <report-a> <report-b>",
		Short: "Paired significance test between two evaluation reports",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			first, err := LoadReport(args[0])
			if err != nil {
				return err
			}
			second, err := LoadReport(args[1])
			if err != nil {
				return err
			}

			result, err := Compare(first, second)
			if err != nil {
				return err
			}
			printComparison(args[0], args[1], first, second, result)
			return nil
		},
	}
}

func printComparison(pathA, pathB string, first, second EvaluationReport, r ComparisonResult) {
	fmt.Printf("A: %s (policy %s, accuracy %.1f%%)\n", pathA, first.PolicyVersion, first.Accuracy*100)
	fmt.Printf("B: %s (policy %s, accuracy %.1f%%)\n", pathB, second.PolicyVersion, second.Accuracy*100)
	fmt.Printf("\nShared scoreable cases: %d", r.Table.N())
	if r.SkippedNA > 0 {
		fmt.Printf(" (%d shared cases skipped: unlabeled in one report)", r.SkippedNA)
	}
	fmt.Println()
	fmt.Printf("  both correct:    %d\n", r.Table.BothCorrect)
	fmt.Printf("  only B correct:  %d\n", r.Table.OnlySecondCorrect)
	fmt.Printf("  only A correct:  %d\n", r.Table.OnlyFirstCorrect)
	fmt.Printf("  both wrong:      %d\n", r.Table.BothWrong)
	fmt.Printf("\nMcNemar chi-square: %.4f  p-value: %.4f\n", r.ChiSquare, r.PValue)
	fmt.Printf("Accuracy delta (B-A): %+.4f  95%% CI [%+.4f, %+.4f]\n", r.Delta, r.CILow, r.CIHigh)

	switch r.Verdict {
	case VerdictSecondBetter:
		fmt.Println("Result: B is significantly better than A (p < 0.05)")
	case VerdictSecondWorse:
		fmt.Println("Result: B is significantly worse than A (p < 0.05)")
	default:
		fmt.Println("Result: inconclusive at p < 0.05")
	}
}

func newCorpusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Manage evaluation corpora",
	}
	cmd.AddCommand(newCorpusIngestCmd(), newCorpusMergeCmd(), newCorpusLabelCmd())
	return cmd
}

func newCorpusIngestCmd() *cobra.Command {
	var (
		outPath string
		hours   int
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build observed cases from recent channel messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			if err := cfg.RequireSlack(); err != nil {
				return err
			}
			chat, err := NewChatClient(cfg)
			if err != nil {
				return err
			}
			db, err := InitDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init database: %w", err)
			}
			defer db.Close()

			triager := NewTriager(cfg, db, chat, nil)
			cases, err := triager.IngestCases(hours)
			if err != nil {
				return err
			}

			corpus := Corpus{GeneratedAt: time.Now().UTC()}
			if _, err := os.Stat(outPath); err == nil {
				corpus, err = LoadCorpus(outPath)
				if err != nil {
					return err
				}
			}
			added := MergeCases(&corpus, cases)
			if err := SaveCorpus(outPath, corpus); err != nil {
				return err
			}
			fmt.Printf("Ingested %d messages, %d new cases -> %s (%d total)\n",
				len(cases), added, outPath, len(corpus.Cases))
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "corpus file to create or merge into (required)")
	cmd.Flags().IntVar(&hours, "hours", 24, "lookback window in hours")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newCorpusMergeCmd() *cobra.Command {
	var intoPath, fromPath string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge one corpus file into another by case ID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			into, err := LoadCorpus(intoPath)
			if err != nil {
				return err
			}
			from, err := LoadCorpus(fromPath)
			if err != nil {
				return err
			}
			added := MergeCases(&into, from.Cases)
			if err := SaveCorpus(intoPath, into); err != nil {
				return err
			}
			fmt.Printf("Merged %d cases (%d new) into %s (%d total)\n",
				len(from.Cases), added, intoPath, len(into.Cases))
			return nil
		},
	}
	cmd.Flags().StringVar(&intoPath, "into", "", "destination corpus file (required)")
	cmd.Flags().StringVar(&fromPath, "from", "", "source corpus file (required)")
	cmd.MarkFlagRequired("into")
	cmd.MarkFlagRequired("from")
	return cmd
}

func newCorpusLabelCmd() *cobra.Command {
	var (
		corpusPath string
		caseID     string
		action     string
		team       string
		confidence string
		notes      string
	)
	cmd := &cobra.Command{
		Use:   "label",
		Short: "Attach an expected outcome to a case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			expected := ExpectedOutcome{Notes: notes}
			var err error
			if expected.Action, err = ParseAction(action); err != nil {
				return err
			}
			if team != "" {
				if expected.Team, err = ParseTeam(team); err != nil {
					return err
				}
			}
			if confidence != "" {
				if expected.Confidence, err = ParseConfidence(confidence); err != nil {
					return err
				}
			}

			corpus, err := LoadCorpus(corpusPath)
			if err != nil {
				return err
			}
			if err := LabelCase(&corpus, caseID, expected); err != nil {
				return err
			}
			if err := SaveCorpus(corpusPath, corpus); err != nil {
				return err
			}
			fmt.Printf("Labeled %s: action=%s team=%s\n", caseID, action, team)
			return nil
		},
	}
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "corpus file (required)")
	cmd.Flags().StringVar(&caseID, "id", "", "case ID (required)")
	cmd.Flags().StringVar(&action, "action", "", "expected action (required)")
	cmd.Flags().StringVar(&team, "team", "", "expected team (new_bug only)")
	cmd.Flags().StringVar(&confidence, "confidence", "", "expected confidence")
	cmd.Flags().StringVar(&notes, "notes", "", "free-text label notes")
	cmd.MarkFlagRequired("corpus")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("action")
	return cmd
}

func newCalibrationCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "calibration",
		Short: "Report decision-log accuracy, correction patterns, and confidence calibration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			db, err := InitDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init database: %w", err)
			}
			defer db.Close()

			since := time.Now().AddDate(0, 0, -days)

			stats, err := GetAccuracyStats(db, since)
			if err != nil {
				return err
			}
			fmt.Printf("Decisions (last %d days): %d total, %d correct, %d incorrect, %d pending\n",
				days, stats.Total, stats.Correct, stats.Incorrect, stats.Pending)
			if stats.Correct+stats.Incorrect > 0 {
				fmt.Printf("Accuracy over evaluated decisions: %.1f%%\n", stats.Accuracy*100)
			}

			buckets, err := GetCalibrationReport(db, since)
			if err != nil {
				return err
			}
			fmt.Println("\nCalibration (evaluated decisions only):")
			for _, b := range buckets {
				status := "PASS"
				if !b.Pass {
					status = "FAIL"
				}
				fmt.Printf("  %-6s  %3d evaluated  accuracy %.1f%%  target %.0f%%  %s\n",
					b.Confidence, b.Evaluated, b.Accuracy*100, b.Target*100, status)
			}

			patterns, err := GetPatternAnalysis(db, since)
			if err != nil {
				return err
			}
			if len(patterns) > 0 {
				fmt.Println("\nCorrection patterns:")
				for _, p := range patterns {
					fmt.Printf("  %s -> %s: %d corrections\n", p.BotAction, p.CorrectedAction, len(p.Corrections))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "lookback window in days")
	return cmd
}
