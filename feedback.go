package main

import (
	"database/sql"
	"sort"
	"time"
)

// AccuracyStats summarizes the decision log. Accuracy is over evaluated
// decisions only; pending rows are excluded from the denominator.
type AccuracyStats struct {
	Total     int
	Correct   int
	Incorrect int
	Pending   int
	Accuracy  float64
}

func GetAccuracyStats(db *sql.DB, since time.Time) (AccuracyStats, error) {
	var s AccuracyStats
	err := db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN was_correct = 1 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN was_correct = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN was_correct IS NULL THEN 1 ELSE 0 END), 0)
		 FROM decision_history WHERE decided_at >= ?`,
		since,
	).Scan(&s.Total, &s.Correct, &s.Incorrect, &s.Pending)
	if err != nil {
		return s, err
	}
	if s.Correct+s.Incorrect > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Correct+s.Incorrect)
	}
	return s, nil
}

// CorrectionPattern groups human corrections by the ordered pair
// (bot action -> corrected action). A large group means the bot
// systematically over- or under-triggers that action.
type CorrectionPattern struct {
	BotAction       Action
	CorrectedAction Action
	Corrections     []TriageCorrection
}

func GetPatternAnalysis(db *sql.DB, since time.Time) ([]CorrectionPattern, error) {
	corrections, err := GetRecentCorrections(db, since, 1000)
	if err != nil {
		return nil, err
	}

	type pair struct{ bot, corrected Action }
	groups := make(map[pair][]TriageCorrection)
	for _, c := range corrections {
		key := pair{c.BotAction, c.CorrectedAction}
		groups[key] = append(groups[key], c)
	}

	patterns := make([]CorrectionPattern, 0, len(groups))
	for key, list := range groups {
		patterns = append(patterns, CorrectionPattern{
			BotAction:       key.bot,
			CorrectedAction: key.corrected,
			Corrections:     list,
		})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i].Corrections) != len(patterns[j].Corrections) {
			return len(patterns[i].Corrections) > len(patterns[j].Corrections)
		}
		if patterns[i].BotAction != patterns[j].BotAction {
			return patterns[i].BotAction < patterns[j].BotAction
		}
		return patterns[i].CorrectedAction < patterns[j].CorrectedAction
	})
	return patterns, nil
}

// calibrationTargets: stated confidence should track observed accuracy.
var calibrationTargets = []struct {
	Confidence Confidence
	Target     float64
}{
	{ConfidenceHigh, 0.90},
	{ConfidenceMedium, 0.70},
	{ConfidenceLow, 0.50},
}

// CalibrationBucket is the observed accuracy of evaluated decisions at one
// confidence level. An empty bucket passes vacuously.
type CalibrationBucket struct {
	Confidence Confidence
	Evaluated  int
	Correct    int
	Accuracy   float64
	Target     float64
	Pass       bool
}

// GetCalibrationReport checks whether stated confidence correlates with
// observed accuracy. Pending decisions are ignored. The result is a
// per-bucket pass/fail report; nothing is enforced.
func GetCalibrationReport(db *sql.DB, since time.Time) ([]CalibrationBucket, error) {
	buckets := make([]CalibrationBucket, 0, len(calibrationTargets))
	for _, target := range calibrationTargets {
		var evaluated, correct int
		err := db.QueryRow(
			`SELECT COUNT(*),
			        COALESCE(SUM(CASE WHEN was_correct = 1 THEN 1 ELSE 0 END), 0)
			 FROM decision_history
			 WHERE confidence = ? AND was_correct IS NOT NULL AND decided_at >= ?`,
			string(target.Confidence), since,
		).Scan(&evaluated, &correct)
		if err != nil {
			return nil, err
		}

		bucket := CalibrationBucket{
			Confidence: target.Confidence,
			Evaluated:  evaluated,
			Correct:    correct,
			Target:     target.Target,
			Pass:       true,
		}
		if evaluated > 0 {
			bucket.Accuracy = float64(correct) / float64(evaluated)
			bucket.Pass = bucket.Accuracy >= target.Target
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}
