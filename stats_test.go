package main

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func scored(id string, match MatchResult) ScoredResult {
	return ScoredResult{CaseID: id, ActionMatch: match}
}

// reportPair builds two reports over the same case IDs from parallel match
// slices.
func reportPair(t *testing.T, first, second []MatchResult) (EvaluationReport, EvaluationReport) {
	t.Helper()
	if len(first) != len(second) {
		t.Fatalf("match slices differ in length: %d vs %d", len(first), len(second))
	}
	var a, b EvaluationReport
	for i := range first {
		id := caseID(i)
		a.Results = append(a.Results, scored(id, first[i]))
		b.Results = append(b.Results, scored(id, second[i]))
	}
	return a, b
}

func caseID(i int) string {
	return "case-" + string(rune('a'+i/26)) + string(rune('a'+i%26))
}

// cells builds parallel match slices from the four contingency cell counts
// plus NA pairs.
func cells(bothCorrect, onlySecond, onlyFirst, bothWrong, na int) (first, second []MatchResult) {
	add := func(n int, f, s MatchResult) {
		for i := 0; i < n; i++ {
			first = append(first, f)
			second = append(second, s)
		}
	}
	add(bothCorrect, MatchYes, MatchYes)
	add(onlySecond, MatchNo, MatchYes)
	add(onlyFirst, MatchYes, MatchNo)
	add(bothWrong, MatchNo, MatchNo)
	add(na, MatchNA, MatchYes)
	return first, second
}

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s = %v, want %v (tolerance %v)", name, got, want, tol)
	}
}

func TestBuildContingencyExcludesNA(t *testing.T) {
	first, second := cells(3, 2, 1, 4, 5)
	a, b := reportPair(t, first, second)

	table, skipped := BuildContingency(a, b)
	want := ContingencyTable{BothCorrect: 3, OnlySecondCorrect: 2, OnlyFirstCorrect: 1, BothWrong: 4}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Fatalf("unexpected table (-want +got):\n%s", diff)
	}
	if skipped != 5 {
		t.Fatalf("skipped = %d, want 5", skipped)
	}
	if table.N() != 10 || table.Discordant() != 3 {
		t.Fatalf("N = %d, Discordant = %d", table.N(), table.Discordant())
	}
}

func TestBuildContingencyIgnoresUnsharedCases(t *testing.T) {
	a := EvaluationReport{Results: []ScoredResult{scored("x", MatchYes), scored("shared", MatchYes)}}
	b := EvaluationReport{Results: []ScoredResult{scored("y", MatchNo), scored("shared", MatchNo)}}

	table, skipped := BuildContingency(a, b)
	if table.N() != 1 || table.OnlyFirstCorrect != 1 {
		t.Fatalf("expected single only-first cell, got %+v", table)
	}
	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
}

func TestCompareNoSharedCases(t *testing.T) {
	a := EvaluationReport{Results: []ScoredResult{scored("x", MatchYes)}}
	b := EvaluationReport{Results: []ScoredResult{scored("y", MatchYes)}}
	if _, err := Compare(a, b); err == nil {
		t.Fatal("expected error for disjoint reports")
	}
}

func TestCompareNoDiscordantPairs(t *testing.T) {
	first, second := cells(6, 0, 0, 4, 0)
	a, b := reportPair(t, first, second)

	result, err := Compare(a, b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if result.ChiSquare != 0 || result.PValue != 1 {
		t.Fatalf("expected chi=0 p=1, got chi=%v p=%v", result.ChiSquare, result.PValue)
	}
	if result.Delta != 0 || result.Verdict != VerdictInconclusive {
		t.Fatalf("expected zero delta and inconclusive, got %+v", result)
	}
}

func TestCompareBalancedDiscordance(t *testing.T) {
	first, second := cells(10, 5, 5, 10, 0)
	a, b := reportPair(t, first, second)

	result, err := Compare(a, b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	// (|5-5|-1)^2 / 10
	approx(t, "ChiSquare", result.ChiSquare, 0.1, 1e-12)
	approx(t, "PValue", result.PValue, 0.7518, 2e-3)
	if result.Delta != 0 || result.Verdict != VerdictInconclusive {
		t.Fatalf("expected zero delta and inconclusive, got %+v", result)
	}
}

func TestCompareSignificantImprovement(t *testing.T) {
	first, second := cells(50, 10, 2, 10, 0)
	a, b := reportPair(t, first, second)

	result, err := Compare(a, b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	// (|10-2|-1)^2 / 12 = 49/12
	approx(t, "ChiSquare", result.ChiSquare, 49.0/12.0, 1e-12)
	approx(t, "PValue", result.PValue, 0.0434, 2e-3)
	approx(t, "Delta", result.Delta, 8.0/72.0, 1e-12)
	approx(t, "CILow", result.CILow, 0.0204, 1e-3)
	approx(t, "CIHigh", result.CIHigh, 0.2019, 1e-3)
	if result.Verdict != VerdictSecondBetter {
		t.Fatalf("verdict = %s, want second_better", result.Verdict)
	}
}

func TestCompareArgumentSwapFlipsSign(t *testing.T) {
	first, second := cells(50, 10, 2, 10, 0)
	a, b := reportPair(t, first, second)

	forward, err := Compare(a, b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	backward, err := Compare(b, a)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	approx(t, "swapped ChiSquare", backward.ChiSquare, forward.ChiSquare, 1e-12)
	approx(t, "swapped PValue", backward.PValue, forward.PValue, 1e-12)
	approx(t, "swapped Delta", backward.Delta, -forward.Delta, 1e-12)
	if backward.Verdict != VerdictSecondWorse {
		t.Fatalf("swapped verdict = %s, want second_worse", backward.Verdict)
	}
	if backward.Table.OnlySecondCorrect != forward.Table.OnlyFirstCorrect {
		t.Fatal("expected discordant cells to swap with argument order")
	}
}

func TestChiSquarePValueReferencePoints(t *testing.T) {
	tests := []struct {
		chi  float64
		want float64
		tol  float64
	}{
		{0, 1, 0},
		{1, 0.31731, 1e-4},
		{2.706, 0.10, 1e-3},
		{3.841, 0.05, 5e-4},
		{6.635, 0.01, 5e-4},
		{10.828, 0.001, 5e-5},
	}
	for _, tc := range tests {
		got := chiSquarePValue(tc.chi)
		approx(t, "chiSquarePValue", got, tc.want, tc.tol)
	}
}

func TestLnGammaReferencePoints(t *testing.T) {
	// Gamma(0.5) = sqrt(pi), Gamma(1) = 1, Gamma(5) = 24.
	approx(t, "lnGamma(0.5)", lnGamma(0.5), math.Log(math.Sqrt(math.Pi)), 1e-9)
	approx(t, "lnGamma(1)", lnGamma(1), 0, 1e-9)
	approx(t, "lnGamma(5)", lnGamma(5), math.Log(24), 1e-9)
}
