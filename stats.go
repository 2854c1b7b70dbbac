package main

import (
	"fmt"
	"math"
)

// ContingencyTable is the 2x2 correct/incorrect cross-tabulation of two
// runs over their shared cases. "First" and "second" keep the argument
// order of Compare: the discordant cells are not symmetric.
type ContingencyTable struct {
	BothCorrect       int `json:"both_correct"`
	OnlySecondCorrect int `json:"only_second_correct"` // first wrong, second correct
	OnlyFirstCorrect  int `json:"only_first_correct"`  // first correct, second wrong
	BothWrong         int `json:"both_wrong"`
}

func (t ContingencyTable) N() int {
	return t.BothCorrect + t.OnlySecondCorrect + t.OnlyFirstCorrect + t.BothWrong
}

// Discordant is the number of shared cases the two runs disagree on.
func (t ContingencyTable) Discordant() int {
	return t.OnlySecondCorrect + t.OnlyFirstCorrect
}

// Verdict labels the comparison outcome at the 0.05 level.
type Verdict string

const (
	VerdictSecondBetter Verdict = "second_better"
	VerdictSecondWorse  Verdict = "second_worse"
	VerdictInconclusive Verdict = "inconclusive"
)

// ComparisonResult is the paired significance test between two runs.
// Delta is the accuracy difference (second minus first) over shared cases;
// the confidence interval is the 95% interval on that delta.
type ComparisonResult struct {
	Table     ContingencyTable
	SkippedNA int
	ChiSquare float64
	PValue    float64
	Delta     float64
	CILow     float64
	CIHigh    float64
	Verdict   Verdict
}

// BuildContingency cross-tabulates action correctness over the case IDs
// present in both reports. A case that is not-applicable (unlabeled) in
// either report is excluded from the table; the second return value counts
// those exclusions.
func BuildContingency(first, second EvaluationReport) (ContingencyTable, int) {
	firstByID := make(map[string]MatchResult, len(first.Results))
	for _, r := range first.Results {
		firstByID[r.CaseID] = r.ActionMatch
	}

	var table ContingencyTable
	skipped := 0
	for _, r := range second.Results {
		fm, shared := firstByID[r.CaseID]
		if !shared {
			continue
		}
		if !fm.Applicable() || !r.ActionMatch.Applicable() {
			skipped++
			continue
		}
		switch {
		case fm == MatchYes && r.ActionMatch == MatchYes:
			table.BothCorrect++
		case fm == MatchNo && r.ActionMatch == MatchYes:
			table.OnlySecondCorrect++
		case fm == MatchYes && r.ActionMatch == MatchNo:
			table.OnlyFirstCorrect++
		default:
			table.BothWrong++
		}
	}
	return table, skipped
}

// Compare runs a continuity-corrected McNemar test between two evaluation
// runs of the same corpus. With no discordant pairs the statistic is zero
// and p = 1: identical correctness patterns carry no evidence either way.
func Compare(first, second EvaluationReport) (ComparisonResult, error) {
	table, skipped := BuildContingency(first, second)
	n := table.N()
	if n == 0 {
		return ComparisonResult{}, fmt.Errorf("no shared scoreable cases between the two reports")
	}

	b := float64(table.OnlySecondCorrect)
	c := float64(table.OnlyFirstCorrect)

	result := ComparisonResult{
		Table:     table,
		SkippedNA: skipped,
		Verdict:   VerdictInconclusive,
	}

	if b+c == 0 {
		result.ChiSquare = 0
		result.PValue = 1
	} else {
		result.ChiSquare = (math.Abs(b-c) - 1) * (math.Abs(b-c) - 1) / (b + c)
		result.PValue = chiSquarePValue(result.ChiSquare)
	}

	nf := float64(n)
	result.Delta = (b - c) / nf
	se := math.Sqrt((b + c - (b-c)*(b-c)/nf) / (nf * nf))
	result.CILow = result.Delta - 1.96*se
	result.CIHigh = result.Delta + 1.96*se

	if result.PValue < 0.05 {
		if b > c {
			result.Verdict = VerdictSecondBetter
		} else if c > b {
			result.Verdict = VerdictSecondWorse
		}
	}
	return result, nil
}

// chiSquarePValue is the upper-tail probability of a chi-square
// distribution with one degree of freedom.
func chiSquarePValue(chi float64) float64 {
	return regularizedGammaQ(0.5, chi/2)
}

const (
	gammaItMax = 500
	gammaEps   = 1e-14
	gammaFPMin = 1e-300
)

// regularizedGammaQ is Q(a, x) = 1 - P(a, x): series expansion below the
// x = a+1 crossover, continued fraction above it.
func regularizedGammaQ(a, x float64) float64 {
	switch {
	case x < 0 || a <= 0:
		return math.NaN()
	case x == 0:
		return 1
	case x < a+1:
		return 1 - gammaSeriesP(a, x)
	default:
		return gammaContinuedQ(a, x)
	}
}

func gammaSeriesP(a, x float64) float64 {
	ap := a
	sum := 1.0 / a
	del := sum
	for i := 0; i < gammaItMax; i++ {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*gammaEps {
			break
		}
	}
	return sum * math.Exp(-x+a*math.Log(x)-lnGamma(a))
}

// gammaContinuedQ evaluates the continued fraction with modified Lentz's
// method.
func gammaContinuedQ(a, x float64) float64 {
	b := x + 1 - a
	c := 1 / gammaFPMin
	d := 1 / b
	h := d
	for i := 1; i <= gammaItMax; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < gammaFPMin {
			d = gammaFPMin
		}
		c = b + an/c
		if math.Abs(c) < gammaFPMin {
			c = gammaFPMin
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < gammaEps {
			break
		}
	}
	return math.Exp(-x+a*math.Log(x)-lnGamma(a)) * h
}

// lnGamma is the Lanczos approximation (g=5, six coefficients), accurate
// to better than 1e-10 relative error for positive arguments.
func lnGamma(x float64) float64 {
	cof := [6]float64{
		76.18009172947146, -86.50532032941677, 24.01409824083091,
		-1.231739572450155, 0.1208650973866179e-2, -0.5395239384953e-5,
	}
	y := x
	tmp := x + 5.5
	tmp -= (x + 0.5) * math.Log(tmp)
	ser := 1.000000000190015
	for j := 0; j < 6; j++ {
		y++
		ser += cof[j] / y
	}
	return -tmp + math.Log(2.5066282746310005*ser/x)
}
