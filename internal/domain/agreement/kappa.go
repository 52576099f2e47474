package agreement

import "math"

// FleissKappa computes Fleiss' kappa over a subjects-by-categories count
// table. Every row must hold the same number of ratings n >= 2.
//
// When expected agreement is 1 the statistic is 0/0. A table where all
// ratings fall in one category scores 1.0; any other degenerate input
// returns NaN.
func FleissKappa(table [][]int) float64 {
	if len(table) == 0 || len(table[0]) == 0 {
		return math.NaN()
	}
	n := 0
	for _, c := range table[0] {
		n += c
	}
	if n < 2 {
		return math.NaN()
	}

	k := len(table[0])
	colTotals := make([]float64, k)
	var pBar float64
	for _, row := range table {
		if len(row) != k {
			return math.NaN()
		}
		sum, sq := 0, 0
		for j, c := range row {
			sum += c
			sq += c * c
			colTotals[j] += float64(c)
		}
		if sum != n {
			return math.NaN()
		}
		pBar += float64(sq-n) / float64(n*(n-1))
	}
	subjects := float64(len(table))
	pBar /= subjects

	var pe float64
	for _, t := range colTotals {
		p := t / (subjects * float64(n))
		pe += p * p
	}

	if 1-pe < 1e-12 {
		if pBar >= 1-1e-12 {
			return 1.0
		}
		return math.NaN()
	}
	return (pBar - pe) / (1 - pe)
}

// observedAgreement is the per-subject agreement term of Fleiss' kappa for
// one row: the share of rater pairs that agree.
func observedAgreement(counts ...int) float64 {
	n, sq := 0, 0
	for _, c := range counts {
		n += c
		sq += c * c
	}
	if n < 2 {
		return math.NaN()
	}
	return float64(sq-n) / float64(n*(n-1))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func round4(v float64) float64 { return round(v, 4) }

func round2(v float64) float64 { return round(v, 2) }
