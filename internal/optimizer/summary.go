package optimizer

import (
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Summary describes the distribution of restart scores.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Median float64
	P90    float64
	Max    float64
}

// Summarize returns the summary of scores. An empty slice gives a zero Summary.
func Summarize(scores []float64) Summary {
	if len(scores) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	s := Summary{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(sorted, nil)
	} else {
		s.Mean = sorted[0]
	}
	return s
}

// Summary summarizes the restart scores of the result.
func (r Result) Summary() Summary {
	return Summarize(r.Scores)
}
