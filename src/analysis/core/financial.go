package core

import (
	"math"

	"github.com/guregu/null/v6"
)

// -----------------------------------------------------------------------------

// MovingAverage returns the trailing mean of each position over at most n
// values ending there. The first n-1 positions average the shorter prefix, so
// the result is never empty where the input is not.
func MovingAverage(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	if n < 1 {
		n = 1
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		width := i + 1
		if width > n {
			width = n
		}
		out[i] = sum / float64(width)
	}
	return out
}

// -----------------------------------------------------------------------------

// ChangePercent is (current-previous)/previous*100, undefined when previous is
// zero or either side is not finite.
func ChangePercent(current, previous float64) null.Float {
	if previous == 0 || !finite(previous) || !finite(current) {
		return null.Float{}
	}
	return null.FloatFrom((current - previous) / previous * 100)
}

// -----------------------------------------------------------------------------

// PeriodReturn is the percentage move from the first to the last close
func PeriodReturn(first, last float64) null.Float {
	return ChangePercent(last, first)
}

// -----------------------------------------------------------------------------

// SimpleReturns computes close[t]/close[t-1]-1 for consecutive closes
func SimpleReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

// -----------------------------------------------------------------------------

// Turnover is the traded value, sum of close*volume
func Turnover(closes []float64, volumes []int64) float64 {
	total := 0.0
	for i := range closes {
		if i >= len(volumes) {
			break
		}
		total += closes[i] * float64(volumes[i])
	}
	return total
}

// -----------------------------------------------------------------------------

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
