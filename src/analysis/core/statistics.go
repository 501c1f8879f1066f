package core

import (
	"math"
	"sort"
	"time"

	"market-analytics/src/models"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/stat"
)

// -----------------------------------------------------------------------------

// AnnualizedVolatility is the sample standard deviation of simple returns
// scaled by sqrt(periods). Undefined with fewer than two returns.
func AnnualizedVolatility(closes []float64, periods int) (null.Float, int) {
	returns := SimpleReturns(closes)
	if len(returns) < 2 {
		return null.Float{}, len(returns)
	}
	sd := stat.StdDev(returns, nil)
	if !finite(sd) {
		return null.Float{}, len(returns)
	}
	return null.FloatFrom(sd * math.Sqrt(float64(periods))), len(returns)
}

// -----------------------------------------------------------------------------

// Mean of values, zero for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// -----------------------------------------------------------------------------

// SplitSize is how many entries go to each of the top and bottom lists so
// they never overlap: n when the pool holds at least 2n, else half the pool.
func SplitSize(n, pool int) int {
	if n < 0 {
		n = 0
	}
	if pool < 2*n {
		return pool / 2
	}
	return n
}

// -----------------------------------------------------------------------------

// SortReturns orders returns best first with symbol as the tie-break.
// Entries with an undefined return are removed.
func SortReturns(in []models.MSymbolReturn) []models.MSymbolReturn {
	out := make([]models.MSymbolReturn, 0, len(in))
	for _, r := range in {
		if r.ReturnPct.Valid {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ReturnPct.Float64, out[j].ReturnPct.Float64
		if a != b {
			return a > b
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// -----------------------------------------------------------------------------

// TopBottom picks the n best and n worst entries of an already sorted list.
// Bottom is ordered worst first.
func TopBottom(sorted []models.MSymbolReturn, n int) (top, bottom []models.MSymbolReturn) {
	k := SplitSize(n, len(sorted))
	top = append([]models.MSymbolReturn{}, sorted[:k]...)
	bottom = make([]models.MSymbolReturn, 0, k)
	for i := len(sorted) - 1; i >= len(sorted)-k; i-- {
		bottom = append(bottom, sorted[i])
	}
	return top, bottom
}

// -----------------------------------------------------------------------------

// DatedCloses is one symbol's closes in date order
type DatedCloses struct {
	Dates  []time.Time
	Closes []float64
}

// RebaseOnTimeline rebases every series to its first close and lays the
// percent changes on the union of dates. A series carries its last value
// forward across dates it lacks and is null before its first observation.
// values[i] belongs to series[i]; an empty series or one starting at a zero
// close stays null throughout and adds no dates.
func RebaseOnTimeline(series []DatedCloses) (timeline []time.Time, values [][]null.Float) {
	type cursor struct {
		s    DatedCloses
		base float64
		idx  int
	}

	cursors := make([]*cursor, len(series))
	dateSet := make(map[time.Time]struct{})
	for i, s := range series {
		if len(s.Dates) == 0 || len(s.Dates) != len(s.Closes) || s.Closes[0] == 0 {
			continue
		}
		cursors[i] = &cursor{s: s, base: s.Closes[0], idx: -1}
		for _, d := range s.Dates {
			dateSet[d] = struct{}{}
		}
	}

	timeline = make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		timeline = append(timeline, d)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })

	values = make([][]null.Float, len(series))
	for i, c := range cursors {
		values[i] = make([]null.Float, len(timeline))
		if c == nil {
			continue
		}
		for t, d := range timeline {
			for c.idx+1 < len(c.s.Dates) && !c.s.Dates[c.idx+1].After(d) {
				c.idx++
			}
			if c.idx >= 0 {
				values[i][t] = null.FloatFrom((c.s.Closes[c.idx]/c.base - 1) * 100)
			}
		}
	}
	return timeline, values
}

// -----------------------------------------------------------------------------

// CrossSectionalMean averages the rebased percent changes date by date over
// the union of dates, counting the series that had started by each date.
func CrossSectionalMean(series []DatedCloses) []models.MNormalizedPoint {
	timeline, values := RebaseOnTimeline(series)
	if len(timeline) == 0 {
		return nil
	}

	out := make([]models.MNormalizedPoint, 0, len(timeline))
	for t, d := range timeline {
		sum, count := 0.0, 0
		for _, v := range values {
			if v[t].Valid {
				sum += v[t].Float64
				count++
			}
		}
		if count == 0 {
			continue
		}
		out = append(out, models.MNormalizedPoint{TradeDate: d, Value: sum / float64(count), Count: count})
	}
	return out
}
