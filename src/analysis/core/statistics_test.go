package core

import (
	"testing"
	"time"

	"market-analytics/src/models"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestAnnualizedVolatility(t *testing.T) {
	vol, n := AnnualizedVolatility([]float64{100, 102, 101, 105, 103}, 252)
	require.True(t, vol.Valid)
	assert.Equal(t, 4, n)
	assert.InDelta(t, 0.429001, vol.Float64, 1e-6)

	few, n := AnnualizedVolatility([]float64{100, 101}, 252)
	assert.False(t, few.Valid)
	assert.Equal(t, 1, n)
}

func TestSplitSize(t *testing.T) {
	assert.Equal(t, 3, SplitSize(3, 6))
	assert.Equal(t, 3, SplitSize(3, 40))
	assert.Equal(t, 2, SplitSize(3, 5))
	assert.Equal(t, 0, SplitSize(3, 1))
}

func ret(symbol string, v float64) models.MSymbolReturn {
	return models.MSymbolReturn{Symbol: symbol, ReturnPct: null.FloatFrom(v)}
}

func TestTopBottomNeverOverlap(t *testing.T) {
	sorted := SortReturns([]models.MSymbolReturn{
		ret("A", 5), ret("B", -1), ret("C", 12), ret("D", 0), ret("E", 3), ret("F", -7),
		{Symbol: "G"},
	})
	require.Len(t, sorted, 6)

	top, bottom := TopBottom(sorted, 3)
	assert.Equal(t, []string{"C", "A", "E"}, symbols(top))
	assert.Equal(t, []string{"F", "B", "D"}, symbols(bottom))

	top, bottom = TopBottom(sorted[:5], 3)
	assert.Len(t, top, 2)
	assert.Len(t, bottom, 2)
	assert.Equal(t, []string{"B", "D"}, symbols(bottom))
}

func TestSortReturnsTieBreak(t *testing.T) {
	sorted := SortReturns([]models.MSymbolReturn{ret("ZZZ", 1), ret("AAA", 1), ret("MMM", 2)})
	assert.Equal(t, []string{"MMM", "AAA", "ZZZ"}, symbols(sorted))
}

func symbols(in []models.MSymbolReturn) []string {
	out := make([]string, len(in))
	for i, r := range in {
		out[i] = r.Symbol
	}
	return out
}

func TestCrossSectionalMeanForwardFillsOnly(t *testing.T) {
	a := DatedCloses{
		Dates:  []time.Time{d("2024-01-01"), d("2024-01-02"), d("2024-01-03")},
		Closes: []float64{100, 110, 120},
	}
	// B starts late and misses the 3rd
	b := DatedCloses{
		Dates:  []time.Time{d("2024-01-02"), d("2024-01-04")},
		Closes: []float64{50, 60},
	}
	out := CrossSectionalMean([]DatedCloses{a, b})
	require.Len(t, out, 4)

	assert.Equal(t, 1, out[0].Count)
	assert.InDelta(t, 0.0, out[0].Value, 1e-9)

	assert.Equal(t, 2, out[1].Count)
	assert.InDelta(t, 5.0, out[1].Value, 1e-9)

	// B forward-filled at 0%
	assert.Equal(t, 2, out[2].Count)
	assert.InDelta(t, 10.0, out[2].Value, 1e-9)

	// A forward-filled at 20%, B at 20%
	assert.Equal(t, 2, out[3].Count)
	assert.InDelta(t, 20.0, out[3].Value, 1e-9)
	assert.Equal(t, d("2024-01-04"), out[3].TradeDate)
}

func TestCrossSectionalMeanEmpty(t *testing.T) {
	assert.Nil(t, CrossSectionalMean(nil))
	assert.Nil(t, CrossSectionalMean([]DatedCloses{{}}))
}

func TestRebaseOnTimelineKeepsInputOrder(t *testing.T) {
	a := DatedCloses{
		Dates:  []time.Time{d("2024-01-01"), d("2024-01-03")},
		Closes: []float64{100, 90},
	}
	b := DatedCloses{
		Dates:  []time.Time{d("2024-01-02"), d("2024-01-03")},
		Closes: []float64{20, 30},
	}
	zero := DatedCloses{Dates: []time.Time{d("2024-01-05")}, Closes: []float64{0}}

	timeline, values := RebaseOnTimeline([]DatedCloses{b, zero, a})
	require.Equal(t, []time.Time{d("2024-01-01"), d("2024-01-02"), d("2024-01-03")}, timeline)
	require.Len(t, values, 3)

	assert.False(t, values[0][0].Valid)
	assert.InDelta(t, 0.0, values[0][1].Float64, 1e-9)
	assert.InDelta(t, 50.0, values[0][2].Float64, 1e-9)

	for _, v := range values[1] {
		assert.False(t, v.Valid)
	}

	// A has no bar on the 2nd and carries 0% forward
	assert.InDelta(t, 0.0, values[2][0].Float64, 1e-9)
	assert.True(t, values[2][1].Valid)
	assert.InDelta(t, 0.0, values[2][1].Float64, 1e-9)
	assert.InDelta(t, -10.0, values[2][2].Float64, 1e-9)
}
