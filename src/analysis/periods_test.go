package analysis

import (
	"testing"

	"market-analytics/src/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRelativePeriods(t *testing.T) {
	first := day("2019-01-02")
	latest := day("2024-06-14")

	r, err := ResolveRange(first, latest, PeriodQuery{Period: "1mo"})
	require.NoError(t, err)
	assert.Equal(t, day("2024-05-15"), r.Start)
	assert.Equal(t, latest, r.End)

	r, err = ResolveRange(first, latest, PeriodQuery{Period: "5Y"})
	require.NoError(t, err)
	assert.Equal(t, latest.AddDate(0, 0, -1825), r.Start)

	r, err = ResolveRange(first, latest, PeriodQuery{Period: "max"})
	require.NoError(t, err)
	assert.Equal(t, first, r.Start)

	r, err = ResolveRange(first, latest, PeriodQuery{Period: "ytd"})
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-01"), r.Start)
}

func TestResolveExplicitRange(t *testing.T) {
	first := day("2019-01-02")
	latest := day("2024-06-14")

	r, err := ResolveRange(first, latest, PeriodQuery{Start: "2024-01-01", End: "2024-03-31"})
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-01"), r.Start)
	assert.Equal(t, day("2024-03-31"), r.End)

	r, err = ResolveRange(first, latest, PeriodQuery{Start: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, latest, r.End)
}

func TestResolveRejectsBadInput(t *testing.T) {
	first, latest := day("2019-01-02"), day("2024-06-14")
	for _, q := range []PeriodQuery{
		{Period: "2w"},
		{Period: ""},
		{Start: "2024-13-01"},
		{Start: "2024-03-01", End: "2024-02-01"},
	} {
		_, err := ResolveRange(first, latest, q)
		assert.True(t, helpers.IsInvalidParameter(err), "%+v", q)
	}
	assert.Error(t, ValidatePeriod(PeriodQuery{Period: "forever"}))
	assert.NoError(t, ValidatePeriod(PeriodQuery{Period: "1y"}))
}

func TestPeriodCacheKey(t *testing.T) {
	assert.Equal(t, "period=1y", PeriodQuery{Period: "1Y"}.CacheKey())
	assert.Equal(t, "range=2024-01-01..", PeriodQuery{Start: "2024-01-01"}.CacheKey())
	assert.Equal(t, "period=max&interval=1wk", PeriodQuery{Period: "max", Interval: "1WK"}.CacheKey())
}
