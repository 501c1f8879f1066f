package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovingAveragePartialWindows(t *testing.T) {
	ma := MovingAverage([]float64{2, 4, 6, 8, 10}, 3)
	require.Len(t, ma, 5)
	assert.InDelta(t, 2.0, ma[0], 1e-12)
	assert.InDelta(t, 3.0, ma[1], 1e-12)
	assert.InDelta(t, 4.0, ma[2], 1e-12)
	assert.InDelta(t, 6.0, ma[3], 1e-12)
	assert.InDelta(t, 8.0, ma[4], 1e-12)
}

func TestMovingAverageWindowBoundary(t *testing.T) {
	values := make([]float64, 31)
	for i := range values {
		values[i] = float64(i + 1)
	}
	ma := MovingAverage(values, 30)
	// row 30 (index 29) averages 1..30, row 31 drops the first value
	assert.InDelta(t, 15.5, ma[29], 1e-12)
	assert.InDelta(t, 16.5, ma[30], 1e-12)
	assert.Empty(t, MovingAverage(nil, 30))
}

func TestPeriodReturn(t *testing.T) {
	r := PeriodReturn(100, 110)
	require.True(t, r.Valid)
	assert.InDelta(t, 10.0, r.Float64, 1e-12)

	assert.False(t, PeriodReturn(0, 110).Valid)
	assert.False(t, PeriodReturn(math.NaN(), 110).Valid)
	assert.False(t, ChangePercent(math.Inf(1), 1).Valid)
}

func TestSimpleReturnsAndTurnover(t *testing.T) {
	r := SimpleReturns([]float64{100, 110, 99})
	require.Len(t, r, 2)
	assert.InDelta(t, 0.10, r[0], 1e-12)
	assert.InDelta(t, -0.10, r[1], 1e-12)
	assert.Nil(t, SimpleReturns([]float64{100}))

	assert.InDelta(t, 10*5+20*2, Turnover([]float64{10, 20}, []int64{5, 2}), 1e-12)
}
