package snapshot

import (
	"context"
	"sync"
	"testing"
	"time"

	"market-analytics/src/models"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func point(symbol, date string, close float64, sector, industry string) models.MPricePoint {
	p := models.MPricePoint{
		Dataset:   "sp500",
		Symbol:    symbol,
		Name:      symbol,
		TradeDate: day(date),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    100,
	}
	if sector != "" {
		p.Sector = null.StringFrom(sector)
	}
	if industry != "" {
		p.Industry = null.StringFrom(industry)
	}
	return p
}

func samplePoints() []models.MPricePoint {
	return []models.MPricePoint{
		point("AAA", "2024-01-02", 100, "Tech", "Software"),
		point("AAA", "2024-01-03", 110, "Tech", "Software"),
		point("BBB", "2024-01-03", 50, "Tech", "Hardware"),
		point("CCC", "2024-01-02", 20, "", ""),
		point("CCC", "2024-01-03", 22, "", ""),
	}
}

func TestBuildLatestView(t *testing.T) {
	snap, err := Build(context.Background(), "sp500", samplePoints(), BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, snap.Symbols())
	assert.Equal(t, day("2024-01-03"), snap.LatestDate)
	assert.Equal(t, day("2024-01-02"), snap.FirstDate)
	assert.Len(t, snap.Dates(), 2)
	assert.Equal(t, 5, snap.Rows)

	aaa, ok := snap.LatestFor("AAA")
	require.True(t, ok)
	assert.Equal(t, 110.0, aaa.Close)
	assert.Equal(t, 100.0, aaa.PrevClose.Float64)
	assert.InDelta(t, 10.0, aaa.DailyChangePct.Float64, 1e-9)

	bbb, _ := snap.LatestFor("BBB")
	assert.False(t, bbb.PrevClose.Valid)
	assert.False(t, bbb.DailyChangePct.Valid)
}

func TestBuildRejectsEmpty(t *testing.T) {
	_, err := Build(context.Background(), "sp500", nil, BuildOptions{})
	assert.Error(t, err)
	_, err = BuildPartial(nil, "sp500", nil, BuildOptions{})
	assert.Error(t, err)
}

func TestBuildPrecomputesGroups(t *testing.T) {
	snap, err := Build(context.Background(), "sp500", samplePoints(), BuildOptions{PrecomputeGroups: true})
	require.NoError(t, err)
	require.True(t, snap.HasPrecomputed())

	tech, ok := snap.PrecomputedGroup(GroupBySector, "Tech")
	require.True(t, ok)
	require.Len(t, tech, 2)
	assert.Equal(t, 1, tech[0].Count)
	assert.Equal(t, 2, tech[1].Count)
	assert.InDelta(t, 5.0, tech[1].Value, 1e-9)

	_, ok = snap.PrecomputedGroup(GroupByIndustry, "Software")
	assert.True(t, ok)
	_, ok = snap.PrecomputedGroup(GroupBySector, "")
	assert.False(t, ok)
}

func TestBuildPartialSharesHistory(t *testing.T) {
	full, err := Build(context.Background(), "sp500", samplePoints(), BuildOptions{PrecomputeGroups: true})
	require.NoError(t, err)

	latest := []models.MPricePoint{
		point("AAA", "2024-01-04", 121, "Tech", "Software"),
		point("DDD", "2024-01-04", 10, "Energy", "Oil"),
	}
	part, err := BuildPartial(full, "sp500", latest, BuildOptions{})
	require.NoError(t, err)

	assert.True(t, part.Partial)
	assert.Equal(t, day("2024-01-04"), part.LatestDate)

	aaa, _ := part.LatestFor("AAA")
	assert.Equal(t, 121.0, aaa.Close)
	assert.Equal(t, 110.0, aaa.PrevClose.Float64)
	assert.InDelta(t, 10.0, aaa.DailyChangePct.Float64, 1e-9)

	// untouched symbols keep their previous latest row
	ccc, _ := part.LatestFor("CCC")
	assert.Equal(t, 22.0, ccc.Close)

	ddd, ok := part.LatestFor("DDD")
	require.True(t, ok)
	assert.False(t, ddd.PrevClose.Valid)

	// history is shared, not copied
	oldSer, _ := full.Series("AAA")
	newSer, _ := part.Series("AAA")
	assert.Same(t, oldSer, newSer)
	assert.True(t, part.HasPrecomputed())

	// the previous snapshot is untouched
	prevAAA, _ := full.LatestFor("AAA")
	assert.Equal(t, 110.0, prevAAA.Close)
	_, ok = full.Series("DDD")
	assert.False(t, ok)
}

func TestBuildPartialRerunUsesCloseStrictlyBefore(t *testing.T) {
	full, err := Build(context.Background(), "sp500", samplePoints(), BuildOptions{})
	require.NoError(t, err)

	part, err := BuildPartial(full, "sp500", []models.MPricePoint{point("AAA", "2024-01-03", 111, "Tech", "Software")}, BuildOptions{})
	require.NoError(t, err)
	aaa, _ := part.LatestFor("AAA")
	assert.Equal(t, 100.0, aaa.PrevClose.Float64)
}

func TestSeriesWindow(t *testing.T) {
	snap, _ := Build(context.Background(), "sp500", samplePoints(), BuildOptions{})
	ser, _ := snap.Series("AAA")

	lo, hi := ser.Window(models.MDateRange{Start: day("2024-01-03"), End: day("2024-01-10")})
	assert.Equal(t, 1, lo)
	assert.Equal(t, 2, hi)

	lo, hi = ser.Window(models.MDateRange{Start: day("2023-01-01"), End: day("2023-12-31")})
	assert.Equal(t, lo, hi)
}

func TestStoreInstallIsAtomic(t *testing.T) {
	store := NewStore()
	assert.Nil(t, store.Get("sp500"))

	first, _ := Build(context.Background(), "sp500", samplePoints(), BuildOptions{})
	v1 := store.Install(first)
	held := store.Get("sp500")

	second, _ := Build(context.Background(), "sp500", samplePoints()[:2], BuildOptions{})
	v2 := store.Install(second)

	assert.Greater(t, v2, v1)
	assert.Same(t, first, held)
	assert.Len(t, held.Symbols(), 3)
	assert.Same(t, second, store.Get("sp500"))
	assert.Equal(t, []string{"sp500"}, store.Datasets())
}

func TestStoreConcurrentReaders(t *testing.T) {
	store := NewStore()
	snap, _ := Build(context.Background(), "sp500", samplePoints(), BuildOptions{})
	store.Install(snap)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s := store.Get("sp500")
				if assert.NotNil(t, s) {
					assert.Equal(t, len(s.Symbols()), len(s.Latest()))
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		next, _ := Build(context.Background(), "sp500", samplePoints(), BuildOptions{})
		store.Install(next)
	}
	wg.Wait()
}

func TestStoreFindSymbol(t *testing.T) {
	store := NewStore()
	snap, _ := Build(context.Background(), "sp500", samplePoints(), BuildOptions{})
	store.Install(snap)

	found, ok := store.FindSymbol("BBB")
	require.True(t, ok)
	assert.Equal(t, "sp500", found.Dataset)
	_, ok = store.FindSymbol("ZZZ")
	assert.False(t, ok)
}
