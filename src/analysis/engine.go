package analysis

import (
	"sort"
	"time"

	"market-analytics/src/analysis/core"
	"market-analytics/src/helpers"
	"market-analytics/src/models"
	"market-analytics/src/snapshot"
)

// Engine answers analytical queries against snapshots. It holds no state of
// its own and never modifies a snapshot.
type Engine struct {
	ShortWindow int
	LongWindow  int
	TradingDays int
}

// DatasetRange pairs a snapshot with a range resolved against it
type DatasetRange struct {
	Snap  *snapshot.Snapshot
	Range models.MDateRange
}

func NewEngine(cfg models.MAnalyticsConfig) *Engine {
	return &Engine{
		ShortWindow: cfg.ShortWindow,
		LongWindow:  cfg.LongWindow,
		TradingDays: cfg.TradingDays,
	}
}

// -----------------------------------------------------------------------------

// LatestSummary returns the latest view of a dataset
func (e *Engine) LatestSummary(snap *snapshot.Snapshot) models.MSummary {
	return models.MSummary{
		Dataset:    snap.Dataset,
		LatestDate: snap.LatestDate,
		Version:    snap.Version,
		Partial:    snap.Partial,
		Rows:       snap.Latest(),
	}
}

// -----------------------------------------------------------------------------

// Series returns the bars of a symbol inside r with trailing averages. The
// averages run over the whole history so the first bars of the range are not
// averaged over a truncated window.
func (e *Engine) Series(snap *snapshot.Snapshot, symbol string, r models.MDateRange) (models.MSymbolSeries, error) {
	ser, ok := snap.Series(symbol)
	if !ok {
		return models.MSymbolSeries{}, helpers.NewNoDataError("symbol %s not found in %s", symbol, snap.Dataset)
	}
	lo, hi := ser.Window(r)
	if lo >= hi {
		return models.MSymbolSeries{}, helpers.NewNoDataError("no data for %s between %s and %s", symbol, r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	}

	maShort := core.MovingAverage(ser.Close[:hi], e.ShortWindow)
	maLong := core.MovingAverage(ser.Close[:hi], e.LongWindow)

	points := make([]models.MSeriesPoint, 0, hi-lo)
	for i := lo; i < hi; i++ {
		points = append(points, models.MSeriesPoint{
			TradeDate: ser.Dates[i],
			Open:      ser.Open[i],
			High:      ser.High[i],
			Low:       ser.Low[i],
			Close:     ser.Close[i],
			Volume:    ser.Volume[i],
			MAShort:   maShort[i],
			MALong:    maLong[i],
		})
	}
	return models.MSymbolSeries{
		Dataset:     snap.Dataset,
		Symbol:      ser.Symbol,
		Name:        ser.Name,
		ShortWindow: e.ShortWindow,
		LongWindow:  e.LongWindow,
		Range:       r,
		Points:      points,
	}, nil
}

// -----------------------------------------------------------------------------

// Returns computes the period return of every symbol with at least one bar in
// r. filter may be nil.
func (e *Engine) Returns(snap *snapshot.Snapshot, r models.MDateRange, filter func(*snapshot.Series) bool) []models.MSymbolReturn {
	var out []models.MSymbolReturn
	snap.EachSeries(func(ser *snapshot.Series) {
		if filter != nil && !filter(ser) {
			return
		}
		lo, hi := ser.Window(r)
		if lo >= hi {
			return
		}
		out = append(out, models.MSymbolReturn{
			Dataset:    snap.Dataset,
			Symbol:     ser.Symbol,
			Name:       ser.Name,
			Sector:     ser.Sector,
			Industry:   ser.Industry,
			FirstDate:  ser.Dates[lo],
			LastDate:   ser.Dates[hi-1],
			FirstClose: ser.Close[lo],
			LastClose:  ser.Close[hi-1],
			ReturnPct:  core.PeriodReturn(ser.Close[lo], ser.Close[hi-1]),
		})
	})
	return out
}

// -----------------------------------------------------------------------------

// Rankings returns the n best and n worst performers of a dataset in r
func (e *Engine) Rankings(snap *snapshot.Snapshot, r models.MDateRange, n int) (models.MRanking, error) {
	if n < 1 {
		return models.MRanking{}, helpers.NewInvalidParameterError("top n must be positive, got %d", n)
	}
	sorted := core.SortReturns(e.Returns(snap, r, nil))
	if len(sorted) == 0 {
		return models.MRanking{}, helpers.NewNoDataError("no returns for %s in range", snap.Dataset)
	}
	top, bottom := core.TopBottom(sorted, n)
	return models.MRanking{Dataset: snap.Dataset, Range: r, Top: top, Bottom: bottom}, nil
}

// -----------------------------------------------------------------------------

type groupStat struct {
	sum   float64
	count int
}

// rollup averages defined returns per group. Unknown categories are skipped.
func rollup(returns []models.MSymbolReturn, groupBy string) map[string]*groupStat {
	out := make(map[string]*groupStat)
	for _, r := range returns {
		if !r.ReturnPct.Valid {
			continue
		}
		key := r.Sector
		if groupBy == snapshot.GroupByIndustry {
			key = r.Industry
		}
		if !key.Valid {
			continue
		}
		st, ok := out[key.String]
		if !ok {
			st = &groupStat{}
			out[key.String] = st
		}
		st.sum += r.ReturnPct.Float64
		st.count++
	}
	return out
}

func sortGroupRows(rows []models.MGroupRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].MeanReturnPct != rows[j].MeanReturnPct {
			return rows[i].MeanReturnPct > rows[j].MeanReturnPct
		}
		return rows[i].Name < rows[j].Name
	})
}

// -----------------------------------------------------------------------------

// GroupTable rolls returns up by sector or industry across datasets. Groups
// with fewer than minGroupSize symbols in a dataset are left out of that
// dataset's contribution. sector, when set, restricts to one sector.
func (e *Engine) GroupTable(inputs []DatasetRange, groupBy, sector string, minGroupSize int) (models.MSectorTable, error) {
	if groupBy != snapshot.GroupBySector && groupBy != snapshot.GroupByIndustry {
		return models.MSectorTable{}, helpers.NewInvalidParameterError("unknown grouping %q", groupBy)
	}
	if minGroupSize < 1 {
		return models.MSectorTable{}, helpers.NewInvalidParameterError("min group size must be positive, got %d", minGroupSize)
	}

	table := models.MSectorTable{
		GroupBy:      groupBy,
		Ranges:       make(map[string]models.MDateRange, len(inputs)),
		MinGroupSize: minGroupSize,
		Rows:         []models.MGroupRow{},
	}
	rows := make(map[string]*models.MGroupRow)
	anyData := false

	for _, in := range inputs {
		table.Datasets = append(table.Datasets, in.Snap.Dataset)
		table.Ranges[in.Snap.Dataset] = in.Range

		returns := e.Returns(in.Snap, in.Range, sectorFilter(sector))
		if len(returns) > 0 {
			anyData = true
		}
		for name, st := range rollup(returns, groupBy) {
			if st.count < minGroupSize {
				continue
			}
			row, ok := rows[name]
			if !ok {
				row = &models.MGroupRow{Name: name}
				rows[name] = row
			}
			row.PerDataset = append(row.PerDataset, models.MGroupReturn{
				Dataset:       in.Snap.Dataset,
				MeanReturnPct: st.sum / float64(st.count),
				SymbolCount:   st.count,
			})
			row.SymbolCount += st.count
		}
	}
	if !anyData {
		return models.MSectorTable{}, helpers.NewNoDataError("no returns in range for %v", table.Datasets)
	}

	for _, row := range rows {
		means := make([]float64, len(row.PerDataset))
		for i, pd := range row.PerDataset {
			means[i] = pd.MeanReturnPct
		}
		row.MeanReturnPct = core.Mean(means)
		table.Rows = append(table.Rows, *row)
	}
	sortGroupRows(table.Rows)
	return table, nil
}

// SectorTable is GroupTable by sector across all inputs
func (e *Engine) SectorTable(inputs []DatasetRange, minGroupSize int) (models.MSectorTable, error) {
	return e.GroupTable(inputs, snapshot.GroupBySector, "", minGroupSize)
}

func sectorFilter(sector string) func(*snapshot.Series) bool {
	if sector == "" {
		return nil
	}
	return func(ser *snapshot.Series) bool {
		return ser.Sector.Valid && ser.Sector.String == sector
	}
}

// -----------------------------------------------------------------------------

// IndustryBreakdown rolls up the industries of one sector with their turnover
func (e *Engine) IndustryBreakdown(snap *snapshot.Snapshot, sector string, r models.MDateRange, minGroupSize int) (models.MIndustryBreakdown, error) {
	if sector == "" {
		return models.MIndustryBreakdown{}, helpers.NewInvalidParameterError("sector is required")
	}
	table, err := e.GroupTable([]DatasetRange{{Snap: snap, Range: r}}, snapshot.GroupByIndustry, sector, minGroupSize)
	if err != nil {
		return models.MIndustryBreakdown{}, err
	}
	turnover, err := e.Turnover(snap, sector, r)
	if err != nil {
		return models.MIndustryBreakdown{}, err
	}
	byIndustry := make(map[string]float64, len(turnover))
	for _, t := range turnover {
		byIndustry[t.Industry] = t.Turnover
	}

	out := models.MIndustryBreakdown{
		Dataset:      snap.Dataset,
		Sector:       sector,
		Range:        r,
		MinGroupSize: minGroupSize,
		Rows:         make([]models.MIndustryRow, 0, len(table.Rows)),
	}
	for _, row := range table.Rows {
		out.Rows = append(out.Rows, models.MIndustryRow{
			Industry:      row.Name,
			MeanReturnPct: row.MeanReturnPct,
			SymbolCount:   row.SymbolCount,
			Turnover:      byIndustry[row.Name],
		})
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// Turnover sums close*volume per industry inside r, largest first. sector may
// be empty for the whole dataset.
func (e *Engine) Turnover(snap *snapshot.Snapshot, sector string, r models.MDateRange) ([]models.MTurnoverRow, error) {
	totals := make(map[string]float64)
	seen := false
	snap.EachSeries(func(ser *snapshot.Series) {
		if f := sectorFilter(sector); f != nil && !f(ser) {
			return
		}
		lo, hi := ser.Window(r)
		if lo >= hi {
			return
		}
		seen = true
		if !ser.Industry.Valid {
			return
		}
		totals[ser.Industry.String] += core.Turnover(ser.Close[lo:hi], ser.Volume[lo:hi])
	})
	if !seen {
		return nil, helpers.NewNoDataError("no bars in range for %s", snap.Dataset)
	}

	out := make([]models.MTurnoverRow, 0, len(totals))
	for industry, total := range totals {
		out = append(out, models.MTurnoverRow{Industry: industry, Turnover: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Turnover != out[j].Turnover {
			return out[i].Turnover > out[j].Turnover
		}
		return out[i].Industry < out[j].Industry
	})
	return out, nil
}

// -----------------------------------------------------------------------------

// Volatility is the annualized sample deviation of daily returns in r
func (e *Engine) Volatility(snap *snapshot.Snapshot, symbol string, r models.MDateRange) (models.MVolatility, error) {
	ser, ok := snap.Series(symbol)
	if !ok {
		return models.MVolatility{}, helpers.NewNoDataError("symbol %s not found in %s", symbol, snap.Dataset)
	}
	lo, hi := ser.Window(r)
	if lo >= hi {
		return models.MVolatility{}, helpers.NewNoDataError("no data for %s in range", symbol)
	}
	vol, n := core.AnnualizedVolatility(ser.Close[lo:hi], e.TradingDays)
	return models.MVolatility{
		Dataset:     snap.Dataset,
		Symbol:      symbol,
		Range:       r,
		Returns:     n,
		Annualized:  vol,
		TradingDays: e.TradingDays,
	}, nil
}

// -----------------------------------------------------------------------------

// GroupSeries builds the normalized comparison line of each requested sector
// or industry, or of all of them when keys is empty. sector narrows industry
// lines to one sector. Full-history requests on a fully built snapshot use the
// series precomputed at build time.
func (e *Engine) GroupSeries(snap *snapshot.Snapshot, groupBy string, keys []string, sector string, r models.MDateRange) ([]models.MGroupSeries, error) {
	if groupBy != snapshot.GroupBySector && groupBy != snapshot.GroupByIndustry {
		return nil, helpers.NewInvalidParameterError("unknown grouping %q", groupBy)
	}

	fullHistory := !r.Start.After(snap.FirstDate) && !r.End.Before(snap.LatestDate)
	usePrecomputed := fullHistory && !snap.Partial && sector == ""

	// no keys means every group
	if len(keys) == 0 {
		if usePrecomputed && snap.HasPrecomputed() {
			keys = snap.PrecomputedKeys(groupBy)
		} else {
			for _, g := range e.Groups([]*snapshot.Snapshot{snap}, groupBy, sector) {
				keys = append(keys, g.Name)
			}
		}
	}

	out := make([]models.MGroupSeries, 0, len(keys))
	for _, key := range keys {
		gs := models.MGroupSeries{Dataset: snap.Dataset, GroupBy: groupBy, Key: key}
		if pts, ok := snap.PrecomputedGroup(groupBy, key); usePrecomputed && ok {
			gs.Points = pts
		} else {
			var members []core.DatedCloses
			snap.EachSeries(func(ser *snapshot.Series) {
				k := snapshot.GroupKey(ser, groupBy)
				if !k.Valid || k.String != key {
					return
				}
				if f := sectorFilter(sector); f != nil && !f(ser) {
					return
				}
				lo, hi := ser.Window(r)
				if lo >= hi {
					return
				}
				members = append(members, core.DatedCloses{Dates: ser.Dates[lo:hi], Closes: ser.Close[lo:hi]})
			})
			gs.Points = core.CrossSectionalMean(members)
		}
		if gs.Points == nil {
			gs.Points = []models.MNormalizedPoint{}
		}
		out = append(out, gs)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// Groups lists the sectors (or the industries of one sector) with symbol counts
func (e *Engine) Groups(snaps []*snapshot.Snapshot, groupBy, sector string) []models.MGroupCount {
	counts := make(map[string]int)
	for _, snap := range snaps {
		snap.EachSeries(func(ser *snapshot.Series) {
			if f := sectorFilter(sector); f != nil && !f(ser) {
				return
			}
			if k := snapshot.GroupKey(ser, groupBy); k.Valid {
				counts[k.String]++
			}
		})
	}
	out := make([]models.MGroupCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, models.MGroupCount{Name: name, SymbolCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// -----------------------------------------------------------------------------

// TopGroups returns the n best and n worst groups of a rollup
func (e *Engine) TopGroups(inputs []DatasetRange, groupBy string, n, minGroupSize int) (models.MTopGroups, error) {
	if n < 1 {
		return models.MTopGroups{}, helpers.NewInvalidParameterError("top n must be positive, got %d", n)
	}
	table, err := e.GroupTable(inputs, groupBy, "", minGroupSize)
	if err != nil {
		return models.MTopGroups{}, err
	}
	k := core.SplitSize(n, len(table.Rows))
	out := models.MTopGroups{
		GroupBy:  groupBy,
		Datasets: table.Datasets,
		Ranges:   table.Ranges,
		Best:     append([]models.MGroupRow{}, table.Rows[:k]...),
		Worst:    make([]models.MGroupRow, 0, k),
	}
	for i := len(table.Rows) - 1; i >= len(table.Rows)-k; i-- {
		out.Worst = append(out.Worst, table.Rows[i])
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// SectorTopStocks ranks the symbols of one sector across datasets
func (e *Engine) SectorTopStocks(inputs []DatasetRange, sector string, n int) (models.MRanking, error) {
	if sector == "" {
		return models.MRanking{}, helpers.NewInvalidParameterError("sector is required")
	}
	if n < 1 {
		return models.MRanking{}, helpers.NewInvalidParameterError("top n must be positive, got %d", n)
	}
	var all []models.MSymbolReturn
	ranges := make(map[string]models.MDateRange, len(inputs))
	for _, in := range inputs {
		ranges[in.Snap.Dataset] = in.Range
		all = append(all, e.Returns(in.Snap, in.Range, sectorFilter(sector))...)
	}
	sorted := core.SortReturns(all)
	if len(sorted) == 0 {
		return models.MRanking{}, helpers.NewNoDataError("no returns for sector %s", sector)
	}
	top, bottom := core.TopBottom(sorted, n)
	return models.MRanking{Sector: sector, Ranges: ranges, Top: top, Bottom: bottom}, nil
}

// -----------------------------------------------------------------------------

// CompareSymbols lays several symbols on one forward-filled timeline, each
// rebased to its own first close inside r
func (e *Engine) CompareSymbols(snap *snapshot.Snapshot, symbols []string, r models.MDateRange) (models.MSymbolComparison, error) {
	if len(symbols) == 0 {
		return models.MSymbolComparison{}, helpers.NewInvalidParameterError("at least one symbol is required")
	}

	lines := make([]models.MComparisonLine, 0, len(symbols))
	members := make([]core.DatedCloses, 0, len(symbols))
	for _, sym := range symbols {
		ser, ok := snap.Series(sym)
		if !ok {
			return models.MSymbolComparison{}, helpers.NewNoDataError("symbol %s not found in %s", sym, snap.Dataset)
		}
		lo, hi := ser.Window(r)
		lines = append(lines, models.MComparisonLine{Symbol: ser.Symbol, Name: ser.Name})
		members = append(members, core.DatedCloses{Dates: ser.Dates[lo:hi], Closes: ser.Close[lo:hi]})
	}

	dates, values := core.RebaseOnTimeline(members)
	if len(dates) == 0 {
		return models.MSymbolComparison{}, helpers.NewNoDataError("no bars in range for %v", symbols)
	}
	for i := range lines {
		lines[i].Values = values[i]
	}
	return models.MSymbolComparison{Dataset: snap.Dataset, Range: r, Dates: dates, Lines: lines}, nil
}

// CompareStats is SymbolStats for each symbol, in the order given
func (e *Engine) CompareStats(snap *snapshot.Snapshot, symbols []string, r models.MDateRange) ([]models.MSymbolStats, error) {
	if len(symbols) == 0 {
		return nil, helpers.NewInvalidParameterError("at least one symbol is required")
	}
	out := make([]models.MSymbolStats, 0, len(symbols))
	for _, sym := range symbols {
		stats, err := e.SymbolStats(snap, sym, r)
		if err != nil {
			return nil, err
		}
		out = append(out, stats)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// SymbolStats gathers the headline figures of one symbol
func (e *Engine) SymbolStats(snap *snapshot.Snapshot, symbol string, r models.MDateRange) (models.MSymbolStats, error) {
	ser, ok := snap.Series(symbol)
	if !ok {
		return models.MSymbolStats{}, helpers.NewNoDataError("symbol %s not found in %s", symbol, snap.Dataset)
	}
	latest, ok := snap.LatestFor(symbol)
	if !ok {
		return models.MSymbolStats{}, helpers.NewNoDataError("symbol %s has no latest row", symbol)
	}

	stats := models.MSymbolStats{
		Dataset:        snap.Dataset,
		Symbol:         symbol,
		Name:           ser.Name,
		Range:          r,
		CurrentPrice:   latest.Close,
		PrevClose:      latest.PrevClose,
		DailyChangePct: latest.DailyChangePct,
	}

	if lo, hi := ser.Window(r); lo < hi {
		stats.PeriodReturn = core.PeriodReturn(ser.Close[lo], ser.Close[hi-1])
		stats.Volatility, _ = core.AnnualizedVolatility(ser.Close[lo:hi], e.TradingDays)
	}

	asOf := latest.TradeDate
	ytd := models.MDateRange{Start: time.Date(asOf.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), End: asOf}
	if lo, hi := ser.Window(ytd); lo < hi {
		stats.YTDReturn = core.PeriodReturn(ser.Close[lo], latest.Close)
	}

	year := models.MDateRange{Start: asOf.AddDate(-1, 0, 0), End: asOf}
	lo, hi := ser.Window(year)
	stats.High52W, stats.Low52W = latest.High, latest.Low
	for i := lo; i < hi; i++ {
		if ser.High[i] > stats.High52W {
			stats.High52W = ser.High[i]
		}
		if ser.Low[i] < stats.Low52W {
			stats.Low52W = ser.Low[i]
		}
	}
	return stats, nil
}
