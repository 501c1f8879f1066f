package analysis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"market-analytics/src/cache"
	"market-analytics/src/helpers"
	"market-analytics/src/interfaces"
	"market-analytics/src/logger"
	"market-analytics/src/models"
	"market-analytics/src/snapshot"
)

// AnalysisFacade is what the outer surfaces call: it resolves datasets and
// periods, routes through the response cache and runs the engine.
type AnalysisFacade struct {
	Config *models.MConfig
	Logger *logger.Logger
	Store  *snapshot.Store
	Engine *Engine

	cache   interfaces.IResponseCache
	trigger interfaces.IRefreshTrigger
}

// -----------------------------------------------------------------------------

func NewAnalysisFacade(cfg *models.MConfig, log *logger.Logger, store *snapshot.Store, responseCache interfaces.IResponseCache) *AnalysisFacade {
	return &AnalysisFacade{
		Config: cfg,
		Logger: log,
		Store:  store,
		Engine: NewEngine(cfg.Analytics),
		cache:  responseCache,
	}
}

// SetRefreshTrigger enables lazy loading of datasets on first query
func (a *AnalysisFacade) SetRefreshTrigger(trigger interfaces.IRefreshTrigger) {
	a.trigger = trigger
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) known(dataset string) bool {
	for _, ds := range a.Config.Datasets {
		if ds.Key == dataset {
			return true
		}
	}
	return false
}

// snapshotFor loads the current snapshot of a configured dataset. A dataset
// that was never hydrated starts a lazy refresh and reports no data.
func (a *AnalysisFacade) snapshotFor(dataset string) (*snapshot.Snapshot, error) {
	if dataset == "" {
		return nil, helpers.NewInvalidParameterError("dataset is required")
	}
	if !a.known(dataset) {
		return nil, helpers.NewInvalidParameterError("unknown dataset %q", dataset)
	}
	snap := a.Store.Get(dataset)
	if snap != nil {
		return snap, nil
	}
	if a.trigger != nil && a.Config.Refresh.LazyLoad {
		if ack, err := a.trigger.Refresh(dataset); err == nil {
			a.Logger.Info("lazy load of %s queued as job %s", dataset, ack.JobID)
		}
		return nil, helpers.NewNoDataError("dataset %s is loading, retry shortly", dataset)
	}
	return nil, helpers.NewNoDataError("dataset %s has no data yet", dataset)
}

// -----------------------------------------------------------------------------

// resolveDatasets validates a list, defaulting to every configured dataset
func (a *AnalysisFacade) resolveDatasets(datasets []string) ([]string, error) {
	if len(datasets) == 0 {
		datasets = make([]string, 0, len(a.Config.Datasets))
		for _, ds := range a.Config.Datasets {
			datasets = append(datasets, ds.Key)
		}
	}
	seen := make(map[string]bool, len(datasets))
	out := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		ds = strings.TrimSpace(ds)
		if seen[ds] {
			continue
		}
		if !a.known(ds) {
			return nil, helpers.NewInvalidParameterError("unknown dataset %q", ds)
		}
		seen[ds] = true
		out = append(out, ds)
	}
	sort.Strings(out)
	return out, nil
}

// inputsFor loads snapshots for several datasets and resolves q against each.
// Datasets without a snapshot are skipped unless none has one.
func (a *AnalysisFacade) inputsFor(datasets []string, q PeriodQuery) ([]DatasetRange, error) {
	var inputs []DatasetRange
	var lastErr error
	for _, ds := range datasets {
		snap, err := a.snapshotFor(ds)
		if err != nil {
			if helpers.IsInvalidParameter(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		r, err := ResolveRange(snap.FirstDate, snap.LatestDate, q)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, DatasetRange{Snap: snap, Range: r})
	}
	if len(inputs) == 0 {
		if lastErr == nil {
			lastErr = helpers.NewNoDataError("no datasets selected")
		}
		return nil, lastErr
	}
	return inputs, nil
}

// -----------------------------------------------------------------------------

// cached runs fn through the response cache. Snapshots must be loaded inside
// fn: the cache records dataset generations before calling it, so a result
// computed from a snapshot replaced mid-flight is never stored.
func (a *AnalysisFacade) cached(key string, datasets []string, fn func() (interface{}, error)) (interface{}, error) {
	if a.cache == nil {
		return fn()
	}
	return a.cache.GetOrCompute(key, datasets, 0, fn)
}

// onSnapshot adapts a single-dataset query into a cacheable computation
func (a *AnalysisFacade) onSnapshot(dataset string, q PeriodQuery, fn func(*snapshot.Snapshot, models.MDateRange) (interface{}, error)) func() (interface{}, error) {
	return func() (interface{}, error) {
		snap, err := a.snapshotFor(dataset)
		if err != nil {
			return nil, err
		}
		r, err := ResolveRange(snap.FirstDate, snap.LatestDate, q)
		if err != nil {
			return nil, err
		}
		return fn(snap, r)
	}
}

// onInputs adapts a multi-dataset query into a cacheable computation
func (a *AnalysisFacade) onInputs(datasets []string, q PeriodQuery, fn func([]DatasetRange) (interface{}, error)) func() (interface{}, error) {
	return func() (interface{}, error) {
		inputs, err := a.inputsFor(datasets, q)
		if err != nil {
			return nil, err
		}
		return fn(inputs)
	}
}

func (a *AnalysisFacade) topN(n int) int {
	if n == 0 {
		return a.Config.Analytics.DefaultTopN
	}
	return n
}

func (a *AnalysisFacade) minGroup(n int) int {
	if n == 0 {
		return a.Config.Analytics.MinGroupSize
	}
	return n
}

// -----------------------------------------------------------------------------

// LatestSummary is not cached: it is a direct read of the latest view and
// must reflect a partial hydration as soon as it is installed.
func (a *AnalysisFacade) LatestSummary(dataset string) (models.MSummary, error) {
	snap, err := a.snapshotFor(dataset)
	if err != nil {
		return models.MSummary{}, err
	}
	return a.Engine.LatestSummary(snap), nil
}

// -----------------------------------------------------------------------------

// symbolDataset finds the dataset holding symbol when none is given
func (a *AnalysisFacade) symbolDataset(dataset, symbol string) (string, error) {
	if symbol == "" {
		return "", helpers.NewInvalidParameterError("symbol is required")
	}
	if dataset != "" {
		return dataset, nil
	}
	snap, ok := a.Store.FindSymbol(symbol)
	if !ok {
		return "", helpers.NewNoDataError("symbol %s not found in any dataset", symbol)
	}
	return snap.Dataset, nil
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) Series(dataset, symbol string, q PeriodQuery) (models.MSymbolSeries, error) {
	dataset, err := a.symbolDataset(dataset, symbol)
	if err != nil {
		return models.MSymbolSeries{}, err
	}
	if err := ValidateInterval(q.Interval); err != nil {
		return models.MSymbolSeries{}, err
	}
	key := cache.Key("series", "dataset="+dataset, "symbol="+symbol, q.CacheKey())
	v, err := a.cached(key, []string{dataset}, a.onSnapshot(dataset, q, func(snap *snapshot.Snapshot, r models.MDateRange) (interface{}, error) {
		series, err := a.Engine.Series(snap, symbol, r)
		if err != nil {
			return nil, err
		}
		series.Interval = IntervalDaily
		if q.Interval != "" {
			series.Interval = strings.ToLower(q.Interval)
		}
		series.Points, err = Resample(series.Points, series.Interval)
		return series, err
	}))
	if err != nil {
		return models.MSymbolSeries{}, err
	}
	return v.(models.MSymbolSeries), nil
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) Rankings(dataset string, q PeriodQuery, n int) (models.MRanking, error) {
	n = a.topN(n)
	key := cache.Key("rankings", "dataset="+dataset, q.CacheKey(), "n="+strconv.Itoa(n))
	v, err := a.cached(key, []string{dataset}, a.onSnapshot(dataset, q, func(snap *snapshot.Snapshot, r models.MDateRange) (interface{}, error) {
		return a.Engine.Rankings(snap, r, n)
	}))
	if err != nil {
		return models.MRanking{}, err
	}
	return v.(models.MRanking), nil
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) SectorTable(datasets []string, q PeriodQuery, minGroupSize int) (models.MSectorTable, error) {
	datasets, err := a.resolveDatasets(datasets)
	if err != nil {
		return models.MSectorTable{}, err
	}
	minGroupSize = a.minGroup(minGroupSize)
	key := cache.Key("sector-table", "datasets="+strings.Join(datasets, ","), q.CacheKey(), "min="+strconv.Itoa(minGroupSize))
	v, err := a.cached(key, datasets, a.onInputs(datasets, q, func(inputs []DatasetRange) (interface{}, error) {
		return a.Engine.SectorTable(inputs, minGroupSize)
	}))
	if err != nil {
		return models.MSectorTable{}, err
	}
	return v.(models.MSectorTable), nil
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) IndustryBreakdown(dataset, sector string, q PeriodQuery, minGroupSize int) (models.MIndustryBreakdown, error) {
	minGroupSize = a.minGroup(minGroupSize)
	key := cache.Key("industry-breakdown", "dataset="+dataset, "sector="+sector, q.CacheKey(), "min="+strconv.Itoa(minGroupSize))
	v, err := a.cached(key, []string{dataset}, a.onSnapshot(dataset, q, func(snap *snapshot.Snapshot, r models.MDateRange) (interface{}, error) {
		return a.Engine.IndustryBreakdown(snap, sector, r, minGroupSize)
	}))
	if err != nil {
		return models.MIndustryBreakdown{}, err
	}
	return v.(models.MIndustryBreakdown), nil
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) Turnover(dataset, sector string, q PeriodQuery) ([]models.MTurnoverRow, error) {
	key := cache.Key("turnover", "dataset="+dataset, "sector="+sector, q.CacheKey())
	v, err := a.cached(key, []string{dataset}, a.onSnapshot(dataset, q, func(snap *snapshot.Snapshot, r models.MDateRange) (interface{}, error) {
		return a.Engine.Turnover(snap, sector, r)
	}))
	if err != nil {
		return nil, err
	}
	return v.([]models.MTurnoverRow), nil
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) Volatility(dataset, symbol string, q PeriodQuery) (models.MVolatility, error) {
	dataset, err := a.symbolDataset(dataset, symbol)
	if err != nil {
		return models.MVolatility{}, err
	}
	key := cache.Key("volatility", "dataset="+dataset, "symbol="+symbol, q.CacheKey())
	v, err := a.cached(key, []string{dataset}, a.onSnapshot(dataset, q, func(snap *snapshot.Snapshot, r models.MDateRange) (interface{}, error) {
		return a.Engine.Volatility(snap, symbol, r)
	}))
	if err != nil {
		return models.MVolatility{}, err
	}
	return v.(models.MVolatility), nil
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) GroupSeries(dataset, groupBy string, keys []string, sector string, q PeriodQuery) ([]models.MGroupSeries, error) {
	sorted := append([]string{}, keys...)
	sort.Strings(sorted)
	key := cache.Key("group-series", "dataset="+dataset, "group_by="+groupBy, "keys="+strings.Join(sorted, ","), "sector="+sector, q.CacheKey())
	v, err := a.cached(key, []string{dataset}, a.onSnapshot(dataset, q, func(snap *snapshot.Snapshot, r models.MDateRange) (interface{}, error) {
		return a.Engine.GroupSeries(snap, groupBy, sorted, sector, r)
	}))
	if err != nil {
		return nil, err
	}
	return v.([]models.MGroupSeries), nil
}

// -----------------------------------------------------------------------------

// Groups lists sectors, or the industries of sector, over the given datasets
func (a *AnalysisFacade) Groups(datasets []string, groupBy, sector string) ([]models.MGroupCount, error) {
	if groupBy != snapshot.GroupBySector && groupBy != snapshot.GroupByIndustry {
		return nil, helpers.NewInvalidParameterError("unknown grouping %q", groupBy)
	}
	datasets, err := a.resolveDatasets(datasets)
	if err != nil {
		return nil, err
	}
	key := cache.Key("groups", "datasets="+strings.Join(datasets, ","), "group_by="+groupBy, "sector="+sector)
	v, err := a.cached(key, datasets, a.onInputs(datasets, PeriodQuery{Period: PeriodMax}, func(inputs []DatasetRange) (interface{}, error) {
		snaps := make([]*snapshot.Snapshot, len(inputs))
		for i, in := range inputs {
			snaps[i] = in.Snap
		}
		return a.Engine.Groups(snaps, groupBy, sector), nil
	}))
	if err != nil {
		return nil, err
	}
	return v.([]models.MGroupCount), nil
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) TopGroups(datasets []string, groupBy string, q PeriodQuery, n, minGroupSize int) (models.MTopGroups, error) {
	datasets, err := a.resolveDatasets(datasets)
	if err != nil {
		return models.MTopGroups{}, err
	}
	n, minGroupSize = a.topN(n), a.minGroup(minGroupSize)
	key := cache.Key("top-groups", "datasets="+strings.Join(datasets, ","), "group_by="+groupBy, q.CacheKey(),
		fmt.Sprintf("n=%d", n), fmt.Sprintf("min=%d", minGroupSize))
	v, err := a.cached(key, datasets, a.onInputs(datasets, q, func(inputs []DatasetRange) (interface{}, error) {
		return a.Engine.TopGroups(inputs, groupBy, n, minGroupSize)
	}))
	if err != nil {
		return models.MTopGroups{}, err
	}
	return v.(models.MTopGroups), nil
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) SectorTopStocks(datasets []string, sector string, q PeriodQuery, n int) (models.MRanking, error) {
	datasets, err := a.resolveDatasets(datasets)
	if err != nil {
		return models.MRanking{}, err
	}
	n = a.topN(n)
	key := cache.Key("sector-top-stocks", "datasets="+strings.Join(datasets, ","), "sector="+sector, q.CacheKey(), "n="+strconv.Itoa(n))
	v, err := a.cached(key, datasets, a.onInputs(datasets, q, func(inputs []DatasetRange) (interface{}, error) {
		return a.Engine.SectorTopStocks(inputs, sector, n)
	}))
	if err != nil {
		return models.MRanking{}, err
	}
	return v.(models.MRanking), nil
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) SymbolStats(dataset, symbol string, q PeriodQuery) (models.MSymbolStats, error) {
	dataset, err := a.symbolDataset(dataset, symbol)
	if err != nil {
		return models.MSymbolStats{}, err
	}
	key := cache.Key("symbol-stats", "dataset="+dataset, "symbol="+symbol, q.CacheKey())
	v, err := a.cached(key, []string{dataset}, a.onSnapshot(dataset, q, func(snap *snapshot.Snapshot, r models.MDateRange) (interface{}, error) {
		return a.Engine.SymbolStats(snap, symbol, r)
	}))
	if err != nil {
		return models.MSymbolStats{}, err
	}
	return v.(models.MSymbolStats), nil
}

// -----------------------------------------------------------------------------

// compareSymbols trims and de-duplicates a symbol list, keeping its order, and
// picks the dataset of the first symbol when none is given
func (a *AnalysisFacade) compareSymbols(dataset string, symbols []string) (string, []string, error) {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) == 0 {
		return "", nil, helpers.NewInvalidParameterError("at least one symbol is required")
	}
	dataset, err := a.symbolDataset(dataset, out[0])
	return dataset, out, err
}

func (a *AnalysisFacade) CompareSymbols(dataset string, symbols []string, q PeriodQuery) (models.MSymbolComparison, error) {
	dataset, symbols, err := a.compareSymbols(dataset, symbols)
	if err != nil {
		return models.MSymbolComparison{}, err
	}
	key := cache.Key("compare", "dataset="+dataset, "symbols="+strings.Join(symbols, ","), q.CacheKey())
	v, err := a.cached(key, []string{dataset}, a.onSnapshot(dataset, q, func(snap *snapshot.Snapshot, r models.MDateRange) (interface{}, error) {
		return a.Engine.CompareSymbols(snap, symbols, r)
	}))
	if err != nil {
		return models.MSymbolComparison{}, err
	}
	return v.(models.MSymbolComparison), nil
}

func (a *AnalysisFacade) CompareStats(dataset string, symbols []string, q PeriodQuery) ([]models.MSymbolStats, error) {
	dataset, symbols, err := a.compareSymbols(dataset, symbols)
	if err != nil {
		return nil, err
	}
	key := cache.Key("compare-stats", "dataset="+dataset, "symbols="+strings.Join(symbols, ","), q.CacheKey())
	v, err := a.cached(key, []string{dataset}, a.onSnapshot(dataset, q, func(snap *snapshot.Snapshot, r models.MDateRange) (interface{}, error) {
		return a.Engine.CompareStats(snap, symbols, r)
	}))
	if err != nil {
		return nil, err
	}
	return v.([]models.MSymbolStats), nil
}
