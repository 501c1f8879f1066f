package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// MDateRange is an inclusive calendar range resolved against a snapshot
type MDateRange struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Period string    `json:"period,omitempty"`
}

// Contains reports whether t falls inside the range, bounds included
func (r MDateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// -----------------------------------------------------------------------------

// MSeriesPoint is one bar of a symbol series with its trailing averages
type MSeriesPoint struct {
	TradeDate time.Time `json:"trade_date"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	MAShort   float64   `json:"ma_short"`
	MALong    float64   `json:"ma_long"`
}

type MSymbolSeries struct {
	Dataset     string         `json:"dataset"`
	Symbol      string         `json:"symbol"`
	Name        string         `json:"name"`
	ShortWindow int            `json:"short_window"`
	LongWindow  int            `json:"long_window"`
	Interval    string         `json:"interval"`
	Range       MDateRange     `json:"range"`
	Points      []MSeriesPoint `json:"points"`
}

// -----------------------------------------------------------------------------

// MSymbolReturn is a symbol's period return. ReturnPct is invalid when the
// first close is zero.
type MSymbolReturn struct {
	Dataset    string      `json:"dataset"`
	Symbol     string      `json:"symbol"`
	Name       string      `json:"name"`
	Sector     null.String `json:"sector"`
	Industry   null.String `json:"industry"`
	FirstDate  time.Time   `json:"first_date"`
	LastDate   time.Time   `json:"last_date"`
	FirstClose float64     `json:"first_close"`
	LastClose  float64     `json:"last_close"`
	ReturnPct  null.Float  `json:"return_pct"`
}

type MRanking struct {
	Dataset string                `json:"dataset,omitempty"`
	Sector  string                `json:"sector,omitempty"`
	Range   MDateRange            `json:"range"`
	Ranges  map[string]MDateRange `json:"ranges,omitempty"`
	Top     []MSymbolReturn       `json:"top"`
	Bottom  []MSymbolReturn       `json:"bottom"`
}

// -----------------------------------------------------------------------------

// MNormalizedPoint is the cross-sectional mean of percent changes on a date,
// with the number of symbols that contributed to it.
type MNormalizedPoint struct {
	TradeDate time.Time `json:"trade_date"`
	Value     float64   `json:"value"`
	Count     int       `json:"count"`
}

type MGroupSeries struct {
	Dataset string             `json:"dataset"`
	GroupBy string             `json:"group_by"`
	Key     string             `json:"key"`
	Points  []MNormalizedPoint `json:"points"`
}

// -----------------------------------------------------------------------------

// MGroupReturn is one dataset's contribution to a sector or industry rollup
type MGroupReturn struct {
	Dataset       string  `json:"dataset"`
	MeanReturnPct float64 `json:"mean_return_pct"`
	SymbolCount   int     `json:"symbol_count"`
}

// MGroupRow is one sector or industry of a rollup. Across several datasets
// the mean is the mean of the per-dataset means.
type MGroupRow struct {
	Name          string         `json:"name"`
	MeanReturnPct float64        `json:"mean_return_pct"`
	SymbolCount   int            `json:"symbol_count"`
	PerDataset    []MGroupReturn `json:"per_dataset"`
}

type MSectorTable struct {
	GroupBy      string                `json:"group_by"`
	Datasets     []string              `json:"datasets"`
	Ranges       map[string]MDateRange `json:"ranges"`
	MinGroupSize int                   `json:"min_group_size"`
	Rows         []MGroupRow           `json:"rows"`
}

type MIndustryRow struct {
	Industry      string  `json:"industry"`
	MeanReturnPct float64 `json:"mean_return_pct"`
	SymbolCount   int     `json:"symbol_count"`
	Turnover      float64 `json:"turnover"`
}

type MIndustryBreakdown struct {
	Dataset      string         `json:"dataset"`
	Sector       string         `json:"sector"`
	Range        MDateRange     `json:"range"`
	MinGroupSize int            `json:"min_group_size"`
	Rows         []MIndustryRow `json:"rows"`
}

type MTurnoverRow struct {
	Industry string  `json:"industry"`
	Turnover float64 `json:"turnover"`
}

// -----------------------------------------------------------------------------

// MVolatility is annualized; Annualized is invalid with fewer than two returns
type MVolatility struct {
	Dataset     string     `json:"dataset"`
	Symbol      string     `json:"symbol"`
	Range       MDateRange `json:"range"`
	Returns     int        `json:"returns"`
	Annualized  null.Float `json:"annualized"`
	TradingDays int        `json:"trading_days"`
}

type MGroupCount struct {
	Name        string `json:"name"`
	SymbolCount int    `json:"symbol_count"`
}

type MTopGroups struct {
	GroupBy  string                `json:"group_by"`
	Datasets []string              `json:"datasets"`
	Ranges   map[string]MDateRange `json:"ranges"`
	Best     []MGroupRow           `json:"best"`
	Worst    []MGroupRow           `json:"worst"`
}

type MSymbolStats struct {
	Dataset        string     `json:"dataset"`
	Symbol         string     `json:"symbol"`
	Name           string     `json:"name"`
	Range          MDateRange `json:"range"`
	CurrentPrice   float64    `json:"current_price"`
	PrevClose      null.Float `json:"prev_close"`
	DailyChangePct null.Float `json:"daily_change_pct"`
	PeriodReturn   null.Float `json:"period_return_pct"`
	YTDReturn      null.Float `json:"ytd_return_pct"`
	High52W        float64    `json:"high_52w"`
	Low52W         float64    `json:"low_52w"`
	Volatility     null.Float `json:"volatility"`
}

// -----------------------------------------------------------------------------

// MComparisonLine is one symbol's percent change from its first close in the
// range, aligned with MSymbolComparison.Dates. Null before the symbol's first
// bar.
type MComparisonLine struct {
	Symbol string       `json:"symbol"`
	Name   string       `json:"name"`
	Values []null.Float `json:"values"`
}

type MSymbolComparison struct {
	Dataset string            `json:"dataset"`
	Range   MDateRange        `json:"range"`
	Dates   []time.Time       `json:"dates"`
	Lines   []MComparisonLine `json:"lines"`
}
