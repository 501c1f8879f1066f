// Package snapshot holds the immutable per-dataset views every query reads.
// A Snapshot is never modified after it is installed in a Store.
package snapshot

import (
	"sort"
	"time"

	"market-analytics/src/models"

	"github.com/guregu/null/v6"
)

// Series is one symbol's history in columnar form, ordered by date
type Series struct {
	Symbol   string
	Name     string
	Sector   null.String
	Industry null.String
	Dates    []time.Time
	Open     []float64
	High     []float64
	Low      []float64
	Close    []float64
	Volume   []int64
}

// Len is the number of bars
func (s *Series) Len() int {
	return len(s.Dates)
}

// -----------------------------------------------------------------------------

// Window returns the index bounds [lo, hi) of the bars inside r
func (s *Series) Window(r models.MDateRange) (int, int) {
	lo := sort.Search(len(s.Dates), func(i int) bool { return !s.Dates[i].Before(r.Start) })
	hi := sort.Search(len(s.Dates), func(i int) bool { return s.Dates[i].After(r.End) })
	return lo, hi
}

// -----------------------------------------------------------------------------

// CloseBefore returns the last close strictly before t
func (s *Series) CloseBefore(t time.Time) (float64, bool) {
	i := sort.Search(len(s.Dates), func(i int) bool { return !s.Dates[i].Before(t) })
	if i == 0 {
		return 0, false
	}
	return s.Close[i-1], true
}

// -----------------------------------------------------------------------------

// Snapshot is an immutable, versioned view of one dataset
type Snapshot struct {
	Dataset    string
	Version    uint64
	BuiltAt    time.Time
	Partial    bool
	LatestDate time.Time
	FirstDate  time.Time
	Rows       int

	symbols        []string
	series         map[string]*Series
	dates          []time.Time
	latest         []models.MLatestRow
	latestIdx      map[string]int
	sectorSeries   map[string][]models.MNormalizedPoint
	industrySeries map[string][]models.MNormalizedPoint
}

// -----------------------------------------------------------------------------

// Symbols returns the symbols in ascending order
func (s *Snapshot) Symbols() []string {
	return s.symbols
}

// Series looks up a symbol's history
func (s *Snapshot) Series(symbol string) (*Series, bool) {
	ser, ok := s.series[symbol]
	return ser, ok
}

// Dates is the sorted set of distinct trade dates
func (s *Snapshot) Dates() []time.Time {
	return s.dates
}

// Latest is the latest view, one row per symbol in symbol order
func (s *Snapshot) Latest() []models.MLatestRow {
	return s.latest
}

// LatestFor returns the latest row of one symbol
func (s *Snapshot) LatestFor(symbol string) (models.MLatestRow, bool) {
	i, ok := s.latestIdx[symbol]
	if !ok {
		return models.MLatestRow{}, false
	}
	return s.latest[i], true
}

// -----------------------------------------------------------------------------

// EachSeries visits every symbol series in symbol order
func (s *Snapshot) EachSeries(fn func(*Series)) {
	for _, sym := range s.symbols {
		fn(s.series[sym])
	}
}

// -----------------------------------------------------------------------------

// PrecomputedGroup returns the full-history normalized series of a sector or
// industry when it was computed at build time.
func (s *Snapshot) PrecomputedGroup(groupBy, key string) ([]models.MNormalizedPoint, bool) {
	var m map[string][]models.MNormalizedPoint
	switch groupBy {
	case GroupBySector:
		m = s.sectorSeries
	case GroupByIndustry:
		m = s.industrySeries
	}
	if m == nil {
		return nil, false
	}
	pts, ok := m[key]
	return pts, ok
}

// PrecomputedKeys lists the groups with a precomputed series, sorted
func (s *Snapshot) PrecomputedKeys(groupBy string) []string {
	var m map[string][]models.MNormalizedPoint
	switch groupBy {
	case GroupBySector:
		m = s.sectorSeries
	case GroupByIndustry:
		m = s.industrySeries
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasPrecomputed reports whether group series were built for this snapshot
func (s *Snapshot) HasPrecomputed() bool {
	return s.sectorSeries != nil || s.industrySeries != nil
}

// Group keys
const (
	GroupBySector   = "sector"
	GroupByIndustry = "industry"
)

// GroupKey returns the category of a series for groupBy
func GroupKey(ser *Series, groupBy string) null.String {
	if groupBy == GroupByIndustry {
		return ser.Industry
	}
	return ser.Sector
}
