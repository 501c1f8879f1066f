package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"market-analytics/src/analysis/core"
	"market-analytics/src/models"

	"github.com/guregu/null/v6"
	"golang.org/x/sync/errgroup"
)

// ErrNoValidRows reports a build with nothing left after normalization
var ErrNoValidRows = errors.New("no valid rows")

// BuildOptions controls the optional parts of a full build
type BuildOptions struct {
	PrecomputeGroups bool
	Now              func() time.Time
}

func (o BuildOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// -----------------------------------------------------------------------------

// Build creates a full snapshot from normalized points, which must be sorted
// by symbol then date. Zero points is an error: an empty dataset never
// replaces a populated one.
func Build(ctx context.Context, dataset string, points []models.MPricePoint, opts BuildOptions) (*Snapshot, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("dataset %s: %w to build a snapshot from", dataset, ErrNoValidRows)
	}

	snap := &Snapshot{
		Dataset: dataset,
		BuiltAt: opts.now(),
		Rows:    len(points),
		series:  make(map[string]*Series),
	}

	dateSet := make(map[time.Time]struct{})
	for i := 0; i < len(points); {
		j := i
		for j < len(points) && points[j].Symbol == points[i].Symbol {
			j++
		}
		ser := newSeries(points[i:j])
		snap.series[ser.Symbol] = ser
		snap.symbols = append(snap.symbols, ser.Symbol)
		for _, d := range ser.Dates {
			dateSet[d] = struct{}{}
		}
		i = j
	}
	sort.Strings(snap.symbols)
	snap.dates = sortedDates(dateSet)
	snap.FirstDate = snap.dates[0]
	snap.LatestDate = snap.dates[len(snap.dates)-1]

	snap.latest = make([]models.MLatestRow, 0, len(snap.symbols))
	for _, sym := range snap.symbols {
		snap.latest = append(snap.latest, latestRow(snap.series[sym]))
	}
	snap.indexLatest()

	if opts.PrecomputeGroups {
		if err := snap.precomputeGroups(ctx); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// -----------------------------------------------------------------------------

// BuildPartial creates the phase-1 snapshot: a fresh latest view on top of
// the previous snapshot's history. History and precomputed series are shared
// with prev, so they lag until the next full build. prev may be nil.
func BuildPartial(prev *Snapshot, dataset string, latest []models.MPricePoint, opts BuildOptions) (*Snapshot, error) {
	if len(latest) == 0 {
		return nil, fmt.Errorf("dataset %s: %w on the latest date", dataset, ErrNoValidRows)
	}

	snap := &Snapshot{
		Dataset: dataset,
		BuiltAt: opts.now(),
		Partial: true,
		series:  make(map[string]*Series),
	}

	rows := make(map[string]models.MLatestRow)
	dateSet := make(map[time.Time]struct{})
	if prev != nil {
		for sym, ser := range prev.series {
			snap.series[sym] = ser
		}
		for _, r := range prev.latest {
			rows[r.Symbol] = r
		}
		for _, d := range prev.dates {
			dateSet[d] = struct{}{}
		}
		snap.sectorSeries = prev.sectorSeries
		snap.industrySeries = prev.industrySeries
		snap.Rows = prev.Rows
	}

	for _, p := range latest {
		row := models.MLatestRow{
			Symbol:    p.Symbol,
			Name:      p.Name,
			TradeDate: p.TradeDate,
			Open:      p.Open,
			High:      p.High,
			Low:       p.Low,
			Close:     p.Close,
			Volume:    p.Volume,
			Sector:    p.Sector,
			Industry:  p.Industry,
		}
		if old, ok := rows[p.Symbol]; ok && old.TradeDate.After(p.TradeDate) {
			continue
		}
		if ser, ok := snap.series[p.Symbol]; ok {
			if prevClose, ok := ser.CloseBefore(p.TradeDate); ok {
				row.PrevClose = null.FloatFrom(prevClose)
				row.DailyChangePct = core.ChangePercent(p.Close, prevClose)
			}
		} else {
			snap.series[p.Symbol] = newSeries([]models.MPricePoint{p})
			snap.Rows++
		}
		rows[p.Symbol] = row
		dateSet[p.TradeDate] = struct{}{}
	}

	for sym := range snap.series {
		snap.symbols = append(snap.symbols, sym)
	}
	sort.Strings(snap.symbols)
	snap.dates = sortedDates(dateSet)
	snap.FirstDate = snap.dates[0]
	snap.LatestDate = snap.dates[len(snap.dates)-1]

	snap.latest = make([]models.MLatestRow, 0, len(snap.symbols))
	for _, sym := range snap.symbols {
		if r, ok := rows[sym]; ok {
			snap.latest = append(snap.latest, r)
		}
	}
	snap.indexLatest()
	return snap, nil
}

// -----------------------------------------------------------------------------

func newSeries(points []models.MPricePoint) *Series {
	n := len(points)
	last := points[n-1]
	ser := &Series{
		Symbol:   last.Symbol,
		Name:     last.Name,
		Sector:   last.Sector,
		Industry: last.Industry,
		Dates:    make([]time.Time, n),
		Open:     make([]float64, n),
		High:     make([]float64, n),
		Low:      make([]float64, n),
		Close:    make([]float64, n),
		Volume:   make([]int64, n),
	}
	for i, p := range points {
		ser.Dates[i] = p.TradeDate
		ser.Open[i] = p.Open
		ser.High[i] = p.High
		ser.Low[i] = p.Low
		ser.Close[i] = p.Close
		ser.Volume[i] = p.Volume
	}
	return ser
}

// -----------------------------------------------------------------------------

func latestRow(ser *Series) models.MLatestRow {
	i := ser.Len() - 1
	row := models.MLatestRow{
		Symbol:    ser.Symbol,
		Name:      ser.Name,
		TradeDate: ser.Dates[i],
		Open:      ser.Open[i],
		High:      ser.High[i],
		Low:       ser.Low[i],
		Close:     ser.Close[i],
		Volume:    ser.Volume[i],
		Sector:    ser.Sector,
		Industry:  ser.Industry,
	}
	if i > 0 {
		row.PrevClose = null.FloatFrom(ser.Close[i-1])
		row.DailyChangePct = core.ChangePercent(ser.Close[i], ser.Close[i-1])
	}
	return row
}

// -----------------------------------------------------------------------------

func (s *Snapshot) indexLatest() {
	s.latestIdx = make(map[string]int, len(s.latest))
	for i, r := range s.latest {
		s.latestIdx[r.Symbol] = i
	}
}

// -----------------------------------------------------------------------------

// precomputeGroups builds the full-history normalized series of every known
// sector and industry, both dimensions in parallel.
func (s *Snapshot) precomputeGroups(ctx context.Context) error {
	var sectors, industries map[string][]models.MNormalizedPoint

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		sectors = s.groupSeries(GroupBySector)
		return nil
	})
	g.Go(func() error {
		industries = s.groupSeries(GroupByIndustry)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sectorSeries = sectors
	s.industrySeries = industries
	return nil
}

func (s *Snapshot) groupSeries(groupBy string) map[string][]models.MNormalizedPoint {
	members := make(map[string][]core.DatedCloses)
	s.EachSeries(func(ser *Series) {
		key := GroupKey(ser, groupBy)
		if !key.Valid {
			return
		}
		members[key.String] = append(members[key.String], core.DatedCloses{Dates: ser.Dates, Closes: ser.Close})
	})
	out := make(map[string][]models.MNormalizedPoint, len(members))
	for key, series := range members {
		out[key] = core.CrossSectionalMean(series)
	}
	return out
}

// -----------------------------------------------------------------------------

func sortedDates(set map[time.Time]struct{}) []time.Time {
	out := make([]time.Time, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
