// Package ingestion turns raw durable-store rows into the canonical daily bars
// the snapshots are built from.
package ingestion

import (
	"math"
	"sort"
	"strings"
	"time"

	"market-analytics/src/models"

	"github.com/guregu/null/v6"
)

// Placeholder values upstream writes when a classification is missing
var unknownCategoryValues = map[string]bool{
	"":     true,
	"n/a":  true,
	"na":   true,
	"0":    true,
	"none": true,
	"null": true,
	"nan":  true,
}

// -----------------------------------------------------------------------------

// NormalizeCategory maps placeholder sector/industry values to an invalid
// null.String so they surface as the unknown category.
func NormalizeCategory(v null.String) null.String {
	if !v.Valid {
		return v
	}
	s := strings.TrimSpace(v.String)
	if unknownCategoryValues[strings.ToLower(s)] {
		return null.String{}
	}
	return null.StringFrom(s)
}

// -----------------------------------------------------------------------------

func usablePrice(v null.Float) bool {
	return v.Valid && !math.IsNaN(v.Float64) && !math.IsInf(v.Float64, 0) && v.Float64 > 0
}

func priceOr(v null.Float, fallback float64) float64 {
	if usablePrice(v) {
		return v.Float64
	}
	return fallback
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// -----------------------------------------------------------------------------

// Normalize keeps one row per (symbol, trade date): the one with the highest
// volume, ties broken by a total order on the remaining fields. Rows with an
// unusable close or key are dropped. Output is sorted by symbol then date, and
// Normalize is idempotent.
func Normalize(dataset string, rows []models.MRawRow) ([]models.MPricePoint, models.MNormalizeStats) {
	stats := models.MNormalizeStats{InputRows: len(rows)}

	type key struct {
		symbol string
		date   time.Time
	}
	best := make(map[key]models.MPricePoint, len(rows))

	for _, r := range rows {
		symbol := strings.TrimSpace(r.Symbol)
		if symbol == "" || r.TradeDate.IsZero() {
			stats.DroppedKey++
			continue
		}
		if !usablePrice(r.Close) {
			stats.DroppedPrice++
			continue
		}

		closePrice := r.Close.Float64
		p := models.MPricePoint{
			Dataset:   dataset,
			Symbol:    symbol,
			Name:      strings.TrimSpace(r.Name),
			TradeDate: dateOnly(r.TradeDate),
			Open:      priceOr(r.Open, closePrice),
			High:      priceOr(r.High, closePrice),
			Low:       priceOr(r.Low, closePrice),
			Close:     closePrice,
			Volume:    r.Volume,
			Sector:    NormalizeCategory(r.Sector),
			Industry:  NormalizeCategory(r.Industry),
		}
		if p.Volume < 0 {
			p.Volume = 0
		}

		k := key{symbol: p.Symbol, date: p.TradeDate}
		if cur, ok := best[k]; ok {
			stats.Duplicates++
			if !preferred(p, cur) {
				continue
			}
		}
		best[k] = p
	}

	out := make([]models.MPricePoint, 0, len(best))
	for _, p := range best {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].TradeDate.Before(out[j].TradeDate)
	})
	stats.OutputRows = len(out)
	return out, stats
}

// -----------------------------------------------------------------------------

// preferred reports whether a should replace b as the representative row of
// their (symbol, date) group. The order is total, so the survivor does not
// depend on input order.
func preferred(a, b models.MPricePoint) bool {
	if a.Volume != b.Volume {
		return a.Volume > b.Volume
	}
	for _, pair := range [][2]float64{{a.Close, b.Close}, {a.Open, b.Open}, {a.High, b.High}, {a.Low, b.Low}} {
		if pair[0] != pair[1] {
			return pair[0] > pair[1]
		}
	}
	if a.Name != b.Name {
		return a.Name > b.Name
	}
	if c := compareCategory(a.Sector, b.Sector); c != 0 {
		return c > 0
	}
	return compareCategory(a.Industry, b.Industry) > 0
}

func compareCategory(a, b null.String) int {
	switch {
	case a.Valid && !b.Valid:
		return 1
	case !a.Valid && b.Valid:
		return -1
	case !a.Valid && !b.Valid:
		return 0
	}
	return strings.Compare(a.String, b.String)
}

// -----------------------------------------------------------------------------

// ToRaw converts normalized points back to raw rows, for re-normalization and
// for writing curated data to the durable store.
func ToRaw(points []models.MPricePoint) []models.MRawRow {
	out := make([]models.MRawRow, len(points))
	for i, p := range points {
		out[i] = models.MRawRow{
			Symbol:    p.Symbol,
			Name:      p.Name,
			TradeDate: p.TradeDate,
			Open:      null.FloatFrom(p.Open),
			High:      null.FloatFrom(p.High),
			Low:       null.FloatFrom(p.Low),
			Close:     null.FloatFrom(p.Close),
			Volume:    p.Volume,
			Sector:    p.Sector,
			Industry:  p.Industry,
		}
	}
	return out
}
