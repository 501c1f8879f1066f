package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"market-analytics/src/models"

	"github.com/guregu/null/v6"
)

// CSV header names accepted for each raw column
var csvColumns = map[string][]string{
	"symbol":      {"symbol", "ticker"},
	"name":        {"name", "company"},
	"trade_date":  {"trade_date", "date"},
	"open_price":  {"open_price", "open"},
	"high_price":  {"high_price", "high"},
	"low_price":   {"low_price", "low"},
	"close_price": {"close_price", "close"},
	"volume":      {"volume"},
	"sector":      {"sector"},
	"industry":    {"industry"},
}

// -----------------------------------------------------------------------------

// ReadCSV parses raw rows from a headed CSV export. Lines without a symbol or
// a parseable trade date are skipped; every other cleanup is left to Normalize.
func ReadCSV(r io.Reader) ([]models.MRawRow, models.MCSVStats, error) {
	var stats models.MCSVStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read csv header: %w", err)
	}
	idx := columnIndex(header)
	for _, required := range []string{"symbol", "trade_date", "close_price"} {
		if _, ok := idx[required]; !ok {
			return nil, stats, fmt.Errorf("csv header is missing %s", required)
		}
	}

	var rows []models.MRawRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read csv line %d: %w", stats.Lines+2, err)
		}
		stats.Lines++

		field := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		symbol := strings.ToUpper(field("symbol"))
		date, ok := parseCSVDate(field("trade_date"))
		if symbol == "" || !ok {
			stats.Skipped++
			continue
		}

		rows = append(rows, models.MRawRow{
			Symbol:    symbol,
			Name:      field("name"),
			TradeDate: date,
			Open:      parseCSVFloat(field("open_price")),
			High:      parseCSVFloat(field("high_price")),
			Low:       parseCSVFloat(field("low_price")),
			Close:     parseCSVFloat(field("close_price")),
			Volume:    parseCSVVolume(field("volume")),
			Sector:    null.NewString(field("sector"), field("sector") != ""),
			Industry:  null.NewString(field("industry"), field("industry") != ""),
		})
	}
	stats.Rows = len(rows)
	return rows, stats, nil
}

// -----------------------------------------------------------------------------

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for col, aliases := range csvColumns {
			for _, a := range aliases {
				if h == a {
					if _, seen := idx[col]; !seen {
						idx[col] = i
					}
				}
			}
		}
	}
	return idx
}

func parseCSVDate(s string) (time.Time, bool) {
	if len(s) < len(time.DateOnly) {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, s[:len(time.DateOnly)])
	return t, err == nil
}

func parseCSVFloat(s string) null.Float {
	if s == "" {
		return null.Float{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}
	}
	return null.FloatFrom(f)
}

func parseCSVVolume(s string) int64 {
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	// some exports write volumes as floats
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return int64(f)
	}
	return 0
}
