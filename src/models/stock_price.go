package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// MRawRow is one row as read from the durable store. Duplicates and bad
// prices are expected; the normalizer decides what survives.
type MRawRow struct {
	Symbol    string      `json:"symbol"`
	Name      string      `json:"name"`
	TradeDate time.Time   `json:"trade_date"`
	Open      null.Float  `json:"open_price"`
	High      null.Float  `json:"high_price"`
	Low       null.Float  `json:"low_price"`
	Close     null.Float  `json:"close_price"`
	Volume    int64       `json:"volume"`
	Sector    null.String `json:"sector"`
	Industry  null.String `json:"industry"`
}

// MPricePoint is a normalized daily bar. At most one exists per
// (dataset, symbol, trade date) and Close is always finite and positive.
type MPricePoint struct {
	Dataset   string      `json:"dataset"`
	Symbol    string      `json:"symbol"`
	Name      string      `json:"name"`
	TradeDate time.Time   `json:"trade_date"`
	Open      float64     `json:"open"`
	High      float64     `json:"high"`
	Low       float64     `json:"low"`
	Close     float64     `json:"close"`
	Volume    int64       `json:"volume"`
	Sector    null.String `json:"sector"`
	Industry  null.String `json:"industry"`
}

// MNormalizeStats reports what the normalizer did with a batch
type MNormalizeStats struct {
	InputRows    int `json:"input_rows"`
	DroppedPrice int `json:"dropped_price"`
	DroppedKey   int `json:"dropped_key"`
	Duplicates   int `json:"duplicates"`
	OutputRows   int `json:"output_rows"`
}

// MCSVStats counts what the CSV reader kept and skipped
type MCSVStats struct {
	Lines   int `json:"lines"`
	Rows    int `json:"rows"`
	Skipped int `json:"skipped"`
}
