package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// -----------------------------------------------------------------------------
// Latest view
// -----------------------------------------------------------------------------

// MLatestRow is the most recent bar of a symbol with its day-over-day change.
// PrevClose and DailyChangePct are invalid when the symbol has a single bar.
type MLatestRow struct {
	Symbol         string      `json:"symbol"`
	Name           string      `json:"name"`
	TradeDate      time.Time   `json:"trade_date"`
	Open           float64     `json:"open"`
	High           float64     `json:"high"`
	Low            float64     `json:"low"`
	Close          float64     `json:"close"`
	Volume         int64       `json:"volume"`
	Sector         null.String `json:"sector"`
	Industry       null.String `json:"industry"`
	PrevClose      null.Float  `json:"prev_close"`
	DailyChangePct null.Float  `json:"daily_change_pct"`
}

// MSummary is the payload of the latest-summary query
type MSummary struct {
	Dataset    string       `json:"dataset"`
	LatestDate time.Time    `json:"latest_date"`
	Version    uint64       `json:"version"`
	Partial    bool         `json:"partial"`
	Rows       []MLatestRow `json:"rows"`
}

// -----------------------------------------------------------------------------
// Websocket subscription
// -----------------------------------------------------------------------------

// MSubscribeCommand lets a websocket client restrict the datasets it hears about
type MSubscribeCommand struct {
	Command  string   `json:"command"`
	Datasets []string `json:"datasets"`
}

// MStreamMessage is what the websocket pushes: the refresh states on
// connect, then one message per refresh event
type MStreamMessage struct {
	Type   string          `json:"type"`
	Event  *MRefreshEvent  `json:"event,omitempty"`
	States []MRefreshState `json:"states,omitempty"`
}

const (
	StreamInitial = "INITIAL"
	StreamUpdate  = "UPDATE"
)
