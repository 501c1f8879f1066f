package utils

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers business-day questions for one exchange
type TradingCalendar struct {
	MIC      string
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// GetCalendar loads the calendar of an exchange by MIC (ISO 10383), e.g. XNYS.
// Unknown MICs fall back to a Mon-Fri calendar in UTC.
func GetCalendar(mic string) *TradingCalendar {
	mic = strings.ToLower(strings.TrimSpace(mic))
	if mic == "" {
		mic = "xnys"
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		return &TradingCalendar{MIC: mic, Fallback: true, Timezone: time.UTC}
	}
	return &TradingCalendar{MIC: mic, Calendar: cal, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	// IsBusinessDay handles weekends and holidays
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// LastCompletedSession is the most recent trading day strictly before the
// exchange-local date of now. Daily batches land after the close, so today's
// session is never expected yet.
func (tc *TradingCalendar) LastCompletedSession(now time.Time) time.Time {
	if tc.Timezone != nil {
		now = now.In(tc.Timezone)
	}
	y, m, d := now.Date()
	day := time.Date(y, m, d, 12, 0, 0, 0, now.Location()).AddDate(0, 0, -1)
	for i := 0; i < 30 && !tc.IsTradingDay(day); i++ {
		day = day.AddDate(0, 0, -1)
	}
	y, m, d = day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// -----------------------------------------------------------------------------

// SessionsBetween counts trading days in (from, to]
func (tc *TradingCalendar) SessionsBetween(from, to time.Time) int {
	n := 0
	for day := from.AddDate(0, 0, 1); !day.After(to); day = day.AddDate(0, 0, 1) {
		if tc.IsTradingDay(time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, tc.location())) {
			n++
		}
	}
	return n
}

func (tc *TradingCalendar) location() *time.Location {
	if tc.Timezone != nil {
		return tc.Timezone
	}
	return time.UTC
}
