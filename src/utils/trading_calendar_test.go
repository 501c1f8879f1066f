package utils

import (
	"testing"
	"time"

	"market-analytics/src/logger"
	"market-analytics/src/models"

	"github.com/stretchr/testify/assert"
)

func TestFallbackCalendarSkipsWeekends(t *testing.T) {
	cal := &TradingCalendar{MIC: "test", Fallback: true, Timezone: time.UTC}

	// Monday 2024-06-17 10:00 UTC -> previous Friday
	monday := time.Date(2024, 6, 17, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), cal.LastCompletedSession(monday))

	// Wednesday -> Tuesday
	wednesday := time.Date(2024, 6, 19, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC), cal.LastCompletedSession(wednesday))

	assert.Equal(t, 1, cal.SessionsBetween(time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC)))
}

func TestFreshness(t *testing.T) {
	ms := NewMarketScheduler([]models.MDatasetConfig{{Key: "sp500", Calendar: "XNYS"}}, logger.NewSilentLogger())
	ms.Calendars["sp500"] = &TradingCalendar{MIC: "test", Fallback: true, Timezone: time.UTC}
	now := time.Date(2024, 6, 19, 10, 0, 0, 0, time.UTC)

	fresh := ms.Freshness("sp500", time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC), now)
	assert.False(t, fresh.Stale)
	assert.Equal(t, 0, fresh.SessionsBehind)

	stale := ms.Freshness("sp500", time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), now)
	assert.True(t, stale.Stale)
	assert.Equal(t, 2, stale.SessionsBehind)

	empty := ms.Freshness("sp500", time.Time{}, now)
	assert.True(t, empty.Stale)
}

func TestGetCalendarKnownExchange(t *testing.T) {
	cal := GetCalendar("XNYS")
	assert.Equal(t, "xnys", cal.MIC)
	assert.NotNil(t, cal.Timezone)
}
