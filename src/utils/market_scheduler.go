package utils

import (
	"sync"
	"time"

	"market-analytics/src/logger"
	"market-analytics/src/models"
)

// MarketScheduler maps datasets to their exchange calendars
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(datasets []models.MDatasetConfig, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
	}
	ms.MapDatasetsToCalendars(datasets)
	return ms
}

// -----------------------------------------------------------------------------

// MapDatasetsToCalendars replaces the dataset to calendar mapping
func (ms *MarketScheduler) MapDatasetsToCalendars(datasets []models.MDatasetConfig) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.Calendars = make(map[string]*TradingCalendar, len(datasets))
	for _, ds := range datasets {
		cal := GetCalendar(ds.Calendar)
		if cal.Fallback {
			ms.Logger.Warning("no exchange calendar for %s (%q), using Mon-Fri", ds.Key, ds.Calendar)
		}
		ms.Calendars[ds.Key] = cal
	}
	ms.Logger.Info("mapped %d datasets to exchange calendars", len(datasets))
}

// -----------------------------------------------------------------------------

// Freshness compares latest (zero when the dataset has no snapshot) with the
// last completed session of the dataset's exchange
func (ms *MarketScheduler) Freshness(dataset string, latest time.Time, now time.Time) models.MFreshness {
	ms.mu.RLock()
	cal, ok := ms.Calendars[dataset]
	ms.mu.RUnlock()
	if !ok {
		cal = GetCalendar("")
	}

	expected := cal.LastCompletedSession(now)
	f := models.MFreshness{
		Dataset:         dataset,
		Calendar:        cal.MIC,
		ExpectedSession: expected,
		LatestDate:      latest,
	}
	if latest.IsZero() {
		f.Stale = true
		return f
	}
	if latest.Before(expected) {
		f.SessionsBehind = cal.SessionsBetween(latest, expected)
		f.Stale = f.SessionsBehind > 0
	}
	return f
}
