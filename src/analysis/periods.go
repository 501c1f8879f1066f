package analysis

import (
	"strings"
	"time"

	"market-analytics/src/helpers"
	"market-analytics/src/models"
)

// Intervals maps relative periods to calendar days
var Intervals = map[string]int{
	"1w":  7,
	"1mo": 30,
	"3mo": 90,
	"6mo": 180,
	"1y":  365,
	"5y":  1825,
}

const (
	PeriodMax = "max"
	PeriodYTD = "ytd"
)

// PeriodQuery is either a relative period or an explicit start/end pair.
// Interval only applies to symbol series.
type PeriodQuery struct {
	Period   string
	Start    string
	End      string
	Interval string
}

// -----------------------------------------------------------------------------

// CacheKey is a stable representation for response cache keys
func (q PeriodQuery) CacheKey() string {
	key := "period=" + strings.ToLower(q.Period)
	if q.Start != "" || q.End != "" {
		key = "range=" + q.Start + ".." + q.End
	}
	if q.Interval != "" {
		key += "&interval=" + strings.ToLower(q.Interval)
	}
	return key
}

// -----------------------------------------------------------------------------

// ValidatePeriod checks the query's shape without a snapshot
func ValidatePeriod(q PeriodQuery) error {
	_, err := ResolveRange(time.Time{}, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC), q)
	return err
}

// -----------------------------------------------------------------------------

// ResolveRange turns a query into an inclusive date range. Relative periods
// are anchored at latest, the snapshot's latest trade date, never at the wall
// clock. first bounds "max" and an open-ended explicit range.
func ResolveRange(first, latest time.Time, q PeriodQuery) (models.MDateRange, error) {
	if q.Start != "" || q.End != "" {
		start, end := first, latest
		var err error
		if q.Start != "" {
			if start, err = time.Parse(time.DateOnly, q.Start); err != nil {
				return models.MDateRange{}, helpers.NewInvalidParameterError("invalid start date %q, expected YYYY-MM-DD", q.Start)
			}
		}
		if q.End != "" {
			if end, err = time.Parse(time.DateOnly, q.End); err != nil {
				return models.MDateRange{}, helpers.NewInvalidParameterError("invalid end date %q, expected YYYY-MM-DD", q.End)
			}
		}
		if start.After(end) {
			return models.MDateRange{}, helpers.NewInvalidParameterError("start %s is after end %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
		}
		return models.MDateRange{Start: start, End: end}, nil
	}

	period := strings.ToLower(strings.TrimSpace(q.Period))
	switch period {
	case PeriodMax:
		return models.MDateRange{Start: first, End: latest, Period: period}, nil
	case PeriodYTD:
		start := time.Date(latest.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return models.MDateRange{Start: start, End: latest, Period: period}, nil
	}
	days, ok := Intervals[period]
	if !ok {
		return models.MDateRange{}, helpers.NewInvalidParameterError("unknown period %q", q.Period)
	}
	return models.MDateRange{Start: latest.AddDate(0, 0, -days), End: latest, Period: period}, nil
}
