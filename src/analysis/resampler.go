package analysis

import (
	"sort"
	"strings"
	"time"

	"market-analytics/src/helpers"
	"market-analytics/src/models"
)

// Series intervals
const (
	IntervalDaily   = "1d"
	IntervalWeekly  = "1wk"
	IntervalMonthly = "1mo"
)

type resampleWindow struct {
	lo, hi int
	start  time.Time
}

// -----------------------------------------------------------------------------

func bucketFor(interval string) (func(time.Time) time.Time, error) {
	switch strings.ToLower(interval) {
	case "", IntervalDaily:
		return nil, nil
	case IntervalWeekly:
		// weeks start on Monday
		return func(t time.Time) time.Time {
			return t.AddDate(0, 0, -((int(t.Weekday()) + 6) % 7))
		}, nil
	case IntervalMonthly:
		return func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		}, nil
	}
	return nil, helpers.NewInvalidParameterError("invalid interval %q, expected one of 1d, 1wk, 1mo", interval)
}

// ValidateInterval checks a series interval without resampling anything
func ValidateInterval(interval string) error {
	_, err := bucketFor(interval)
	return err
}

// -----------------------------------------------------------------------------

// resampleIndices groups ascending dates into consecutive calendar buckets
func resampleIndices(dates []time.Time, bucket func(time.Time) time.Time) []resampleWindow {
	var out []resampleWindow
	for lo := 0; lo < len(dates); {
		start := bucket(dates[lo])
		hi := lo + sort.Search(len(dates)-lo, func(j int) bool {
			return bucket(dates[lo+j]).After(start)
		})
		out = append(out, resampleWindow{lo: lo, hi: hi, start: start})
		lo = hi
	}
	return out
}

// -----------------------------------------------------------------------------

// Resample aggregates daily points into one candle per interval bucket: first
// open, highest high, lowest low, last close, summed volume. The candle is
// dated at the last trading day of the bucket and carries the moving
// averages of that day. Daily points are returned as is.
func Resample(points []models.MSeriesPoint, interval string) ([]models.MSeriesPoint, error) {
	bucket, err := bucketFor(interval)
	if err != nil || bucket == nil || len(points) == 0 {
		return points, err
	}

	dates := make([]time.Time, len(points))
	for i, p := range points {
		dates[i] = p.TradeDate
	}

	windows := resampleIndices(dates, bucket)
	out := make([]models.MSeriesPoint, 0, len(windows))
	for _, w := range windows {
		first, last := points[w.lo], points[w.hi-1]
		candle := models.MSeriesPoint{
			TradeDate: last.TradeDate,
			Open:      first.Open,
			High:      first.High,
			Low:       first.Low,
			Close:     last.Close,
			MAShort:   last.MAShort,
			MALong:    last.MALong,
		}
		for _, p := range points[w.lo:w.hi] {
			candle.High = max(candle.High, p.High)
			candle.Low = min(candle.Low, p.Low)
			candle.Volume += p.Volume
		}
		out = append(out, candle)
	}
	return out, nil
}
