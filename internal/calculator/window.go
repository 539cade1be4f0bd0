package calculator

import (
	"sort"
	"time"

	"MarketPulse/internal/model"
)

// SelectWindow returns the samples of series with ref-lookback < t <= ref,
// sorted ascending. The input is not modified. An empty result is not an error.
func SelectWindow(series model.Series, lookback time.Duration, ref time.Time) model.Series {
	cutoff := ref.Add(-lookback)
	window := make(model.Series, 0, len(series))
	for _, s := range series {
		if s.Time.After(cutoff) && !s.Time.After(ref) {
			window = append(window, s)
		}
	}
	sort.SliceStable(window, func(i, j int) bool { return window[i].Time.Before(window[j].Time) })
	return window
}

// Downsample keeps every stride-th sample of window and always keeps the
// first and last samples, so the endpoints seen by a chart match the ones
// used for the change. A stride of 1 or less returns a copy.
func Downsample(window model.Series, stride int) model.Series {
	if stride <= 1 || len(window) <= 2 {
		return window.Clone()
	}
	out := make(model.Series, 0, len(window)/stride+2)
	for i := 0; i < len(window); i += stride {
		out = append(out, window[i])
	}
	if last := window.Last(); !out.Last().Time.Equal(last.Time) {
		out = append(out, last)
	}
	return out
}

// CalendarWindow returns the last two samples of series: the previous and the
// latest close of a daily or weekly candle series. Fewer than two samples
// yields a shorter window, which callers treat as insufficient data.
func CalendarWindow(series model.Series) model.Series {
	sorted := sortedCopy(series)
	if len(sorted) > 2 {
		sorted = sorted[len(sorted)-2:]
	}
	return sorted
}

func sortedCopy(series model.Series) model.Series {
	out := series.Clone()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
