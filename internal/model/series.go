package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Sample is a single timestamped price observation.
type Sample struct {
	Time  time.Time
	Price decimal.Decimal
}

// Series is an ordered sequence of samples, ascending by time.
type Series []Sample

// Len returns the number of samples.
func (s Series) Len() int { return len(s) }

// First returns the earliest sample. The series must be non-empty.
func (s Series) First() Sample { return s[0] }

// Last returns the latest sample. The series must be non-empty.
func (s Series) Last() Sample { return s[len(s)-1] }

// Clone returns a copy that shares no backing array with s.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// Normalize returns a sorted copy of s with duplicate timestamps collapsed
// (the later sample in input order wins) and every timestamp moved into loc.
// A nil loc keeps the original locations.
func (s Series) Normalize(loc *time.Location) Series {
	out := s.Clone()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	deduped := out[:0]
	for _, smp := range out {
		if loc != nil {
			smp.Time = smp.Time.In(loc)
		}
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(smp.Time) {
			deduped[n-1] = smp
			continue
		}
		deduped = append(deduped, smp)
	}
	return deduped
}

// Granularity is the spacing of samples a source is asked for.
type Granularity string

const (
	GranularityIntraday Granularity = "intraday"
	GranularityDaily    Granularity = "daily"
	GranularityWeekly   Granularity = "weekly"
)

// Valid reports whether g is one of the known granularities.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityIntraday, GranularityDaily, GranularityWeekly:
		return true
	}
	return false
}

// Span is the amount of history requested from a source.
type Span struct {
	Days        int         `yaml:"days"`
	Granularity Granularity `yaml:"granularity"`
}

// Duration returns the span length as a time.Duration.
func (s Span) Duration() time.Duration {
	return time.Duration(s.Days) * 24 * time.Hour
}

// SymbolResult is the outcome of fetching one symbol in a batch.
// Exactly one of Series (with Err == nil) or Err is meaningful.
type SymbolResult struct {
	Symbol string
	Series Series
	Err    error
}

// OK reports whether the fetch succeeded.
func (r SymbolResult) OK() bool { return r.Err == nil }
