package calculator

import (
	"errors"

	"MarketPulse/internal/model"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientData is returned when a window holds fewer than two samples.
	ErrInsufficientData = errors.New("insufficient data: need at least 2 samples")
	// ErrDivisionByZero is returned when the window starts at a price of zero.
	ErrDivisionByZero = errors.New("division by zero: start price is 0")
)

var hundred = decimal.NewFromInt(100)

// MinSamples is the smallest window ComputeChange accepts.
const MinSamples = 2

// ComputeChange measures the move between the chronologically first and last
// samples of window. Prices in between, including the extremes, do not matter.
func ComputeChange(window model.Series) (model.ChangeResult, error) {
	if len(window) < MinSamples {
		return model.ChangeResult{}, ErrInsufficientData
	}

	first, last := window[0], window[0]
	for _, s := range window[1:] {
		if s.Time.Before(first.Time) {
			first = s
		}
		if !s.Time.Before(last.Time) {
			last = s
		}
	}

	if first.Price.IsZero() {
		return model.ChangeResult{}, ErrDivisionByZero
	}

	diff := last.Price.Sub(first.Price)
	return model.ChangeResult{
		StartPrice:    first.Price,
		EndPrice:      last.Price,
		AbsoluteDiff:  diff,
		PercentChange: diff.Mul(hundred).Div(first.Price),
	}, nil
}
