package calculator

import (
	"errors"

	"MarketPulse/internal/model"

	"github.com/shopspring/decimal"
)

// PriceRange scans series and returns its lowest and highest price.
func PriceRange(series model.Series) (low, high decimal.Decimal, err error) {
	if len(series) == 0 {
		return decimal.Zero, decimal.Zero, errors.New("no samples provided")
	}
	low, high = series[0].Price, series[0].Price
	for _, s := range series[1:] {
		if s.Price.GreaterThan(high) {
			high = s.Price
		}
		if s.Price.LessThan(low) {
			low = s.Price
		}
	}
	return low, high, nil
}
