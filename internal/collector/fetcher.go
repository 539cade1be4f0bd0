package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketPulse/internal/model"
)

// Source fetches price history for one or many symbols.
type Source interface {
	Fetch(ctx context.Context, symbol string, span model.Span) (model.Series, error)
	// FetchBatch returns one result per requested symbol. A failing symbol
	// never aborts the batch; its result carries the error instead.
	FetchBatch(ctx context.Context, symbols []string, span model.Span) map[string]model.SymbolResult
	Name() string
}

var (
	// ErrMissingPrices means the upstream payload had no usable price field.
	ErrMissingPrices = errors.New("payload is missing price data")
	// ErrUnsupportedSpan means the source cannot serve the requested span.
	ErrUnsupportedSpan = errors.New("unsupported span")
)

// DataSourceError is returned by every Source on transport or parse failure.
type DataSourceError struct {
	Source string
	Symbol string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("%s: fetch %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// Options configures the HTTP-backed sources.
type Options struct {
	BaseURL           string
	APIKey            string
	Proxy             string
	Timeout           time.Duration
	Location          *time.Location // canonical display timezone
	Concurrency       int            // batch fan-out width
	RequestsPerSecond float64        // 0 disables rate limiting
}
