package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketPulse/internal/model"

	"github.com/shopspring/decimal"
)

// MockFetcher returns controllable fixed data for development and testing.
// Symbols without fixed data get a synthetic gently rising series around Price.
type MockFetcher struct {
	Price  float64
	Data   map[string]model.Series
	Errors map[string]error
	Now    func() time.Time

	mu    sync.Mutex
	calls []string
}

func (m *MockFetcher) Name() string { return "mock" }

// Fetch returns the fixed series or error configured for symbol.
func (m *MockFetcher) Fetch(_ context.Context, symbol string, span model.Span) (model.Series, error) {
	m.mu.Lock()
	m.calls = append(m.calls, symbol)
	m.mu.Unlock()

	if err, ok := m.Errors[symbol]; ok {
		return nil, &DataSourceError{Source: m.Name(), Symbol: symbol, Err: err}
	}
	if s, ok := m.Data[symbol]; ok {
		return s.Clone(), nil
	}
	return m.generate(span), nil
}

// FetchBatch fetches each symbol in turn.
func (m *MockFetcher) FetchBatch(ctx context.Context, symbols []string, span model.Span) map[string]model.SymbolResult {
	out := make(map[string]model.SymbolResult, len(symbols))
	for _, sym := range symbols {
		s, err := m.Fetch(ctx, sym, span)
		out[sym] = model.SymbolResult{Symbol: sym, Series: s, Err: err}
	}
	return out
}

// Calls returns the symbols requested so far, in order.
func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockFetcher) generate(span model.Span) model.Series {
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}
	step := 5 * time.Minute
	switch span.Granularity {
	case model.GranularityDaily:
		step = 24 * time.Hour
	case model.GranularityWeekly:
		step = 7 * 24 * time.Hour
	}
	count := int(span.Duration() / step)
	if count < 2 {
		count = 2
	}
	series := make(model.Series, count)
	for i := 0; i < count; i++ {
		p := m.Price * (1 + float64(i-count/2)*0.001)
		series[i] = model.Sample{
			Time:  now.Add(-time.Duration(count-1-i) * step),
			Price: decimal.NewFromFloat(p),
		}
	}
	return series
}

// New builds the named source.
func New(name string, opts Options) (Source, error) {
	switch name {
	case "yahoo":
		return NewYahooFetcher(opts), nil
	case "coingecko":
		return NewCoinGeckoFetcher(opts), nil
	case "mock":
		return &MockFetcher{Price: 100}, nil
	default:
		return nil, fmt.Errorf("unknown data source %q", name)
	}
}
