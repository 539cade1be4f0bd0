package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"MarketPulse/internal/httpclient"
	"MarketPulse/internal/model"

	"github.com/shopspring/decimal"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Source using the Yahoo Finance chart API.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	Location  *time.Location
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker

	batch batcher
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(opts Options) *YahooFetcher {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	return &YahooFetcher{
		BaseURL:  baseURL,
		Client:   httpclient.New(opts.Proxy, opts.Timeout),
		Location: opts.Location,
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
		batch: newBatcher(opts),
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []interface{} `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// yahooInterval resolves a span to Yahoo's interval and range parameters.
func yahooInterval(span model.Span) (interval, rng string, err error) {
	if span.Days <= 0 {
		return "", "", fmt.Errorf("%w: %d days", ErrUnsupportedSpan, span.Days)
	}
	switch span.Granularity {
	case model.GranularityIntraday:
		switch {
		case span.Days <= 1:
			return "5m", "1d", nil
		case span.Days <= 5:
			return "15m", "5d", nil
		case span.Days <= 30:
			return "60m", "1mo", nil
		}
		return "", "", fmt.Errorf("%w: intraday over %d days", ErrUnsupportedSpan, span.Days)
	case model.GranularityDaily:
		rng = "2y"
		switch {
		case span.Days <= 5:
			rng = "5d"
		case span.Days <= 30:
			rng = "1mo"
		case span.Days <= 90:
			rng = "3mo"
		case span.Days <= 180:
			rng = "6mo"
		case span.Days <= 365:
			rng = "1y"
		}
		return "1d", rng, nil
	case model.GranularityWeekly:
		rng = "2y"
		switch {
		case span.Days <= 92:
			rng = "3mo"
		case span.Days <= 183:
			rng = "6mo"
		case span.Days <= 365:
			rng = "1y"
		}
		return "1wk", rng, nil
	}
	return "", "", fmt.Errorf("%w: granularity %q", ErrUnsupportedSpan, span.Granularity)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Fetch returns the close series for symbol over span.
func (f *YahooFetcher) Fetch(ctx context.Context, symbol string, span model.Span) (model.Series, error) {
	series, err := f.fetchChart(ctx, symbol, span)
	if err != nil {
		return nil, &DataSourceError{Source: f.Name(), Symbol: symbol, Err: err}
	}
	return series, nil
}

// FetchBatch fetches every symbol concurrently; see Source.
func (f *YahooFetcher) FetchBatch(ctx context.Context, symbols []string, span model.Span) map[string]model.SymbolResult {
	return f.batch.run(ctx, symbols, func(ctx context.Context, symbol string) (model.Series, error) {
		return f.Fetch(ctx, symbol, span)
	})
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol string, span model.Span) (model.Series, error) {
	interval, rng, err := yahooInterval(span)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no result: %w", ErrMissingPrices)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 || result.Indicators.Quote[0].Close == nil {
		return nil, fmt.Errorf("yahoo: no close field: %w", ErrMissingPrices)
	}
	closes := result.Indicators.Quote[0].Close

	series := make(model.Series, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) {
			break
		}
		c, ok := toFloat(closes[i])
		if !ok {
			continue // null bars (holidays, halted minutes)
		}
		series = append(series, model.Sample{
			Time:  time.Unix(ts, 0),
			Price: decimal.NewFromFloat(c),
		})
	}
	return series.Normalize(f.Location), nil
}
