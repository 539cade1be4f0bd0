package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"MarketPulse/internal/httpclient"
	"MarketPulse/internal/model"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	defaultCoinGeckoBaseURL = "https://api.coingecko.com"
	coinGeckoMaxIntraday    = 90
)

// CoinGeckoFetcher implements Source using the CoinGecko market_chart API.
// Symbols are CoinGecko coin ids such as "bitcoin".
type CoinGeckoFetcher struct {
	BaseURL    string
	APIKey     string
	VsCurrency string
	Client     *http.Client
	Location   *time.Location

	batch batcher
}

// NewCoinGeckoFetcher creates a fetcher quoting prices in USD.
func NewCoinGeckoFetcher(opts Options) *CoinGeckoFetcher {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultCoinGeckoBaseURL
	}
	return &CoinGeckoFetcher{
		BaseURL:    baseURL,
		APIKey:     opts.APIKey,
		VsCurrency: "usd",
		Client:     httpclient.New(opts.Proxy, opts.Timeout),
		Location:   opts.Location,
		batch:      newBatcher(opts),
	}
}

func (f *CoinGeckoFetcher) Name() string { return "coingecko" }

// Fetch returns the price series for coin id symbol over span.
// CoinGecko picks the granularity from the number of days: 5-minutely for one
// day, hourly up to 90 days.
func (f *CoinGeckoFetcher) Fetch(ctx context.Context, symbol string, span model.Span) (model.Series, error) {
	series, err := f.fetchMarketChart(ctx, symbol, span)
	if err != nil {
		return nil, &DataSourceError{Source: f.Name(), Symbol: symbol, Err: err}
	}
	return series, nil
}

// FetchBatch fetches every coin concurrently; see Source.
func (f *CoinGeckoFetcher) FetchBatch(ctx context.Context, symbols []string, span model.Span) map[string]model.SymbolResult {
	return f.batch.run(ctx, symbols, func(ctx context.Context, symbol string) (model.Series, error) {
		return f.Fetch(ctx, symbol, span)
	})
}

func (f *CoinGeckoFetcher) marketChartQuery(span model.Span) (url.Values, error) {
	if span.Days <= 0 {
		return nil, fmt.Errorf("%w: %d days", ErrUnsupportedSpan, span.Days)
	}
	q := url.Values{}
	q.Set("vs_currency", f.VsCurrency)
	q.Set("days", strconv.Itoa(span.Days))
	switch span.Granularity {
	case model.GranularityIntraday:
		if span.Days > coinGeckoMaxIntraday {
			return nil, fmt.Errorf("%w: intraday over %d days", ErrUnsupportedSpan, span.Days)
		}
	case model.GranularityDaily:
		q.Set("interval", "daily")
	default:
		return nil, fmt.Errorf("%w: granularity %q", ErrUnsupportedSpan, span.Granularity)
	}
	return q, nil
}

func (f *CoinGeckoFetcher) fetchMarketChart(ctx context.Context, symbol string, span model.Span) (model.Series, error) {
	q, err := f.marketChartQuery(span)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/api/v3/coins/%s/market_chart?%s", f.BaseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", f.APIKey)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coingecko read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("coingecko: status %d, body: %s", resp.StatusCode, string(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("coingecko: invalid json body")
	}

	prices := gjson.GetBytes(body, "prices")
	if !prices.IsArray() || len(prices.Array()) == 0 {
		return nil, fmt.Errorf("coingecko: %w", ErrMissingPrices)
	}

	points := prices.Array()
	series := make(model.Series, 0, len(points))
	for _, p := range points {
		pair := p.Array()
		if len(pair) < 2 || pair[1].Type != gjson.Number {
			continue
		}
		price, err := decimal.NewFromString(pair[1].Raw)
		if err != nil {
			return nil, fmt.Errorf("coingecko: parse price %q: %w", pair[1].Raw, err)
		}
		series = append(series, model.Sample{
			Time:  time.UnixMilli(pair[0].Int()),
			Price: price,
		})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("coingecko: no valid points: %w", ErrMissingPrices)
	}
	return series.Normalize(f.Location), nil
}
