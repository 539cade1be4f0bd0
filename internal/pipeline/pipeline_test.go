package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/calculator"
	"MarketPulse/internal/chart"
	"MarketPulse/internal/collector"
	"MarketPulse/internal/metrics"
	"MarketPulse/internal/model"
	"MarketPulse/internal/notifier"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return now }

type fakeRenderer struct {
	err      error
	requests []chart.Request
}

func (f *fakeRenderer) Render(_ context.Context, req chart.Request) ([]byte, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png"), nil
}

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	requests []model.PublishRequest
}

func (f *fakePublisher) Name() string { return "fake" }

func (f *fakePublisher) Publish(_ context.Context, req model.PublishRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return "post-1", nil
}

func sample(ago time.Duration, price string) model.Sample {
	return model.Sample{Time: now.Add(-ago), Price: decimal.RequireFromString(price)}
}

func mustComposer(t *testing.T, text string) *notifier.Composer {
	t.Helper()
	c, err := notifier.NewComposer(t.Name(), text)
	require.NoError(t, err)
	return c
}

func alertJob(t *testing.T, series model.Series) (*AlertJob, *fakeRenderer, *fakePublisher) {
	t.Helper()
	r := &fakeRenderer{}
	p := &fakePublisher{}
	return &AlertJob{
		JobName:   "btc-hourly",
		Symbol:    "bitcoin",
		Span:      model.Span{Days: 1, Granularity: model.GranularityIntraday},
		Lookback:  time.Hour,
		Threshold: decimal.NewFromInt(10),
		Render:    true,
		Chart:     ChartOptions{Title: "BTC Price (Last Hour)", DatasetLabel: "BTC Price (USD)", Width: 600, Height: 300, Theme: chart.ThemeDark},
		Location:  time.UTC,
		Source:    &collector.MockFetcher{Data: map[string]model.Series{"bitcoin": series}},
		Renderer:  r,
		Composer:  mustComposer(t, "{{.Symbol}} ${{.Price}} {{.Change}} ({{.Percent}}%) {{.Marker}}"),
		Publisher: p,
		Now:       fixedNow,
	}, r, p
}

func TestAlertJob_ScenarioA_Publishes(t *testing.T) {
	job, r, p := alertJob(t, model.Series{sample(30*time.Minute, "100.0"), sample(time.Minute, "112.0")})

	res := job.Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, StageDone, res.State)
	assert.Equal(t, "post-1", res.PostID)
	assert.Equal(t, model.ReasonThresholdMet, res.Decision.Reason)
	require.NotNil(t, res.Change)
	assert.True(t, decimal.NewFromInt(12).Equal(res.Change.PercentChange))
	assert.Equal(t, model.TierSurging, res.Movement.Tier)

	require.Len(t, r.requests, 1)
	req := r.requests[0]
	assert.Equal(t, []string{"14:30", "14:59"}, req.Labels)
	assert.Equal(t, []float64{100, 112}, req.Values)
	assert.InDelta(t, 99.4, req.YMin, 1e-9)
	assert.InDelta(t, 112.6, req.YMax, 1e-9)
	assert.Equal(t, chart.ThemeDark, req.Theme)

	require.Len(t, p.requests, 1)
	assert.Equal(t, "bitcoin $112.00 12.00 (+12.00%) ⚡", p.requests[0].Text)
	assert.Equal(t, []byte("png"), p.requests[0].Image)
}

func TestAlertJob_ScenarioB_BelowThreshold(t *testing.T) {
	job, r, p := alertJob(t, model.Series{sample(30*time.Minute, "100.0"), sample(time.Minute, "103.0")})

	res := job.Run(context.Background())

	assert.Equal(t, StageSkipped, res.State)
	assert.Equal(t, model.ReasonBelowThreshold, res.Decision.Reason)
	assert.Equal(t, model.TierRising, res.Movement.Tier)
	assert.Empty(t, r.requests)
	assert.Empty(t, p.requests)
}

func TestAlertJob_ScenarioC_InsufficientData(t *testing.T) {
	// the older sample falls outside the one hour lookback
	job, r, p := alertJob(t, model.Series{sample(2*time.Hour, "50.0"), sample(time.Minute, "112.0")})

	res := job.Run(context.Background())

	assert.Equal(t, StageSkipped, res.State)
	assert.Equal(t, StageWindowing, res.Stage)
	assert.Equal(t, model.ReasonInsufficientData, res.Decision.Reason)
	assert.Nil(t, res.Change)
	assert.NoError(t, res.Err)
	assert.Empty(t, r.requests)
	assert.Empty(t, p.requests)
}

func TestAlertJob_ScenarioE_ZeroStartPrice(t *testing.T) {
	job, _, p := alertJob(t, model.Series{sample(30*time.Minute, "0"), sample(time.Minute, "112.0")})

	res := job.Run(context.Background())

	assert.Equal(t, StageFailed, res.State)
	assert.Equal(t, StageEvaluating, res.Stage)
	assert.ErrorIs(t, res.Err, calculator.ErrDivisionByZero)
	assert.Empty(t, p.requests)
}

func TestAlertJob_Failures(t *testing.T) {
	rising := model.Series{sample(30*time.Minute, "100.0"), sample(time.Minute, "120.0")}

	t.Run("fetch", func(t *testing.T) {
		job, _, p := alertJob(t, rising)
		job.Source = &collector.MockFetcher{Errors: map[string]error{"bitcoin": errors.New("timeout")}}
		res := job.Run(context.Background())
		assert.Equal(t, StageFailed, res.State)
		assert.Equal(t, StageFetching, res.Stage)
		var dsErr *collector.DataSourceError
		assert.ErrorAs(t, res.Err, &dsErr)
		assert.Empty(t, p.requests)
	})

	t.Run("render", func(t *testing.T) {
		job, r, p := alertJob(t, rising)
		r.err = &chart.RenderError{Status: 400, Body: "bad chart"}
		res := job.Run(context.Background())
		assert.Equal(t, StageFailed, res.State)
		assert.Equal(t, StageRendering, res.Stage)
		assert.Empty(t, p.requests)
	})

	t.Run("publish", func(t *testing.T) {
		job, _, p := alertJob(t, rising)
		p.err = errors.New("403")
		res := job.Run(context.Background())
		assert.Equal(t, StageFailed, res.State)
		assert.Equal(t, StagePublishing, res.Stage)
		assert.Len(t, p.requests, 1)
		assert.Equal(t, "PUBLISHING", res.Reason())
	})

	t.Run("template", func(t *testing.T) {
		job, _, p := alertJob(t, rising)
		job.Composer = mustComposer(t, "{{.Missing}}")
		res := job.Run(context.Background())
		assert.Equal(t, StageFailed, res.State)
		assert.Equal(t, StageComposing, res.Stage)
		assert.Empty(t, p.requests)
	})
}

func TestAlertJob_WeeklyChart(t *testing.T) {
	series := make(model.Series, 0, 12)
	for i := 11; i >= 0; i-- {
		series = append(series, sample(time.Duration(i)*12*time.Hour, decimal.NewFromInt(int64(100-i)).String()))
	}
	job, r, p := alertJob(t, series)
	job.Span = model.Span{Days: 7, Granularity: model.GranularityIntraday}
	job.Lookback = 0
	job.Threshold = decimal.Zero
	job.Stride = 5
	job.Chart.LabelLayout = "01-02 15:04"

	res := job.Run(context.Background())

	require.Equal(t, StageDone, res.State, res.Err)
	require.Len(t, r.requests, 1)
	labels := r.requests[0].Labels
	assert.Equal(t, []float64{89, 94, 99, 100}, r.requests[0].Values)
	assert.Equal(t, "03-09 03:00", labels[0])
	assert.Equal(t, "03-14 15:00", labels[len(labels)-1])
	// change is taken from the full window, not the drawn one
	assert.True(t, decimal.NewFromInt(11).Equal(res.Change.AbsoluteDiff))
	assert.Len(t, p.requests, 1)
}

func TestAlertJob_WithoutRender(t *testing.T) {
	job, r, p := alertJob(t, model.Series{sample(30*time.Minute, "100.0"), sample(time.Minute, "112.0")})
	job.Render = false

	res := job.Run(context.Background())

	assert.Equal(t, StageDone, res.State)
	assert.Empty(t, r.requests)
	require.Len(t, p.requests, 1)
	assert.False(t, p.requests[0].HasImage())
}

func TestAlertJob_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	job, _, _ := alertJob(t, model.Series{sample(30*time.Minute, "100.0"), sample(time.Minute, "103.0")})
	job.Observer = m

	job.Run(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("btc-hourly", "alert", "SKIPPED", "BELOW_THRESHOLD")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.StageDuration))
}

func digestJob(t *testing.T, src collector.Source) (*DigestJob, *fakePublisher) {
	t.Helper()
	p := &fakePublisher{}
	return &DigestJob{
		JobName:   "eod-favorites",
		Symbols:   []string{"SPY", "QQQ", "NVDA"},
		Span:      model.Span{Days: 5, Granularity: model.GranularityDaily},
		Source:    src,
		Composer:  mustComposer(t, "EOD PERFORMANCE\n\n{{range .Lines}}{{.}}\n{{end}}\n#Stocks #Investing"),
		Publisher: p,
		Now:       fixedNow,
	}, p
}

func closes(prices ...string) model.Series {
	out := make(model.Series, len(prices))
	for i, p := range prices {
		out[i] = sample(time.Duration(len(prices)-1-i)*24*time.Hour, p)
	}
	return out
}

func TestDigestJob_ScenarioD_PartialData(t *testing.T) {
	m := metrics.New()
	src := &collector.MockFetcher{
		Data: map[string]model.Series{
			"SPY":  closes("500", "505", "510"),
			"NVDA": closes("100", "95"),
		},
		Errors: map[string]error{"QQQ": errors.New("no data")},
	}
	job, p := digestJob(t, src)
	job.Observer = m

	res := job.Run(context.Background())

	require.Equal(t, StageDone, res.State, res.Err)
	require.Len(t, p.requests, 1)
	assert.False(t, p.requests[0].HasImage())

	body := strings.TrimSuffix(strings.TrimPrefix(p.requests[0].Text, "EOD PERFORMANCE\n\n"), "\n\n#Stocks #Investing")
	lines := strings.Split(body, "\n")
	assert.Equal(t, []string{
		"$SPY: $510.00 (+0.99%) ↔️",
		"QQQ: No Data",
		"$NVDA: $95.00 (-5.00%) ⬇️",
	}, lines)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues("mock")))
}

func TestDigestJob_NoDataSkips(t *testing.T) {
	src := &collector.MockFetcher{
		Data:   map[string]model.Series{"SPY": closes("500"), "NVDA": closes("0", "5")},
		Errors: map[string]error{"QQQ": errors.New("holiday")},
	}
	job, p := digestJob(t, src)

	res := job.Run(context.Background())

	assert.Equal(t, StageSkipped, res.State)
	assert.Equal(t, model.ReasonInsufficientData, res.Decision.Reason)
	assert.Empty(t, p.requests)
}

func TestDigestJob_PublishFailure(t *testing.T) {
	job, p := digestJob(t, &collector.MockFetcher{Price: 100, Now: fixedNow})
	p.err = errors.New("rate limited")

	res := job.Run(context.Background())

	assert.Equal(t, StageFailed, res.State)
	assert.Equal(t, StagePublishing, res.Stage)
	assert.Len(t, p.requests, 1)
}
