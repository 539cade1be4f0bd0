package pipeline

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/calculator"
	"MarketPulse/internal/chart"
	"MarketPulse/internal/collector"
	"MarketPulse/internal/model"
	"MarketPulse/internal/notifier"
	"MarketPulse/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ChartOptions describe how an alert's window is drawn.
type ChartOptions struct {
	Title        string
	DatasetLabel string
	LabelLayout  string // time.Format layout for x-axis labels
	Width        int
	Height       int
	Theme        chart.Theme
}

// AlertJob publishes a single symbol's movement over a lookback window when it
// reaches the threshold.
type AlertJob struct {
	JobName   string
	Symbol    string
	Span      model.Span
	Lookback  time.Duration // zero means the whole fetched span
	Threshold decimal.Decimal
	Render    bool
	Stride    int
	Chart     ChartOptions
	Location  *time.Location

	Source    collector.Source
	Renderer  chart.Renderer
	Composer  *notifier.Composer
	Publisher notifier.Publisher
	Observer  Observer
	Log       *zap.Logger
	Now       func() time.Time
}

func (j *AlertJob) Name() string { return j.JobName }
func (j *AlertJob) Kind() Kind   { return KindAlert }

func (j *AlertJob) lookback() time.Duration {
	if j.Lookback > 0 {
		return j.Lookback
	}
	return j.Span.Duration()
}

// Run executes FETCHING → WINDOWING → EVALUATING → [RENDERING] → COMPOSING → PUBLISHING.
func (j *AlertJob) Run(ctx context.Context) (res Result) {
	t := newTracker(j.JobName, KindAlert, j.Observer, j.Log, j.Now)
	t.log = t.log.With(zap.String("symbol", j.Symbol))
	defer func() {
		if r := recover(); r != nil {
			res = t.fail(fmt.Errorf("panic: %v", r))
		}
	}()

	t.enter(StageFetching)
	series, err := j.Source.Fetch(ctx, j.Symbol, j.Span)
	if err != nil {
		t.obs.FetchFailed(j.Source.Name())
		return t.fail(err)
	}
	t.log.Info("fetched series", zap.Int("samples", series.Len()))

	t.enter(StageWindowing)
	window := calculator.SelectWindow(series, j.lookback(), t.now())
	if window.Len() < calculator.MinSamples {
		t.log.Info("not enough samples in window", zap.Int("samples", window.Len()))
		return t.skip(strategy.InsufficientData())
	}

	t.enter(StageEvaluating)
	change, err := calculator.ComputeChange(window)
	if err != nil {
		return t.fail(err)
	}
	mv := strategy.Classify(change.PercentChange)
	t.res.Change = &change
	t.res.Movement = mv
	t.res.Decision = strategy.Gate(change, j.Threshold)
	t.log.Info("evaluated change",
		zap.String("percent_change", change.PercentChange.StringFixed(2)),
		zap.String("tier", string(mv.Tier)),
		zap.String("reason", string(t.res.Decision.Reason)),
	)
	if !t.res.Decision.ShouldPublish {
		return t.skip(t.res.Decision)
	}

	var image []byte
	if j.Render {
		t.enter(StageRendering)
		req, err := j.chartRequest(window)
		if err != nil {
			return t.fail(err)
		}
		image, err = j.Renderer.Render(ctx, req)
		if err != nil {
			return t.fail(err)
		}
	}

	t.enter(StageComposing)
	text, err := j.Composer.ComposeAlert(j.Symbol, change, mv)
	if err != nil {
		return t.fail(err)
	}
	t.res.Text = text

	t.enter(StagePublishing)
	postID, err := j.Publisher.Publish(ctx, model.PublishRequest{Text: text, Image: image})
	if err != nil {
		return t.fail(err)
	}
	return t.done(postID)
}

// chartRequest downsamples the window and pads the y axis around the drawn values.
func (j *AlertJob) chartRequest(window model.Series) (chart.Request, error) {
	drawn := calculator.Downsample(window, j.Stride)
	low, high, err := calculator.PriceRange(drawn)
	if err != nil {
		return chart.Request{}, err
	}
	yMin, yMax := chart.PaddedBounds(low.Round(2).InexactFloat64(), high.Round(2).InexactFloat64())

	loc := j.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := j.Chart.LabelLayout
	if layout == "" {
		layout = "15:04"
	}

	req := chart.Request{
		Labels:       make([]string, drawn.Len()),
		Values:       make([]float64, drawn.Len()),
		Title:        j.Chart.Title,
		DatasetLabel: j.Chart.DatasetLabel,
		YMin:         yMin,
		YMax:         yMax,
		Width:        j.Chart.Width,
		Height:       j.Chart.Height,
		Theme:        j.Chart.Theme,
	}
	for i, s := range drawn {
		req.Labels[i] = s.Time.In(loc).Format(layout)
		req.Values[i] = s.Price.Round(2).InexactFloat64()
	}
	return req, nil
}
