package pipeline

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/calculator"
	"MarketPulse/internal/collector"
	"MarketPulse/internal/model"
	"MarketPulse/internal/notifier"
	"MarketPulse/internal/strategy"

	"go.uber.org/zap"
)

// DigestJob posts one close-to-close line per symbol, in the configured order.
// There is no threshold; the run is skipped only when no symbol has data.
type DigestJob struct {
	JobName string
	Symbols []string
	Span    model.Span

	Source    collector.Source
	Composer  *notifier.Composer
	Publisher notifier.Publisher
	Observer  Observer
	Log       *zap.Logger
	Now       func() time.Time
}

func (j *DigestJob) Name() string { return j.JobName }
func (j *DigestJob) Kind() Kind   { return KindDigest }

func (j *DigestJob) Run(ctx context.Context) (res Result) {
	t := newTracker(j.JobName, KindDigest, j.Observer, j.Log, j.Now)
	defer func() {
		if r := recover(); r != nil {
			res = t.fail(fmt.Errorf("panic: %v", r))
		}
	}()

	t.enter(StageFetching)
	results := j.Source.FetchBatch(ctx, j.Symbols, j.Span)

	t.enter(StageEvaluating)
	lines := make([]string, 0, len(j.Symbols))
	withData := 0
	for _, sym := range j.Symbols {
		change, ok := j.evaluate(t, sym, results[sym])
		if !ok {
			lines = append(lines, notifier.FormatDigestLine(sym, nil, model.Movement{}))
			continue
		}
		withData++
		lines = append(lines, notifier.FormatDigestLine(sym, &change, strategy.Classify(change.PercentChange)))
	}
	t.log.Info("evaluated symbols", zap.Int("symbols", len(j.Symbols)), zap.Int("with_data", withData))
	if withData == 0 {
		return t.skip(strategy.InsufficientData())
	}
	t.res.Decision = model.AlertDecision{ShouldPublish: true, Reason: model.ReasonThresholdMet}

	t.enter(StageComposing)
	text, err := j.Composer.ComposeDigest(lines)
	if err != nil {
		return t.fail(err)
	}
	t.res.Text = text

	t.enter(StagePublishing)
	postID, err := j.Publisher.Publish(ctx, model.PublishRequest{Text: text})
	if err != nil {
		return t.fail(err)
	}
	return t.done(postID)
}

func (j *DigestJob) evaluate(t *tracker, sym string, r model.SymbolResult) (model.ChangeResult, bool) {
	log := t.log.With(zap.String("symbol", sym))
	if r.Symbol == "" {
		log.Warn("symbol missing from batch result")
		return model.ChangeResult{}, false
	}
	if !r.OK() {
		t.obs.FetchFailed(j.Source.Name())
		log.Warn("fetch failed", zap.Error(r.Err))
		return model.ChangeResult{}, false
	}
	window := calculator.CalendarWindow(r.Series)
	if window.Len() < calculator.MinSamples {
		log.Warn("not enough closes", zap.Int("samples", window.Len()))
		return model.ChangeResult{}, false
	}
	change, err := calculator.ComputeChange(window)
	if err != nil {
		log.Warn("compute change failed", zap.Error(err))
		return model.ChangeResult{}, false
	}
	return change, true
}
