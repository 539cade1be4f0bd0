package pipeline

import (
	"fmt"
	"time"

	"MarketPulse/internal/chart"
	"MarketPulse/internal/collector"
	"MarketPulse/internal/config"
	"MarketPulse/internal/notifier"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by every job. Sources missing from the
// map are created from the config on first use.
type Deps struct {
	Sources   map[string]collector.Source
	Renderer  chart.Renderer
	Publisher notifier.Publisher
	Observer  Observer
	Log       *zap.Logger
	Now       func() time.Time
}

// Build turns every configured job into a runnable Job.
func Build(cfg *config.Config, deps Deps) ([]Job, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if deps.Sources == nil {
		deps.Sources = make(map[string]collector.Source)
	}

	jobs := make([]Job, 0, len(cfg.Jobs))
	for _, jc := range cfg.Jobs {
		src, err := source(cfg, deps.Sources, jc.Source, loc)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", jc.Name, err)
		}
		composer, err := notifier.NewComposer(jc.Name, jc.Template)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", jc.Name, err)
		}

		switch jc.Kind {
		case config.KindAlert:
			if len(jc.Symbols) != 1 {
				return nil, fmt.Errorf("job %s: alert jobs take exactly one symbol", jc.Name)
			}
			if jc.Render && deps.Renderer == nil {
				return nil, fmt.Errorf("job %s: renders a chart but no renderer is configured", jc.Name)
			}
			jobs = append(jobs, &AlertJob{
				JobName:   jc.Name,
				Symbol:    jc.Symbols[0],
				Span:      jc.Span,
				Lookback:  jc.Lookback,
				Threshold: decimal.NewFromFloat(jc.Threshold),
				Render:    jc.Render,
				Stride:    jc.Stride,
				Chart: ChartOptions{
					Title:        jc.Chart.Title,
					DatasetLabel: jc.Chart.DatasetLabel,
					LabelLayout:  jc.Chart.LabelLayout,
					Width:        jc.Chart.Width,
					Height:       jc.Chart.Height,
					Theme:        chart.Theme(jc.Chart.Theme),
				},
				Location:  loc,
				Source:    src,
				Renderer:  deps.Renderer,
				Composer:  composer,
				Publisher: deps.Publisher,
				Observer:  deps.Observer,
				Log:       deps.Log,
				Now:       deps.Now,
			})
		case config.KindDigest:
			jobs = append(jobs, &DigestJob{
				JobName:   jc.Name,
				Symbols:   jc.Symbols,
				Span:      jc.Span,
				Source:    src,
				Composer:  composer,
				Publisher: deps.Publisher,
				Observer:  deps.Observer,
				Log:       deps.Log,
				Now:       deps.Now,
			})
		default:
			return nil, fmt.Errorf("job %s: unknown kind %q", jc.Name, jc.Kind)
		}
	}
	return jobs, nil
}

func source(cfg *config.Config, cache map[string]collector.Source, name string, loc *time.Location) (collector.Source, error) {
	if s, ok := cache[name]; ok {
		return s, nil
	}
	opts := collector.Options{
		Proxy:             cfg.Proxy,
		Timeout:           cfg.Sources.Timeout,
		Location:          loc,
		Concurrency:       cfg.Sources.Concurrency,
		RequestsPerSecond: cfg.Sources.RequestsPerSecond,
	}
	switch name {
	case "yahoo":
		opts.BaseURL = cfg.Sources.YahooURL
	case "coingecko":
		opts.BaseURL = cfg.Sources.CoinGeckoURL
		opts.APIKey = cfg.Sources.CoinGeckoAPIKey
	}
	s, err := collector.New(name, opts)
	if err != nil {
		return nil, err
	}
	cache[name] = s
	return s, nil
}
