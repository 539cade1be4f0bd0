package collector

import (
	"context"

	"MarketPulse/internal/model"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const defaultConcurrency = 4

type fetchFunc func(ctx context.Context, symbol string) (model.Series, error)

// batcher fans a batch out over fetch, bounded by a concurrency limit and an
// optional request rate. Each goroutine writes only its own result slot.
type batcher struct {
	concurrency int
	limiter     *rate.Limiter
}

func newBatcher(opts Options) batcher {
	b := batcher{concurrency: opts.Concurrency}
	if b.concurrency <= 0 {
		b.concurrency = defaultConcurrency
	}
	if opts.RequestsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return b
}

func (b batcher) run(ctx context.Context, symbols []string, fetch fetchFunc) map[string]model.SymbolResult {
	results := make([]model.SymbolResult, len(symbols))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			results[i] = model.SymbolResult{Symbol: symbol}
			if b.limiter != nil {
				if err := b.limiter.Wait(ctx); err != nil {
					results[i].Err = err
					return nil
				}
			}
			results[i].Series, results[i].Err = fetch(ctx, symbol)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]model.SymbolResult, len(results))
	for _, r := range results {
		out[r.Symbol] = r
	}
	return out
}
