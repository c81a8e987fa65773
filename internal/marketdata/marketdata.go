// Package marketdata loads the historical bars a backtest runs on. Sources
// are composable: the Alpaca client fetches from the API, and CachedSource
// wraps any source with the on-disk Parquet store.
package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"replay/internal/domain"
)

// BarSource returns a symbol's bars within [start, end] in chronological
// order.
type BarSource interface {
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// LoadAll fetches bars for every symbol concurrently, one goroutine per
// symbol, failing fast on the first error. Acquisition happens before the
// simulation loop starts, so this is the only concurrent part of a run.
func LoadAll(ctx context.Context, src BarSource, symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	out := make(map[string][]domain.Bar, len(symbols))

	for _, symbol := range symbols {
		g.Go(func() error {
			bars, err := src.Bars(ctx, symbol, start, end)
			if err != nil {
				return fmt.Errorf("loading bars for %s: %w", symbol, err)
			}
			mu.Lock()
			out[symbol] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
