package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"replay/internal/domain"
	"replay/internal/store"
)

var _ BarSource = (*CachedSource)(nil)

// CachedSource serves bars from the local Parquet store and falls back to the
// wrapped source on a miss, writing fetched bars through to the store so the
// next run is offline.
type CachedSource struct {
	source    BarSource
	store     store.BarStore
	frequency string
	log       *slog.Logger
}

// NewCachedSource wraps src with the bar store at the given frequency.
func NewCachedSource(src BarSource, s store.BarStore, frequency string) *CachedSource {
	if frequency == "" {
		frequency = "daily"
	}
	return &CachedSource{
		source:    src,
		store:     s,
		frequency: frequency,
		log:       slog.Default().With("component", "marketdata"),
	}
}

// Bars returns cached bars when present, otherwise fetches from the wrapped
// source and caches the result. A cache write failure is logged, not fatal:
// the fetched bars are still returned.
func (c *CachedSource) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	cached, err := c.store.ReadBars(ctx, symbol, c.frequency, start, end)
	if err == nil && len(cached) > 0 {
		c.log.Debug("cache hit", "symbol", symbol, "bars", len(cached))
		return cached, nil
	}

	if c.source == nil {
		return nil, fmt.Errorf("no cached bars for %s and no upstream source", symbol)
	}

	bars, err := c.source.Bars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if err := c.store.WriteBars(ctx, c.frequency, bars); err != nil {
		c.log.Warn("caching bars failed", "symbol", symbol, "err", err)
	}
	return bars, nil
}
