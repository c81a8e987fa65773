package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"replay/internal/domain"
	"replay/internal/util"
)

// Compile-time interface check.
var _ BarSource = (*AlpacaSource)(nil)

// alpacaRequestsPerMinute matches the free-tier API quota.
const alpacaRequestsPerMinute = 200

// AlpacaSource fetches historical bars from the Alpaca market-data API.
type AlpacaSource struct {
	client    *marketdata.Client
	timeframe marketdata.TimeFrame
	feed      string
	limiter   *util.RateLimiter
}

// NewAlpacaSource creates an AlpacaSource for the given credentials and bar
// frequency ("daily", "hour", or "minute").
func NewAlpacaSource(apiKey, apiSecret, dataURL, frequency, feed string) (*AlpacaSource, error) {
	tf, err := timeframeFor(frequency)
	if err != nil {
		return nil, err
	}

	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "iex"
	}

	return &AlpacaSource{
		client:    marketdata.NewClient(opts),
		timeframe: tf,
		feed:      feed,
		limiter:   util.NewRateLimiter(alpacaRequestsPerMinute),
	}, nil
}

func timeframeFor(frequency string) (marketdata.TimeFrame, error) {
	switch frequency {
	case "", "daily":
		return marketdata.OneDay, nil
	case "hour":
		return marketdata.OneHour, nil
	case "minute":
		return marketdata.OneMin, nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported data frequency %q", frequency)
	}
}

// Bars fetches the symbol's bars from Alpaca, retrying transient failures.
func (s *AlpacaSource) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var raw []marketdata.Bar
	err := util.Retry(ctx, 3, time.Second, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		raw, err = s.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: s.timeframe,
			Start:     start,
			End:       end,
			Feed:      marketdata.Feed(s.feed),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars(%s): %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:     strings.ToUpper(symbol),
			Timestamp:  ab.Timestamp,
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	return bars, nil
}
