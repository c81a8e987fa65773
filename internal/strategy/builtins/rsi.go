package builtins

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"replay/internal/domain"
	"replay/internal/strategy"
)

var _ strategy.Strategy = (*RSI)(nil)

// RSI is a mean-reversion strategy on the relative strength index: it goes
// long when RSI drops below the oversold threshold, goes short when RSI rises
// above the overbought threshold, and signals only on the crossing bar.
type RSI struct {
	period     int
	oversold   float64
	overbought float64

	closes map[string][]float64
	zone   map[string]int // -1 oversold, 0 neutral, +1 overbought
}

// NewRSI creates an RSI strategy. Typical thresholds are 30/70.
func NewRSI(period int, oversold, overbought float64) (*RSI, error) {
	if period <= 1 {
		return nil, fmt.Errorf("rsi: period must be > 1, got %d", period)
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("rsi: oversold %v must be below overbought %v", oversold, overbought)
	}
	return &RSI{
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		closes:     make(map[string][]float64),
		zone:       make(map[string]int),
	}, nil
}

// Name returns "rsi".
func (r *RSI) Name() string {
	return "rsi"
}

// Init resets all per-symbol history.
func (r *RSI) Init(_ context.Context) error {
	r.closes = make(map[string][]float64)
	r.zone = make(map[string]int)
	return nil
}

// OnBar appends the bar's close and emits a signal when RSI enters the
// oversold or overbought zone.
func (r *RSI) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	closes := append(r.closes[bar.Symbol], bar.Close)
	r.closes[bar.Symbol] = closes

	if len(closes) <= r.period {
		return nil, nil
	}

	series := talib.Rsi(closes, r.period)
	value := series[len(series)-1]

	zone := 0
	switch {
	case value < r.oversold:
		zone = -1
	case value > r.overbought:
		zone = 1
	}

	prev := r.zone[bar.Symbol]
	r.zone[bar.Symbol] = zone
	if zone == prev || zone == 0 {
		return nil, nil
	}

	sig := domain.Signal{
		Timestamp: bar.Timestamp,
		Symbol:    bar.Symbol,
		Strength:  1,
		Metadata:  map[string]string{"rsi": fmt.Sprintf("%.2f", value)},
	}
	if zone == -1 {
		sig.Direction = domain.SignalLong
	} else {
		sig.Direction = domain.SignalShort
	}
	return []domain.Signal{sig}, nil
}
