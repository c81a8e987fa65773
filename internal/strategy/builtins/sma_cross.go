// Package builtins provides the strategy implementations that ship with the
// engine. Each registers a factory so configuration can select it by name.
package builtins

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"replay/internal/domain"
	"replay/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross is a moving-average crossover strategy: it goes long when the
// short-period SMA crosses above the long-period SMA and exits when it
// crosses back below. History is kept per symbol, so one instance can drive
// several symbols in the same run.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	closes      map[string][]float64
}

// NewSMACross creates an SMACross with the given short and long periods.
func NewSMACross(short, long int) (*SMACross, error) {
	if short <= 0 || long <= short {
		return nil, fmt.Errorf("sma-cross: need 0 < short < long, got %d/%d", short, long)
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		closes:      make(map[string][]float64),
	}, nil
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init resets all per-symbol history.
func (s *SMACross) Init(_ context.Context) error {
	s.closes = make(map[string][]float64)
	return nil
}

// OnBar appends the bar's close and emits a signal when the SMAs cross.
func (s *SMACross) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	closes := append(s.closes[bar.Symbol], bar.Close)
	s.closes[bar.Symbol] = closes

	// A cross needs the long SMA on this bar and the previous one.
	if len(closes) < s.longPeriod+1 {
		return nil, nil
	}

	short := talib.Sma(closes, s.shortPeriod)
	long := talib.Sma(closes, s.longPeriod)
	n := len(closes)

	prevAbove := short[n-2] > long[n-2]
	nowAbove := short[n-1] > long[n-1]
	if prevAbove == nowAbove {
		return nil, nil
	}

	sig := domain.Signal{
		Timestamp: bar.Timestamp,
		Symbol:    bar.Symbol,
		Strength:  1,
		Metadata: map[string]string{
			"sma_short": fmt.Sprintf("%.4f", short[n-1]),
			"sma_long":  fmt.Sprintf("%.4f", long[n-1]),
		},
	}
	if nowAbove {
		sig.Direction = domain.SignalLong
	} else {
		sig.Direction = domain.SignalExit
	}
	return []domain.Signal{sig}, nil
}
