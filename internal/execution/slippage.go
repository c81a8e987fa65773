package execution

import (
	"replay/internal/domain"
)

// SlippageModel estimates the adverse price delta applied to a fill versus
// its theoretical price. The returned delta is signed: positive raises the
// fill price (hurts buys), negative lowers it (hurts sells).
type SlippageModel interface {
	Delta(symbol string, qty float64, side domain.OrderSide, bar domain.Bar) float64
}

// Compile-time interface checks.
var _ SlippageModel = SimpleSlippage{}
var _ SlippageModel = NoSlippage{}

// SimpleSlippage applies a fixed fraction of the bar close against the trade
// direction, ignoring order size.
type SimpleSlippage struct {
	Rate float64
}

// Delta returns close*rate for buys and -close*rate for sells.
func (s SimpleSlippage) Delta(_ string, _ float64, side domain.OrderSide, bar domain.Bar) float64 {
	d := bar.Close * s.Rate
	if side == domain.OrderSideSell {
		return -d
	}
	return d
}

// NoSlippage applies no price impact.
type NoSlippage struct{}

// Delta returns 0.
func (NoSlippage) Delta(_ string, _ float64, _ domain.OrderSide, _ domain.Bar) float64 {
	return 0
}
