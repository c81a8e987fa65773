package strategy

import (
	"math"

	"github.com/google/uuid"

	"replay/internal/domain"
)

// Default sizing parameters, used when the config leaves them unset.
const (
	DefaultRiskFraction = 0.02
	DefaultStopDistance = 0.02
)

// Sizer converts signals into sized market orders. Entry quantity is the
// fixed-fractional formula: risk RiskFraction of portfolio value per trade,
// assuming the trade is stopped out StopDistance away from entry:
//
//	qty = floor((portfolioValue * RiskFraction / StopDistance) / price)
//
// Exits close the open position quantity exactly.
type Sizer struct {
	RiskFraction float64
	StopDistance float64
}

// NewSizer creates a Sizer; non-positive parameters fall back to the defaults.
func NewSizer(riskFraction, stopDistance float64) Sizer {
	if riskFraction <= 0 {
		riskFraction = DefaultRiskFraction
	}
	if stopDistance <= 0 {
		stopDistance = DefaultStopDistance
	}
	return Sizer{RiskFraction: riskFraction, StopDistance: stopDistance}
}

// Qty returns the entry quantity for one trade at price.
func (s Sizer) Qty(portfolioValue, price float64) float64 {
	if price <= 0 || portfolioValue <= 0 {
		return 0
	}
	riskAmount := portfolioValue * s.RiskFraction
	return math.Floor(riskAmount / s.StopDistance / price)
}

// BuildOrder turns a signal into a market GTC order. positionQty is the
// current signed position in the signal's symbol; exit signals close it
// exactly, entry signals use the fixed-fractional quantity. The second return
// value is false when no order should be placed (flat exit, zero quantity).
func (s Sizer) BuildOrder(sig domain.Signal, portfolioValue, price, positionQty float64) (domain.Order, bool) {
	var side domain.OrderSide
	var qty float64

	switch sig.Direction {
	case domain.SignalLong:
		side = domain.OrderSideBuy
		qty = s.Qty(portfolioValue, price)
	case domain.SignalShort:
		side = domain.OrderSideSell
		qty = s.Qty(portfolioValue, price)
	case domain.SignalExit:
		if positionQty == 0 {
			return domain.Order{}, false
		}
		qty = math.Abs(positionQty)
		if positionQty > 0 {
			side = domain.OrderSideSell
		} else {
			side = domain.OrderSideBuy
		}
	default:
		return domain.Order{}, false
	}

	if qty <= 0 {
		return domain.Order{}, false
	}
	return domain.Order{
		ID:          uuid.NewString(),
		Timestamp:   sig.Timestamp,
		Symbol:      sig.Symbol,
		Side:        side,
		Type:        domain.OrderTypeMarket,
		Qty:         qty,
		TimeInForce: domain.TimeInForceGTC,
	}, true
}
