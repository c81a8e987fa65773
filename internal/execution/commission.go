// Package execution simulates order execution against historical bars,
// applying pluggable commission and slippage models.
package execution

// CommissionFunc computes the commission charged for trading qty units at the
// given price.
type CommissionFunc func(qty, price float64) float64

// PerTradeCommission returns the default commission model: a percentage of
// notional with a minimum charge per trade.
func PerTradeCommission(rate, minimum float64) CommissionFunc {
	return func(qty, price float64) float64 {
		c := qty * price * rate
		if c < minimum {
			return minimum
		}
		return c
	}
}

// FreeCommission charges nothing. Useful in tests and for fee-free venues.
func FreeCommission(_, _ float64) float64 { return 0 }
