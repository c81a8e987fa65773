package builtins

import "replay/internal/strategy"

// RegisterAll registers every builtin strategy factory with r.
func RegisterAll(r *strategy.Registry) {
	r.Register("sma-cross", func(p strategy.Params) (strategy.Strategy, error) {
		return NewSMACross(p.Int("short", 10), p.Int("long", 30))
	})
	r.Register("rsi", func(p strategy.Params) (strategy.Strategy, error) {
		return NewRSI(p.Int("period", 14), p.Float("oversold", 30), p.Float("overbought", 70))
	})
}
