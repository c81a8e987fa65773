// Package event defines the event variants that drive a backtest and the
// chronological queue that orders them.
package event

import (
	"time"

	"replay/internal/domain"
)

// Event is one step of a backtest: a market bar, a strategy signal, an order,
// or a fill. The Time value orders events in the queue.
type Event interface {
	Time() time.Time
}

// Compile-time interface checks.
var _ Event = Market{}
var _ Event = SignalEvent{}
var _ Event = OrderEvent{}
var _ Event = FillEvent{}

// Market carries one bar of market data.
type Market struct {
	Bar domain.Bar
}

// Time returns the bar's timestamp.
func (e Market) Time() time.Time { return e.Bar.Timestamp }

// SignalEvent carries one strategy signal.
type SignalEvent struct {
	Signal domain.Signal
}

// Time returns the signal's timestamp.
func (e SignalEvent) Time() time.Time { return e.Signal.Timestamp }

// OrderEvent carries one order awaiting execution.
type OrderEvent struct {
	Order domain.Order
}

// Time returns the order's timestamp.
func (e OrderEvent) Time() time.Time { return e.Order.Timestamp }

// FillEvent carries one executed fill.
type FillEvent struct {
	Fill domain.Fill
}

// Time returns the fill's timestamp.
func (e FillEvent) Time() time.Time { return e.Fill.Timestamp }
