// Package portfolio tracks cash and position state through a backtest. The
// Ledger is the only owner of position state: it mutates positions through
// ProcessFill and MarkToMarket and nothing else.
package portfolio

import (
	"math"
	"sort"
	"time"

	"replay/internal/domain"
	"replay/internal/event"
	"replay/internal/execution"
)

// Position is the ledger's view of one symbol. Qty is signed: positive long,
// negative short, zero flat. AvgCost is the quantity-weighted average entry
// price of the currently open side only; flipping sides resets it to the
// flip fill's price.
type Position struct {
	Symbol        string
	Qty           float64
	AvgCost       float64
	UnrealizedPnL float64
	RealizedPnL   float64
	MarketValue   float64
	Side          domain.PositionSide
}

// EquityPoint is one equity-curve sample.
type EquityPoint struct {
	Timestamp time.Time
	Value     float64
}

// DrawdownPoint is one drawdown sample, as a fraction of the running peak.
type DrawdownPoint struct {
	Timestamp time.Time
	Drawdown  float64
}

// Snapshot is a deep copy of the ledger's state, safe to hand to analytics
// after the run finishes.
type Snapshot struct {
	Cash         float64
	TotalValue   float64
	Positions    map[string]Position
	DailyReturns []float64
	EquityCurve  []EquityPoint
	Drawdowns    []DrawdownPoint
}

// Ledger owns cash and positions, applies fills, and marks positions to
// market. The backtest loop is single-threaded, so the Ledger does no
// locking.
type Ledger struct {
	cash       float64
	totalValue float64
	positions  map[string]*Position

	dailyReturns []float64
	equityCurve  []EquityPoint
	drawdowns    []DrawdownPoint
	prevTotal    float64
	peak         float64

	queue      *event.Queue
	commission execution.CommissionFunc
}

// NewLedger creates a Ledger holding initialCapital in cash. Prices for
// mark-to-market come from queue; commission is used by CanAfford.
func NewLedger(initialCapital float64, queue *event.Queue, commission execution.CommissionFunc) *Ledger {
	return &Ledger{
		cash:       initialCapital,
		totalValue: initialCapital,
		positions:  make(map[string]*Position),
		prevTotal:  initialCapital,
		peak:       initialCapital,
		queue:      queue,
		commission: commission,
	}
}

// ProcessFill applies one fill to cash and the symbol's position.
//
// Reducing an open side realizes P&L net of the fill's commission; adding to
// a side reweights the average cost. A fill larger than the open opposite
// side closes it and opens the residual on the new side at the fill price.
func (l *Ledger) ProcessFill(fill *domain.Fill) {
	pos, ok := l.positions[fill.Symbol]
	if !ok {
		pos = &Position{Symbol: fill.Symbol, Side: domain.PositionSideFlat}
		l.positions[fill.Symbol] = pos
	}

	qty, price := fill.Qty, fill.Price

	if fill.Side == domain.OrderSideBuy {
		if pos.Qty >= 0 {
			// Opening or adding to a long: reweight cost basis.
			pos.AvgCost = weightedCost(pos.Qty, pos.AvgCost, qty, price)
			pos.Qty += qty
		} else {
			// Covering a short realizes (avg - price) per unit.
			cover := math.Min(qty, -pos.Qty)
			pos.RealizedPnL += cover*(pos.AvgCost-price) - fill.Commission
			pos.Qty += cover
			if residual := qty - cover; residual > 0 {
				// Flip: the leftover opens a long at the fill price.
				pos.Qty = residual
				pos.AvgCost = price
			}
		}
		l.cash -= fill.Notional() + fill.Commission
	} else {
		if pos.Qty <= 0 {
			// Opening or adding to a short: reweight the absolute cost basis.
			pos.AvgCost = weightedCost(-pos.Qty, pos.AvgCost, qty, price)
			pos.Qty -= qty
		} else {
			// Reducing a long realizes (price - avg) per unit.
			sellQty := math.Min(qty, pos.Qty)
			pos.RealizedPnL += sellQty*(price-pos.AvgCost) - fill.Commission
			pos.Qty -= sellQty
			if residual := qty - sellQty; residual > 0 {
				pos.Qty = -residual
				pos.AvgCost = price
			}
		}
		l.cash += fill.Notional() - fill.Commission
	}

	if pos.Qty == 0 {
		pos.AvgCost = 0
	}
	pos.Side = domain.SideOf(pos.Qty)

	// Revalue immediately so queries between marks see current numbers.
	if cur, ok := l.queue.CloseAsOf(fill.Symbol, fill.Timestamp); ok {
		pos.MarketValue = pos.Qty * cur
		pos.UnrealizedPnL = pos.Qty * (cur - pos.AvgCost)
	}
}

// weightedCost merges an open quantity at avg cost with an added quantity at
// price. Quantities are absolute.
func weightedCost(openQty, avg, addQty, price float64) float64 {
	total := openQty + addQty
	if total == 0 {
		return 0
	}
	return (openQty*avg + addQty*price) / total
}

// MarkToMarket revalues every position at the latest price as of ts, then
// appends one equity-curve point, one drawdown point, and (when a previous
// total exists) one periodic return. Positions with no price available keep
// their last valuation.
//
// Invariant on return: totalValue == cash + sum of position market values.
func (l *Ledger) MarkToMarket(ts time.Time) {
	var positionValue float64
	for _, pos := range l.positions {
		if price, ok := l.queue.CloseAsOf(pos.Symbol, ts); ok {
			pos.MarketValue = pos.Qty * price
			pos.UnrealizedPnL = pos.Qty * (price - pos.AvgCost)
		}
		positionValue += pos.MarketValue
	}
	l.totalValue = l.cash + positionValue

	if l.prevTotal > 0 {
		l.dailyReturns = append(l.dailyReturns, (l.totalValue-l.prevTotal)/l.prevTotal)
	}
	l.prevTotal = l.totalValue

	l.equityCurve = append(l.equityCurve, EquityPoint{Timestamp: ts, Value: l.totalValue})
	if l.totalValue > l.peak {
		l.peak = l.totalValue
	}
	var dd float64
	if l.peak > 0 {
		dd = (l.peak - l.totalValue) / l.peak
	}
	l.drawdowns = append(l.drawdowns, DrawdownPoint{Timestamp: ts, Drawdown: dd})
}

// CanAfford reports whether cash covers qty units at price plus commission.
func (l *Ledger) CanAfford(qty, price float64) bool {
	return l.cash >= qty*price+l.commission(qty, price)
}

// Position returns a copy of the symbol's position. The second return value
// is false when the symbol has never traded.
func (l *Ledger) Position(symbol string) (Position, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 { return l.cash }

// TotalValue returns cash plus position market value as of the last mark.
func (l *Ledger) TotalValue() float64 { return l.totalValue }

// Summary aggregates the open book: non-flat positions sorted by symbol plus
// total realized and unrealized P&L across all symbols ever traded.
type Summary struct {
	Positions     []Position
	RealizedPnL   float64
	UnrealizedPnL float64
}

// Summarize builds a Summary of the current book.
func (l *Ledger) Summarize() Summary {
	var s Summary
	for _, pos := range l.positions {
		s.RealizedPnL += pos.RealizedPnL
		s.UnrealizedPnL += pos.UnrealizedPnL
		if pos.Qty != 0 {
			s.Positions = append(s.Positions, *pos)
		}
	}
	sort.Slice(s.Positions, func(i, j int) bool {
		return s.Positions[i].Symbol < s.Positions[j].Symbol
	})
	return s
}

// Snapshot deep-copies the ledger state for post-run analytics.
func (l *Ledger) Snapshot() Snapshot {
	snap := Snapshot{
		Cash:         l.cash,
		TotalValue:   l.totalValue,
		Positions:    make(map[string]Position, len(l.positions)),
		DailyReturns: append([]float64(nil), l.dailyReturns...),
		EquityCurve:  append([]EquityPoint(nil), l.equityCurve...),
		Drawdowns:    append([]DrawdownPoint(nil), l.drawdowns...),
	}
	for sym, pos := range l.positions {
		snap.Positions[sym] = *pos
	}
	return snap
}
