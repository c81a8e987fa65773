package analytics

import (
	"sort"
	"time"

	"replay/internal/domain"
)

// RoundTrip is one completed trade: an entry fill (or part of one) matched
// with an exit fill in FIFO order. PnL is net of the commission attributable
// to the matched quantity on both legs.
type RoundTrip struct {
	Symbol     string
	Side       domain.PositionSide // long or short
	Qty        float64
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	PnL        float64
}

// openLot is an unmatched portion of an entry fill.
type openLot struct {
	side       domain.OrderSide
	qty        float64
	price      float64
	ts         time.Time
	commPerQty float64
}

// PairRoundTrips pairs buy and sell fills per symbol in FIFO order and
// returns the completed round trips with their realized P&L. A fill that
// exceeds the open opposite quantity closes it and its residual opens a new
// lot on the fill's own side.
func PairRoundTrips(fills []domain.Fill) []RoundTrip {
	ordered := append([]domain.Fill(nil), fills...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	lots := make(map[string][]openLot)
	var trips []RoundTrip

	for _, f := range ordered {
		if f.Qty <= 0 {
			continue
		}
		remaining := f.Qty
		commPerQty := f.Commission / f.Qty
		queue := lots[f.Symbol]

		for remaining > 0 && len(queue) > 0 && queue[0].side != f.Side {
			lot := &queue[0]
			matched := remaining
			if lot.qty < matched {
				matched = lot.qty
			}

			trip := RoundTrip{
				Symbol:    f.Symbol,
				Qty:       matched,
				EntryTime: lot.ts,
				ExitTime:  f.Timestamp,
			}
			if lot.side == domain.OrderSideBuy {
				trip.Side = domain.PositionSideLong
				trip.EntryPrice = lot.price
				trip.ExitPrice = f.Price
				trip.PnL = (f.Price - lot.price) * matched
			} else {
				trip.Side = domain.PositionSideShort
				trip.EntryPrice = lot.price
				trip.ExitPrice = f.Price
				trip.PnL = (lot.price - f.Price) * matched
			}
			trip.PnL -= matched * (lot.commPerQty + commPerQty)
			trips = append(trips, trip)

			lot.qty -= matched
			remaining -= matched
			if lot.qty == 0 {
				queue = queue[1:]
			}
		}

		if remaining > 0 {
			queue = append(queue, openLot{
				side:       f.Side,
				qty:        remaining,
				price:      f.Price,
				ts:         f.Timestamp,
				commPerQty: commPerQty,
			})
		}
		lots[f.Symbol] = queue
	}

	return trips
}
