package event

import (
	"sort"
	"time"

	"replay/internal/domain"
)

// Queue holds events in non-decreasing timestamp order and keeps the loaded
// price series per symbol for as-of lookups. Events enqueued with equal
// timestamps dequeue in arrival order.
//
// The backtest loop is single-threaded, so Queue does no locking.
type Queue struct {
	events []Event
	series map[string][]domain.Bar
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{
		series: make(map[string][]domain.Bar),
	}
}

// Enqueue inserts the event after all existing events with a timestamp less
// than or equal to its own, preserving arrival order among ties.
func (q *Queue) Enqueue(e Event) {
	ts := e.Time()
	// Upper bound: first index whose timestamp is strictly later.
	idx := sort.Search(len(q.events), func(i int) bool {
		return q.events[i].Time().After(ts)
	})
	q.events = append(q.events, nil)
	copy(q.events[idx+1:], q.events[idx:])
	q.events[idx] = e
}

// Dequeue removes and returns the earliest event. The second return value is
// false when the queue is empty.
func (q *Queue) Dequeue() (Event, bool) {
	if len(q.events) == 0 {
		return nil, false
	}
	e := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	return e, true
}

// LoadMarketData stores the symbol's bar series (pre-sorted ascending by
// timestamp) for as-of lookups and enqueues a Market event per bar.
func (q *Queue) LoadMarketData(symbol string, bars []domain.Bar) {
	q.series[symbol] = bars
	for _, b := range bars {
		q.Enqueue(Market{Bar: b})
	}
}

// PriceAsOf returns the latest bar for symbol with a timestamp at or before
// ts. The second return value is false when no such bar exists. Bars after ts
// are never returned, so strategies cannot peek ahead.
func (q *Queue) PriceAsOf(symbol string, ts time.Time) (domain.Bar, bool) {
	bars := q.series[symbol]
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Timestamp.After(ts) {
			return bars[i], true
		}
	}
	return domain.Bar{}, false
}

// CloseAsOf returns the close of PriceAsOf(symbol, ts), or false when no bar
// exists at or before ts.
func (q *Queue) CloseAsOf(symbol string, ts time.Time) (float64, bool) {
	bar, ok := q.PriceAsOf(symbol, ts)
	if !ok {
		return 0, false
	}
	return bar.Close, true
}

// NextBarAfter returns the earliest bar for symbol strictly after ts, used to
// roll unexecuted orders forward. The second return value is false when the
// series has no later bar.
func (q *Queue) NextBarAfter(symbol string, ts time.Time) (domain.Bar, bool) {
	bars := q.series[symbol]
	idx := sort.Search(len(bars), func(i int) bool {
		return bars[i].Timestamp.After(ts)
	})
	if idx == len(bars) {
		return domain.Bar{}, false
	}
	return bars[idx], true
}

// IsEmpty reports whether the queue holds no events.
func (q *Queue) IsEmpty() bool { return len(q.events) == 0 }

// Size returns the number of queued events.
func (q *Queue) Size() int { return len(q.events) }

// Clear discards all queued events and loaded series.
func (q *Queue) Clear() {
	q.events = nil
	q.series = make(map[string][]domain.Bar)
}
