package portfolio

import (
	"math"
	"testing"
	"time"

	"replay/internal/domain"
	"replay/internal/event"
	"replay/internal/execution"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func flatBar(symbol string, d int, close float64) domain.Bar {
	return domain.Bar{Symbol: symbol, Timestamp: day(d), Open: close, High: close, Low: close, Close: close}
}

func newTestLedger(capital float64, bars ...domain.Bar) *Ledger {
	q := event.NewQueue()
	series := make(map[string][]domain.Bar)
	for _, b := range bars {
		series[b.Symbol] = append(series[b.Symbol], b)
	}
	for sym, bs := range series {
		q.LoadMarketData(sym, bs)
	}
	return NewLedger(capital, q, execution.PerTradeCommission(0.001, 1))
}

func buy(sym string, d int, qty, price, commission float64) *domain.Fill {
	return &domain.Fill{Timestamp: day(d), Symbol: sym, Side: domain.OrderSideBuy, Qty: qty, Price: price, Commission: commission}
}

func sell(sym string, d int, qty, price, commission float64) *domain.Fill {
	return &domain.Fill{Timestamp: day(d), Symbol: sym, Side: domain.OrderSideSell, Qty: qty, Price: price, Commission: commission}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRoundTripCashAndRealized(t *testing.T) {
	l := newTestLedger(10_000, flatBar("AAPL", 1, 100), flatBar("AAPL", 2, 110))

	// Buy 10 @ 100 with $1 commission.
	l.ProcessFill(buy("AAPL", 1, 10, 100, 1))
	if !almostEqual(l.Cash(), 8_999) {
		t.Errorf("cash after buy = %v, want 8999", l.Cash())
	}
	pos, ok := l.Position("AAPL")
	if !ok {
		t.Fatal("position missing after fill")
	}
	if pos.Qty != 10 || pos.AvgCost != 100 {
		t.Errorf("position = qty %v avg %v, want qty 10 avg 100", pos.Qty, pos.AvgCost)
	}
	if pos.Side != domain.PositionSideLong {
		t.Errorf("side = %q, want long", pos.Side)
	}

	// Sell 10 @ 110 with $1 commission closes the position.
	l.ProcessFill(sell("AAPL", 2, 10, 110, 1))
	if !almostEqual(l.Cash(), 10_098) {
		t.Errorf("cash after sell = %v, want 10098", l.Cash())
	}
	pos, _ = l.Position("AAPL")
	if pos.Qty != 0 || pos.Side != domain.PositionSideFlat {
		t.Errorf("position = qty %v side %q, want flat", pos.Qty, pos.Side)
	}
	// Realized: 10*(110-100) - 1 = 99 (only the closing commission).
	if !almostEqual(pos.RealizedPnL, 99) {
		t.Errorf("realized = %v, want 99", pos.RealizedPnL)
	}
	if pos.AvgCost != 0 {
		t.Errorf("avg cost after flat = %v, want 0", pos.AvgCost)
	}
}

func TestWeightedAverageCost(t *testing.T) {
	l := newTestLedger(100_000, flatBar("AAPL", 1, 100))

	l.ProcessFill(buy("AAPL", 1, 10, 100, 0))
	l.ProcessFill(buy("AAPL", 1, 30, 120, 0))

	pos, _ := l.Position("AAPL")
	// (10*100 + 30*120) / 40 = 115.
	if !almostEqual(pos.AvgCost, 115) {
		t.Errorf("avg cost = %v, want 115", pos.AvgCost)
	}
	if pos.Qty != 40 {
		t.Errorf("qty = %v, want 40", pos.Qty)
	}
}

func TestShortSideAccounting(t *testing.T) {
	l := newTestLedger(10_000, flatBar("AAPL", 1, 100), flatBar("AAPL", 2, 90))

	// Open a short: sell 10 @ 100.
	l.ProcessFill(sell("AAPL", 1, 10, 100, 0))
	pos, _ := l.Position("AAPL")
	if pos.Qty != -10 || pos.AvgCost != 100 {
		t.Errorf("short position = qty %v avg %v, want qty -10 avg 100", pos.Qty, pos.AvgCost)
	}
	if pos.Side != domain.PositionSideShort {
		t.Errorf("side = %q, want short", pos.Side)
	}
	if !almostEqual(l.Cash(), 11_000) {
		t.Errorf("cash after short sale = %v, want 11000", l.Cash())
	}

	// Cover at 90: realized = 10*(100-90) - 2 = 98.
	l.ProcessFill(buy("AAPL", 2, 10, 90, 2))
	pos, _ = l.Position("AAPL")
	if !almostEqual(pos.RealizedPnL, 98) {
		t.Errorf("realized after cover = %v, want 98", pos.RealizedPnL)
	}
	if pos.Qty != 0 {
		t.Errorf("qty after cover = %v, want 0", pos.Qty)
	}
}

func TestLongToShortFlipResetsCost(t *testing.T) {
	l := newTestLedger(100_000, flatBar("AAPL", 1, 100), flatBar("AAPL", 2, 105))

	l.ProcessFill(buy("AAPL", 1, 10, 100, 0))
	// Sell 25: closes the 10-lot long, opens a 15-lot short at 105.
	l.ProcessFill(sell("AAPL", 2, 25, 105, 0))

	pos, _ := l.Position("AAPL")
	if pos.Qty != -15 {
		t.Errorf("qty after flip = %v, want -15", pos.Qty)
	}
	if !almostEqual(pos.AvgCost, 105) {
		t.Errorf("avg cost after flip = %v, want 105 (reset to flip price)", pos.AvgCost)
	}
	// Realized from the closed long: 10*(105-100) = 50.
	if !almostEqual(pos.RealizedPnL, 50) {
		t.Errorf("realized after flip = %v, want 50", pos.RealizedPnL)
	}
	if pos.Side != domain.PositionSideShort {
		t.Errorf("side = %q, want short", pos.Side)
	}
}

func TestMarkToMarketIdentity(t *testing.T) {
	l := newTestLedger(10_000,
		flatBar("AAPL", 1, 100), flatBar("AAPL", 2, 104), flatBar("AAPL", 3, 98),
		flatBar("MSFT", 1, 400), flatBar("MSFT", 2, 410), flatBar("MSFT", 3, 395),
	)

	l.ProcessFill(buy("AAPL", 1, 20, 100, 1))
	l.ProcessFill(sell("MSFT", 1, 5, 400, 1))

	for d := 1; d <= 3; d++ {
		l.MarkToMarket(day(d))

		var positionValue float64
		for _, sym := range []string{"AAPL", "MSFT"} {
			pos, _ := l.Position(sym)
			positionValue += pos.MarketValue
		}
		if !almostEqual(l.TotalValue(), l.Cash()+positionValue) {
			t.Fatalf("day %d: total %v != cash %v + positions %v", d, l.TotalValue(), l.Cash(), positionValue)
		}
	}

	snap := l.Snapshot()
	if len(snap.EquityCurve) != 3 || len(snap.Drawdowns) != 3 {
		t.Fatalf("curve lengths = %d/%d, want 3/3", len(snap.EquityCurve), len(snap.Drawdowns))
	}
	if len(snap.DailyReturns) != 3 {
		t.Fatalf("daily returns = %d, want 3", len(snap.DailyReturns))
	}

	// Day 2 is the peak; day 3 must show a positive drawdown.
	if snap.Drawdowns[1].Drawdown != 0 {
		t.Errorf("drawdown at peak = %v, want 0", snap.Drawdowns[1].Drawdown)
	}
	if snap.Drawdowns[2].Drawdown <= 0 {
		t.Errorf("drawdown after decline = %v, want > 0", snap.Drawdowns[2].Drawdown)
	}
}

func TestMarkToMarketMissingPriceKeepsValuation(t *testing.T) {
	// AAPL has a bar on day 1 only; marking on day 2 keeps the day-1 value.
	l := newTestLedger(10_000, flatBar("AAPL", 1, 100))
	l.ProcessFill(buy("AAPL", 1, 10, 100, 0))

	l.MarkToMarket(day(1))
	first := l.TotalValue()
	l.MarkToMarket(day(2))

	if !almostEqual(l.TotalValue(), first) {
		t.Errorf("total changed without new prices: %v -> %v", first, l.TotalValue())
	}
}

func TestCanAfford(t *testing.T) {
	l := newTestLedger(1_000)

	// 9 shares at 100 costs 900 + max(1, 0.9) commission = 901.
	if !l.CanAfford(9, 100) {
		t.Error("CanAfford(9, 100) = false, want true")
	}
	// 10 shares costs 1000 + 1 = 1001 > 1000.
	if l.CanAfford(10, 100) {
		t.Error("CanAfford(10, 100) = true, want false")
	}
}

func TestSummarize(t *testing.T) {
	l := newTestLedger(100_000,
		flatBar("AAPL", 1, 100), flatBar("MSFT", 1, 400), flatBar("GOOG", 1, 150),
	)

	l.ProcessFill(buy("MSFT", 1, 5, 400, 0))
	l.ProcessFill(buy("AAPL", 1, 10, 100, 0))
	// GOOG round-trips to flat: excluded from open positions.
	l.ProcessFill(buy("GOOG", 1, 4, 150, 0))
	l.ProcessFill(sell("GOOG", 1, 4, 155, 1))

	s := l.Summarize()
	if len(s.Positions) != 2 {
		t.Fatalf("open positions = %d, want 2", len(s.Positions))
	}
	// Sorted by symbol.
	if s.Positions[0].Symbol != "AAPL" || s.Positions[1].Symbol != "MSFT" {
		t.Errorf("positions order = %s, %s; want AAPL, MSFT", s.Positions[0].Symbol, s.Positions[1].Symbol)
	}
	// GOOG realized: 4*(155-150) - 1 = 19.
	if !almostEqual(s.RealizedPnL, 19) {
		t.Errorf("realized = %v, want 19", s.RealizedPnL)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	l := newTestLedger(10_000, flatBar("AAPL", 1, 100), flatBar("AAPL", 2, 110))
	l.ProcessFill(buy("AAPL", 1, 10, 100, 0))
	l.MarkToMarket(day(1))

	snap := l.Snapshot()
	l.MarkToMarket(day(2))

	if len(snap.EquityCurve) != 1 {
		t.Errorf("snapshot equity curve grew with the ledger: %d points", len(snap.EquityCurve))
	}
	if snap.Positions["AAPL"].Qty != 10 {
		t.Errorf("snapshot position qty = %v, want 10", snap.Positions["AAPL"].Qty)
	}
}
