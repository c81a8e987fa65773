package execution

import (
	"errors"
	"math"
	"testing"
	"time"

	"replay/internal/domain"
	"replay/internal/event"
)

var testDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func testQueue(bar domain.Bar) *event.Queue {
	q := event.NewQueue()
	q.LoadMarketData(bar.Symbol, []domain.Bar{bar})
	return q
}

func marketOrder(side domain.OrderSide, qty float64) *domain.Order {
	return &domain.Order{
		ID:        "o-1",
		Timestamp: testDay,
		Symbol:    "AAPL",
		Side:      side,
		Type:      domain.OrderTypeMarket,
		Qty:       qty,
	}
}

func TestCanExecute(t *testing.T) {
	bar := domain.Bar{Symbol: "AAPL", Timestamp: testDay, Open: 102, High: 106, Low: 101, Close: 105}
	h := NewHandler(testQueue(bar), FreeCommission, NoSlippage{}, 0)

	tests := []struct {
		name  string
		order domain.Order
		want  bool
	}{
		{"market always", domain.Order{Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy}, true},
		{"limit buy reached", domain.Order{Type: domain.OrderTypeLimit, Side: domain.OrderSideBuy, LimitPrice: 101.5}, true},
		{"limit buy below low", domain.Order{Type: domain.OrderTypeLimit, Side: domain.OrderSideBuy, LimitPrice: 100}, false},
		{"limit sell reached", domain.Order{Type: domain.OrderTypeLimit, Side: domain.OrderSideSell, LimitPrice: 105.5}, true},
		{"limit sell above high", domain.Order{Type: domain.OrderTypeLimit, Side: domain.OrderSideSell, LimitPrice: 107}, false},
		{"stop buy reached", domain.Order{Type: domain.OrderTypeStop, Side: domain.OrderSideBuy, StopPrice: 105.5}, true},
		{"stop buy above high", domain.Order{Type: domain.OrderTypeStop, Side: domain.OrderSideBuy, StopPrice: 107}, false},
		{"stop sell reached", domain.Order{Type: domain.OrderTypeStop, Side: domain.OrderSideSell, StopPrice: 101.5}, true},
		{"stop sell below low", domain.Order{Type: domain.OrderTypeStop, Side: domain.OrderSideSell, StopPrice: 100}, false},
		{"stop limit never", domain.Order{Type: domain.OrderTypeStopLimit, Side: domain.OrderSideBuy, LimitPrice: 105, StopPrice: 104}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.CanExecute(&tt.order, bar); got != tt.want {
				t.Errorf("CanExecute() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecuteMarketOrder(t *testing.T) {
	bar := domain.Bar{Symbol: "AAPL", Timestamp: testDay, Open: 100, High: 101, Low: 99, Close: 100}
	h := NewHandler(testQueue(bar), PerTradeCommission(0.001, 1), SimpleSlippage{Rate: 0.001}, 0)

	fill, err := h.ExecuteOrder(marketOrder(domain.OrderSideBuy, 10))
	if err != nil {
		t.Fatalf("ExecuteOrder: %v", err)
	}

	// Buy fills at close plus slippage: 100 + 100*0.001 = 100.1.
	if math.Abs(fill.Price-100.1) > 1e-9 {
		t.Errorf("fill price = %v, want 100.1", fill.Price)
	}
	if math.Abs(fill.Slippage-0.1) > 1e-9 {
		t.Errorf("fill slippage = %v, want 0.1", fill.Slippage)
	}
	// Commission: max(1, 10*100.1*0.001) = max(1, 1.001) = 1.001.
	if math.Abs(fill.Commission-1.001) > 1e-9 {
		t.Errorf("commission = %v, want 1.001", fill.Commission)
	}
	if fill.OrderID != "o-1" {
		t.Errorf("fill order ID = %q, want %q", fill.OrderID, "o-1")
	}
	if !fill.Timestamp.Equal(testDay) {
		t.Errorf("fill timestamp = %v, want %v", fill.Timestamp, testDay)
	}

	// Sell slippage works against the seller.
	fill, err = h.ExecuteOrder(marketOrder(domain.OrderSideSell, 10))
	if err != nil {
		t.Fatalf("ExecuteOrder sell: %v", err)
	}
	if math.Abs(fill.Price-99.9) > 1e-9 {
		t.Errorf("sell fill price = %v, want 99.9", fill.Price)
	}
}

func TestExecuteLimitOrder(t *testing.T) {
	bar := domain.Bar{Symbol: "AAPL", Timestamp: testDay, Open: 102, High: 106, Low: 101, Close: 105}
	h := NewHandler(testQueue(bar), FreeCommission, NoSlippage{}, 0)

	// Triggered limit buy fills at min(limit, open).
	order := &domain.Order{
		ID: "o-2", Timestamp: testDay, Symbol: "AAPL",
		Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Qty: 5, LimitPrice: 103,
	}
	fill, err := h.ExecuteOrder(order)
	if err != nil {
		t.Fatalf("ExecuteOrder: %v", err)
	}
	if fill.Price != 102 {
		t.Errorf("limit buy fill price = %v, want 102 (open better than limit)", fill.Price)
	}

	// Triggered limit sell fills at max(limit, open).
	order = &domain.Order{
		ID: "o-3", Timestamp: testDay, Symbol: "AAPL",
		Side: domain.OrderSideSell, Type: domain.OrderTypeLimit, Qty: 5, LimitPrice: 101.5,
	}
	fill, err = h.ExecuteOrder(order)
	if err != nil {
		t.Fatalf("ExecuteOrder: %v", err)
	}
	if fill.Price != 102 {
		t.Errorf("limit sell fill price = %v, want 102", fill.Price)
	}
}

func TestExecuteUntriggeredLimitProducesNoFill(t *testing.T) {
	// Limit buy at 100 on a bar that never trades below 105: no fill.
	bar := domain.Bar{Symbol: "AAPL", Timestamp: testDay, Open: 106, High: 108, Low: 105, Close: 107}
	h := NewHandler(testQueue(bar), FreeCommission, NoSlippage{}, 0)

	order := &domain.Order{
		ID: "o-4", Timestamp: testDay, Symbol: "AAPL",
		Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Qty: 5, LimitPrice: 100,
	}
	if h.CanExecute(order, bar) {
		t.Fatal("CanExecute should be false for an untriggered limit buy")
	}
	fill, err := h.ExecuteOrder(order)
	if !errors.Is(err, ErrNotTriggered) {
		t.Fatalf("ExecuteOrder error = %v, want ErrNotTriggered", err)
	}
	if fill != nil {
		t.Fatal("untriggered limit order must not produce a fill")
	}
}

func TestExecuteStopOrderGap(t *testing.T) {
	// Stop buy at 104 on a bar that gaps open at 110: fills at the open.
	bar := domain.Bar{Symbol: "AAPL", Timestamp: testDay, Open: 110, High: 112, Low: 109, Close: 111}
	h := NewHandler(testQueue(bar), FreeCommission, NoSlippage{}, 0)

	order := &domain.Order{
		ID: "o-5", Timestamp: testDay, Symbol: "AAPL",
		Side: domain.OrderSideBuy, Type: domain.OrderTypeStop, Qty: 5, StopPrice: 104,
	}
	fill, err := h.ExecuteOrder(order)
	if err != nil {
		t.Fatalf("ExecuteOrder: %v", err)
	}
	if fill.Price != 110 {
		t.Errorf("stop buy fill price = %v, want 110 (gap open)", fill.Price)
	}
}

func TestExecuteRejections(t *testing.T) {
	bar := domain.Bar{Symbol: "AAPL", Timestamp: testDay, Open: 100, High: 101, Low: 99, Close: 100}
	h := NewHandler(testQueue(bar), FreeCommission, NoSlippage{}, 0)

	// No data for an unknown symbol.
	order := marketOrder(domain.OrderSideBuy, 10)
	order.Symbol = "MSFT"
	if _, err := h.ExecuteOrder(order); !errors.Is(err, ErrNoData) {
		t.Errorf("unknown symbol error = %v, want ErrNoData", err)
	}

	// Stop-limit is rejected, not approximated.
	order = &domain.Order{
		ID: "o-6", Timestamp: testDay, Symbol: "AAPL",
		Side: domain.OrderSideBuy, Type: domain.OrderTypeStopLimit, Qty: 5, LimitPrice: 100, StopPrice: 99,
	}
	if _, err := h.ExecuteOrder(order); !errors.Is(err, ErrUnsupportedOrderType) {
		t.Errorf("stop-limit error = %v, want ErrUnsupportedOrderType", err)
	}

	// Malformed limit order.
	order = &domain.Order{
		ID: "o-7", Timestamp: testDay, Symbol: "AAPL",
		Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Qty: 5,
	}
	if _, err := h.ExecuteOrder(order); !errors.Is(err, domain.ErrMissingLimitPrice) {
		t.Errorf("missing limit price error = %v, want ErrMissingLimitPrice", err)
	}
}

func TestFillLatency(t *testing.T) {
	bar := domain.Bar{Symbol: "AAPL", Timestamp: testDay, Open: 100, High: 101, Low: 99, Close: 100}
	h := NewHandler(testQueue(bar), FreeCommission, NoSlippage{}, time.Second)

	fill, err := h.ExecuteOrder(marketOrder(domain.OrderSideBuy, 1))
	if err != nil {
		t.Fatalf("ExecuteOrder: %v", err)
	}
	want := testDay.Add(time.Second)
	if !fill.Timestamp.Equal(want) {
		t.Errorf("fill timestamp = %v, want %v", fill.Timestamp, want)
	}
}

func TestEstimateFillPrice(t *testing.T) {
	bar := domain.Bar{Symbol: "AAPL", Timestamp: testDay, Open: 106, High: 108, Low: 105, Close: 107}
	h := NewHandler(testQueue(bar), FreeCommission, SimpleSlippage{Rate: 0.001}, 0)

	// Market estimate: close plus slippage.
	got, err := h.EstimateFillPrice(marketOrder(domain.OrderSideBuy, 1))
	if err != nil {
		t.Fatalf("EstimateFillPrice: %v", err)
	}
	if math.Abs(got-107.107) > 1e-9 {
		t.Errorf("market estimate = %v, want 107.107", got)
	}

	// Untriggered limit estimates at the limit price; no fill is implied.
	order := &domain.Order{
		Timestamp: testDay, Symbol: "AAPL",
		Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Qty: 1, LimitPrice: 100,
	}
	got, err = h.EstimateFillPrice(order)
	if err != nil {
		t.Fatalf("EstimateFillPrice: %v", err)
	}
	if math.Abs(got-100.107) > 1e-9 {
		t.Errorf("untriggered limit estimate = %v, want 100.107", got)
	}
}
