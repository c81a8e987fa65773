package execution

import (
	"errors"
	"fmt"
	"math"
	"time"

	"replay/internal/domain"
	"replay/internal/event"
)

// Execution outcomes that reject a single order without aborting the run.
var (
	// ErrNoData means no bar exists for the order's symbol at its timestamp.
	ErrNoData = errors.New("no bar available")

	// ErrNotTriggered means a limit or stop condition did not trigger on this
	// bar. The order may execute on a later bar.
	ErrNotTriggered = errors.New("order not triggered on this bar")

	// ErrUnsupportedOrderType rejects order types the simulator does not
	// model, such as stop-limit.
	ErrUnsupportedOrderType = errors.New("unsupported order type")
)

// Handler turns orders into fills against historical bars. It owns no
// position state; the ledger applies the fills it produces.
type Handler struct {
	queue       *event.Queue
	commission  CommissionFunc
	slippage    SlippageModel
	fillLatency time.Duration
}

// NewHandler creates a Handler that prices orders against bars from queue.
// fillLatency shifts each fill's timestamp past its order's; zero means fills
// land at the order timestamp.
func NewHandler(queue *event.Queue, commission CommissionFunc, slippage SlippageModel, fillLatency time.Duration) *Handler {
	return &Handler{
		queue:       queue,
		commission:  commission,
		slippage:    slippage,
		fillLatency: fillLatency,
	}
}

// CanExecute reports whether the order's trigger condition is met on the bar.
// Market orders always execute. Stop-limit orders never do; ExecuteOrder
// rejects them explicitly.
func (h *Handler) CanExecute(order *domain.Order, bar domain.Bar) bool {
	switch order.Type {
	case domain.OrderTypeMarket:
		return true
	case domain.OrderTypeLimit:
		if order.Side == domain.OrderSideBuy {
			return bar.Low <= order.LimitPrice
		}
		return bar.High >= order.LimitPrice
	case domain.OrderTypeStop:
		if order.Side == domain.OrderSideBuy {
			return bar.High >= order.StopPrice
		}
		return bar.Low <= order.StopPrice
	default:
		return false
	}
}

// fillPrice returns the theoretical execution price for a triggered order on
// the bar, before slippage. Limit fills clamp toward the open so a gap
// through the limit fills at the (better) open; stop fills clamp the other
// way so a gap through the stop fills at the (worse) open.
func (h *Handler) fillPrice(order *domain.Order, bar domain.Bar) float64 {
	switch order.Type {
	case domain.OrderTypeLimit:
		if order.Side == domain.OrderSideBuy {
			return math.Min(order.LimitPrice, bar.Open)
		}
		return math.Max(order.LimitPrice, bar.Open)
	case domain.OrderTypeStop:
		if order.Side == domain.OrderSideBuy {
			return math.Max(order.StopPrice, bar.Open)
		}
		return math.Min(order.StopPrice, bar.Open)
	default: // market
		return bar.Close
	}
}

// ExecuteOrder simulates the order against the bar in effect at its
// timestamp and returns the resulting fill.
//
// Rejections: ErrNoData when no bar exists, ErrNotTriggered when a limit or
// stop condition fails on this bar, ErrUnsupportedOrderType for stop-limit
// orders, and validation errors for malformed orders. All are per-order;
// none abort the run.
func (h *Handler) ExecuteOrder(order *domain.Order) (*domain.Fill, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if order.Type == domain.OrderTypeStopLimit {
		return nil, fmt.Errorf("order %s: %w", order.Symbol, ErrUnsupportedOrderType)
	}

	bar, ok := h.queue.PriceAsOf(order.Symbol, order.Timestamp)
	if !ok {
		return nil, fmt.Errorf("%s at %s: %w", order.Symbol, order.Timestamp.Format(time.RFC3339), ErrNoData)
	}
	if !h.CanExecute(order, bar) {
		return nil, ErrNotTriggered
	}

	delta := h.slippage.Delta(order.Symbol, order.Qty, order.Side, bar)
	price := h.fillPrice(order, bar) + delta

	return &domain.Fill{
		Timestamp:  order.Timestamp.Add(h.fillLatency),
		Symbol:     order.Symbol,
		Side:       order.Side,
		Qty:        order.Qty,
		Price:      price,
		Commission: h.commission(order.Qty, price),
		Slippage:   math.Abs(delta),
		OrderID:    order.ID,
	}, nil
}

// EstimateFillPrice returns the price ExecuteOrder would fill at, without
// producing a fill. Untriggered limit and stop orders estimate at their
// limit/stop price. Used for pre-trade affordability checks.
func (h *Handler) EstimateFillPrice(order *domain.Order) (float64, error) {
	bar, ok := h.queue.PriceAsOf(order.Symbol, order.Timestamp)
	if !ok {
		return 0, fmt.Errorf("%s at %s: %w", order.Symbol, order.Timestamp.Format(time.RFC3339), ErrNoData)
	}

	var base float64
	switch {
	case order.Type == domain.OrderTypeLimit && !h.CanExecute(order, bar):
		base = order.LimitPrice
	case order.Type == domain.OrderTypeStop && !h.CanExecute(order, bar):
		base = order.StopPrice
	default:
		base = h.fillPrice(order, bar)
	}
	return base + h.slippage.Delta(order.Symbol, order.Qty, order.Side, bar), nil
}
