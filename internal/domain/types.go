// Package domain defines the core value types shared across the replay
// engine: bars, signals, orders, fills, and their enumerations.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is one OHLCV price observation for a symbol at an instant. Bars are
// immutable once loaded.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
	AdjClose   float64 // 0 when the feed does not provide an adjusted close
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// SignalDirection is the intent expressed by a strategy signal.
type SignalDirection string

const (
	SignalLong  SignalDirection = "long"
	SignalShort SignalDirection = "short"
	SignalExit  SignalDirection = "exit"
)

// Signal is a strategy's trading intent for one symbol at one instant.
// Strength is a conviction weight in [0, 1].
type Signal struct {
	Timestamp time.Time
	Symbol    string
	Direction SignalDirection
	Strength  float64
	Metadata  map[string]string
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderSide is the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType describes how an order is priced.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// TimeInForce describes how long an order stays working.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceDay TimeInForce = "day"
)

// Order is a request to trade produced from a sized signal.
type Order struct {
	ID          string
	Timestamp   time.Time
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Qty         float64
	LimitPrice  float64 // required for limit orders
	StopPrice   float64 // required for stop orders
	TimeInForce TimeInForce
}

// Order validation errors. These reject the single order only; they never
// abort a run.
var (
	ErrMissingLimitPrice = errors.New("limit order requires a limit price")
	ErrMissingStopPrice  = errors.New("stop order requires a stop price")
	ErrInvalidQty        = errors.New("order quantity must be positive")
)

// Validate checks the order's internal consistency.
func (o *Order) Validate() error {
	if o.Qty <= 0 {
		return fmt.Errorf("order %s %s: %w", o.Symbol, o.Side, ErrInvalidQty)
	}
	switch o.Type {
	case OrderTypeLimit:
		if o.LimitPrice <= 0 {
			return fmt.Errorf("order %s: %w", o.Symbol, ErrMissingLimitPrice)
		}
	case OrderTypeStop:
		if o.StopPrice <= 0 {
			return fmt.Errorf("order %s: %w", o.Symbol, ErrMissingStopPrice)
		}
	case OrderTypeStopLimit:
		if o.LimitPrice <= 0 {
			return fmt.Errorf("order %s: %w", o.Symbol, ErrMissingLimitPrice)
		}
		if o.StopPrice <= 0 {
			return fmt.Errorf("order %s: %w", o.Symbol, ErrMissingStopPrice)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Fills
// ---------------------------------------------------------------------------

// Fill is the immutable, terminal record of one executed order. Slippage is
// the absolute price delta applied versus the theoretical fill price.
type Fill struct {
	Timestamp  time.Time
	Symbol     string
	Side       OrderSide
	Qty        float64
	Price      float64
	Commission float64
	Slippage   float64
	OrderID    string
}

// Notional returns the gross traded value of the fill, before commission.
func (f *Fill) Notional() float64 {
	return f.Qty * f.Price
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// PositionSide derives from the sign of a position's quantity.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
	PositionSideFlat  PositionSide = "flat"
)

// SideOf returns the position side implied by a signed quantity.
func SideOf(qty float64) PositionSide {
	switch {
	case qty > 0:
		return PositionSideLong
	case qty < 0:
		return PositionSideShort
	default:
		return PositionSideFlat
	}
}
