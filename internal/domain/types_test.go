package domain

import (
	"errors"
	"testing"
	"time"
)

func TestZeroValues(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	fill := Fill{}
	if fill.Qty != 0 || fill.Price != 0 || fill.Commission != 0 {
		t.Error("expected zero Qty/Price/Commission for zero-value Fill")
	}
	if fill.Notional() != 0 {
		t.Error("expected zero notional for zero-value Fill")
	}

	// Verify enum constants are defined correctly.
	if OrderSideBuy != "buy" || OrderSideSell != "sell" {
		t.Error("OrderSide constants have unexpected values")
	}
	if SignalLong != "long" || SignalShort != "short" || SignalExit != "exit" {
		t.Error("SignalDirection constants have unexpected values")
	}
}

func TestOrderValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		order   Order
		wantErr error
	}{
		{
			name:  "market order is valid",
			order: Order{Timestamp: now, Symbol: "AAPL", Side: OrderSideBuy, Type: OrderTypeMarket, Qty: 10},
		},
		{
			name:    "limit order without price",
			order:   Order{Symbol: "AAPL", Side: OrderSideBuy, Type: OrderTypeLimit, Qty: 10},
			wantErr: ErrMissingLimitPrice,
		},
		{
			name:  "limit order with price",
			order: Order{Symbol: "AAPL", Side: OrderSideBuy, Type: OrderTypeLimit, Qty: 10, LimitPrice: 100},
		},
		{
			name:    "stop order without stop price",
			order:   Order{Symbol: "AAPL", Side: OrderSideSell, Type: OrderTypeStop, Qty: 10},
			wantErr: ErrMissingStopPrice,
		},
		{
			name:    "stop limit order needs both prices",
			order:   Order{Symbol: "AAPL", Side: OrderSideBuy, Type: OrderTypeStopLimit, Qty: 10, LimitPrice: 100},
			wantErr: ErrMissingStopPrice,
		},
		{
			name:    "zero quantity",
			order:   Order{Symbol: "AAPL", Side: OrderSideBuy, Type: OrderTypeMarket, Qty: 0},
			wantErr: ErrInvalidQty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.order.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSideOf(t *testing.T) {
	if got := SideOf(10); got != PositionSideLong {
		t.Errorf("SideOf(10) = %q, want %q", got, PositionSideLong)
	}
	if got := SideOf(-3); got != PositionSideShort {
		t.Errorf("SideOf(-3) = %q, want %q", got, PositionSideShort)
	}
	if got := SideOf(0); got != PositionSideFlat {
		t.Errorf("SideOf(0) = %q, want %q", got, PositionSideFlat)
	}
}
