package model

import (
	"testing"

	"main/pkg/exception"
)

func TestStatePartition(t *testing.T) {
	open := map[OrderState]bool{
		OrderStateNew:        true,
		OrderStateSubmitting: true,
		OrderStateAccepted:   true,
		OrderStatePartFilled: true,
	}
	for _, s := range AllStates {
		if !s.Valid() {
			t.Fatalf("state %q should be valid", s)
		}
		if open[s] == s.Terminal() {
			t.Fatalf("state %q open/terminal partition broken", s)
		}
		if open[s] != s.Open() {
			t.Fatalf("state %q Open() mismatch", s)
		}
	}
	if OrderState("bogus").Valid() {
		t.Fatal("undefined state should not be valid")
	}
}

func TestValidateTransition(t *testing.T) {
	legal := []struct{ from, to OrderState }{
		{OrderStateNew, OrderStateSubmitting},
		{OrderStateSubmitting, OrderStateAccepted},
		{OrderStateSubmitting, OrderStateRejected},
		{OrderStateSubmitting, OrderStateCanceled},
		{OrderStateSubmitting, OrderStateFilled},
		{OrderStateAccepted, OrderStatePartFilled},
		{OrderStateAccepted, OrderStateFilled},
		{OrderStateAccepted, OrderStateCanceled},
		{OrderStatePartFilled, OrderStateFilled},
		{OrderStatePartFilled, OrderStateCanceled},
		{OrderStateNew, OrderStateError},
		{OrderStateAccepted, OrderStateError},
		{OrderStateAccepted, OrderStateAccepted},
	}
	for _, tc := range legal {
		if err := ValidateTransition(tc.from, tc.to); err != nil {
			t.Fatalf("%s -> %s should be legal, err: %v", tc.from, tc.to, err)
		}
	}

	illegal := []struct{ from, to OrderState }{
		{OrderStateNew, OrderStateAccepted},
		{OrderStateNew, OrderStateCanceled},
		{OrderStateFilled, OrderStateNew},
		{OrderStateFilled, OrderStateError},
		{OrderStateCanceled, OrderStateAccepted},
		{OrderStateRejected, OrderStateSubmitting},
		{OrderStateError, OrderStateNew},
		{OrderStateAccepted, OrderStateNew},
		{OrderStateAccepted, OrderStateSubmitting},
	}
	for _, tc := range illegal {
		if err := ValidateTransition(tc.from, tc.to); err == nil {
			t.Fatalf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}

	if err := ValidateTransition("bogus", OrderStateNew); err != exception.ErrOrderInvalidState {
		t.Fatalf("undefined state should fail with ErrOrderInvalidState, got %v", err)
	}
}

func TestIntentHashStable(t *testing.T) {
	price := 101.5
	a := Intent{ClientOrderID: "a-1", Symbol: "AAPL", Side: SideBuy, Qty: 10, Kind: OrderKindLimit, TimeInForce: TimeInForceDay, LimitPrice: &price}
	b := a
	b.ClientOrderID = "a-2"

	if a.Hash() != b.Hash() {
		t.Fatal("hash should ignore client order id")
	}

	c := a
	c.Qty = 11
	if a.Hash() == c.Hash() {
		t.Fatal("hash should change with qty")
	}
}

func TestIntentValidate(t *testing.T) {
	price := 101.5
	valid := Intent{ClientOrderID: "a-1", Symbol: "AAPL", Side: SideBuy, Qty: 10, Kind: OrderKindMarket, TimeInForce: TimeInForceDay}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid intent rejected: %v", err)
	}

	cases := []struct {
		name string
		it   Intent
		want error
	}{
		{"missing coid", Intent{Symbol: "AAPL", Side: SideBuy, Qty: 1, Kind: OrderKindMarket, TimeInForce: TimeInForceDay}, exception.ErrOrderMissingClientID},
		{"missing symbol", Intent{ClientOrderID: "x", Side: SideBuy, Qty: 1, Kind: OrderKindMarket, TimeInForce: TimeInForceDay}, exception.ErrOrderMissingSymbol},
		{"zero qty", Intent{ClientOrderID: "x", Symbol: "AAPL", Side: SideBuy, Kind: OrderKindMarket, TimeInForce: TimeInForceDay}, exception.ErrOrderInvalidQty},
		{"bad side", Intent{ClientOrderID: "x", Symbol: "AAPL", Side: "long", Qty: 1, Kind: OrderKindMarket, TimeInForce: TimeInForceDay}, exception.ErrOrderInvalidSide},
		{"bad kind", Intent{ClientOrderID: "x", Symbol: "AAPL", Side: SideBuy, Qty: 1, Kind: "twap", TimeInForce: TimeInForceDay}, exception.ErrOrderInvalidKind},
		{"bad tif", Intent{ClientOrderID: "x", Symbol: "AAPL", Side: SideBuy, Qty: 1, Kind: OrderKindMarket, TimeInForce: "gtd"}, exception.ErrOrderInvalidTimeInForce},
		{"limit without price", Intent{ClientOrderID: "x", Symbol: "AAPL", Side: SideBuy, Qty: 1, Kind: OrderKindLimit, TimeInForce: TimeInForceDay}, exception.ErrOrderMissingLimitPrice},
		{"stop without price", Intent{ClientOrderID: "x", Symbol: "AAPL", Side: SideSell, Qty: 1, Kind: OrderKindStop, TimeInForce: TimeInForceDay}, exception.ErrOrderMissingStopPrice},
		{"stop limit missing stop", Intent{ClientOrderID: "x", Symbol: "AAPL", Side: SideSell, Qty: 1, Kind: OrderKindStopLimit, TimeInForce: TimeInForceDay, LimitPrice: &price}, exception.ErrOrderMissingStopPrice},
	}
	for _, tc := range cases {
		if err := tc.it.Validate(); err != tc.want {
			t.Fatalf("%s: want %v, got %v", tc.name, tc.want, err)
		}
	}
}
