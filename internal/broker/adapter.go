// Package broker talks to the external broker: order submission over
// REST, the order-update stream over websocket, and the normalization of
// the broker's loosely-shaped payloads into fixed internal structs.
package broker

import (
	"context"
	"time"

	"main/internal/model"
)

// SubmitResult is the fixed internal shape of a successful submission
// response. All fallback-field handling lives in the normalizer; nothing
// downstream touches the raw payload except to archive it.
type SubmitResult struct {
	BrokerID       string
	ClientOrderID  string
	Symbol         string
	Qty            float64
	Side           model.Side
	Kind           model.OrderKind
	TimeInForce    model.TimeInForce
	Status         string
	SubmittedAt    time.Time
	FilledQty      float64
	FilledAvgPrice float64
	// Raw is the verbatim response body, kept for the order's audit
	// snapshot.
	Raw string
}

// Update is a normalized order-update event from the broker stream.
type Update struct {
	Event          string
	ClientOrderID  string
	BrokerOrderID  string
	Status         string
	FillQty        float64
	FillPrice      float64
	FilledQty      float64
	FilledAvgPrice float64
	EventTs        int64
	Raw            string
}

// Delegator is the outbound broker contract the core consumes. Submit
// validates the intent before any network call; it never writes to the
// order store.
type Delegator interface {
	Submit(ctx context.Context, it model.Intent) (SubmitResult, error)
	Positions(ctx context.Context) ([]model.Position, error)
}
