package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"main/pkg/exception"
)

// Intent is one logical trading decision waiting to become an order.
type Intent struct {
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Qty           float64     `json:"qty"`
	Kind          OrderKind   `json:"kind"`
	TimeInForce   TimeInForce `json:"time_in_force"`
	LimitPrice    *float64    `json:"limit_price,omitempty"`
	StopPrice     *float64    `json:"stop_price,omitempty"`
	TakeProfit    *float64    `json:"take_profit,omitempty"`
}

// Normalized fills defaults that callers commonly omit.
func (it Intent) Normalized() Intent {
	if it.TimeInForce == "" {
		it.TimeInForce = TimeInForceDay
	}
	if it.Kind == "" {
		it.Kind = OrderKindMarket
	}
	return it
}

// Validate rejects malformed intents before any broker call is attempted.
func (it Intent) Validate() error {
	if it.ClientOrderID == "" {
		return exception.ErrOrderMissingClientID
	}
	if it.Symbol == "" {
		return exception.ErrOrderMissingSymbol
	}
	if it.Qty <= 0 {
		return exception.ErrOrderInvalidQty
	}
	if err := it.Side.Validate(); err != nil {
		return err
	}
	if err := it.Kind.Validate(); err != nil {
		return err
	}
	if err := it.TimeInForce.Validate(); err != nil {
		return err
	}
	if it.Kind.RequiresLimitPrice() && it.LimitPrice == nil {
		return exception.ErrOrderMissingLimitPrice
	}
	if it.Kind.RequiresStopPrice() && it.StopPrice == nil {
		return exception.ErrOrderMissingStopPrice
	}
	return nil
}

// Hash is the dedup key tying an order back to the decision that produced
// it. Identical decisions hash identically regardless of ClientOrderID, so
// a crashed-and-retried submission reuses the existing order row.
func (it Intent) Hash() string {
	var b strings.Builder
	b.WriteString(it.Symbol)
	b.WriteByte('|')
	b.WriteString(string(it.Side))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(it.Qty, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(string(it.Kind))
	b.WriteByte('|')
	b.WriteString(string(it.TimeInForce))
	writePrice(&b, it.LimitPrice)
	writePrice(&b, it.StopPrice)
	writePrice(&b, it.TakeProfit)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writePrice(b *strings.Builder, p *float64) {
	b.WriteByte('|')
	if p != nil {
		fmt.Fprintf(b, "%.8f", *p)
	}
}
