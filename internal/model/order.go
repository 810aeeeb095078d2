package model

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Order is the permanent audit record for one submission attempt.
// ClientOrderID is the only stable identity before a broker id exists.
type Order struct {
	ClientOrderID string      `gorm:"primaryKey;size:64" json:"client_order_id"`
	BrokerOrderID string      `gorm:"size:64;index" json:"broker_order_id,omitempty"`
	Symbol        string      `gorm:"size:32;index" json:"symbol"`
	Side          Side        `gorm:"size:8" json:"side"`
	Qty           float64     `json:"qty"`
	FilledQty     float64     `json:"filled_qty"`
	LimitPrice    *float64    `json:"limit_price,omitempty"`
	StopPrice     *float64    `json:"stop_price,omitempty"`
	TakeProfit    *float64    `json:"take_profit,omitempty"`
	TimeInForce   TimeInForce `gorm:"size:8" json:"time_in_force"`
	State         OrderState  `gorm:"size:20;index" json:"state"`
	IntentHash    string      `gorm:"size:64;index" json:"intent_hash"`
	LastUpdateTs  int64       `json:"last_update_ts"`
	Raw           string      `gorm:"type:text" json:"raw,omitempty"`
}

// Execution is one append-only fact from the broker's fill stream.
// Multiple rows per order are expected and normal.
type Execution struct {
	ID            uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ClientOrderID string  `gorm:"size:64;index" json:"client_order_id"`
	EventType     string  `gorm:"size:32" json:"event_type"`
	FillQty       float64 `json:"fill_qty"`
	FillPrice     float64 `json:"fill_price"`
	EventTs       int64   `json:"event_ts"`
	Raw           string  `gorm:"type:text" json:"raw,omitempty"`
}

// Position is the per-symbol snapshot of the broker's authoritative view.
// The full set is wholesale-replaced on every reconciliation pass.
type Position struct {
	Symbol       string  `gorm:"primaryKey;size:32" json:"symbol"`
	Qty          float64 `json:"qty"`
	AvgPrice     float64 `json:"avg_price"`
	LastUpdateTs int64   `json:"last_update_ts"`
	Raw          string  `gorm:"type:text" json:"raw,omitempty"`
}

// JournalEntry narrates one operational event. Append-only.
type JournalEntry struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Ts       int64  `gorm:"index" json:"ts"`
	Category string `gorm:"size:32;index" json:"category"`
	Message  string `gorm:"type:text" json:"message"`
	Details  string `gorm:"type:text" json:"details,omitempty"`
}

// StoreMetrics aggregates row counts for dashboards.
type StoreMetrics struct {
	OrdersByState map[OrderState]int64 `json:"orders_by_state"`
	Executions    int64                `json:"executions"`
}

// EncodeRaw serializes an arbitrary broker payload for the audit snapshot.
// It never fails: on marshal error it degrades to a fmt-based encoding
// rather than losing the row.
func EncodeRaw(v any) string {
	if v == nil {
		return ""
	}
	b, err := sonic.ConfigFastest.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
