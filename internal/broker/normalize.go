package broker

import (
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/pkg/exception"
)

// orderPayload mirrors the broker's order object. Brokers disagree on
// field names across API versions, so the payload carries every known
// spelling and the normalizer picks the first non-empty one.
type orderPayload struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	BrokerOrderID string `json:"broker_order_id"`

	ClientOrderID string `json:"client_order_id"`
	ClientID      string `json:"client_id"`

	Symbol string `json:"symbol"`
	Market string `json:"market"`

	Qty      decimal.Decimal `json:"qty"`
	Quantity decimal.Decimal `json:"quantity"`

	Side        string `json:"side"`
	Type        string `json:"type"`
	OrderType   string `json:"order_type"`
	TimeInForce string `json:"time_in_force"`

	Status string `json:"status"`
	State  string `json:"state"`

	SubmittedAt string `json:"submitted_at"`
	CreatedAt   string `json:"created_at"`

	FilledQty      decimal.Decimal `json:"filled_qty"`
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`
}

// errorPayload mirrors the broker's error body.
type errorPayload struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// NormalizeSubmitResult maps a raw submission response body into the
// fixed internal result struct. It is the single place that knows the
// broker's fallback field names.
func NormalizeSubmitResult(raw []byte) (SubmitResult, error) {
	var p orderPayload
	if err := sonic.ConfigFastest.Unmarshal(raw, &p); err != nil {
		return SubmitResult{}, errors.Wrap(exception.ErrBrokerDecodeResponseBody, err.Error())
	}

	brokerID := firstNonEmpty(p.ID, p.OrderID, p.BrokerOrderID)
	if brokerID == "" {
		return SubmitResult{}, exception.ErrBrokerEmptyOrderID
	}

	return SubmitResult{
		BrokerID:       brokerID,
		ClientOrderID:  firstNonEmpty(p.ClientOrderID, p.ClientID),
		Symbol:         firstNonEmpty(p.Symbol, p.Market),
		Qty:            decFloat(p.Qty, p.Quantity),
		Side:           model.Side(p.Side),
		Kind:           model.OrderKind(firstNonEmpty(p.Type, p.OrderType)),
		TimeInForce:    model.TimeInForce(p.TimeInForce),
		Status:         firstNonEmpty(p.Status, p.State),
		SubmittedAt:    parseTimestamp(firstNonEmpty(p.SubmittedAt, p.CreatedAt)),
		FilledQty:      decFloat(p.FilledQty),
		FilledAvgPrice: decFloat(p.FilledAvgPrice),
		Raw:            string(raw),
	}, nil
}

// NormalizeError extracts the human-readable message from an error body.
// Undecodable bodies fall back to the verbatim text.
func NormalizeError(statusCode int, body []byte) error {
	var p errorPayload
	if err := sonic.ConfigFastest.Unmarshal(body, &p); err == nil && p.Message != "" {
		return errors.Wrap(exception.ErrBrokerRejected, p.Message).
			With("status_code", statusCode).
			With("broker_code", p.Code)
	}
	return errors.Wrap(exception.ErrBrokerRejected, string(body)).
		With("status_code", statusCode)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func decFloat(values ...decimal.Decimal) float64 {
	for _, v := range values {
		s := v.String()
		if s == "" || s == "0" {
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
