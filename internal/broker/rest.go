package broker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"main/internal/model"
)

const (
	headerAPIKey    = "Apca-Api-Key-Id"
	headerAPISecret = "Apca-Api-Secret-Key"

	defaultSubmitTimeout = 15 * time.Second
)

// RestConfig holds the broker endpoint and credentials.
type RestConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// RestDelegator submits orders over the broker's REST API. Every response
// passes its headers to onHeaders so the dispatch throttle sees the
// freshest quota signal, success or failure.
type RestDelegator struct {
	client    *http.Client
	cfg       RestConfig
	onHeaders func(http.Header)
}

// NewRestDelegator wires a delegator. onHeaders may be nil.
func NewRestDelegator(client *http.Client, cfg RestConfig, onHeaders func(http.Header)) *RestDelegator {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSubmitTimeout
	}
	return &RestDelegator{client: client, cfg: cfg, onHeaders: onHeaders}
}

// Submit places one order. Validation failures return before any network
// call. A timeout here leaves the broker-side outcome unknown: the error
// is surfaced as-is, never silently retried.
func (d *RestDelegator) Submit(ctx context.Context, it model.Intent) (SubmitResult, error) {
	it = it.Normalized()
	if err := it.Validate(); err != nil {
		return SubmitResult{}, err
	}

	body := map[string]string{
		"symbol":          it.Symbol,
		"qty":             strconv.FormatFloat(it.Qty, 'f', -1, 64),
		"side":            string(it.Side),
		"type":            string(it.Kind),
		"time_in_force":   string(it.TimeInForce),
		"client_order_id": it.ClientOrderID,
	}
	if it.LimitPrice != nil {
		body["limit_price"] = strconv.FormatFloat(*it.LimitPrice, 'f', -1, 64)
	}
	if it.StopPrice != nil {
		body["stop_price"] = strconv.FormatFloat(*it.StopPrice, 'f', -1, 64)
	}
	if it.TakeProfit != nil {
		body["take_profit"] = strconv.FormatFloat(*it.TakeProfit, 'f', -1, 64)
	}

	raw, err := d.call(ctx, http.MethodPost, "/v2/orders", body)
	if err != nil {
		return SubmitResult{}, err
	}
	return NormalizeSubmitResult(raw)
}

// Positions fetches the broker's authoritative position set for the
// reconciliation pass.
func (d *RestDelegator) Positions(ctx context.Context) ([]model.Position, error) {
	raw, err := d.call(ctx, http.MethodGet, "/v2/positions", nil)
	if err != nil {
		return nil, err
	}

	type positionPayload struct {
		Symbol        string          `json:"symbol"`
		Qty           decimal.Decimal `json:"qty"`
		AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	}
	var payloads []positionPayload
	if err := sonic.ConfigFastest.Unmarshal(raw, &payloads); err != nil {
		return nil, errors.Wrap(err, "decode positions body")
	}

	now := time.Now().UTC().UnixNano()
	out := make([]model.Position, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, model.Position{
			Symbol:       p.Symbol,
			Qty:          decFloat(p.Qty),
			AvgPrice:     decFloat(p.AvgEntryPrice),
			LastUpdateTs: now,
			Raw:          model.EncodeRaw(p),
		})
	}
	return out, nil
}

func (d *RestDelegator) call(ctx context.Context, method, path string, body map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.ConfigFastest.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	r, err := http.NewRequestWithContext(ctx, method, d.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(headerAPIKey, d.cfg.APIKey)
	r.Header.Set(headerAPISecret, d.cfg.APISecret)

	resp, err := d.client.Do(r)
	if err != nil {
		return nil, errors.Wrap(err, "broker request").With("path", path)
	}
	defer resp.Body.Close()

	if d.onHeaders != nil {
		d.onHeaders(resp.Header)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read broker response").With("path", path)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, NormalizeError(resp.StatusCode, raw)
	}
	return raw, nil
}
