package broker

import (
	"context"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/model"
)

// UpdateStream consumes the broker's order-update websocket feed and
// hands each event to an observer as a normalized Update.
type UpdateStream struct {
	wss *ws.WebSocket
}

// NewUpdateStream points a stream at the broker's websocket endpoint.
func NewUpdateStream(ctx context.Context, url string) *UpdateStream {
	return &UpdateStream{wss: ws.New(ctx, url)}
}

func (s *UpdateStream) Close() {
	s.wss.Close()
}

// StartWebsocket dials the feed.
func (s *UpdateStream) StartWebsocket(ctx context.Context) error {
	if err := s.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

type listenRequest struct {
	Action string `json:"action"`
	Data   struct {
		Streams []string `json:"streams"`
	} `json:"data"`
}

type listenResponse struct {
	Stream string `json:"stream"`
	Data   struct {
		Streams []string `json:"streams"`
	} `json:"data"`
}

// SubscribeTradeUpdates asks the broker to push order lifecycle events.
func (s *UpdateStream) SubscribeTradeUpdates(ctx context.Context) error {
	appendIntoRegister := true
	if err := s.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			var payload listenRequest
			payload.Action = "listen"
			payload.Data.Streams = []string{"trade_updates"}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write listen payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp listenResponse
			if err := m.Unmarshal(&resp); err != nil || resp.Stream != "listening" {
				return false, nil
			}
			if len(resp.Data.Streams) == 0 {
				return false, errors.Errorf("listen rejected, resp: %+v", resp)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

type tradeUpdateEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Event     string          `json:"event"`
		Qty       decimal.Decimal `json:"qty"`
		Price     decimal.Decimal `json:"price"`
		Timestamp string          `json:"timestamp"`
		Order     orderPayload    `json:"order"`
	} `json:"data"`
}

// ObserveUpdates delivers normalized order updates until the context is
// done, shutdown is requested, or the returned unsubscribe runs.
func (s *UpdateStream) ObserveUpdates(ctx context.Context, handler func(u Update)) (unsubscribe func()) {
	ch, cancel := s.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				env, ok := ws.ReadMessage[tradeUpdateEnvelope](m)
				if !ok || env.Stream != "trade_updates" {
					continue
				}

				handler(normalizeTradeUpdate(env))
			}
		}
	}()

	return cancel
}

func normalizeTradeUpdate(env tradeUpdateEnvelope) Update {
	order := env.Data.Order
	u := Update{
		Event:          env.Data.Event,
		ClientOrderID:  firstNonEmpty(order.ClientOrderID, order.ClientID),
		BrokerOrderID:  firstNonEmpty(order.ID, order.OrderID, order.BrokerOrderID),
		Status:         firstNonEmpty(order.Status, order.State),
		FillQty:        decFloat(env.Data.Qty),
		FillPrice:      decFloat(env.Data.Price),
		FilledQty:      decFloat(order.FilledQty),
		FilledAvgPrice: decFloat(order.FilledAvgPrice),
		EventTs:        parseTimestamp(env.Data.Timestamp).UnixNano(),
		Raw:            model.EncodeRaw(env),
	}
	if u.EventTs < 0 {
		u.EventTs = 0
	}
	return u
}
