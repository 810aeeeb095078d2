// Package engine wires intents, the dispatch queue, the broker and the
// order store into the submission path, and owns the strict state
// transitions the permissive store does not enforce.
package engine

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/dispatch"
	"main/internal/intent"
	"main/internal/model"
	"main/internal/obs"
	"main/internal/store"
	"main/pkg/exception"
)

const (
	journalOrder     = "order"
	journalReconcile = "reconcile"
	journalLoop      = "loop"
)

// Config tunes the engine.
type Config struct {
	// MarketOpen reports whether intents may go straight to dispatch.
	// Nil means always open.
	MarketOpen func(now time.Time) bool
	// LoopInterval paces the trading loop's cancellation polls.
	LoopInterval time.Duration
}

// Engine is the glue between intents and records.
type Engine struct {
	store      store.Store
	delegator  broker.Delegator
	dispatcher *dispatch.Dispatcher
	preopen    *intent.PreopenQueue
	pacing     *obs.Pacing
	cfg        Config
}

// New wires an engine. pacing may be nil.
func New(st store.Store, delegator broker.Delegator, dispatcher *dispatch.Dispatcher, preopen *intent.PreopenQueue, pacing *obs.Pacing, cfg Config) *Engine {
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = time.Second
	}
	return &Engine{
		store:      st,
		delegator:  delegator,
		dispatcher: dispatcher,
		preopen:    preopen,
		pacing:     pacing,
		cfg:        cfg,
	}
}

// Preopen exposes the buffer for external intent producers.
func (e *Engine) Preopen() *intent.PreopenQueue {
	return e.preopen
}

// Accept routes one intent: straight to dispatch while the market is
// open, otherwise into the preopen buffer.
func (e *Engine) Accept(ctx context.Context, it model.Intent) error {
	if e.marketOpen(time.Now()) {
		return e.SubmitIntent(ctx, it)
	}
	it = it.Normalized()
	if err := it.Validate(); err != nil {
		return err
	}
	e.preopen.Enqueue(it)
	return nil
}

// SubmitIntent validates the intent, dedups it against prior decisions,
// records the order in state new and hands the broker call to the
// dispatch queue. Validation failures return before anything is
// persisted or sent.
func (e *Engine) SubmitIntent(ctx context.Context, it model.Intent) error {
	it = it.Normalized()
	if err := it.Validate(); err != nil {
		return err
	}

	hash := it.Hash()
	if existing, err := e.store.OrderByIntent(hash); err == nil {
		if existing.State.Open() {
			return errors.Wrap(exception.ErrOrderDuplicateIntent, existing.ClientOrderID)
		}
		// Same decision running again after a terminal outcome.
		if e.pacing != nil {
			e.pacing.IncRetry()
		}
	}

	order := model.Order{
		ClientOrderID: it.ClientOrderID,
		Symbol:        it.Symbol,
		Side:          it.Side,
		Qty:           it.Qty,
		LimitPrice:    it.LimitPrice,
		StopPrice:     it.StopPrice,
		TakeProfit:    it.TakeProfit,
		TimeInForce:   it.TimeInForce,
		State:         model.OrderStateNew,
		IntentHash:    hash,
	}
	if err := e.store.UpsertOrder(order); err != nil {
		return err
	}
	if err := e.journal(journalOrder, "intent accepted", order); err != nil {
		return err
	}

	// The dispatch task outlives the caller's request scope.
	taskCtx := context.WithoutCancel(ctx)
	return e.dispatcher.Submit(func() error {
		return e.dispatchIntent(taskCtx, it)
	})
}

func (e *Engine) dispatchIntent(ctx context.Context, it model.Intent) error {
	coid := it.ClientOrderID
	if err := e.transition(coid, model.OrderStateSubmitting, store.OrderPatch{}); err != nil {
		return err
	}

	res, err := e.delegator.Submit(ctx, it)
	if err != nil {
		state := model.OrderStateError
		if stderrors.Is(err, exception.ErrBrokerRejected) {
			state = model.OrderStateRejected
		}
		raw := model.EncodeRaw(map[string]string{"error": err.Error()})
		if recErr := e.transition(coid, state, store.OrderPatch{Raw: &raw}); recErr != nil {
			logs.Errorf("record broker failure, err: %+v", recErr)
		}
		_ = e.journal(journalOrder, "submission failed", map[string]any{
			"client_order_id": coid,
			"error":           err.Error(),
		})
		return err
	}

	patch := store.OrderPatch{BrokerOrderID: &res.BrokerID, Raw: &res.Raw}
	if res.FilledQty > 0 {
		patch.FilledQty = &res.FilledQty
	}
	if err := e.transition(coid, stateFromBrokerStatus(res.Status), patch); err != nil {
		return err
	}
	return e.journal(journalOrder, "submission accepted", map[string]string{
		"client_order_id": coid,
		"broker_order_id": res.BrokerID,
		"status":          res.Status,
	})
}

// RecordUpdate applies one normalized broker update: fills land in the
// append-only execution log, and the order row transitions separately.
// The log never drives filled_qty on its own.
func (e *Engine) RecordUpdate(u broker.Update) error {
	coid := u.ClientOrderID
	if coid == "" {
		return exception.ErrOrderMissingClientID
	}

	switch u.Event {
	case "fill", "partial_fill":
		if err := e.store.AppendExecution(model.Execution{
			ClientOrderID: coid,
			EventType:     u.Event,
			FillQty:       u.FillQty,
			FillPrice:     u.FillPrice,
			EventTs:       u.EventTs,
			Raw:           u.Raw,
		}); err != nil {
			return err
		}
		state := model.OrderStateFilled
		if u.Event == "partial_fill" {
			state = model.OrderStatePartFilled
		}
		patch := store.OrderPatch{FilledQty: &u.FilledQty, Raw: &u.Raw}
		return e.transition(coid, state, patch)
	case "canceled":
		if err := e.store.AppendExecution(model.Execution{
			ClientOrderID: coid,
			EventType:     "cancel-ack",
			EventTs:       u.EventTs,
			Raw:           u.Raw,
		}); err != nil {
			return err
		}
		return e.transition(coid, model.OrderStateCanceled, store.OrderPatch{Raw: &u.Raw})
	case "rejected":
		return e.transition(coid, model.OrderStateRejected, store.OrderPatch{Raw: &u.Raw})
	case "new", "accepted", "pending_new":
		patch := store.OrderPatch{Raw: &u.Raw}
		if u.BrokerOrderID != "" {
			patch.BrokerOrderID = &u.BrokerOrderID
		}
		return e.transition(coid, model.OrderStateAccepted, patch)
	default:
		return e.journal(journalOrder, "unhandled broker event", map[string]string{
			"client_order_id": coid,
			"event":           u.Event,
		})
	}
}

// Reconcile wholesale-replaces local positions with the broker's
// authoritative view, avoiding drift from stale local state.
func (e *Engine) Reconcile(ctx context.Context) error {
	ps, err := e.delegator.Positions(ctx)
	if err != nil {
		_ = e.journal(journalReconcile, "reconcile failed", map[string]string{"error": err.Error()})
		return err
	}
	if err := e.store.ReplacePositions(ps); err != nil {
		return err
	}
	return e.journal(journalReconcile, "positions reconciled", map[string]int{"count": len(ps)})
}

// RunLoop is the supervisor entrypoint. It drains the preopen buffer as
// one batch whenever the market is open and polls the cancel check
// between rounds.
func (e *Engine) RunLoop(canceled func() bool) error {
	_ = e.journal(journalLoop, "trading loop started", nil)
	for !canceled() {
		if e.marketOpen(time.Now()) {
			batch := e.preopen.Drain()
			for _, it := range batch {
				if err := e.SubmitIntent(context.Background(), it); err != nil {
					logs.Errorf("submit preopen intent, err: %+v", err)
				}
			}
		}
		if !sleepUnless(canceled, e.cfg.LoopInterval) {
			break
		}
	}
	return e.journal(journalLoop, "trading loop stopped", nil)
}

// transition validates the state change before the store sees it.
// Illegal transitions, including any move out of a terminal state, are
// journaled and rejected instead of written.
func (e *Engine) transition(coid string, to model.OrderState, patch store.OrderPatch) error {
	current, err := e.store.OrderByCOID(coid)
	if err != nil {
		if stderrors.Is(err, exception.ErrStoreNotFound) {
			return exception.ErrOrderNotFound
		}
		return err
	}
	if err := model.ValidateTransition(current.State, to); err != nil {
		_ = e.journal(journalOrder, "illegal transition rejected", map[string]string{
			"client_order_id": coid,
			"from":            string(current.State),
			"to":              string(to),
		})
		return errors.Wrap(err, "transition").
			With("client_order_id", coid).
			With("from", current.State).
			With("to", to)
	}
	return e.store.UpdateOrderState(coid, to, patch)
}

func (e *Engine) journal(category, message string, details any) error {
	return e.store.AppendJournal(category, message, details)
}

func (e *Engine) marketOpen(now time.Time) bool {
	if e.cfg.MarketOpen == nil {
		return true
	}
	return e.cfg.MarketOpen(now)
}

func stateFromBrokerStatus(status string) model.OrderState {
	switch status {
	case "filled":
		return model.OrderStateFilled
	case "partially_filled":
		return model.OrderStatePartFilled
	case "canceled":
		return model.OrderStateCanceled
	case "rejected":
		return model.OrderStateRejected
	default:
		return model.OrderStateAccepted
	}
}

// sleepUnless waits for d in short slices so cancellation is honored
// promptly. Returns false when canceled during the wait.
func sleepUnless(canceled func() bool, d time.Duration) bool {
	const slice = 50 * time.Millisecond
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if canceled() {
			return false
		}
		remain := time.Until(deadline)
		if remain > slice {
			remain = slice
		}
		time.Sleep(remain)
	}
	return !canceled()
}
