package store

import "main/internal/model"

// Store owns the durable order/execution/position/journal records.
// All components write through it; no other component holds a competing
// copy of truth. Implementations serialize writes so readers never
// observe a partially-applied write, and every write is committed before
// the call returns.
type Store interface {
	// UpsertOrder creates or fully overwrites the row keyed by
	// ClientOrderID and advances LastUpdateTs. Safe to call repeatedly
	// with the same identity.
	UpsertOrder(o model.Order) error

	// UpdateOrderState patches only the supplied fields and always bumps
	// LastUpdateTs. An unknown ClientOrderID affects zero rows and
	// returns no error; callers detect it by re-reading.
	UpdateOrderState(clientOrderID string, state model.OrderState, patch OrderPatch) error

	// AppendExecution inserts one fill event. No dedup: the log absorbs
	// replays at the caller's discretion.
	AppendExecution(e model.Execution) error

	// ReplacePositions atomically deletes all positions and inserts the
	// given set, leaving no stale leftovers.
	ReplacePositions(ps []model.Position) error

	// AppendJournal appends one audit entry. Details is serialized with
	// the never-failing raw encoder.
	AppendJournal(category, message string, details any) error

	// TailJournal returns the most recent n entries, oldest to newest.
	TailJournal(n int) ([]model.JournalEntry, error)

	OpenOrders() ([]model.Order, error)
	OrderByCOID(clientOrderID string) (model.Order, error)
	OrderByIntent(intentHash string) (model.Order, error)
	Positions() ([]model.Position, error)

	MetricsSnapshot() (model.StoreMetrics, error)

	Close() error
}

// OrderPatch carries the optional fields of a partial order update.
// Nil fields are left untouched.
type OrderPatch struct {
	BrokerOrderID *string
	FilledQty     *float64
	Raw           *string
}
