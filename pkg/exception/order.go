package exception

import "errors"

var (
	ErrOrderInvalidSide        = errors.New("order: invalid side")
	ErrOrderInvalidKind        = errors.New("order: invalid kind")
	ErrOrderInvalidTimeInForce = errors.New("order: invalid time in force")
	ErrOrderInvalidState       = errors.New("order: invalid state")
	ErrOrderInvalidTransition  = errors.New("order: invalid state transition")
	ErrOrderMissingClientID    = errors.New("order: empty client order id")
	ErrOrderMissingSymbol      = errors.New("order: empty symbol")
	ErrOrderInvalidQty         = errors.New("order: qty must be > 0")
	ErrOrderMissingLimitPrice  = errors.New("order: missing limit price")
	ErrOrderMissingStopPrice   = errors.New("order: missing stop price")
	ErrOrderDuplicateIntent    = errors.New("order: intent already submitted")
	ErrOrderNotFound           = errors.New("order: not found")
)

var (
	ErrBrokerDecodeResponseBody = errors.New("broker: decode response body")
	ErrBrokerEmptyOrderID       = errors.New("broker: empty response order id")
	ErrBrokerRejected           = errors.New("broker: order rejected")
)
