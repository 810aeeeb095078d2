package model

import "main/pkg/exception"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderKind is the broker order type.
type OrderKind string

const (
	OrderKindMarket    OrderKind = "market"
	OrderKindLimit     OrderKind = "limit"
	OrderKindStop      OrderKind = "stop"
	OrderKindStopLimit OrderKind = "stop_limit"
)

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

func (s Side) Validate() error {
	switch s {
	case SideBuy, SideSell:
		return nil
	default:
		return exception.ErrOrderInvalidSide
	}
}

func (k OrderKind) Validate() error {
	switch k {
	case OrderKindMarket, OrderKindLimit, OrderKindStop, OrderKindStopLimit:
		return nil
	default:
		return exception.ErrOrderInvalidKind
	}
}

// RequiresLimitPrice reports whether the kind needs a limit price.
func (k OrderKind) RequiresLimitPrice() bool {
	return k == OrderKindLimit || k == OrderKindStopLimit
}

// RequiresStopPrice reports whether the kind needs a stop price.
func (k OrderKind) RequiresStopPrice() bool {
	return k == OrderKindStop || k == OrderKindStopLimit
}

func (t TimeInForce) Validate() error {
	switch t {
	case TimeInForceDay, TimeInForceGTC, TimeInForceIOC, TimeInForceFOK:
		return nil
	default:
		return exception.ErrOrderInvalidTimeInForce
	}
}
