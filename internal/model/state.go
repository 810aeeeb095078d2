package model

import "main/pkg/exception"

// OrderState tracks the lifecycle of an order.
type OrderState string

const (
	OrderStateNew        OrderState = "new"
	OrderStateSubmitting OrderState = "submitting"
	OrderStateAccepted   OrderState = "accepted"
	OrderStatePartFilled OrderState = "partially_filled"
	OrderStateFilled     OrderState = "filled"
	OrderStateCanceled   OrderState = "canceled"
	OrderStateRejected   OrderState = "rejected"
	OrderStateError      OrderState = "error"
)

// OpenStates lists the states of orders still working at the broker.
var OpenStates = []OrderState{
	OrderStateNew,
	OrderStateSubmitting,
	OrderStateAccepted,
	OrderStatePartFilled,
}

// AllStates lists every defined state, open first, terminal last.
var AllStates = []OrderState{
	OrderStateNew,
	OrderStateSubmitting,
	OrderStateAccepted,
	OrderStatePartFilled,
	OrderStateFilled,
	OrderStateCanceled,
	OrderStateRejected,
	OrderStateError,
}

// Valid reports whether s is one of the defined states.
func (s OrderState) Valid() bool {
	switch s {
	case OrderStateNew, OrderStateSubmitting, OrderStateAccepted, OrderStatePartFilled,
		OrderStateFilled, OrderStateCanceled, OrderStateRejected, OrderStateError:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is permanently concluded.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCanceled, OrderStateRejected, OrderStateError:
		return true
	default:
		return false
	}
}

// Open reports whether s is still active at the broker.
func (s OrderState) Open() bool {
	return s.Valid() && !s.Terminal()
}

// ValidateTransition enforces the order state machine:
//
//	new → submitting → accepted → partially_filled → filled
//	{submitting, accepted, partially_filled} → canceled | rejected
//	any non-terminal → error
//
// No transition is defined out of a terminal state. The store itself stays
// permissive; callers that mutate state go through this first.
func ValidateTransition(from, to OrderState) error {
	if !from.Valid() || !to.Valid() {
		return exception.ErrOrderInvalidState
	}
	if from == to {
		return nil
	}
	if from.Terminal() {
		return exception.ErrOrderInvalidTransition
	}
	if to == OrderStateError {
		return nil
	}
	switch from {
	case OrderStateNew:
		if to == OrderStateSubmitting {
			return nil
		}
	case OrderStateSubmitting:
		switch to {
		case OrderStateAccepted, OrderStatePartFilled, OrderStateFilled, OrderStateCanceled, OrderStateRejected:
			return nil
		}
	case OrderStateAccepted:
		switch to {
		case OrderStatePartFilled, OrderStateFilled, OrderStateCanceled, OrderStateRejected:
			return nil
		}
	case OrderStatePartFilled:
		switch to {
		case OrderStateFilled, OrderStateCanceled, OrderStateRejected:
			return nil
		}
	}
	return exception.ErrOrderInvalidTransition
}
