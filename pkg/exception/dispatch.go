package exception

import "errors"

var (
	ErrDispatchQueueFull  = errors.New("dispatch: queue full")
	ErrDispatchNotRunning = errors.New("dispatch: not running")
	ErrDispatchNilTask    = errors.New("dispatch: nil task")
)
