package exception

import "errors"

var (
	ErrStoreClosed   = errors.New("store: closed")
	ErrStoreNotFound = errors.New("store: not found")
)
