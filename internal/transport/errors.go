package transport

import "errors"

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("channel closed")
)
