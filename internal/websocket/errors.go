package websocket

import "errors"

var (
	ErrConnectionClosed = errors.New("websocket: connection closed")
	ErrDial             = errors.New("websocket: dial failed")
	ErrInvalidConfig    = errors.New("websocket: invalid config")
)
