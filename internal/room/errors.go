package room

import "errors"

var ErrClosed = errors.New("room closed")
