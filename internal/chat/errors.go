package chat

import "errors"

var ErrClosed = errors.New("chat feed closed")
