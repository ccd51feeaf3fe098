package queue

import "errors"

// ErrClosed is returned by consumers when the queue has shut down.
var ErrClosed = errors.New("queue closed")
