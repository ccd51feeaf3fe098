package ipfs

import "errors"

// ErrPinFailed indicates the pinning service rejected or mangled a request.
var ErrPinFailed = errors.New("pinning service failed")
