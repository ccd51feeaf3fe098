package webhook

import "errors"

// Sentinel kinds for webhook errors.
var (
	ErrBadSignature     = errors.New("webhook signature invalid")
	ErrUnknownEvent     = errors.New("unknown event kind")
	ErrMalformedPayload = errors.New("malformed payload")
)
