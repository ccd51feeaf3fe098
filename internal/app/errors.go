package service

import "errors"

// ErrNotConfigured is returned when Start runs without the verifier or
// signer, which cannot be defaulted because they carry secrets.
var ErrNotConfigured = errors.New("service missing verifier or signer")
