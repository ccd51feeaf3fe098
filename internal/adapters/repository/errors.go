package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("contribution not found")
	ErrConflict = errors.New("status transition conflict")
)
