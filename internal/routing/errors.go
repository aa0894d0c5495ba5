package routing

import "errors"

// ErrNotFound indicates no assignment exists for the device/output pair.
var ErrNotFound = errors.New("routing: assignment not found")
