package transport

import "errors"

// ErrTransport wraps a permanent transport failure (socket/bus error),
// mirroring the teacher's sentinel-error style (errors.go).
var ErrTransport = errors.New("transport: permanent failure")

var errNotRegistered = errors.New("transport: not registered")
