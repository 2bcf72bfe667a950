package ymodem

import "errors"

// Error kinds raised by the sender/receiver state machines and codec.
// Sentinels in the teacher's style (see errors.go in the teacher package):
// callers compare with errors.Is, never a type switch.
var (
	// ErrPayloadTooLarge is returned by Encode when the payload exceeds
	// the largest YMODEM/CRC block size (1024 bytes).
	ErrPayloadTooLarge = errors.New("ymodem: payload too large for a data frame")

	// ErrInvalidFrame is the local codec validation failure: wrong
	// length for the header, seq/~seq mismatch, or bad CRC. Bad frames
	// are recovered from locally (NAK and retry); InitiateRecv returns
	// this error when a valid initial packet's filename/size cannot be
	// parsed.
	ErrInvalidFrame = errors.New("ymodem: invalid frame")

	// ErrTimeout means a wait exceeded its bound. No function in this
	// package returns it: a wait that exceeds the per-packet outer
	// timeout makes Sender.Send return false with a nil error.
	ErrTimeout = errors.New("ymodem: timed out waiting for response")

	// ErrPeerCancelled means two CAN bytes were observed within 100 ms.
	// Fatal; always surfaced to the caller.
	ErrPeerCancelled = errors.New("ymodem: transfer cancelled by peer")

	// ErrTransport wraps a permanent transport failure (socket/bus
	// error). Fatal; the transport should be closed by the caller.
	ErrTransport = errors.New("ymodem: transport error")
)
