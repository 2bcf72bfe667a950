// Package transport defines the uniform byte-stream contract (C3) that the
// YMODEM sender/receiver drive, and a named-constructor registry (C8) so a
// concrete transport (TCP, SocketCAN, a CAN-over-middleware bridge, or any
// of the supplemental ones under pkg/transport/*) can be selected by string
// key at wiring time — the same shape as a CANopen bus-interface registry.
package transport

import (
	"fmt"
	"sync"
	"time"
)

// Transport is the capability set the ymodem package consumes. Concrete
// transports adapt a stream- or message-oriented link to it.
type Transport interface {
	// Send delivers all of p. It may block briefly but must not lose
	// bytes on a nil return. A non-nil return is always permanent
	// (ErrTransport-class) failure.
	Send(p []byte) error

	// PollByte returns the next buffered byte in [0,255], or -1 if none
	// is available right now. Non-blocking aside from at most ~1ms of
	// internal polling.
	PollByte() int
}

// OTATransport is an optional extension a message-oriented transport
// implements to trigger and confirm the out-of-band bootloader entry
// signal. Only the SocketCAN transport implements it; the stream
// transports and the CAN-over-middleware bridge don't. Callers
// type-assert for it.
type OTATransport interface {
	InitiateOTA() error
	WaitForOTA(timeout time.Duration) bool
}

// WaitByte polls t until a byte arrives or timeout elapses.
func WaitByte(t Transport, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	for {
		if b := t.PollByte(); b != -1 {
			return b
		}
		if timeout >= 0 && time.Now().After(deadline) {
			return -1
		}
		time.Sleep(time.Millisecond)
	}
}

// WaitFor consumes and discards bytes from t until b is seen (true) or
// timeout elapses (false).
func WaitFor(t Transport, b byte, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		got := t.PollByte()
		if got == int(b) {
			return true
		}
		if timeout >= 0 && time.Now().After(deadline) {
			return false
		}
		if got == -1 {
			time.Sleep(time.Millisecond)
		}
	}
}

// NewFunc constructs a Transport from a free-form channel/address string,
// e.g. "host:port" for TCP or an interface name for SocketCAN.
type NewFunc func(channel string) (Transport, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]NewFunc)
)

// Register adds a named transport constructor to the registry. Transport
// subpackages call this from an init() function, the same way the teacher
// codebase's CAN backends self-register — importing a subpackage for its
// side effect is what makes a name available.
func Register(name string, ctor NewFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// New constructs a Transport by registered name. Returns a wrapped
// errNotRegistered if name was never registered (typically because the
// subpackage that registers it was never imported).
func New(name, channel string) (Transport, error) {
	registryMu.Lock()
	ctor, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unregistered transport %q", errNotRegistered, name)
	}
	return ctor(channel)
}
