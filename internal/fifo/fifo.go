// Package fifo provides the byte queue shared between a transport's
// background receiver and its foreground poll_byte/wait_byte driver.
//
// Unlike the circular, fixed-capacity buffer this is adapted from (used
// single-threaded inside a CANopen SDO block transfer), transports in this
// module have one goroutine writing (the background reader) and one
// goroutine reading (the session driver), so the queue must synchronize
// and it must not silently lose bytes under Write the way the original
// fixed-capacity ring does — §4.4 requires an "unbounded FIFO".
package fifo

import "sync"

// Fifo is an unbounded, thread-safe byte queue. The zero value is ready to
// use. It is safe for one writer and one reader to operate concurrently;
// multiple concurrent writers are also safe, serialized by the internal
// lock.
type Fifo struct {
	mu   sync.Mutex
	buf  []byte
	head int
}

// Push appends bytes to the back of the queue. It never blocks and never
// drops bytes.
func (f *Fifo) Push(data []byte) {
	if len(data) == 0 {
		return
	}
	f.mu.Lock()
	f.buf = append(f.buf, data...)
	f.mu.Unlock()
}

// PushByte appends a single byte to the back of the queue.
func (f *Fifo) PushByte(b byte) {
	f.mu.Lock()
	f.buf = append(f.buf, b)
	f.mu.Unlock()
}

// TryPop removes and returns the front byte, or reports ok == false if the
// queue is empty. This is the non-blocking primitive poll_byte is built on.
func (f *Fifo) TryPop() (b byte, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.head >= len(f.buf) {
		f.buf = f.buf[:0]
		f.head = 0
		return 0, false
	}
	b = f.buf[f.head]
	f.head++
	// Compact once the consumed prefix dominates, so a long-running
	// session doesn't grow buf without bound.
	if f.head > 4096 && f.head*2 > len(f.buf) {
		f.buf = append(f.buf[:0], f.buf[f.head:]...)
		f.head = 0
	}
	return b, true
}

// Len reports the number of unread bytes currently queued.
func (f *Fifo) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf) - f.head
}

// Drain discards every currently queued byte, returning how many were
// dropped. Used to clear stale bytes before retransmitting a frame.
func (f *Fifo) Drain() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.buf) - f.head
	f.buf = f.buf[:0]
	f.head = 0
	return n
}
