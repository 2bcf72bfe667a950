package tcp

import (
	"math/rand"

	"github.com/greentech-robotics/mcfs/pkg/transport"
)

// Unreliable wraps another Transport and injects synthetic faults on every
// byte that PollByte would otherwise return: with independent probability p
// it either drops the byte (returns -1) or substitutes a uniform random
// byte, with equal likelihood between the two. Used to exercise S3's lossy
// round trip; the underlying transport is untouched on Send.
type Unreliable struct {
	inner transport.Transport
	rng   *rand.Rand
	p     float64
}

// NewUnreliable wraps inner with a deterministic fault stream seeded by
// seed, dropping or corrupting bytes with probability p.
func NewUnreliable(inner transport.Transport, seed int64, p float64) *Unreliable {
	return &Unreliable{inner: inner, rng: rand.New(rand.NewSource(seed)), p: p}
}

// Send passes bytes through unmodified; faults are only injected on the
// receive path, matching the reference wrapper's scope.
func (u *Unreliable) Send(p []byte) error {
	return u.inner.Send(p)
}

// PollByte returns the wrapped transport's next byte, dropped or corrupted
// per the configured fault probability.
func (u *Unreliable) PollByte() int {
	b := u.inner.PollByte()
	if b == -1 {
		return -1
	}
	if u.rng.Float64() >= u.p {
		return b
	}
	if u.rng.Float64() < 0.5 {
		return -1
	}
	return u.rng.Intn(256)
}
