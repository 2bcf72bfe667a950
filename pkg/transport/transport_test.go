package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentech-robotics/mcfs/internal/fifo"
)

// memTransport is a minimal in-memory Transport used only to exercise the
// WaitByte/WaitFor helpers above; real transports live under their own
// subpackages.
type memTransport struct{ q fifo.Fifo }

func (m *memTransport) Send(p []byte) error { m.q.Push(p); return nil }
func (m *memTransport) PollByte() int {
	b, ok := m.q.TryPop()
	if !ok {
		return -1
	}
	return int(b)
}

func TestWaitByteReturnsAvailableByte(t *testing.T) {
	m := &memTransport{}
	m.q.PushByte(0x42)
	assert.Equal(t, 0x42, WaitByte(m, 10*time.Millisecond))
}

func TestWaitByteTimesOut(t *testing.T) {
	m := &memTransport{}
	start := time.Now()
	assert.Equal(t, -1, WaitByte(m, 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitForFindsByte(t *testing.T) {
	m := &memTransport{}
	m.q.Push([]byte{0x01, 0x02, 0x43})
	assert.True(t, WaitFor(m, 0x43, 50*time.Millisecond))
}

func TestWaitForTimesOutWithoutByte(t *testing.T) {
	m := &memTransport{}
	assert.False(t, WaitFor(m, 0x43, 20*time.Millisecond))
}

func TestRegistryRoundTrip(t *testing.T) {
	Register("mem-test", func(channel string) (Transport, error) {
		return &memTransport{}, nil
	})
	tr, err := New("mem-test", "ignored")
	require.NoError(t, err)
	assert.NotNil(t, tr)
}

func TestRegistryUnknownName(t *testing.T) {
	_, err := New("definitely-not-registered", "x")
	assert.Error(t, err)
}
