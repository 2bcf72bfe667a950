package socketcan

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArbitrationIDEncoding(t *testing.T) {
	assert.EqualValues(t, (5<<6)|(0x1F<<1)|1, dataArbitrationID(5))
	assert.EqualValues(t, (5<<6)|(0x14<<1)|1, otaArbitrationID(5))
}

func TestNewRejectsMalformedChannel(t *testing.T) {
	_, err := New("vcan0")
	assert.Error(t, err)
}

// requireVcan0 skips the test unless a vcan0 interface is present, since
// these tests exercise a real SocketCAN socket pair.
func requireVcan0(t *testing.T) {
	t.Helper()
	if _, err := net.InterfaceByName("vcan0"); err != nil {
		t.Skip("vcan0 interface not available")
	}
}

func TestSendReceiveOverVcan(t *testing.T) {
	requireVcan0(t)

	tx, err := New("vcan0:5")
	require.NoError(t, err)
	defer tx.Close()
	rx, err := New("vcan0:5")
	require.NoError(t, err)
	defer rx.Close()

	require.NoError(t, tx.Send([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}))

	deadline := time.Now().Add(time.Second)
	var got []byte
	for time.Now().Before(deadline) && len(got) < 10 {
		if b := rx.PollByte(); b != -1 {
			got = append(got, byte(b))
		}
	}
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got)
}

func TestOTATriggerOverVcan(t *testing.T) {
	requireVcan0(t)

	tx, err := New("vcan0:7")
	require.NoError(t, err)
	defer tx.Close()
	rx, err := New("vcan0:7")
	require.NoError(t, err)
	defer rx.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = tx.InitiateOTA()
	}()
	assert.True(t, rx.WaitForOTA(time.Second))
}
