package tcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentech-robotics/mcfs/pkg/transport"
)

func TestClientServerRoundTrip(t *testing.T) {
	srvCh := make(chan *Server, 1)
	errCh := make(chan error, 1)
	go func() {
		srv, err := NewServer("127.0.0.1:18171")
		if err != nil {
			errCh <- err
			return
		}
		srvCh <- srv
	}()

	time.Sleep(20 * time.Millisecond)
	client, err := NewClient("127.0.0.1:18171")
	require.NoError(t, err)
	defer client.Close()

	var srv *Server
	select {
	case srv = <-srvCh:
	case err := <-errCh:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(time.Second):
		t.Fatal("server never accepted a connection")
	}
	defer srv.Close()

	require.NoError(t, client.Send([]byte{0xAA, 0xBB, 0xCC}))
	assert.Equal(t, 0xAA, transport.WaitByte(srv, 200*time.Millisecond))
	assert.Equal(t, 0xBB, transport.WaitByte(srv, 200*time.Millisecond))
	assert.Equal(t, 0xCC, transport.WaitByte(srv, 200*time.Millisecond))

	require.NoError(t, srv.Send([]byte{0x01}))
	assert.Equal(t, 0x01, transport.WaitByte(client, 200*time.Millisecond))
}
