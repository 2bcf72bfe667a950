package wsocket

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeClientFrame sends one final binary frame from a client, which RFC 6455
// requires to be masked.
func writeClientFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	var mask [4]byte
	_, err := rand.Read(mask[:])
	require.NoError(t, err)

	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ mask[i%4]
	}

	var buf bytes.Buffer
	buf.WriteByte(0x80 | 0x02) // FIN, opcode binary
	buf.WriteByte(0x80 | byte(len(payload)))
	buf.Write(mask[:])
	buf.Write(masked)
	_, err = conn.Write(buf.Bytes())
	require.NoError(t, err)
}

// readServerFrame reads one unmasked frame the server sends back and returns
// its payload.
func readServerFrame(t *testing.T, r *bufio.Reader) []byte {
	t.Helper()
	head := make([]byte, 2)
	_, err := r.Read(head)
	require.NoError(t, err)
	n := int(head[1] & 0x7f)
	payload := make([]byte, n)
	_, err = r.Read(payload)
	require.NoError(t, err)
	return payload
}

func dialWithHandshake(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	key := make([]byte, 16)
	_, err = rand.Read(key)
	require.NoError(t, err)
	encodedKey := base64.StdEncoding.EncodeToString(key)

	req := "GET / HTTP/1.1\r\n" +
		"Host: " + addr + "\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Sec-WebSocket-Key: " + encodedKey + "\r\n\r\n"
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	statusLine, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "101")
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}
	return conn, r
}

func TestServerRoundTrip(t *testing.T) {
	const addr = "127.0.0.1:18271"

	serverCh := make(chan *Server, 1)
	go func() {
		s, err := NewServer(addr)
		require.NoError(t, err)
		serverCh <- s
	}()

	time.Sleep(50 * time.Millisecond)
	conn, r := dialWithHandshake(t, addr)
	defer conn.Close()

	s := <-serverCh
	defer s.Close()

	writeClientFrame(t, conn, []byte("hello"))
	deadline := time.Now().Add(2 * time.Second)
	var got []byte
	for time.Now().Before(deadline) && len(got) < 5 {
		if b := s.PollByte(); b != -1 {
			got = append(got, byte(b))
		} else {
			time.Sleep(time.Millisecond)
		}
	}
	assert.Equal(t, []byte("hello"), got)

	require.NoError(t, s.Send([]byte("world")))
	payload := readServerFrame(t, r)
	assert.Equal(t, []byte("world"), payload)
}
