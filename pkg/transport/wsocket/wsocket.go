// Package wsocket implements a bonus transport that carries the YMODEM byte
// stream over a single WebSocket connection, reusing the binary-frame
// io.Reader/io.Writer the upgrade handshake hands back.
package wsocket

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/pascaldekloe/websocket"
	"github.com/pascaldekloe/websocket/httpws"
	log "github.com/sirupsen/logrus"

	"github.com/greentech-robotics/mcfs/internal/fifo"
	"github.com/greentech-robotics/mcfs/pkg/transport"
)

const readChunk = 4096
const upgradeTimeout = 5 * time.Second

// Conn is the Transport implementation wrapping one upgraded WebSocket
// connection, with the same background-receiver-into-FIFO shape as the TCP
// transport.
type Conn struct {
	conn    *ws.Conn
	rx      fifo.Fifo
	closing int32
	wg      sync.WaitGroup
}

func newConn(c *ws.Conn) *Conn {
	t := &Conn{conn: c}
	c.Accept = ws.AcceptV13
	t.wg.Add(1)
	go t.readLoop()
	return t
}

func (t *Conn) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, readChunk)
	for atomic.LoadInt32(&t.closing) == 0 {
		n, err := t.conn.Read(buf)
		if n > 0 {
			t.rx.Push(buf[:n])
		}
		if err != nil {
			if atomic.LoadInt32(&t.closing) == 0 {
				log.Debugf("wsocket transport: background receiver stopped: %v", err)
			}
			return
		}
	}
}

// Send writes p as a single binary WebSocket frame.
func (t *Conn) Send(p []byte) error {
	t.conn.WriteFinal(ws.Binary)
	if _, err := t.conn.Write(p); err != nil {
		return transport.ErrTransport
	}
	return nil
}

// PollByte returns the next queued byte, or -1 if none is buffered yet.
func (t *Conn) PollByte() int {
	b, ok := t.rx.TryPop()
	if !ok {
		return -1
	}
	return int(b)
}

// Close signals the background receiver to stop, joins it, and closes the
// underlying connection.
func (t *Conn) Close() error {
	atomic.StoreInt32(&t.closing, 1)
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

// Server listens on addr and, on the first HTTP request that requests a
// WebSocket upgrade, hands back a Conn bound to that client.
type Server struct {
	*Conn
	ln  net.Listener
	srv *http.Server
}

// NewServer binds addr and blocks until one client completes the WebSocket
// handshake.
func NewServer(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	connCh := make(chan *Conn, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := httpws.Upgrade(w, r, nil, upgradeTimeout)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- newConn(wsConn)
	})
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)

	select {
	case c := <-connCh:
		return &Server{Conn: c, ln: ln, srv: srv}, nil
	case err := <-errCh:
		ln.Close()
		return nil, fmt.Errorf("wsocket: upgrade failed: %w", err)
	}
}

// Close releases the accepted connection, the HTTP server, and the
// listening socket.
func (s *Server) Close() error {
	err := s.Conn.Close()
	_ = s.srv.Close()
	if lerr := s.ln.Close(); lerr != nil && err == nil {
		err = lerr
	}
	return err
}
