// Package tcp implements the TCP stream variant of the transport contract
// (client and server), each running a background receiver goroutine that
// drains the socket into an unbounded FIFO.
package tcp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grandcat/zeroconf"
	log "github.com/sirupsen/logrus"

	"github.com/greentech-robotics/mcfs/internal/fifo"
	"github.com/greentech-robotics/mcfs/pkg/metrics"
	"github.com/greentech-robotics/mcfs/pkg/transport"
)

const serviceType = "_mcfs._tcp"

func init() {
	transport.Register("tcp-client", func(channel string) (transport.Transport, error) {
		return NewClient(channel)
	})
}

const readChunk = 4096

// Conn is the shared half of the client and server variants: a net.Conn
// plus the background reader feeding a FIFO.
type Conn struct {
	conn    net.Conn
	rx      fifo.Fifo
	closing int32
	wg      sync.WaitGroup
}

func newConn(c net.Conn) *Conn {
	t := &Conn{conn: c}
	t.wg.Add(1)
	go t.readLoop()
	return t
}

func (t *Conn) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, readChunk)
	for atomic.LoadInt32(&t.closing) == 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := t.conn.Read(buf)
		if n > 0 {
			t.rx.Push(buf[:n])
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if atomic.LoadInt32(&t.closing) == 0 {
				log.Debugf("tcp transport: background receiver stopped: %v", err)
			}
			return
		}
	}
}

// Send writes p to the socket in full.
func (t *Conn) Send(p []byte) error {
	_, err := t.conn.Write(p)
	if err != nil {
		metrics.TransportErrors.WithLabelValues("tcp").Inc()
		return transport.ErrTransport
	}
	return nil
}

// PollByte returns the next queued byte, or -1 if none is buffered.
func (t *Conn) PollByte() int {
	b, ok := t.rx.TryPop()
	if !ok {
		return -1
	}
	return int(b)
}

// Close signals the background receiver to stop, joins it, and closes the
// underlying socket. Safe to call more than once.
func (t *Conn) Close() error {
	atomic.StoreInt32(&t.closing, 1)
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

// Client is the dialing half of the TCP transport (C4).
type Client struct {
	*Conn
}

// NewClient dials addr ("ip:port") and starts the background receiver.
func NewClient(addr string) (*Client, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &Client{Conn: newConn(c)}, nil
}

// Server is the listening half of the TCP transport (C4): it binds, accepts
// exactly one client, and exposes that connection as the Transport.
type Server struct {
	*Conn
	ln net.Listener
}

// NewServer binds addr and blocks until one client connects.
func NewServer(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := ln.Accept()
	if err != nil {
		ln.Close()
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &Server{Conn: newConn(c), ln: ln}, nil
}

// Advertise publishes this server on the local network via mDNS/DNS-SD so a
// sender can discover it without a hardcoded address. It returns a stop
// function that withdraws the advertisement; calling Advertise is optional
// and has no bearing on the transport contract itself.
func (s *Server) Advertise(name string, meta []string) (stop func(), err error) {
	port := s.ln.Addr().(*net.TCPAddr).Port
	svc, err := zeroconf.Register(name, serviceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	return svc.Shutdown, nil
}

// Close releases the accepted connection and the listening socket.
func (s *Server) Close() error {
	err := s.Conn.Close()
	if lerr := s.ln.Close(); lerr != nil && err == nil {
		err = lerr
	}
	return err
}
