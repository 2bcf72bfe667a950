// Package serialport implements a bonus transport carrying the YMODEM byte
// stream directly over a UART/serial line, for boards whose bootloader
// speaks YMODEM on a physical serial port instead of TCP or CAN.
package serialport

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"

	"github.com/greentech-robotics/mcfs/internal/fifo"
	"github.com/greentech-robotics/mcfs/pkg/transport"
)

func init() {
	transport.Register("serial", func(channel string) (transport.Transport, error) {
		return New(channel, 115200)
	})
}

const readChunk = 256

// Port is the Transport implementation over a tarm/serial connection, with
// the same background-receiver-into-FIFO shape as the TCP transport.
type Port struct {
	port    *serial.Port
	rx      fifo.Fifo
	closing int32
	wg      sync.WaitGroup
}

// New opens device at baud and starts the background receiver. The short
// read timeout lets the receiver notice shutdown without relying on a
// close-triggered read error.
func New(device string, baud int) (*Port, error) {
	cfg := &serial.Config{Name: device, Baud: baud, ReadTimeout: time.Second}
	sp, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	p := &Port{port: sp}
	p.wg.Add(1)
	go p.readLoop()
	return p, nil
}

func (p *Port) readLoop() {
	defer p.wg.Done()
	buf := make([]byte, readChunk)
	for atomic.LoadInt32(&p.closing) == 0 {
		n, err := p.port.Read(buf)
		if n > 0 {
			p.rx.Push(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				continue
			}
			if atomic.LoadInt32(&p.closing) == 0 {
				log.Debugf("serialport transport: background receiver stopped: %v", err)
			}
			return
		}
	}
}

// Send writes data to the serial port in full.
func (p *Port) Send(data []byte) error {
	if _, err := p.port.Write(data); err != nil {
		return transport.ErrTransport
	}
	return nil
}

// PollByte returns the next queued byte, or -1 if none is buffered yet.
func (p *Port) PollByte() int {
	b, ok := p.rx.TryPop()
	if !ok {
		return -1
	}
	return int(b)
}

// Close signals the background receiver to stop, joins it, and closes the
// serial port.
func (p *Port) Close() error {
	atomic.StoreInt32(&p.closing, 1)
	err := p.port.Close()
	p.wg.Wait()
	return err
}
