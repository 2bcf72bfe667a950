// Package socketcan implements the CAN transport (C5) over a raw Linux
// SocketCAN socket, addressed by a 6-bit motor_id and tunneling an opaque
// byte stream as 8-byte CAN data frames.
package socketcan

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/greentech-robotics/mcfs/internal/fifo"
	"github.com/greentech-robotics/mcfs/pkg/metrics"
	"github.com/greentech-robotics/mcfs/pkg/transport"
)

func init() {
	transport.Register("socketcan", func(channel string) (transport.Transport, error) {
		return New(channel)
	})
}

const (
	frameSize = 16

	funcData = 0x1F
	funcOTA  = 0x14
)

// frame is the binary layout expected by a SocketCAN raw socket, matching
// struct can_frame: id, dlc, three padding bytes, then 8 data bytes.
type frame struct {
	id   uint32
	dlc  uint8
	pad  uint8
	res0 uint8
	res1 uint8
	data [8]uint8
}

// Bus is the CAN transport for a single motor_id on one interface. It is
// single-threaded: poll_byte polls the socket inline rather than running a
// background reader, per the spec's CAN concurrency model.
type Bus struct {
	fd      int
	motorID uint32
	rx      fifo.Fifo
}

// New opens a raw CAN socket on channel, formatted "<interface>:<motor_id>"
// (e.g. "can0:5"). The interface must already be up.
func New(channel string) (*Bus, error) {
	ifaceName, motorIDStr, ok := strings.Cut(channel, ":")
	if !ok {
		return nil, fmt.Errorf("socketcan: channel %q must be \"iface:motor_id\"", channel)
	}
	motorID, err := strconv.ParseUint(motorIDStr, 10, 6)
	if err != nil {
		return nil, fmt.Errorf("socketcan: invalid motor_id in %q: %w", channel, err)
	}

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: failed to create socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind: %w", err)
	}

	return &Bus{fd: fd, motorID: uint32(motorID)}, nil
}

// Close releases the underlying socket.
func (b *Bus) Close() error {
	return unix.Close(b.fd)
}

func (b *Bus) setReadTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(b.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func dataArbitrationID(motorID uint32) uint32 {
	return (motorID << 6) | (funcData << 1) | 1
}

func otaArbitrationID(motorID uint32) uint32 {
	return (motorID << 6) | (funcOTA << 1) | 1
}

func (b *Bus) writeFrame(id uint32, data []byte) error {
	f := frame{id: id, dlc: uint8(len(data))}
	copy(f.data[:], data)
	raw := (*(*[frameSize]byte)(unsafe.Pointer(&f)))[:]
	n, err := unix.Write(b.fd, raw)
	if err != nil || n != frameSize {
		metrics.TransportErrors.WithLabelValues("socketcan").Inc()
		return transport.ErrTransport
	}
	return nil
}

// Send splits data into chunks of up to 8 bytes (⌈len/8⌉ frames) and emits
// one CAN data frame per chunk, in order.
func (b *Bus) Send(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	id := dataArbitrationID(b.motorID)
	for start := 0; start < len(data); start += 8 {
		end := start + 8
		if end > len(data) {
			end = len(data)
		}
		if err := b.writeFrame(id, data[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// readOne reads a single frame with the given socket timeout, returning
// ok=false on EAGAIN/EWOULDBLOCK (timeout) or any other read error.
func (b *Bus) readOne(timeout time.Duration) (f frame, ok bool) {
	if err := b.setReadTimeout(timeout); err != nil {
		log.Debugf("socketcan: failed to set read timeout: %v", err)
		return frame{}, false
	}
	raw := make([]byte, frameSize)
	n, err := unix.Read(b.fd, raw)
	if err != nil || n != frameSize {
		return frame{}, false
	}
	f = *(*frame)(unsafe.Pointer(&raw[0]))
	return f, true
}

// PollByte returns the next buffered byte, polling the bus with a 1ms
// timeout if the FIFO is empty (§4.5).
func (b *Bus) PollByte() int {
	if bt, ok := b.rx.TryPop(); ok {
		return int(bt)
	}
	f, ok := b.readOne(time.Millisecond)
	if !ok {
		return -1
	}
	if (f.id >> 6) != b.motorID {
		return -1
	}
	b.rx.Push(f.data[:f.dlc])
	bt, ok := b.rx.TryPop()
	if !ok {
		return -1
	}
	return int(bt)
}

// InitiateOTA emits the OTA trigger frame (function code 0x14, single
// 0x00 data byte).
func (b *Bus) InitiateOTA() error {
	return b.writeFrame(otaArbitrationID(b.motorID), []byte{0x00})
}

// WaitForOTA blocks, polling the bus with ~300ms timeouts, until it
// observes a frame from motor_id whose function code equals 0x14, or
// timeout elapses.
func (b *Bus) WaitForOTA(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		f, ok := b.readOne(300 * time.Millisecond)
		if !ok {
			continue
		}
		if (f.id>>6) == b.motorID && (f.id>>1)&0x1F == funcOTA {
			return true
		}
	}
	return false
}
