package ymodem

import (
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/greentech-robotics/mcfs/pkg/metrics"
	"github.com/greentech-robotics/mcfs/pkg/transport"
)

// Receiver drives the YMODEM/CRC receiver state machine (C7) over one
// Transport for the lifetime of a single file. It borrows the transport;
// it does not own or close it.
type Receiver struct {
	t transport.Transport
}

// NewReceiver returns a Receiver bound to t for one session.
func NewReceiver(t transport.Transport) *Receiver {
	return &Receiver{t: t}
}

// InitiateRecv sends the first 'C', waits for the zeroth packet, ACKs it,
// and parses out (filename, size). On any failure to obtain a valid
// initial packet it NAKs, sleeps 1s, and retries indefinitely — per §4.7
// there is no bound on this recovery loop; a caller that wants one should
// race this call against its own context/timer.
func (r *Receiver) InitiateRecv() (filename string, size int64, err error) {
	if err := r.t.Send([]byte{C}); err != nil {
		return "", 0, ErrTransport
	}

	var initial []byte
	for {
		frame, cancelled := r.tryRecvPacket(time.Second)
		if cancelled {
			return "", 0, ErrPeerCancelled
		}
		if frame == nil || len(frame) == 1 {
			log.Debug("ymodem receiver: failed to receive initial packet, NAK and retry")
			_ = r.t.Send([]byte{NAK})
			time.Sleep(time.Second)
			continue
		}
		initial = frame
		break
	}

	if err := r.t.Send([]byte{ACK}); err != nil {
		return "", 0, ErrTransport
	}

	payload := initial[3 : 3+128]
	nul1 := indexByte(payload, 0, 0)
	if nul1 < 0 {
		return "", 0, ErrInvalidFrame
	}
	name := string(payload[:nul1])
	nul2 := indexByte(payload, 0, nul1+1)
	if nul2 < 0 {
		nul2 = len(payload)
	}
	sizeStr := string(payload[nul1+1 : nul2])
	parsedSize, convErr := strconv.ParseInt(sizeStr, 10, 64)
	if convErr != nil {
		return "", 0, ErrInvalidFrame
	}
	return name, parsedSize, nil
}

func indexByte(b []byte, target byte, from int) int {
	for i := from; i < len(b); i++ {
		if b[i] == target {
			return i
		}
	}
	return -1
}

// Recv sends the second 'C' handshake, then receives data frames until EOT,
// returning the reassembled file truncated to exactly size bytes (§4.7).
func (r *Receiver) Recv(size int64) ([]byte, error) {
	if err := r.t.Send([]byte{C}); err != nil {
		return nil, ErrTransport
	}

	data := make([]byte, 0, size)
	chunkNum := 0

	metrics.SessionsInFlight.Inc()
	defer metrics.SessionsInFlight.Dec()

	for {
		frame, cancelled := r.tryRecvPacket(200 * time.Millisecond)
		if cancelled {
			metrics.Cancellations.Inc()
			return nil, ErrPeerCancelled
		}
		if frame == nil {
			log.Debug("ymodem receiver: no packet received, NAK")
			_ = r.t.Send([]byte{NAK})
			continue
		}

		switch frame[0] {
		case EOT:
			_ = r.t.Send([]byte{ACK})
			if int64(len(data)) > size {
				data = data[:size]
			}
			return data, nil

		case SOH, STX:
			seq := int(frame[1])
			want := (chunkNum + 1) % 256
			if seq != want {
				log.Debugf("ymodem receiver: unexpected seq %d, want %d, NAK", seq, want)
				_ = r.t.Send([]byte{NAK})
				continue
			}
			payloadSize := dataLen[frame[0]]
			payload := frame[3 : 3+payloadSize]
			data = append(data, payload...)
			if err := r.t.Send([]byte{ACK}); err != nil {
				return nil, ErrTransport
			}
			metrics.FramesReceived.Inc()
			metrics.BytesReceived.Add(float64(payloadSize))
			log.Debugf("ymodem receiver: received chunk %d, ACK sent", chunkNum)
			chunkNum++

		default:
			// Unreachable: tryRecvPacket only returns control bytes or
			// validated SOH/STX frames.
		}
	}
}

// tryRecvPacket reads one frame (§4.7): a control byte returns
// immediately; SOH/STX reads the remaining L+4 bytes with a 10ms
// inter-byte timeout and validates the result. cancelled reports the
// double-CAN rule firing; frame is nil on any other failure to parse.
func (r *Receiver) tryRecvPacket(timeout time.Duration) (frame []byte, cancelled bool) {
	header := transport.WaitByte(r.t, timeout)
	if header == -1 {
		return nil, false
	}
	b := byte(header)

	if b == CAN {
		second := transport.WaitByte(r.t, 100*time.Millisecond)
		if second == int(CAN) {
			return nil, true
		}
		return nil, false
	}
	if isControlByte(b) {
		return []byte{b}, false
	}

	size, known := dataLen[b]
	if !known {
		// Purge 132 bytes (the length of a 128-byte SOH frame after
		// its header byte) to resynchronize the stream.
		for i := 0; i < 132; i++ {
			if transport.WaitByte(r.t, 10*time.Millisecond) == -1 {
				break
			}
		}
		return nil, false
	}

	need := size + nonDataLen - 1
	rest := make([]byte, 0, need)
	for i := 0; i < need; i++ {
		nb := transport.WaitByte(r.t, 10*time.Millisecond)
		if nb == -1 {
			return nil, false
		}
		rest = append(rest, byte(nb))
	}

	full := make([]byte, 0, 1+need)
	full = append(full, b)
	full = append(full, rest...)
	if !Validate(full) {
		return nil, false
	}
	return full, false
}

// CancelTransfer sends two CAN bytes in a single write, per §4.7.
func (r *Receiver) CancelTransfer() error {
	return r.t.Send([]byte{CAN, CAN})
}
