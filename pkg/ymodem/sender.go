package ymodem

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/greentech-robotics/mcfs/pkg/metrics"
	"github.com/greentech-robotics/mcfs/pkg/transport"
)

// Sender drives the YMODEM/CRC sender state machine (C6) over one
// Transport for the lifetime of a single file. It borrows the transport;
// it does not own or close it.
type Sender struct {
	t transport.Transport

	// RetransmissionCount is incremented each time a NAK is received for
	// a served frame (the initial packet, a data frame or the EOT).
	// Read-only after Send returns.
	RetransmissionCount int
}

// NewSender returns a Sender bound to t for one session.
func NewSender(t transport.Transport) *Sender {
	return &Sender{t: t}
}

// Send transmits data under filename, following §4.6:
//  1. wait up to 1.0s for the rendezvous 'C'
//  2. send the initial packet, serve it with a 5.0s outer timeout
//  3. wait up to 5.0s for the second 'C' (data-go handshake)
//  4. stream 1024-byte data frames
//  5. send a single EOT
//
// Returns false (no error) on any protocol-level failure that leaves the
// transfer incomplete but not cancelled; ErrPeerCancelled is returned if
// the receiver sends two CAN bytes.
func (s *Sender) Send(filename string, data []byte) (bool, error) {
	s.RetransmissionCount = 0
	metrics.SessionsInFlight.Inc()
	defer metrics.SessionsInFlight.Dec()

	if transport.WaitByte(s.t, time.Second) != int(C) {
		log.Debug("ymodem sender: timed out waiting for rendezvous C")
		return false, nil
	}

	initial, err := EncodeInitial(filename, int64(len(data)))
	if err != nil {
		return false, err
	}
	ok, err := s.servePacket(initial, 5*time.Second)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Debug("ymodem sender: failed to serve initial packet")
		return false, nil
	}

	if transport.WaitByte(s.t, 5*time.Second) != int(C) {
		log.Debug("ymodem sender: timed out waiting for second handshake")
		return false, nil
	}

	const chunkSize = 1024
	total := (len(data) + chunkSize - 1) / chunkSize
	for k := 0; k < total; k++ {
		start := k * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		frame, err := Encode(k+1, data[start:end])
		if err != nil {
			return false, err
		}
		ok, err := s.servePacket(frame, 5*time.Second)
		if err != nil {
			return false, err
		}
		if !ok {
			log.Debugf("ymodem sender: failed to serve data frame seq=%d", (k+1)%256)
			return false, nil
		}
		metrics.BytesSent.Add(float64(end - start))
	}

	ok, err = s.servePacket([]byte{EOT}, 5*time.Second)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Debug("ymodem sender: failed to serve EOT")
		return false, nil
	}

	log.Debugf("ymodem sender: transfer complete, %d retransmissions", s.RetransmissionCount)
	return true, nil
}

// servePacket is the retransmission loop (§4.6 Serve-Packet): drain stale
// bytes, send, and wait for ACK/NAK/CAN/timeout. The overall wall-clock is
// bounded by timeout.
func (s *Sender) servePacket(frame []byte, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		if timeout >= 0 && time.Now().After(deadline) {
			return false, nil
		}

		for s.t.PollByte() != -1 {
			// drain stale bytes left over from a previous attempt
		}

		if err := s.t.Send(frame); err != nil {
			return false, ErrTransport
		}
		metrics.FramesSent.Inc()

		wait := timeout
		if timeout >= 0 {
			wait = time.Until(deadline)
			if wait < 0 {
				wait = 0
			}
		}
		response := transport.WaitByte(s.t, wait)
		switch response {
		case int(ACK):
			return true, nil
		case int(NAK):
			s.RetransmissionCount++
			metrics.Retransmissions.Inc()
			log.Debug("ymodem sender: received NAK, retransmitting")
			continue
		case int(CAN):
			second := transport.WaitByte(s.t, 100*time.Millisecond)
			if second == int(CAN) {
				metrics.Cancellations.Inc()
				return false, ErrPeerCancelled
			}
			continue
		case -1:
			log.Debug("ymodem sender: timed out waiting for response")
			return false, nil
		default:
			continue
		}
	}
}
