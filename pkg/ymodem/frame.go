package ymodem

import (
	"strconv"

	"github.com/greentech-robotics/mcfs/internal/crc"
)

// Control bytes, §4.1/GLOSSARY.
const (
	SOH byte = 0x01
	STX byte = 0x02
	EOT byte = 0x04
	ACK byte = 0x06
	NAK byte = 0x15
	CAN byte = 0x18
	C   byte = 0x43
)

// Padding byte used inside data-frame payloads (not the initial packet,
// which is zero-padded — see §6).
const padByte = 0x1A

// nonDataLen is the frame overhead outside the payload: header, seq,
// ~seq, and two CRC bytes.
const nonDataLen = 5

var dataLen = map[byte]int{SOH: 128, STX: 1024}

func isControlByte(b byte) bool {
	switch b {
	case EOT, ACK, NAK, CAN, C:
		return true
	default:
		return false
	}
}

// Encode builds a wire-format data frame carrying payload. If payload fits
// in 128 bytes the frame header is forced to SOH and padded to 128 bytes
// with 0x1A; otherwise it is forced to STX and padded to 1024 bytes.
// seq is reduced mod 256. Encode fails with ErrPayloadTooLarge if payload
// exceeds 1024 bytes.
func Encode(seq int, payload []byte) ([]byte, error) {
	if len(payload) > 1024 {
		return nil, ErrPayloadTooLarge
	}
	header := SOH
	if len(payload) > 128 {
		header = STX
	}
	size := dataLen[header]

	frame := make([]byte, 0, size+nonDataLen)
	frame = append(frame, header)
	s := byte(seq % 256)
	frame = append(frame, s, 0xFF-s)

	padded := make([]byte, size)
	copy(padded, payload)
	for i := len(payload); i < size; i++ {
		padded[i] = padByte
	}
	frame = append(frame, padded...)

	checksum := crc.Compute(padded)
	frame = append(frame, byte(checksum>>8), byte(checksum))
	return frame, nil
}

// EncodeInitial builds the zeroth packet: a 128-byte SOH frame whose
// payload is "filename\0size\0", zero-padded (not 0x1A-padded — §6).
func EncodeInitial(filename string, size int64) ([]byte, error) {
	payload := make([]byte, 0, 128)
	payload = append(payload, []byte(filename)...)
	payload = append(payload, 0)
	payload = append(payload, []byte(strconv.FormatInt(size, 10))...)
	payload = append(payload, 0)
	if len(payload) > 128 {
		return nil, ErrPayloadTooLarge
	}
	padded := make([]byte, 128)
	copy(padded, payload) // remaining bytes are already 0x00

	frame := make([]byte, 0, 128+nonDataLen)
	frame = append(frame, SOH, 0, 0xFF)
	frame = append(frame, padded...)
	checksum := crc.Compute(padded)
	frame = append(frame, byte(checksum>>8), byte(checksum))
	return frame, nil
}

// Validate reports whether frame is a well-formed YMODEM/CRC frame: single
// control bytes are always valid; data frames must have the exact length
// for their header, seq/~seq must complement to 0xFF, and the trailing
// big-endian CRC-16 must match the payload.
func Validate(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	if isControlByte(frame[0]) && len(frame) == 1 {
		return true
	}
	size, known := dataLen[frame[0]]
	if !known {
		return false
	}
	if len(frame) != size+nonDataLen {
		return false
	}
	seq, comp := frame[1], frame[2]
	if int(seq)+int(comp) != 0xFF {
		return false
	}
	payload := frame[3 : 3+size]
	want := crc.Compute(payload)
	got := uint16(frame[3+size])<<8 | uint16(frame[3+size+1])
	return want == got
}
