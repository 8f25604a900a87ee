package binkp

import (
	"encoding/binary"
	"io"
	"time"
)

// maxFramePayload is the largest payload a single frame may carry: the
// header reserves one bit for the command/data discriminator, leaving 15
// bits of length.
const maxFramePayload = 0x7FFF

// frameHeaderLen is the size in bytes of the frame's size-plus-flag header.
const frameHeaderLen = 2

// dataBit marks a frame as a command frame when set in the high bit of the
// header's first byte; clear means data frame.
const dataBit = 0x80

// ReaderWithTimeout is satisfied by any transport the frame codec reads
// from: a byte stream that can have a read deadline imposed on it so a
// stalled peer surfaces as a Timeout error rather than hanging forever.
type ReaderWithTimeout interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// Frame is a single decoded Binkp frame: either a command frame (IsCommand
// true, Payload starting with the command identifier byte) or a data frame
// (raw file-transfer bytes).
type Frame struct {
	IsCommand bool
	Payload   []byte
}

// encodeFrame renders a frame as it appears on the wire: a 2-byte
// big-endian header (bit 15 = command/data flag, bits 14-0 = payload
// length) followed by the payload itself.
func encodeFrame(isCommand bool, payload []byte) ([]byte, error) {
	if len(payload) > maxFramePayload {
		return nil, NewError(ErrFrameTooLarge, "payload exceeds 32767 bytes")
	}
	out := make([]byte, frameHeaderLen+len(payload))
	size := uint16(len(payload))
	if isCommand {
		size |= dataBit << 8
	}
	binary.BigEndian.PutUint16(out[:frameHeaderLen], size)
	copy(out[frameHeaderLen:], payload)
	return out, nil
}

// decodeFrame reads one complete frame from r, applying deadline to every
// underlying read so a silent peer is reported as ErrTimeout rather than
// blocking indefinitely. A zero-length payload is a legal frame (used as a
// keepalive / empty data frame) and is returned with Payload == nil.
func decodeFrame(r ReaderWithTimeout, deadline time.Duration) (Frame, error) {
	header, err := readFull(r, frameHeaderLen, deadline)
	if err != nil {
		return Frame{}, err
	}
	raw := binary.BigEndian.Uint16(header)
	isCommand := raw&(dataBit<<8) != 0
	size := int(raw &^ (dataBit << 8))

	if size == 0 {
		return Frame{IsCommand: isCommand}, nil
	}

	payload, err := readFull(r, size, deadline)
	if err != nil {
		return Frame{}, err
	}
	return Frame{IsCommand: isCommand, Payload: payload}, nil
}

// readFull reads exactly n bytes from r, arming a read deadline (when
// deadline > 0) before each underlying Read so a stalled peer is reported
// as ErrTimeout distinctly from a clean connection close (ErrNetwork).
func readFull(r ReaderWithTimeout, n int, deadline time.Duration) ([]byte, error) {
	buf := make([]byte, n)
	read := 0
	for read < n {
		if deadline > 0 {
			if err := r.SetReadDeadline(time.Now().Add(deadline)); err != nil {
				return nil, NewError(ErrNetwork, "set read deadline: "+err.Error())
			}
		}
		m, err := r.Read(buf[read:])
		read += m
		if err != nil {
			if read == n {
				break
			}
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				return nil, NewError(ErrTimeout, "frame read timed out")
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, NewError(ErrNetwork, "connection closed")
			}
			return nil, NewError(ErrNetwork, err.Error())
		}
	}
	return buf, nil
}
