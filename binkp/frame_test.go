package binkp

import (
	"bytes"
	"io"
	"testing"
	"time"
)

type fakeConn struct {
	r       *bytes.Reader
	timeout bool
}

func (f *fakeConn) Read(p []byte) (int, error) {
	if f.timeout {
		return 0, timeoutErr{}
	}
	return f.r.Read(p)
}

func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		isCommand bool
		payload   []byte
	}{
		{"empty command", true, nil},
		{"short command", true, []byte{MNul, 'O', 'P', 'T'}},
		{"data frame", false, []byte("hello, world")},
		{"max size payload", false, make([]byte, maxFramePayload)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := encodeFrame(tt.isCommand, tt.payload)
			if err != nil {
				t.Fatalf("encodeFrame: %v", err)
			}
			conn := &fakeConn{r: bytes.NewReader(encoded)}
			frame, err := decodeFrame(conn, time.Second)
			if err != nil {
				t.Fatalf("decodeFrame: %v", err)
			}
			if frame.IsCommand != tt.isCommand {
				t.Errorf("IsCommand = %v, want %v", frame.IsCommand, tt.isCommand)
			}
			if !bytes.Equal(frame.Payload, tt.payload) && len(frame.Payload)+len(tt.payload) != 0 {
				t.Errorf("Payload = %v, want %v", frame.Payload, tt.payload)
			}
		})
	}
}

func TestEncodeFrameTooLarge(t *testing.T) {
	_, err := encodeFrame(false, make([]byte, maxFramePayload+1))
	if !Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeFrameTimeout(t *testing.T) {
	conn := &fakeConn{timeout: true}
	_, err := decodeFrame(conn, time.Second)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestDecodeFrameConnectionClosed(t *testing.T) {
	conn := &fakeConn{r: bytes.NewReader(nil)}
	_, err := decodeFrame(conn, time.Second)
	if !Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestReadFullShortRead(t *testing.T) {
	conn := &fakeConn{r: bytes.NewReader([]byte{0x00})}
	_, err := readFull(conn, 4, time.Second)
	if err == nil || err == io.EOF {
		t.Fatalf("expected wrapped network error, got %v", err)
	}
}
