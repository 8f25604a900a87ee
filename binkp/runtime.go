package binkp

import (
	"time"
)

// Run drives a Session from its initial state through the handshake and
// the transfer state to completion. It is the session runtime component of
// spec §2: frame dispatch, timeouts, statistics, error surfacing. Per spec
// §5 the session is a single-threaded cooperative state machine — Run does
// not spawn goroutines of its own; cancellation and the session timeout are
// both observed at the top of checkDeadlines, called between every frame.
func (s *Session) Run() error {
	s.sessionDeadline = s.startTime.Add(s.config.sessionTimeout())

	err := s.handshake()
	if err == nil {
		s.state = StateTransfer
		err = s.runTransfer()
	}

	switch {
	case IsCancelled(err):
		s.emitBestEffort(MErr, "cancelled")
		s.cleanupOnCancel()
	case IsTimeout(err):
		s.emitBestEffort(MErr, "timeout")
	case err != nil:
		if _, busy := err.(*Busy); !busy {
			s.emitBestEffort(MErr, errorArg(err))
		}
	}
	return s.finish(err)
}

// checkDeadlines is called at the top of every frame-loop iteration in the
// handshake and transfer states. It turns session-level cancellation and
// the overall session timeout into the same *Error the frame-level
// timeout already produces, so callers only ever branch on err.
func (s *Session) checkDeadlines() error {
	select {
	case <-s.ctx.Done():
		return NewError(ErrCancelled, "session cancelled")
	default:
	}
	if !s.sessionDeadline.IsZero() && time.Now().After(s.sessionDeadline) {
		return NewError(ErrTimeout, "session timeout exceeded")
	}
	return nil
}

// errorArg renders an error as a compact M_ERR argument.
func errorArg(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Kind.String()
	}
	return err.Error()
}

// handshake dispatches to the role-specific state machine in
// originator.go / answerer.go.
func (s *Session) handshake() error {
	if s.Role == RoleOriginator {
		return s.runOriginator()
	}
	return s.runAnswerer()
}

// finish applies the propagation policy of spec §7: every error is fatal,
// the socket is closed, in-progress inbound temp files are deleted, and
// outbound files are left untouched so the supervisor can requeue them.
func (s *Session) finish(err error) error {
	if _, isBusy := err.(*Busy); err == nil || isBusy {
		s.state = StateDone
	} else {
		s.state = StateError
	}
	if s.receiving != nil {
		s.receiving.Abort()
		s.receiving = nil
	}
	s.raw.Close()
	return err
}

// cleanupOnCancel implements spec §5's cancellation contract beyond the
// M_ERR-and-close every finish() call already does: delete the active
// inbound temp file and mark outbound files unsent (they simply stay in
// sendQueue / never got dequeued, so nothing further is required there).
func (s *Session) cleanupOnCancel() {
	if s.receiving != nil {
		s.receiving.Abort()
		s.receiving = nil
	}
	if s.sending != nil {
		s.sending.Close()
		s.sending = nil
	}
}

// emitBestEffort tries once to write an M_ERR frame without letting a
// failure here mask the original error being reported.
func (s *Session) emitBestEffort(id byte, args string) {
	_ = s.sendCommand(id, args)
}

// writeFrame encodes and writes one frame, bounding the write by the
// configured frame timeout.
func (s *Session) writeFrame(isCommand bool, payload []byte) error {
	encoded, err := encodeFrame(isCommand, payload)
	if err != nil {
		return err
	}
	if d, ok := s.raw.(interface{ SetWriteDeadline(time.Time) error }); ok {
		if err := d.SetWriteDeadline(time.Now().Add(s.config.frameTimeout())); err != nil {
			return NewError(ErrNetwork, "set write deadline: "+err.Error())
		}
	}
	if _, err := s.raw.Write(encoded); err != nil {
		return NewError(ErrNetwork, "write frame: "+err.Error())
	}
	return nil
}

// sendCommand marshals and writes one command frame.
func (s *Session) sendCommand(id byte, args string) error {
	payload := marshalCommandPayload(id, args)
	s.logger.Debug(s.ID, "-> %s", Command{ID: id, Args: args})
	return s.writeFrame(true, payload)
}

// sendData writes one data frame, running it through the PLZ compressor
// when negotiated on, per spec §4.4.
func (s *Session) sendData(payload []byte) error {
	if s.usePLZ && s.plz != nil {
		if compressed, ok := s.plz.compress(payload); ok {
			return s.writeFrame(false, compressed)
		}
	}
	return s.writeFrame(false, payload)
}

// readNextFrame reads one frame of either kind, bounding the read by the
// configured frame timeout. Session cancellation and the overall session
// timeout are checked first so a loop that only ever calls readNextFrame
// still observes both, per spec §5.
func (s *Session) readNextFrame() (Frame, error) {
	if err := s.checkDeadlines(); err != nil {
		return Frame{}, err
	}
	return decodeFrame(s.conn, s.config.frameTimeout())
}

// readCommand reads one frame and requires it to be a command frame.
func (s *Session) readCommand() (Command, error) {
	frame, err := s.readNextFrame()
	if err != nil {
		return Command{}, err
	}
	if !frame.IsCommand {
		return Command{}, NewError(ErrProtocol, "expected command frame, got data frame")
	}
	return parseCommandPayload(frame.Payload)
}

// readDataPayload decompresses an incoming data frame's payload when PLZ
// is negotiated on, using the try-inflate-always convention (Open
// Question (a)): every data frame is probed with zlib inflate, and
// whatever doesn't parse as a valid zlib stream is treated as already
// plain.
func (s *Session) readDataPayload(frame Frame) []byte {
	if s.usePLZ && s.plz != nil {
		if out, ok := s.plz.decompress(frame.Payload); ok {
			return out
		}
	}
	return frame.Payload
}
