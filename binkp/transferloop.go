package binkp

import "strings"

// maxDataChunk bounds each data frame's payload to the frame codec's limit.
const maxDataChunk = maxFramePayload

// runTransfer drives the T0 file-transfer state of spec §4.3 until both
// directions have reached M_EOB with no outstanding files.
func (s *Session) runTransfer() error {
	if s.outbound != nil {
		files, err := s.outbound.Scan(s.config.NetworkID)
		if err != nil {
			return NewError(ErrLocalIO, "scan outbound queue: "+err.Error())
		}
		s.sendQueue = files
	}

	for {
		if err := s.emitPending(); err != nil {
			return err
		}
		if s.localEOB && s.remoteEOB && s.sending == nil && s.receiving == nil {
			return nil
		}
		frame, err := s.readNextFrame()
		if err != nil {
			return err
		}
		if err := s.handleFrame(frame); err != nil {
			return err
		}
	}
}

// emitPending performs at most one outbound action per loop iteration:
// stream the next chunk of the file currently being sent, or — once there
// is nothing in flight — dequeue the next file or emit M_EOB.
func (s *Session) emitPending() error {
	if s.sending != nil {
		return s.streamNextChunk()
	}
	if s.localEOB {
		return nil
	}
	if len(s.sendQueue) == 0 {
		s.localEOB = true
		return s.sendCommand(MEob, "")
	}
	return s.startNextOutboundFile()
}

// startNextOutboundFile dequeues one file and emits its M_FILE offer,
// per spec §4.3 send-loop steps 1-2.
func (s *Session) startNextOutboundFile() error {
	desc := s.sendQueue[0]
	s.sendQueue = s.sendQueue[1:]

	ft, err := newOutboundTransfer(desc, s.useCRC, 0)
	if err != nil {
		return err
	}
	s.sending = ft
	s.callbacks.OnFileStart(ft.Meta, true)
	return s.sendCommand(MFile, FormatFileOffer(ft.Meta))
}

// streamNextChunk sends one data frame from the active outbound transfer,
// advancing its offset (spec §4.3 send-loop step 5). On reaching EOF it
// appends the CRC command when negotiated, then clears the active send so
// the next loop iteration can dequeue the following file.
func (s *Session) streamNextChunk() error {
	if s.sending.AtEOF() {
		return s.finishOutboundFile()
	}
	chunk, err := s.sending.ReadChunk(maxDataChunk)
	if err != nil {
		return NewError(ErrLocalIO, "read outbound chunk: "+err.Error())
	}
	if len(chunk) == 0 {
		return s.finishOutboundFile()
	}
	if err := s.sendData(chunk); err != nil {
		return err
	}
	s.stats.AddSent(int64(len(chunk)))
	if s.sending.AtEOF() {
		return s.finishOutboundFile()
	}
	return nil
}

// finishOutboundFile closes out a fully-streamed send: appends the CRC
// command when use_crc is negotiated, then clears the active slot. The
// corresponding M_GOT is handled asynchronously in handleFrame.
func (s *Session) finishOutboundFile() error {
	ft := s.sending
	ft.Close()
	s.sending = nil
	if s.useCRC {
		if err := s.sendCommand(MNul, "CRC "+ft.CRCHex()); err != nil {
			return err
		}
	}
	return nil
}

// handleFrame dispatches one incoming frame against the transfer state.
func (s *Session) handleFrame(frame Frame) error {
	if !frame.IsCommand {
		return s.handleDataFrame(frame)
	}
	cmd, err := parseCommandPayload(frame.Payload)
	if err != nil {
		return err
	}
	switch cmd.ID {
	case MFile:
		return s.handleFileOffer(cmd.Args)
	case MGet:
		return s.handleGet(cmd.Args)
	case MSkip:
		return s.handleSkip(cmd.Args)
	case MGot:
		return s.handleGot(cmd.Args)
	case MEob:
		s.remoteEOB = true
		return nil
	case MNul:
		return s.handleNul(cmd.Args)
	case MErr:
		return NewError(ErrProtocol, "peer sent M_ERR: "+cmd.Args)
	default:
		return NewCommandError(ErrProtocol, "unexpected command in transfer state", int(cmd.ID))
	}
}

// handleDataFrame implements spec §4.3 receive-loop step 2: every data
// frame while an inbound is active is decompressed, appended, and
// advances offset; a data frame with no active inbound is a protocol
// error (spec §4.3 "Tie-breaks").
func (s *Session) handleDataFrame(frame Frame) error {
	if s.receiving == nil {
		return NewError(ErrProtocol, "data frame with no active inbound")
	}
	payload := s.readDataPayload(frame)
	if err := s.receiving.WriteChunk(payload); err != nil {
		return err
	}
	s.stats.AddReceived(int64(len(payload)))
	if s.receiving.Complete() && !s.useCRC {
		return s.finalizeInbound()
	}
	return nil
}

// handleFileOffer implements receive-loop step 1: an inbound with no
// active transfer consults the InboundSink to accept, skip, or redirect
// to a different offset. An M_FILE while an inbound is already active is
// a protocol error — interleaved offers are not allowed.
func (s *Session) handleFileOffer(args string) error {
	if s.receiving != nil {
		return NewError(ErrProtocol, "M_FILE while an inbound transfer is already active")
	}
	meta, err := ParseFileOffer(args)
	if err != nil {
		return err
	}

	decision, resumeOffset := Accept, int64(0)
	if s.inbound != nil {
		decision, resumeOffset, err = s.inbound.Offered(meta)
		if err != nil {
			return NewError(ErrLocalIO, "inbound sink rejected offer: "+err.Error())
		}
	}

	switch decision {
	case Duplicate:
		s.stats.FileSkipped()
		s.callbacks.OnFileSkipped(meta, false, "duplicate")
		return s.sendCommand(MSkip, FormatFileAck(meta))
	case ResumeFrom:
		ft, err := newInboundTransfer(meta, s.tempPathFor(meta), s.useCRC, resumeOffset)
		if err != nil {
			return err
		}
		s.receiving = ft
		s.callbacks.OnFileStart(meta, false)
		return s.sendCommand(MGet, FormatFileOffer(FileMeta{
			Name: meta.Name, Size: meta.Size, Timestamp: meta.Timestamp, Offset: resumeOffset,
		}))
	default: // Accept
		ft, err := newInboundTransfer(meta, s.tempPathFor(meta), s.useCRC, 0)
		if err != nil {
			return err
		}
		s.receiving = ft
		s.callbacks.OnFileStart(meta, false)
		if meta.Size == 0 {
			return s.finalizeInbound()
		}
		return nil
	}
}

// handleGet implements send-loop step 4: the peer wants the file currently
// being sent re-sent from a given offset. An M_GET naming any other file,
// or arriving once that file has been fully streamed, is a protocol error.
func (s *Session) handleGet(args string) error {
	meta, err := ParseFileOffer(args)
	if err != nil {
		return err
	}
	if s.sending == nil || s.sending.Meta.Name != meta.Name {
		return NewError(ErrProtocol, "M_GET for a file that is not being sent: "+meta.Name)
	}
	return s.sending.SeekTo(meta.Offset)
}

// handleSkip implements send-loop step 3: the peer refuses the currently
// offered file.
func (s *Session) handleSkip(args string) error {
	meta, err := ParseFileAck(args)
	if err != nil {
		return err
	}
	if s.sending == nil || s.sending.Meta.Name != meta.Name {
		return NewError(ErrProtocol, "M_SKIP for a file that is not being sent: "+meta.Name)
	}
	s.sending.Close()
	s.callbacks.OnFileSkipped(s.sending.Meta, true, "refused by peer")
	s.stats.FileSkipped()
	s.sending = nil
	return nil
}

// handleGot acknowledges a completed outbound file. It may arrive well
// after finishOutboundFile cleared s.sending, per spec §5's ordering
// guarantee that M_GOT is unordered relative to the other direction.
func (s *Session) handleGot(args string) error {
	meta, err := ParseFileAck(args)
	if err != nil {
		return err
	}
	s.stats.FileSent()
	s.callbacks.OnFileComplete(meta, true, 0)
	return nil
}

// handleNul processes informational M_NUL frames received during the
// transfer state; the only one the core interprets is the CRC trailer
// spec §4.3 defines.
func (s *Session) handleNul(args string) error {
	const crcPrefix = "CRC "
	if !strings.HasPrefix(args, crcPrefix) {
		return nil
	}
	wantHex := strings.TrimPrefix(args, crcPrefix)
	if s.receiving == nil || !s.receiving.Complete() {
		return nil
	}
	if s.receiving.CRCHex() != wantHex {
		s.receiving.Abort()
		s.callbacks.OnFileSkipped(s.receiving.Meta, false, "CRC mismatch")
		s.stats.FileSkipped()
		s.receiving = nil
		return nil
	}
	return s.finalizeInbound()
}

// finalizeInbound implements receive-loop step 3: close the temp file,
// hand it to the InboundSink, emit M_GOT, and clear the active inbound.
func (s *Session) finalizeInbound() error {
	ft := s.receiving
	ft.Close()
	if s.inbound != nil {
		if err := s.inbound.Received(ft.Meta, ft.LocalPath, s.RemoteAddresses); err != nil {
			return NewError(ErrLocalIO, "inbound sink failed to accept file: "+err.Error())
		}
	}
	s.stats.FileReceived()
	s.callbacks.OnFileComplete(ft.Meta, false, 0)
	s.receiving = nil
	return s.sendCommand(MGot, FormatFileAck(ft.Meta))
}

// tempPathFor derives a scratch path for an inbound file in motion. Real
// deployments route this through configuration; the core only needs a
// path that is unique per session and per file name.
func (s *Session) tempPathFor(meta FileMeta) string {
	return ".binkp-tmp-" + s.ID + "-" + sanitizeTempName(meta.Name)
}

func sanitizeTempName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '/' || r == '\\' || r == 0 {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
