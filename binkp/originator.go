package binkp

// runOriginator drives states S0-S3 of spec §4.2. S0's entry action (the
// TCP connect) has already happened by the time a Session exists, so this
// starts at S1.
func (s *Session) runOriginator() error {
	s.state = StateS1
	opts, err := s.collectHandshakeFrames()
	if err != nil {
		return err
	}

	s.state = StateS2
	if err := s.sendOwnOptions(opts); err != nil {
		return err
	}
	if err := s.sendCommand(MAdr, joinAddresses(s.config.LocalAddresses)); err != nil {
		return err
	}

	pwdArg, err := s.buildPasswordArg(opts)
	if err != nil {
		return err
	}
	if err := s.sendCommand(MPwd, pwdArg); err != nil {
		return err
	}

	s.state = StateS3
	return s.awaitAuthResult(opts)
}

// sendOwnOptions advertises this side's NR and PLZ capability tokens. The
// originator never issues a CRAM-MD5 challenge; it only answers one.
func (s *Session) sendOwnOptions(peer peerOptions) error {
	arg := buildOptionsArg(s.config.UseNR, s.config.PLZMode, "")
	if arg == "" {
		return nil
	}
	return s.sendCommand(MNul, arg)
}

// buildPasswordArg implements spec §4.2's authentication rule: if the
// answerer advertised a CRAM-MD5 challenge, respond in kind; otherwise
// send the shared secret in cleartext.
func (s *Session) buildPasswordArg(peer peerOptions) (string, error) {
	if peer.cramChallenge != "" {
		resp, err := cramResponse(s.config.SharedSecret, peer.cramChallenge)
		if err != nil {
			return "", err
		}
		return resp, nil
	}
	return s.config.SharedSecret, nil
}

// awaitAuthResult reads the answerer's verdict: M_OK carries secure /
// non-secure and moves to the transfer state; M_ERR is a fatal AuthFailed;
// M_BSY is the dedicated retryable Busy outcome (answerer-only, pre-auth).
func (s *Session) awaitAuthResult(peer peerOptions) error {
	cmd, err := s.readCommand()
	if err != nil {
		return err
	}
	switch cmd.ID {
	case MOk:
		s.secure = cmd.Args == "secure"
		s.RemoteAddresses = peer.addresses
		return s.finalizeNegotiatedOptions(peer)
	case MErr:
		return authFailure("answerer rejected authentication: %s", cmd.Args)
	case MBsy:
		return &Busy{Reason: cmd.Args}
	default:
		return NewCommandError(ErrProtocol, "unexpected command awaiting M_OK", int(cmd.ID))
	}
}

// finalizeNegotiatedOptions applies the PLZ negotiation table (spec §4.4)
// now that both sides' advertisements are known, and locks in use_crc/
// use_nr for the rest of the session (invariant 3: monotonic once agreed).
func (s *Session) finalizeNegotiatedOptions(peer peerOptions) error {
	s.useNR = s.config.UseNR && peer.advertisedNR
	s.useCRC = s.config.UseCRC
	switch negotiatePLZ(s.config.PLZMode, peer.advertisedPLZ) {
	case plzOn:
		s.usePLZ = true
		s.plz = newPLZCompressor(s.config.PLZLevel)
	case plzNegotiationFailed:
		return authFailure("PLZ required but peer did not advertise support")
	}
	return nil
}

func joinAddresses(addrs []string) string {
	out := ""
	for i, a := range addrs {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
