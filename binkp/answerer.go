package binkp

// runAnswerer drives states R0-R3 of spec §4.2. R0's entry action (the TCP
// accept) has already happened by the time a Session exists.
func (s *Session) runAnswerer() error {
	if refuse, reason := s.callbacks.ShouldRefuseBusy(); refuse {
		if reason == "" {
			reason = "busy"
		}
		_ = s.sendCommand(MBsy, reason)
		return &Busy{Reason: reason}
	}

	challenge := ""
	if s.config.UseCRAMMD5 {
		c, err := generateCRAMChallenge()
		if err != nil {
			return err
		}
		challenge = c
	}

	if arg := buildOptionsArg(s.config.UseNR, s.config.PLZMode, challenge); arg != "" {
		if err := s.sendCommand(MNul, arg); err != nil {
			return err
		}
	}
	if err := s.sendCommand(MAdr, joinAddresses(s.config.LocalAddresses)); err != nil {
		return err
	}

	s.state = StateR1
	peer, err := s.collectHandshakeFrames()
	if err != nil {
		return err
	}
	s.RemoteAddresses = peer.addresses

	if err := s.finalizeNegotiatedOptions(peer); err != nil {
		return err
	}

	if s.config.SharedSecret != "" {
		s.state = StateR2
		return s.authenticateRemote(challenge)
	}

	s.state = StateR3
	return s.acceptWithoutAuth()
}

// authenticateRemote is R2: verify the originator's M_PWD against the
// configured shared secret (CRAM-MD5 if a challenge was issued, plaintext
// otherwise). Success emits M_OK secure; failure emits M_ERR and the
// session terminates with AuthFailed.
func (s *Session) authenticateRemote(challenge string) error {
	cmd, err := s.readCommand()
	if err != nil {
		return err
	}
	if cmd.ID != MPwd {
		return NewCommandError(ErrProtocol, "expected M_PWD", int(cmd.ID))
	}

	var ok bool
	if isCRAMResponse(cmd.Args) {
		ok = challenge != "" && verifyCRAMResponse(s.config.SharedSecret, challenge, cmd.Args)
	} else {
		ok = challenge == "" && verifyPlaintext(s.config.SharedSecret, cmd.Args)
	}
	if !ok {
		return authFailure("password mismatch")
	}
	s.secure = true
	return s.sendCommand(MOk, "secure")
}

// acceptWithoutAuth is R3: no shared secret is configured for this remote,
// so any M_PWD is accepted and the session proceeds non-secure.
func (s *Session) acceptWithoutAuth() error {
	cmd, err := s.readCommand()
	if err != nil {
		return err
	}
	if cmd.ID != MPwd {
		return NewCommandError(ErrProtocol, "expected M_PWD", int(cmd.ID))
	}
	s.secure = false
	return s.sendCommand(MOk, "non-secure")
}
