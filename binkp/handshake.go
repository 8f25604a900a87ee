package binkp

import "strings"

// buildOptionsArg renders the space-separated OPT token list this side
// advertises, per spec §4.2: NR and PLZ are symmetric capability tokens;
// the CRAM-MD5 challenge token is answerer-only and passed explicitly.
func buildOptionsArg(useNR bool, plzMode PLZMode, cramChallenge string) string {
	tokens := []string{"OPT"}
	if useNR {
		tokens = append(tokens, "NR")
	}
	if plzMode != PLZNone {
		tokens = append(tokens, "PLZ")
	}
	if cramChallenge != "" {
		tokens = append(tokens, cramChallengeToken(cramChallenge))
	}
	if len(tokens) == 1 {
		return ""
	}
	return strings.Join(tokens, " ")
}

// peerOptions is what either side learns about the other during the
// pre-auth accumulation loop (spec's S1 / R1 rows): the OPT tokens seen
// across any number of M_NUL frames, plus the M_ADR address list that
// ends the loop.
type peerOptions struct {
	advertisedPLZ   bool
	advertisedNR    bool
	cramChallenge   string
	addresses       []string
}

// collectHandshakeFrames reads M_NUL/M_ADR frames until M_ADR arrives,
// accumulating OPT tokens along the way. It is shared by the originator's
// S1 and the answerer's R1, which both do exactly this per spec §4.2.
func (s *Session) collectHandshakeFrames() (peerOptions, error) {
	var opts peerOptions
	for {
		cmd, err := s.readCommand()
		if err != nil {
			return opts, err
		}
		switch cmd.ID {
		case MNul:
			parseOptTokens(cmd.Args, &opts)
		case MAdr:
			opts.addresses = strings.Fields(cmd.Args)
			return opts, nil
		case MErr:
			return opts, NewError(ErrProtocol, "peer sent M_ERR during handshake: "+cmd.Args)
		case MBsy:
			return opts, &Busy{Reason: cmd.Args}
		default:
			return opts, NewCommandError(ErrProtocol, "unexpected command during handshake", int(cmd.ID))
		}
	}
}

// parseOptTokens scans one M_NUL argument for the OPT token list and folds
// any recognized tokens into opts. Non-OPT M_NUL informational lines
// (SYS/ZYZ/LOC/NDL/TIME/VER) are accepted and ignored.
func parseOptTokens(args string, opts *peerOptions) {
	fields := strings.Fields(args)
	if len(fields) == 0 || fields[0] != "OPT" {
		return
	}
	for _, tok := range fields[1:] {
		switch tok {
		case "NR":
			opts.advertisedNR = true
		case "PLZ":
			opts.advertisedPLZ = true
		}
	}
	if challenge, found := extractCRAMChallenge(args); found {
		opts.cramChallenge = challenge
	}
}
