package binkp

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// plzOutcome is the result of negotiating PLZ between a local mode and
// whatever the remote advertised (spec §4.4's negotiation table).
type plzOutcome int

const (
	plzOff plzOutcome = iota
	plzOn
	plzNegotiationFailed
)

// negotiatePLZ implements the table in spec §4.4: `local` is our own
// configured PLZMode; remoteAdvertised reports whether the peer's OPT
// tokens included PLZ. Binkp's OPT token carries no "required" flag, so any
// PLZ advertisement is treated as "supported": with local PLZNone the
// result is plzOff even when the peer requires PLZ, and the failure for
// that pairing is raised only by the peer's own negotiation.
func negotiatePLZ(local PLZMode, remoteAdvertised bool) plzOutcome {
	switch local {
	case PLZNone:
		return plzOff
	case PLZSupported:
		if remoteAdvertised {
			return plzOn
		}
		return plzOff
	case PLZRequired:
		if remoteAdvertised {
			return plzOn
		}
		return plzNegotiationFailed
	default:
		return plzOff
	}
}

// zlibLevel maps a PLZLevel onto the corresponding compress/flate constant,
// per spec §4.4: fast -> best speed, normal/default -> default compression,
// best -> best compression.
func zlibLevel(level PLZLevel) int {
	switch level {
	case PLZLevelFast:
		return zlib.BestSpeed
	case PLZLevelBest:
		return zlib.BestCompression
	default:
		return zlib.DefaultCompression
	}
}

// plzCompressor compresses and decompresses data-frame payloads once PLZ
// has negotiated on. The sender only ships the compressed form when it is
// strictly smaller than the original, per spec §4.4; the receiver uses the
// try-inflate-always convention documented as Open Question (a).
type plzCompressor struct {
	level int
}

func newPLZCompressor(level PLZLevel) *plzCompressor {
	return &plzCompressor{level: zlibLevel(level)}
}

// compress returns the deflated form of payload, or (nil, false) if
// compression did not shrink it and the caller should send it raw.
func (c *plzCompressor) compress(payload []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, false
	}
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	if buf.Len() >= len(payload) {
		return nil, false
	}
	return buf.Bytes(), true
}

// decompress attempts to inflate payload as zlib. If the data is not a
// valid zlib stream, ok is false and the caller should treat payload as
// already-plain data — the try-inflate-always convention from Open
// Question (a).
func (c *plzCompressor) decompress(payload []byte) (out []byte, ok bool) {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, false
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false
	}
	return data, true
}
