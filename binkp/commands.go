package binkp

import (
	"fmt"
	"strconv"
	"strings"
)

// Command identifiers, per spec FTS-1026 §3. The numeric value is the first
// payload byte of a command frame.
const (
	MNul  = 0 // informational option: SYS/ZYZ/LOC/NDL/TIME/VER/OPT
	MAdr  = 1 // sender's list of addresses
	MPwd  = 2 // plaintext password or CRAM-<hash>-<digest>
	MFile = 3 // file offer: <name> <size> <timestamp> <offset>
	MOk   = 4 // session authenticated: secure|non-secure
	MEob  = 5 // end of batch
	MGot  = 6 // acknowledgement of a received file
	MErr  = 7 // fatal protocol error
	MBsy  = 8 // transient refusal (answerer only, pre-auth)
	MGet  = 9 // request a file be re-sent from an offset
	MSkip = 10 // reject this offer
)

// maxCommand is the highest recognized command identifier.
const maxCommand = MSkip

var commandNames = [...]string{
	MNul:  "M_NUL",
	MAdr:  "M_ADR",
	MPwd:  "M_PWD",
	MFile: "M_FILE",
	MOk:   "M_OK",
	MEob:  "M_EOB",
	MGot:  "M_GOT",
	MErr:  "M_ERR",
	MBsy:  "M_BSY",
	MGet:  "M_GET",
	MSkip: "M_SKIP",
}

// CommandName returns a human-readable name for a command identifier.
// Returns "UNKNOWN" for unrecognized identifiers.
func CommandName(id int) string {
	if id < 0 || id > maxCommand {
		return "UNKNOWN"
	}
	return commandNames[id]
}

// validCommand reports whether id is one of the eleven recognized commands.
func validCommand(id byte) bool {
	return int(id) <= maxCommand
}

// Command is a decoded command frame: an identifier plus its space-separated
// textual argument (trimmed of trailing whitespace and any trailing NUL).
type Command struct {
	ID   byte
	Args string
}

// String renders the command the way it appears on the wire (sans framing).
func (c Command) String() string {
	if c.Args == "" {
		return CommandName(int(c.ID))
	}
	return CommandName(int(c.ID)) + " " + c.Args
}

// parseCommandPayload splits a raw command frame payload into (id, args).
func parseCommandPayload(payload []byte) (Command, error) {
	if len(payload) == 0 {
		return Command{}, NewError(ErrInvalidFrame, "empty command frame")
	}
	id := payload[0]
	if !validCommand(id) {
		return Command{}, NewCommandError(ErrInvalidCommand, "unrecognized command identifier", int(id))
	}
	args := payload[1:]
	// Strip a single trailing NUL, then trailing whitespace, per FTS-1026.
	if n := len(args); n > 0 && args[n-1] == 0 {
		args = args[:n-1]
	}
	text := strings.TrimRight(string(args), " \t\r\n")
	return Command{ID: id, Args: text}, nil
}

// marshalCommandPayload builds the raw payload for a command frame.
func marshalCommandPayload(id byte, args string) []byte {
	buf := make([]byte, 0, 1+len(args))
	buf = append(buf, id)
	buf = append(buf, args...)
	return buf
}

// FileMeta is the parsed argument of M_FILE / M_GET / M_GOT / M_SKIP:
// "<name> <size> <timestamp> <offset>" (offset absent for M_GOT/M_SKIP).
type FileMeta struct {
	Name      string
	Size      int64
	Timestamp int64
	Offset    int64
}

// FormatFileOffer renders the M_FILE / M_GET four-field argument form.
func FormatFileOffer(m FileMeta) string {
	return fmt.Sprintf("%s %d %d %d", m.Name, m.Size, m.Timestamp, m.Offset)
}

// FormatFileAck renders the M_GOT / M_SKIP three-field argument form.
func FormatFileAck(m FileMeta) string {
	return fmt.Sprintf("%s %d %d", m.Name, m.Size, m.Timestamp)
}

// ParseFileOffer parses an M_FILE / M_GET argument.
func ParseFileOffer(args string) (FileMeta, error) {
	fields := strings.Fields(args)
	if len(fields) != 4 {
		return FileMeta{}, NewError(ErrProtocol, "malformed file offer argument: "+args)
	}
	size, err1 := strconv.ParseInt(fields[1], 10, 64)
	ts, err2 := strconv.ParseInt(fields[2], 10, 64)
	offset, err3 := strconv.ParseInt(fields[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return FileMeta{}, NewError(ErrProtocol, "malformed file offer numerics: "+args)
	}
	return FileMeta{Name: fields[0], Size: size, Timestamp: ts, Offset: offset}, nil
}

// ParseFileAck parses an M_GOT / M_SKIP argument.
func ParseFileAck(args string) (FileMeta, error) {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return FileMeta{}, NewError(ErrProtocol, "malformed file ack argument: "+args)
	}
	size, err1 := strconv.ParseInt(fields[1], 10, 64)
	ts, err2 := strconv.ParseInt(fields[2], 10, 64)
	if err1 != nil || err2 != nil {
		return FileMeta{}, NewError(ErrProtocol, "malformed file ack numerics: "+args)
	}
	return FileMeta{Name: fields[0], Size: size, Timestamp: ts}, nil
}
