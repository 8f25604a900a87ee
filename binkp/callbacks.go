package binkp

import "time"

// FileDescriptor identifies one file available to offer on an outbound
// call: its logical name, its path on local disk, its size, and the
// timestamp to advertise in M_FILE.
type FileDescriptor struct {
	Name      string
	LocalPath string
	Size      int64
	Timestamp int64
}

// OutboundScanner is the external collaborator that knows which files are
// queued for a given network. The core calls it exactly once per session,
// at the start of the transfer state, and drains the returned sequence as
// its send queue. BSO scanning, path conventions, and queue bookkeeping are
// the collaborator's problem.
type OutboundScanner interface {
	Scan(networkID string) ([]FileDescriptor, error)
}

// InboundDecision is returned by InboundSink.Accept to tell the receive
// loop how to proceed with an offered file.
type InboundDecision int

const (
	// Accept stores the file under the offered name at offset 0.
	Accept InboundDecision = iota
	// Duplicate causes the receive loop to emit M_SKIP without buffering.
	Duplicate
	// ResumeFrom causes the receive loop to emit M_GET at ResumeOffset and
	// then accept the remainder.
	ResumeFrom
)

// InboundSink is the external collaborator responsible for turning a
// successfully-received temp file into inbox mail. It is also consulted
// before a file is accepted, so it can reject duplicates or direct resume.
type InboundSink interface {
	// Offered is called when M_FILE arrives, before any data is buffered.
	// ResumeOffset is only meaningful when the returned decision is
	// ResumeFrom.
	Offered(meta FileMeta) (decision InboundDecision, resumeOffset int64, err error)

	// Received is called once a file has been fully written to tempPath
	// and its CRC (if any) has verified. The sink is responsible for
	// moving tempPath into the inbox; the core does not touch tempPath
	// again after this call returns.
	Received(meta FileMeta, tempPath string, remoteAddresses []string) error
}

// PLZMode is the local compression posture, set from configuration.
type PLZMode int

const (
	PLZNone PLZMode = iota
	PLZSupported
	PLZRequired
)

// PLZLevel maps onto zlib's compression-level knob.
type PLZLevel int

const (
	PLZLevelFast PLZLevel = iota
	PLZLevelNormal
	PLZLevelBest
)

// NetworkConfig is the read-only record the core consumes per spec §6: it
// never parses a config file itself, it only reads these fields.
type NetworkConfig struct {
	// NetworkID identifies which outbound queue to scan for this session,
	// per spec §6 ("given a network identifier").
	NetworkID string

	RemoteHost string
	RemotePort int

	SharedSecret string
	UseCRAMMD5   bool
	UseCRC       bool
	UseNR        bool

	PLZMode  PLZMode
	PLZLevel PLZLevel

	LocalAddresses []string

	FrameTimeout   time.Duration
	SessionTimeout time.Duration
}

// DefaultFrameTimeout and DefaultSessionTimeout are the values spec §5
// names when a NetworkConfig leaves its timeout fields at zero.
const (
	DefaultFrameTimeout   = 10 * time.Second
	DefaultSessionTimeout = 10 * time.Minute
)

func (c NetworkConfig) frameTimeout() time.Duration {
	if c.FrameTimeout > 0 {
		return c.FrameTimeout
	}
	return DefaultFrameTimeout
}

func (c NetworkConfig) sessionTimeout() time.Duration {
	if c.SessionTimeout > 0 {
		return c.SessionTimeout
	}
	return DefaultSessionTimeout
}

// Event is a typed protocol-level notification, independent of the Logger
// seam, delivered through Callbacks.OnEvent. The session runtime in this
// package does not construct any Event, so OnEvent is never called by it.
type Event struct {
	Type      EventType
	SessionID string
	Message   string
	Command   int
	Time      time.Time
}

// EventType categorizes Events the runtime emits.
type EventType int

const (
	EventFrameSent EventType = iota
	EventFrameReceived
	EventFileStart
	EventFileComplete
	EventFileSkipped
	EventError
	EventTimeout
	EventCancelled
)

// Callbacks holds optional hooks into the session lifecycle. Every field is
// optional; nil callbacks fall back to a no-op default via mergeCallbacks.
type Callbacks struct {
	// OnFileStart fires when a file transfer (either direction) begins.
	OnFileStart func(meta FileMeta, outbound bool)

	// OnFileComplete fires when a file transfer finishes successfully.
	OnFileComplete func(meta FileMeta, outbound bool, duration time.Duration)

	// OnFileSkipped fires when a file is skipped or refused.
	OnFileSkipped func(meta FileMeta, outbound bool, reason string)

	// OnEvent fires for every Event the runtime raises.
	OnEvent func(Event)

	// ShouldRefuseBusy is consulted by the answerer at R0, before any
	// handshake frame is sent. Returning refuse=true makes runAnswerer send
	// M_BSY with reason and terminate the session immediately — this is the
	// hook a supervisor enforcing a concurrent-session cap uses, since the
	// core itself has no notion of how many other sessions are running.
	ShouldRefuseBusy func() (refuse bool, reason string)
}

func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnFileStart:      func(FileMeta, bool) {},
		OnFileComplete:   func(FileMeta, bool, time.Duration) {},
		OnFileSkipped:    func(FileMeta, bool, string) {},
		OnEvent:          func(Event) {},
		ShouldRefuseBusy: func() (bool, string) { return false, "" },
	}
}

func mergeCallbacks(user *Callbacks) *Callbacks {
	if user == nil {
		return defaultCallbacks()
	}
	def := defaultCallbacks()
	result := &Callbacks{}
	if user.OnFileStart != nil {
		result.OnFileStart = user.OnFileStart
	} else {
		result.OnFileStart = def.OnFileStart
	}
	if user.OnFileComplete != nil {
		result.OnFileComplete = user.OnFileComplete
	} else {
		result.OnFileComplete = def.OnFileComplete
	}
	if user.OnFileSkipped != nil {
		result.OnFileSkipped = user.OnFileSkipped
	} else {
		result.OnFileSkipped = def.OnFileSkipped
	}
	if user.OnEvent != nil {
		result.OnEvent = user.OnEvent
	} else {
		result.OnEvent = def.OnEvent
	}
	if user.ShouldRefuseBusy != nil {
		result.ShouldRefuseBusy = user.ShouldRefuseBusy
	} else {
		result.ShouldRefuseBusy = def.ShouldRefuseBusy
	}
	return result
}
