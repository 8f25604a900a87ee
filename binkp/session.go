package binkp

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
)

// Role distinguishes which side of the handshake a Session plays.
type Role int

const (
	RoleOriginator Role = iota
	RoleAnswerer
)

// State is the session's position in the state machine of spec §4.2, plus
// the shared transfer and terminal states.
type State int

const (
	StateS0 State = iota
	StateS1
	StateS2
	StateS3
	StateR0
	StateR1
	StateR2
	StateR3
	StateTransfer
	StateDone
	StateError
)

// Session holds everything spec §3 names: the connection, role, negotiated
// options, authenticated remote addresses, in-flight transfers, start
// time, and running byte counters (via Stats).
type Session struct {
	ID   string
	Role Role

	conn ReaderWithTimeout
	raw  net.Conn

	config    NetworkConfig
	callbacks *Callbacks
	logger    Logger
	ctx       context.Context
	cancel    context.CancelFunc

	state State

	// Negotiated options, fixed once the handshake completes (spec §4.2
	// invariant 3: monotonic once agreed).
	useCRC  bool
	useNR   bool
	usePLZ  bool
	secure  bool
	plz     *plzCompressor

	RemoteAddresses []string

	outbound OutboundScanner
	inbound  InboundSink

	sendQueue []FileDescriptor
	sending   *FileTransfer
	receiving *FileTransfer
	localEOB  bool
	remoteEOB bool

	stats *Stats

	startTime       time.Time
	sessionDeadline time.Time
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithCallbacks installs lifecycle callbacks, merging with no-op defaults.
func WithCallbacks(cb *Callbacks) Option {
	return func(s *Session) { s.callbacks = mergeCallbacks(cb) }
}

// WithLogger installs a Logger; the zero value is NoopLogger.
func WithLogger(l Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithContext installs a parent context whose cancellation is wired to the
// session's own cancellation input (spec §5).
func WithContext(ctx context.Context) Option {
	return func(s *Session) { s.ctx = ctx }
}

// WithOutboundScanner installs the collaborator that supplies the send
// queue at the start of the transfer state (spec §6).
func WithOutboundScanner(o OutboundScanner) Option {
	return func(s *Session) { s.outbound = o }
}

// WithInboundSink installs the collaborator that accepts finished inbound
// files (spec §6).
func WithInboundSink(i InboundSink) Option {
	return func(s *Session) { s.inbound = i }
}

// NewSession wraps an established TCP connection (either side of a dial or
// accept) into a Session ready to run its role's handshake.
func NewSession(conn net.Conn, role Role, config NetworkConfig, opts ...Option) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Role:      role,
		conn:      conn,
		raw:       conn,
		config:    config,
		callbacks: defaultCallbacks(),
		logger:    NoopLogger{},
		ctx:       context.Background(),
		state:     initialState(role),
		stats:     NewStats(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(s.ctx)
	return s
}

func initialState(role Role) State {
	if role == RoleOriginator {
		return StateS0
	}
	return StateR0
}

// Cancel implements the cancellation input of spec §5: the runtime loop
// observes ctx.Done() between frames and unwinds via the cancellation path
// in runtime.go.
func (s *Session) Cancel() { s.cancel() }

// Stats returns a read-only snapshot of the session's counters.
func (s *Session) Stats() Snapshot { return s.stats.Snapshot() }

// State returns the session's current state-machine position.
func (s *Session) State() State { return s.state }
