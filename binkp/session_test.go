package binkp

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type memScanner struct {
	files []FileDescriptor
}

func (m *memScanner) Scan(string) ([]FileDescriptor, error) { return m.files, nil }

type memSink struct {
	mu       sync.Mutex
	received map[string][]byte
}

func newMemSink() *memSink { return &memSink{received: make(map[string][]byte)} }

func (m *memSink) Offered(meta FileMeta) (InboundDecision, int64, error) {
	return Accept, 0, nil
}

func (m *memSink) Received(meta FileMeta, tempPath string, remoteAddresses []string) error {
	data, err := os.ReadFile(tempPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.received[meta.Name] = data
	m.mu.Unlock()
	return os.Remove(tempPath)
}

func (m *memSink) get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.received[name]
	return v, ok
}

func writeTempFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

// tcpPair returns both ends of a loopback TCP connection. Unlike net.Pipe,
// a TCP socket buffers writes, so two real sessions that each write a frame
// before reading one (an M_FILE crossing the answerer's filler M_EOB) do
// not block each other.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return client, <-accepted
}

func TestSessionPlaintextAuthAndFileTransfer(t *testing.T) {
	clientConn, serverConn := tcpPair(t)

	dir := t.TempDir()
	payload := []byte("this is a small test message packet")
	path := writeTempFile(t, dir, "msg.pkt", payload)

	originatorConfig := NetworkConfig{
		NetworkID:      "test",
		SharedSecret:   "secret",
		LocalAddresses: []string{"2:345/6"},
		FrameTimeout:   2 * time.Second,
		SessionTimeout: 5 * time.Second,
	}
	answererConfig := originatorConfig

	scanner := &memScanner{files: []FileDescriptor{
		{Name: "msg.pkt", LocalPath: path, Size: int64(len(payload)), Timestamp: 1700000000},
	}}
	sink := newMemSink()

	originator := NewSession(clientConn, RoleOriginator, originatorConfig, WithOutboundScanner(scanner))
	answerer := NewSession(serverConn, RoleAnswerer, answererConfig, WithInboundSink(sink))

	var wg sync.WaitGroup
	var originatorErr, answererErr error
	wg.Add(2)
	go func() { defer wg.Done(); originatorErr = originator.Run() }()
	go func() { defer wg.Done(); answererErr = answerer.Run() }()
	wg.Wait()

	if originatorErr != nil {
		t.Fatalf("originator.Run: %v", originatorErr)
	}
	if answererErr != nil {
		t.Fatalf("answerer.Run: %v", answererErr)
	}

	got, ok := sink.get("msg.pkt")
	if !ok {
		t.Fatal("expected msg.pkt to have been received")
	}
	if string(got) != string(payload) {
		t.Errorf("received payload = %q, want %q", got, payload)
	}

	if snap := originator.Stats(); snap.FilesSent != 1 {
		t.Errorf("originator FilesSent = %d, want 1", snap.FilesSent)
	}
	if snap := answerer.Stats(); snap.FilesReceived != 1 {
		t.Errorf("answerer FilesReceived = %d, want 1", snap.FilesReceived)
	}
}

func TestSessionPlaintextAuthFailure(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	config := NetworkConfig{
		NetworkID:      "test",
		SharedSecret:   "secret",
		LocalAddresses: []string{"2:345/6"},
		FrameTimeout:   2 * time.Second,
		SessionTimeout: 5 * time.Second,
	}
	wrongConfig := config
	wrongConfig.SharedSecret = "sekret"

	originator := NewSession(clientConn, RoleOriginator, wrongConfig)
	answerer := NewSession(serverConn, RoleAnswerer, config)

	var wg sync.WaitGroup
	var originatorErr, answererErr error
	wg.Add(2)
	go func() { defer wg.Done(); originatorErr = originator.Run() }()
	go func() { defer wg.Done(); answererErr = answerer.Run() }()
	wg.Wait()

	if !IsAuthFailed(originatorErr) {
		t.Errorf("expected originator AuthFailed, got %v", originatorErr)
	}
	if !IsAuthFailed(answererErr) {
		t.Errorf("expected answerer AuthFailed, got %v", answererErr)
	}
}

// TestSessionCancellation exercises cancellation observed between frames
// (spec §5): a peer keeps the answerer's R1 accumulation loop busy with a
// steady stream of harmless M_NUL frames so the answerer is reliably caught
// at a checkDeadlines call, rather than blocked inside a single long read,
// shortly after Cancel is invoked.
func TestSessionCancellation(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	config := NetworkConfig{
		NetworkID:      "test",
		LocalAddresses: []string{"2:345/6"},
		FrameTimeout:   2 * time.Second,
		SessionTimeout: 5 * time.Second,
	}

	answerer := NewSession(serverConn, RoleAnswerer, config)
	done := make(chan error, 1)
	go func() { done <- answerer.Run() }()

	stop := make(chan struct{})

	// Drain whatever the answerer writes (its own M_ADR) so its blocking
	// writes never stall waiting for a reader.
	go func() {
		buf := make([]byte, 4096)
		for {
			clientConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
			if _, err := clientConn.Read(buf); err != nil {
				select {
				case <-stop:
					return
				default:
					continue
				}
			}
		}
	}()

	go func() {
		nul := Command{ID: MNul, Args: "OPT"}
		payload := marshalCommandPayload(nul.ID, nul.Args)
		encoded, _ := encodeFrame(true, payload)
		for {
			select {
			case <-stop:
				return
			default:
			}
			clientConn.SetWriteDeadline(time.Now().Add(100 * time.Millisecond))
			if _, err := clientConn.Write(encoded); err != nil {
				return
			}
		}
	}()

	answerer.Cancel()

	select {
	case err := <-done:
		close(stop)
		if !IsCancelled(err) {
			t.Errorf("expected Cancelled error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		close(stop)
		t.Fatal("answerer.Run did not return after Cancel")
	}
}

func TestSessionCRAMMD5Success(t *testing.T) {
	clientConn, serverConn := tcpPair(t)

	config := NetworkConfig{
		NetworkID:      "test",
		SharedSecret:   "secret",
		UseCRAMMD5:     true,
		LocalAddresses: []string{"2:345/6"},
		FrameTimeout:   2 * time.Second,
		SessionTimeout: 5 * time.Second,
	}

	originator := NewSession(clientConn, RoleOriginator, config)
	answerer := NewSession(serverConn, RoleAnswerer, config)

	var wg sync.WaitGroup
	var originatorErr, answererErr error
	wg.Add(2)
	go func() { defer wg.Done(); originatorErr = originator.Run() }()
	go func() { defer wg.Done(); answererErr = answerer.Run() }()
	wg.Wait()

	if originatorErr != nil {
		t.Fatalf("originator.Run: %v", originatorErr)
	}
	if answererErr != nil {
		t.Fatalf("answerer.Run: %v", answererErr)
	}
	if !originator.secure {
		t.Error("originator.secure = false, want true after CRAM-MD5 auth")
	}
	if !answerer.secure {
		t.Error("answerer.secure = false, want true after CRAM-MD5 auth")
	}
}

func TestSessionPLZCompressedTransfer(t *testing.T) {
	clientConn, serverConn := tcpPair(t)

	dir := t.TempDir()
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 400)
	path := writeTempFile(t, dir, "bulk.pkt", payload)

	originatorConfig := NetworkConfig{
		NetworkID:      "test",
		LocalAddresses: []string{"2:345/6"},
		PLZMode:        PLZRequired,
		FrameTimeout:   2 * time.Second,
		SessionTimeout: 5 * time.Second,
	}
	answererConfig := originatorConfig

	scanner := &memScanner{files: []FileDescriptor{
		{Name: "bulk.pkt", LocalPath: path, Size: int64(len(payload)), Timestamp: 1700000000},
	}}
	sink := newMemSink()

	originator := NewSession(clientConn, RoleOriginator, originatorConfig, WithOutboundScanner(scanner))
	answerer := NewSession(serverConn, RoleAnswerer, answererConfig, WithInboundSink(sink))

	var wg sync.WaitGroup
	var originatorErr, answererErr error
	wg.Add(2)
	go func() { defer wg.Done(); originatorErr = originator.Run() }()
	go func() { defer wg.Done(); answererErr = answerer.Run() }()
	wg.Wait()

	if originatorErr != nil {
		t.Fatalf("originator.Run: %v", originatorErr)
	}
	if answererErr != nil {
		t.Fatalf("answerer.Run: %v", answererErr)
	}
	if !originator.usePLZ || !answerer.usePLZ {
		t.Fatalf("expected PLZ negotiated on both sides, originator=%v answerer=%v", originator.usePLZ, answerer.usePLZ)
	}

	got, ok := sink.get("bulk.pkt")
	if !ok {
		t.Fatal("expected bulk.pkt to have been received")
	}
	if string(got) != string(payload) {
		t.Errorf("received payload mismatch: got %d bytes, want %d bytes", len(got), len(payload))
	}
}

// fakeFileResponder hand-drives the answerer's half of the wire protocol
// directly, using the package's own frame/command codecs. It exists because
// a real answerer Session reactively fills its send queue with M_EOB the
// instant it has nothing else queued, which races the real M_GET/M_SKIP
// reply against the originator's next streamed chunk on a plain net.Pipe.
// Driving every frame by hand keeps strict alternation between the two
// sides so no write is ever attempted before its matching read is posted.
type fakeFileResponder struct {
	conn net.Conn
}

func (f fakeFileResponder) send(id byte, args string) error {
	encoded, err := encodeFrame(true, marshalCommandPayload(id, args))
	if err != nil {
		return err
	}
	_, err = f.conn.Write(encoded)
	return err
}

func (f fakeFileResponder) sendData(payload []byte) error {
	encoded, err := encodeFrame(false, payload)
	if err != nil {
		return err
	}
	_, err = f.conn.Write(encoded)
	return err
}

func (f fakeFileResponder) readCommand() (Command, error) {
	frame, err := decodeFrame(f.conn, 2*time.Second)
	if err != nil {
		return Command{}, err
	}
	return parseCommandPayload(frame.Payload)
}

func (f fakeFileResponder) readFrame() (Frame, error) {
	return decodeFrame(f.conn, 2*time.Second)
}

// runHandshake speaks the answerer's side of a no-auth handshake: address
// exchange first (the originator's S1 expects the answerer to speak first),
// then a bare M_OK once the originator's M_PWD arrives.
func (f fakeFileResponder) runHandshake() error {
	if err := f.send(MAdr, "2:999/1"); err != nil {
		return err
	}
	if _, err := f.readCommand(); err != nil { // originator's M_ADR
		return err
	}
	if _, err := f.readCommand(); err != nil { // originator's M_PWD
		return err
	}
	return f.send(MOk, "non-secure")
}

func TestSessionResumeViaMGet(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	dir := t.TempDir()
	payload := []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	path := writeTempFile(t, dir, "resume.pkt", payload)
	const resumeOffset = 10

	config := NetworkConfig{
		NetworkID:      "test",
		LocalAddresses: []string{"2:345/6"},
		FrameTimeout:   2 * time.Second,
		SessionTimeout: 5 * time.Second,
	}
	scanner := &memScanner{files: []FileDescriptor{
		{Name: "resume.pkt", LocalPath: path, Size: int64(len(payload)), Timestamp: 1700000000},
	}}
	originator := NewSession(clientConn, RoleOriginator, config, WithOutboundScanner(scanner))

	resultCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		peer := fakeFileResponder{conn: serverConn}
		if err := peer.runHandshake(); err != nil {
			errCh <- err
			return
		}
		offer, err := peer.readCommand() // M_FILE
		if err != nil {
			errCh <- err
			return
		}
		meta, err := ParseFileOffer(offer.Args)
		if err != nil {
			errCh <- err
			return
		}
		if err := peer.send(MGet, FormatFileOffer(FileMeta{
			Name: meta.Name, Size: meta.Size, Timestamp: meta.Timestamp, Offset: resumeOffset,
		})); err != nil {
			errCh <- err
			return
		}
		dataFrame, err := peer.readFrame() // resumed remainder
		if err != nil {
			errCh <- err
			return
		}
		resumed := append([]byte(nil), dataFrame.Payload...)
		if err := peer.send(MGot, FormatFileAck(meta)); err != nil {
			errCh <- err
			return
		}
		if _, err := peer.readCommand(); err != nil { // originator's M_EOB
			errCh <- err
			return
		}
		if err := peer.send(MEob, ""); err != nil {
			errCh <- err
			return
		}
		resultCh <- resumed
	}()

	if err := originator.Run(); err != nil {
		t.Fatalf("originator.Run: %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("fake peer: %v", err)
	case resumed := <-resultCh:
		want := payload[resumeOffset:]
		if string(resumed) != string(want) {
			t.Errorf("resumed chunk = %q, want %q", resumed, want)
		}
		if snap := originator.Stats(); snap.FilesSent != 1 {
			t.Errorf("originator FilesSent = %d, want 1", snap.FilesSent)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("fake peer did not complete")
	}
}

func TestSessionSkipViaMSkip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	dir := t.TempDir()
	payload := []byte("file nobody wants to receive twice")
	path := writeTempFile(t, dir, "skip.pkt", payload)

	config := NetworkConfig{
		NetworkID:      "test",
		LocalAddresses: []string{"2:345/6"},
		FrameTimeout:   2 * time.Second,
		SessionTimeout: 5 * time.Second,
	}
	scanner := &memScanner{files: []FileDescriptor{
		{Name: "skip.pkt", LocalPath: path, Size: int64(len(payload)), Timestamp: 1700000000},
	}}
	originator := NewSession(clientConn, RoleOriginator, config, WithOutboundScanner(scanner))

	doneCh := make(chan struct{}, 1)
	errCh := make(chan error, 1)
	go func() {
		peer := fakeFileResponder{conn: serverConn}
		if err := peer.runHandshake(); err != nil {
			errCh <- err
			return
		}
		offer, err := peer.readCommand() // M_FILE
		if err != nil {
			errCh <- err
			return
		}
		meta, err := ParseFileOffer(offer.Args)
		if err != nil {
			errCh <- err
			return
		}
		if err := peer.send(MSkip, FormatFileAck(meta)); err != nil {
			errCh <- err
			return
		}
		if _, err := peer.readCommand(); err != nil { // originator's M_EOB
			errCh <- err
			return
		}
		if err := peer.send(MEob, ""); err != nil {
			errCh <- err
			return
		}
		doneCh <- struct{}{}
	}()

	if err := originator.Run(); err != nil {
		t.Fatalf("originator.Run: %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("fake peer: %v", err)
	case <-doneCh:
		snap := originator.Stats()
		if snap.FilesSkipped != 1 {
			t.Errorf("originator FilesSkipped = %d, want 1", snap.FilesSkipped)
		}
		if snap.FilesSent != 0 {
			t.Errorf("originator FilesSent = %d, want 0", snap.FilesSent)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("fake peer did not complete")
	}
}
