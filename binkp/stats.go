package binkp

import (
	"sync"
	"time"
)

// Stats accumulates the running byte/file counters spec §3 requires a
// Session to hold, and exposes a read-only snapshot once the session ends.
type Stats struct {
	mu sync.Mutex

	startTime time.Time

	bytesSent     int64
	bytesReceived int64
	filesSent     int
	filesReceived int
	filesSkipped  int
}

// NewStats starts a Stats clock at the current time.
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

// AddSent records bytes written to an outbound file transfer.
func (s *Stats) AddSent(n int64) {
	s.mu.Lock()
	s.bytesSent += n
	s.mu.Unlock()
}

// AddReceived records bytes written to an inbound file transfer.
func (s *Stats) AddReceived(n int64) {
	s.mu.Lock()
	s.bytesReceived += n
	s.mu.Unlock()
}

// FileSent marks the completion of one outbound file.
func (s *Stats) FileSent() {
	s.mu.Lock()
	s.filesSent++
	s.mu.Unlock()
}

// FileReceived marks the completion of one inbound file.
func (s *Stats) FileReceived() {
	s.mu.Lock()
	s.filesReceived++
	s.mu.Unlock()
}

// FileSkipped marks one file (either direction) as skipped rather than
// transferred.
func (s *Stats) FileSkipped() {
	s.mu.Lock()
	s.filesSkipped++
	s.mu.Unlock()
}

// Snapshot is a point-in-time, read-only copy of the session's counters.
type Snapshot struct {
	BytesSent     int64
	BytesReceived int64
	FilesSent     int
	FilesReceived int
	FilesSkipped  int
	Elapsed       time.Duration
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		BytesSent:     s.bytesSent,
		BytesReceived: s.bytesReceived,
		FilesSent:     s.filesSent,
		FilesReceived: s.filesReceived,
		FilesSkipped:  s.filesSkipped,
		Elapsed:       time.Since(s.startTime),
	}
}
