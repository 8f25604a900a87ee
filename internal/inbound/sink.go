// Package inbound provides a minimal binkp.InboundSink that lands received
// files in a flat inbox directory, skipping anything already present under
// the same name and size.
package inbound

import (
	"os"
	"path/filepath"

	"github.com/ftnx/go-binkp/binkp"
)

// DirSink writes completed transfers into BaseDir/<networkID>/.
type DirSink struct {
	BaseDir   string
	NetworkID string
}

// New returns a DirSink rooted at baseDir for the given network.
func New(baseDir, networkID string) *DirSink {
	return &DirSink{BaseDir: baseDir, NetworkID: networkID}
}

func (d *DirSink) finalPath(name string) string {
	return filepath.Join(d.BaseDir, d.NetworkID, name)
}

// Offered implements binkp.InboundSink. A file already present with the
// same name and size is treated as a duplicate; anything else is accepted
// from the start, since this sink keeps no partial-transfer bookkeeping.
func (d *DirSink) Offered(meta binkp.FileMeta) (binkp.InboundDecision, int64, error) {
	info, err := os.Stat(d.finalPath(meta.Name))
	if err == nil && info.Size() == meta.Size {
		return binkp.Duplicate, 0, nil
	}
	return binkp.Accept, 0, nil
}

// Received implements binkp.InboundSink: move the completed temp file into
// place, creating the network's inbox directory if needed.
func (d *DirSink) Received(meta binkp.FileMeta, tempPath string, remoteAddresses []string) error {
	dir := filepath.Join(d.BaseDir, d.NetworkID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(tempPath, d.finalPath(meta.Name))
}
