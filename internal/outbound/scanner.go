// Package outbound provides a minimal flat-directory binkp.OutboundScanner:
// every regular file directly inside a network's outbound directory is
// offered, oldest first.
package outbound

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/ftnx/go-binkp/binkp"
)

// DirScanner scans BaseDir/<networkID>/ for files to offer on a call.
type DirScanner struct {
	BaseDir string
}

// New returns a DirScanner rooted at baseDir.
func New(baseDir string) *DirScanner {
	return &DirScanner{BaseDir: baseDir}
}

// Scan implements binkp.OutboundScanner.
func (d *DirScanner) Scan(networkID string) ([]binkp.FileDescriptor, error) {
	dir := filepath.Join(d.BaseDir, networkID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var descs []binkp.FileDescriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		descs = append(descs, binkp.FileDescriptor{
			Name:      e.Name(),
			LocalPath: filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			Timestamp: info.ModTime().Unix(),
		})
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Timestamp < descs[j].Timestamp })
	return descs, nil
}
