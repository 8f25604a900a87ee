package binkp

import (
	"fmt"
	"hash/crc32"
	"os"
)

// FileTransfer represents one file in motion, in either direction. Per
// spec §3: offset must never exceed size; a send-side transfer is complete
// when offset == size, a receive-side transfer additionally requires the
// M_GOT to have been emitted.
type FileTransfer struct {
	Meta FileMeta

	// Outbound is true for a file this side is sending.
	Outbound bool

	Offset int64

	// crc accumulates a running CRC-32 when the session negotiated
	// use_crc; it is nil otherwise.
	crc *uint32

	// LocalPath is the real file being read (outbound) or the temp file
	// being written (inbound).
	LocalPath string
	file      *os.File

	gotEmitted bool
}

// newOutboundTransfer opens localPath for reading and prepares a
// FileTransfer to stream it, starting at the given offset (0 for a fresh
// send, >0 when the peer requested a resume via M_GET).
func newOutboundTransfer(desc FileDescriptor, useCRC bool, startOffset int64) (*FileTransfer, error) {
	f, err := os.Open(desc.LocalPath)
	if err != nil {
		return nil, NewError(ErrLocalIO, "open outbound file: "+err.Error())
	}
	if startOffset > 0 {
		if _, err := f.Seek(startOffset, os.SEEK_SET); err != nil {
			f.Close()
			return nil, NewError(ErrLocalIO, "seek outbound file: "+err.Error())
		}
	}
	ft := &FileTransfer{
		Meta: FileMeta{
			Name:      desc.Name,
			Size:      desc.Size,
			Timestamp: desc.Timestamp,
			Offset:    startOffset,
		},
		Outbound:  true,
		Offset:    startOffset,
		LocalPath: desc.LocalPath,
		file:      f,
	}
	if useCRC {
		var z uint32
		ft.crc = &z
	}
	return ft, nil
}

// newInboundTransfer creates the temp file an incoming M_FILE will be
// written into. resumeOffset is nonzero only when the receiver itself
// requested a resume via M_GET.
func newInboundTransfer(meta FileMeta, tempPath string, useCRC bool, resumeOffset int64) (*FileTransfer, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if resumeOffset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(tempPath, flags, 0o644)
	if err != nil {
		return nil, NewError(ErrLocalIO, "create inbound temp file: "+err.Error())
	}
	ft := &FileTransfer{
		Meta:      meta,
		Outbound:  false,
		Offset:    resumeOffset,
		LocalPath: tempPath,
		file:      f,
	}
	if useCRC {
		var z uint32
		ft.crc = &z
	}
	return ft, nil
}

// ReadChunk reads up to maxLen bytes from an outbound transfer's source
// file, advancing Offset and the running CRC.
func (ft *FileTransfer) ReadChunk(maxLen int) ([]byte, error) {
	buf := make([]byte, maxLen)
	n, err := ft.file.Read(buf)
	if n > 0 {
		ft.Offset += int64(n)
		if ft.crc != nil {
			*ft.crc = crc32.Update(*ft.crc, crc32.IEEETable, buf[:n])
		}
	}
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}

// WriteChunk appends data to an inbound transfer's temp file, advancing
// Offset and the running CRC. It rejects a chunk that would push Offset
// past the declared size, preserving the offset<=size invariant.
func (ft *FileTransfer) WriteChunk(data []byte) error {
	if ft.Offset+int64(len(data)) > ft.Meta.Size {
		return NewError(ErrProtocol, "inbound data exceeds declared file size")
	}
	if _, err := ft.file.Write(data); err != nil {
		return NewError(ErrLocalIO, "write inbound chunk: "+err.Error())
	}
	ft.Offset += int64(len(data))
	if ft.crc != nil {
		*ft.crc = crc32.Update(*ft.crc, crc32.IEEETable, data)
	}
	return nil
}

// SeekTo repositions an outbound transfer's read offset, used when the
// peer responds to an M_FILE offer with M_GET (spec §4.3 step 4).
func (ft *FileTransfer) SeekTo(offset int64) error {
	if _, err := ft.file.Seek(offset, os.SEEK_SET); err != nil {
		return NewError(ErrLocalIO, "seek outbound file: "+err.Error())
	}
	ft.Offset = offset
	ft.Meta.Offset = offset
	if ft.crc != nil {
		var z uint32
		ft.crc = &z
	}
	return nil
}

// Complete reports whether this transfer has moved every declared byte.
func (ft *FileTransfer) Complete() bool {
	return ft.Offset == ft.Meta.Size
}

// AtEOF reports whether an outbound transfer has nothing left to read.
func (ft *FileTransfer) AtEOF() bool {
	return ft.Outbound && ft.Offset >= ft.Meta.Size
}

// CRCHex returns the lowercase hex running CRC-32, or "" when CRC
// accounting is off for this transfer.
func (ft *FileTransfer) CRCHex() string {
	if ft.crc == nil {
		return ""
	}
	return fmt.Sprintf("%08x", *ft.crc)
}

// Close releases the underlying file handle.
func (ft *FileTransfer) Close() error {
	if ft.file == nil {
		return nil
	}
	return ft.file.Close()
}

// Abort closes and, for an inbound transfer, deletes the temp file —
// used on cancellation or a fatal session error per spec §5.
func (ft *FileTransfer) Abort() {
	ft.Close()
	if !ft.Outbound {
		os.Remove(ft.LocalPath)
	}
}
