package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// spool stages relayed chunks on local disk. Each chunk is written at its
// natural offset (index * chunkSize), so arrival order never matters and
// the finished file needs no reassembly pass - it IS the spool file.
type spool struct {
	path string
	file *os.File
}

// createSpool creates the staging file for a session and reserves its
// final size. Truncate makes the file sparse on filesystems that support
// it, so a mostly-unreceived large upload costs little disk.
func createSpool(dir, sessionID string, size int64) (*spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}

	path := filepath.Join(dir, sessionID+".spool")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("reserve spool size: %w", err)
	}
	return &spool{path: path, file: file}, nil
}

// openSpool reopens an existing staging file (restart recovery, retry).
func openSpool(path string) (*spool, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open spool file: %w", err)
	}
	return &spool{path: path, file: file}, nil
}

// writeChunk copies one chunk into place and verifies its length.
func (s *spool) writeChunk(offset, length int64, data io.Reader) error {
	written, err := io.Copy(io.NewOffsetWriter(s.file, offset), io.LimitReader(data, length))
	if err != nil {
		return fmt.Errorf("write chunk at offset %d: %w", offset, err)
	}
	if written != length {
		return fmt.Errorf("short chunk at offset %d: got %d bytes, want %d", offset, written, length)
	}
	return nil
}

// reader returns a fresh reader over the full staged file.
func (s *spool) reader() (io.Reader, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return s.file, nil
}

func (s *spool) close() error {
	return s.file.Close()
}

// remove closes and deletes the staging file.
func (s *spool) remove() error {
	s.file.Close()
	return os.Remove(s.path)
}
