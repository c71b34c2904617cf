package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// StagedFile holds an uploaded part on local disk until it is either
// written to the bucket or dropped from the queue.
type StagedFile struct {
	path string
}

// Stage copies at most limit+1 bytes of r into a temp file under dir and
// returns the file with the number of bytes copied. A result larger than
// limit means the source was too big; the caller decides what to do.
func Stage(r io.Reader, dir string, limit int64) (*StagedFile, int64, error) {
	f, err := os.CreateTemp(dir, "intake-*")
	if err != nil {
		return nil, 0, fmt.Errorf("create staging file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(f.Name())
		return nil, 0, fmt.Errorf("write staging file: %w", err)
	}
	return &StagedFile{path: f.Name()}, n, nil
}

func (s *StagedFile) Open() (io.ReadCloser, error) {
	return os.Open(s.path)
}

// Discard removes the file; calling it again is harmless.
func (s *StagedFile) Discard() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *StagedFile) Path() string { return s.path }
