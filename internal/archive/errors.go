package archive

import (
	"errors"
	"fmt"
)

var ErrMalformedArchive = errors.New("archive: malformed")

// MalformedArchiveError reports an archive that cannot be built or read.
type MalformedArchiveError struct {
	Op   string // "build", "read" or "decode"
	Path string // offending entry, may be empty
	Err  error
}

func (e *MalformedArchiveError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("archive: %s %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("archive: %s: %v", e.Op, e.Err)
}

func (e *MalformedArchiveError) Unwrap() error { return e.Err }

func (e *MalformedArchiveError) Is(target error) bool { return target == ErrMalformedArchive }

func malformed(op, path string, err error) error {
	return &MalformedArchiveError{Op: op, Path: path, Err: err}
}
