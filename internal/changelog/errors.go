package changelog

import (
	"errors"
	"fmt"
)

var (
	ErrCorruptStore = errors.New("changelog: corrupt store")
	ErrEmptyKey     = errors.New("changelog: empty key")
)

// CorruptStoreError is returned by Load when the store file exists but cannot be parsed.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("changelog: corrupt store %q: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

func (e *CorruptStoreError) Is(target error) bool { return target == ErrCorruptStore }
