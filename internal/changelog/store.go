// Package changelog persists, per item key, the last known local and remote
// content fingerprints. Every mutation rewrites the whole file before returning.
package changelog

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/openmined/forcesync/internal/utils"
)

type Store struct {
	mu      sync.Mutex
	path    string
	entries map[string]*Entry
}

// Load reads the store at path. A missing file yields an empty store; a file
// that cannot be parsed yields a *CorruptStoreError and no store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]*Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("changelog: read %q: %w", path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &CorruptStoreError{Path: path, Err: errors.New("empty file")}
	}

	var entries map[string]*Entry
	if err := utils.JSONUnmarshal(data, &entries); err != nil {
		return nil, &CorruptStoreError{Path: path, Err: err}
	}

	for key, entry := range entries {
		if entry.IsEmpty() {
			slog.Warn("changelog dropping empty entry", "key", key)
			continue
		}
		s.entries[key] = entry
	}

	return s, nil
}

// Create writes an empty store at path, replacing anything there.
func Create(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]*Entry)}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the entry for key, or nil.
func (s *Store) Get(key string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key].Clone()
}

func (s *Store) SetLocal(key string, state State) error {
	return s.Update(key, func(e *Entry) error {
		e.Local = &state
		return nil
	})
}

func (s *Store) SetRemote(key string, state State) error {
	return s.Update(key, func(e *Entry) error {
		e.Remote = &state
		return nil
	})
}

// Update applies fn to a copy of the entry for key (an empty entry when absent)
// and persists the result. The read, fn and the write happen under one lock, so
// concurrent updates of the same key never lose each other's halves. If fn leaves
// the entry empty the key is removed. On any error the in-memory map is unchanged.
func (s *Store) Update(key string, fn func(e *Entry) error) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.entries[key]
	next := prev.Clone()
	if next == nil {
		next = &Entry{}
	}

	if err := fn(next); err != nil {
		return err
	}

	if next.IsEmpty() {
		delete(s.entries, key)
	} else {
		s.entries[key] = next
	}

	if err := s.persist(); err != nil {
		if existed {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.entries[key]
	if !existed {
		return nil
	}
	delete(s.entries, key)

	if err := s.persist(); err != nil {
		s.entries[key] = prev
		return err
	}
	return nil
}

// HasChanged reports whether the local and remote fingerprints of key differ.
// Unknown keys, and keys missing either half, count as changed.
func (s *Store) HasChanged(key string) bool {
	return s.HasChangedBy(key, ByHash)
}

func (s *Store) HasChangedBy(key string, by CompareBy) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key].ChangedBy(by)
}

// Compare tells which side of key is ahead. It never decides a conflict, it only describes it.
func (s *Store) Compare(key string) Side {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key].Side()
}

func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.entries
	s.entries = make(map[string]*Entry)
	if err := s.persist(); err != nil {
		s.entries = prev
		return err
	}
	return nil
}

func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) == 0
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys returns all keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// persist must be called with s.mu held.
func (s *Store) persist() error {
	data, err := utils.JSONMarshal(s.entries)
	if err != nil {
		return fmt.Errorf("changelog: marshal: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("changelog: write %q: %w", s.path, err)
	}
	return nil
}
