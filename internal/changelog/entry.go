package changelog

import "time"

// State is one side of a change entry: a content fingerprint and the
// modification time it was observed at, in epoch milliseconds.
type State struct {
	Hash string `json:"hash"`
	Time int64  `json:"time"`
}

// NewState builds a State from a hash and a wall-clock time.
func NewState(hash string, t time.Time) State {
	return State{Hash: hash, Time: t.UnixMilli()}
}

// ModTime returns the state's timestamp as a time.Time.
func (s State) ModTime() time.Time {
	return time.UnixMilli(s.Time)
}

// Entry is the recorded local/remote state pair of an item.
// Either half may be nil, never both.
type Entry struct {
	Local  *State `json:"local,omitempty"`
	Remote *State `json:"remote,omitempty"`
}

func (e *Entry) IsEmpty() bool {
	return e == nil || (e.Local == nil && e.Remote == nil)
}

func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := &Entry{}
	if e.Local != nil {
		local := *e.Local
		c.Local = &local
	}
	if e.Remote != nil {
		remote := *e.Remote
		c.Remote = &remote
	}
	return c
}

// Side tells which copy of an item is ahead, as far as the recorded state knows.
type Side int

const (
	// SideNone means local and remote fingerprints agree.
	SideNone Side = iota
	// SideUnknown means the entry or one of its halves is missing.
	SideUnknown
	// SideLocal means fingerprints differ and the local copy is at least as new.
	SideLocal
	// SideRemote means fingerprints differ and the remote copy is newer.
	SideRemote
)

func (s Side) String() string {
	switch s {
	case SideNone:
		return "unchanged"
	case SideLocal:
		return "local-newer"
	case SideRemote:
		return "remote-newer"
	default:
		return "unknown"
	}
}

// CompareBy selects the field HasChangedBy compares.
type CompareBy int

const (
	ByHash CompareBy = iota
	ByTime
)

// HasChanged reports whether the fingerprints differ. A nil entry or a missing half counts as changed.
func (e *Entry) HasChanged() bool {
	return e.ChangedBy(ByHash)
}

func (e *Entry) ChangedBy(by CompareBy) bool {
	if e.IsEmpty() || e.Local == nil || e.Remote == nil {
		return true
	}
	if by == ByTime {
		return e.Local.Time != e.Remote.Time
	}
	return e.Local.Hash != e.Remote.Hash
}

// Side tells which copy is ahead. Equal hashes are SideNone whatever the times say.
func (e *Entry) Side() Side {
	if e.IsEmpty() || e.Local == nil || e.Remote == nil {
		return SideUnknown
	}
	if e.Local.Hash == e.Remote.Hash {
		return SideNone
	}
	if e.Remote.Time > e.Local.Time {
		return SideRemote
	}
	return SideLocal
}
