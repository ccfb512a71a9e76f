package packager

import "github.com/openmined/forcesync/internal/changelog"

type Status int

const (
	StatusApplied Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reason explains a skipped item.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonLocalConflict Reason = "local-conflict"
	ReasonIgnored       Reason = "ignored"
	ReasonUnrooted      Reason = "unrooted"
	ReasonDuplicateKey  Reason = "duplicate-key"
)

// Result is the outcome of reconciling one incoming archive entry.
type Result struct {
	Key string
	// Path is slash separated and relative to the source folder.
	Path   string
	Status Status
	Reason Reason
	// Side annotates conflicts with which copy looks newer. It never decides anything.
	Side changelog.Side
	// ConflictCopy is where the incoming copy of a conflicting item was saved, if anywhere.
	ConflictCopy string
	Err          error
}

func (r Result) IsConflict() bool {
	return r.Status == StatusSkipped && r.Reason == ReasonLocalConflict
}

type Summary struct {
	Applied   int
	Skipped   int
	Conflicts int
	Failed    int
}

func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusApplied:
			s.Applied++
		case StatusSkipped:
			s.Skipped++
			if r.Reason == ReasonLocalConflict {
				s.Conflicts++
			}
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}
