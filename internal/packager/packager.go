// Package packager selects changed items from the source folder into outgoing
// archives and reconciles incoming archives back into it, recording every
// observed fingerprint in the change store.
package packager

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/forcesync/internal/changelog"
	"github.com/openmined/forcesync/internal/manifest"
	"github.com/openmined/forcesync/internal/utils"
)

const hashCacheSize = 4096

var (
	// ErrNothingChanged is returned by Compress when no item needs sending. It is a signal, not a failure.
	ErrNothingChanged = errors.New("nothing changed")
	// ErrDuplicateKey means two items in one tree share a base name.
	ErrDuplicateKey = errors.New("duplicate item key")
)

type Options struct {
	// SourceDir is the live tree.
	SourceDir string
	// StagingDir holds incoming archives while they are reconciled.
	StagingDir string
	// APIVersion is written into generated sidecars.
	APIVersion string
	// CreateMetaXML generates missing sidecars for outgoing items of known types.
	CreateMetaXML bool
	// KeepConflictCopies saves conflicting incoming items next to the local file.
	KeepConflictCopies bool
	// Concurrency bounds parallel hashing and reconciling. Zero means DefaultConcurrency().
	Concurrency int
	// Manifest is sent when the source folder has no manifest file of its own.
	Manifest *manifest.Descriptor
}

// DefaultConcurrency is bounded by the CPU count to keep open files in check on large trees.
func DefaultConcurrency() int {
	return min(max(runtime.NumCPU(), 2), 16)
}

type Packager struct {
	opts   Options
	store  *changelog.Store
	ignore *IgnoreList
	hashes *lru.Cache[string, cachedHash]
	now    func() time.Time
}

type cachedHash struct {
	size    int64
	modTime time.Time
	hash    string
}

func New(store *changelog.Store, opts Options) (*Packager, error) {
	if store == nil {
		return nil, errors.New("packager: nil change store")
	}
	if opts.SourceDir == "" {
		return nil, errors.New("packager: source folder is required")
	}
	if opts.StagingDir == "" {
		return nil, errors.New("packager: staging folder is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency()
	}
	if opts.APIVersion == "" {
		opts.APIVersion = manifest.DefaultVersion
	}

	hashes, err := lru.New[string, cachedHash](hashCacheSize)
	if err != nil {
		return nil, fmt.Errorf("packager: hash cache: %w", err)
	}

	return &Packager{
		opts:   opts,
		store:  store,
		ignore: NewIgnoreList(opts.SourceDir),
		hashes: hashes,
		now:    time.Now,
	}, nil
}

func (p *Packager) Options() Options {
	return p.opts
}

// hash returns the md5 of the file at path, reusing the last result when size and mtime are unchanged.
func (p *Packager) hash(path string, info fs.FileInfo) (string, error) {
	if c, ok := p.hashes.Get(path); ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return c.hash, nil
	}

	hash, err := utils.FileHash(path)
	if err != nil {
		return "", err
	}
	p.remember(path, info, hash)
	return hash, nil
}

func (p *Packager) remember(path string, info fs.FileInfo, hash string) {
	p.hashes.Add(path, cachedHash{size: info.Size(), modTime: info.ModTime(), hash: hash})
}
