// Package project owns the on-disk layout of a sync project and runs push and
// pull against a remote. One Project runs one sync at a time, and a lock file
// keeps other processes off the same project.
package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/openmined/forcesync/internal/changelog"
	"github.com/openmined/forcesync/internal/history"
	"github.com/openmined/forcesync/internal/manifest"
	"github.com/openmined/forcesync/internal/packager"
	"github.com/openmined/forcesync/internal/utils"
)

const (
	DefaultRoot = ".force"

	configFile    = "project.json"
	changeLogFile = "log.json"
	stagingDir    = "tmp"
	logsDir       = "logs"
	historyFile   = "history.db"
	lockFile      = "forcesync.lock"
)

var (
	ErrProjectLocked  = errors.New("project locked by another process")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNotInitialized = errors.New("project not initialized")
)

type Project struct {
	Root          string
	SrcDir        string
	ChangeLogPath string
	StagingDir    string
	LogsDir       string
	HistoryPath   string
	ConfigPath    string

	cfg    *Config
	flock  *flock.Flock
	muSync sync.Mutex

	muOpen   sync.Mutex
	store    *changelog.Store
	packager *packager.Packager
	history  *history.Journal
}

// New resolves the layout of the project rooted at root. An existing project
// reads its config file; a new one uses cfg, or the defaults when cfg is nil.
func New(root string, cfg *Config) (*Project, error) {
	if root == "" {
		root = DefaultRoot
	}
	rootDir, err := utils.ResolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", root, err)
	}

	configPath := filepath.Join(rootDir, configFile)
	if utils.FileExists(configPath) {
		cfg, err = LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	} else if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Project{
		Root:          rootDir,
		SrcDir:        resolveIn(rootDir, cfg.Src),
		ChangeLogPath: filepath.Join(resolveIn(rootDir, cfg.ChangeDir), changeLogFile),
		StagingDir:    filepath.Join(rootDir, stagingDir),
		LogsDir:       filepath.Join(rootDir, logsDir),
		HistoryPath:   filepath.Join(rootDir, historyFile),
		ConfigPath:    configPath,
		cfg:           cfg,
		flock:         flock.New(filepath.Join(rootDir, lockFile)),
	}, nil
}

func resolveIn(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func (p *Project) Config() Config {
	return *p.cfg
}

// IsNew reports whether the root folder is missing.
func (p *Project) IsNew() bool {
	return !utils.DirExists(p.Root)
}

// Setup creates the root folder, an empty change store, the config file and
// the default manifest. It does nothing on an existing project.
func (p *Project) Setup() error {
	if !p.IsNew() {
		slog.Debug("project exists, skipping setup", "root", p.Root)
		return nil
	}

	slog.Info("project setup", "root", p.Root, "src", p.SrcDir)

	for _, dir := range []string{p.Root, p.SrcDir, p.StagingDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := p.cfg.Save(p.ConfigPath); err != nil {
		return err
	}

	if _, err := changelog.Create(p.ChangeLogPath); err != nil {
		return fmt.Errorf("create change log: %w", err)
	}

	manifestPath := filepath.Join(p.SrcDir, manifest.FileName)
	if !utils.FileExists(manifestPath) {
		if err := p.configuredManifest().Save(manifestPath); err != nil {
			return fmt.Errorf("create manifest: %w", err)
		}
	}

	return nil
}

// Descriptor returns the manifest in scope: the one in the source folder when
// present, else the configured one, else the defaults.
func (p *Project) Descriptor() (*manifest.Descriptor, error) {
	manifestPath := filepath.Join(p.SrcDir, manifest.FileName)
	if utils.FileExists(manifestPath) {
		return manifest.Load(manifestPath)
	}
	return p.configuredManifest(), nil
}

func (p *Project) configuredManifest() *manifest.Descriptor {
	if p.cfg.Manifest != nil {
		return p.cfg.Manifest
	}
	return manifest.Default(p.cfg.APIVersion)
}

func (p *Project) Lock() error {
	if err := utils.EnsureDir(p.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", p.Root, err)
	}

	locked, err := p.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock project: %w", err)
	}
	if !locked {
		return ErrProjectLocked
	}
	return nil
}

func (p *Project) Unlock() error {
	// only the process holding the lock removes the file
	if !p.flock.Locked() {
		return nil
	}
	if err := p.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock project: %w", err)
	}
	return os.Remove(p.flock.Path())
}

// open locks the project and loads the change store, packager and history.
func (p *Project) open() error {
	p.muOpen.Lock()
	defer p.muOpen.Unlock()

	if p.packager != nil {
		return nil
	}
	if p.IsNew() {
		return ErrNotInitialized
	}

	if err := p.Lock(); err != nil {
		return err
	}

	store, err := changelog.Load(p.ChangeLogPath)
	if err != nil {
		p.Unlock()
		return err
	}

	desc, err := p.Descriptor()
	if err != nil {
		slog.Warn("project manifest unreadable, using configured manifest", "error", err)
		desc = p.configuredManifest()
	}

	pkg, err := packager.New(store, packager.Options{
		SourceDir:          p.SrcDir,
		StagingDir:         p.StagingDir,
		APIVersion:         p.cfg.APIVersion,
		CreateMetaXML:      p.cfg.CreateMetaXML,
		KeepConflictCopies: p.cfg.KeepConflictCopies,
		Concurrency:        p.cfg.Concurrency,
		Manifest:           desc,
	})
	if err != nil {
		p.Unlock()
		return err
	}

	journal, err := history.Open(p.HistoryPath)
	if err != nil {
		p.Unlock()
		return err
	}

	p.store = store
	p.packager = pkg
	p.history = journal
	return nil
}

// Close releases the history database and the project lock.
func (p *Project) Close() error {
	p.muOpen.Lock()
	defer p.muOpen.Unlock()

	var errs []error
	if p.history != nil {
		errs = append(errs, p.history.Close())
	}
	errs = append(errs, p.Unlock())

	p.store = nil
	p.packager = nil
	p.history = nil
	return errors.Join(errs...)
}

// Reset deletes the root folder and, when the config says so, the source folder.
func (p *Project) Reset() error {
	if !p.muSync.TryLock() {
		return ErrSyncInProgress
	}
	defer p.muSync.Unlock()

	if err := p.Close(); err != nil {
		slog.Warn("project close before reset", "error", err)
	}

	if utils.DirExists(p.Root) {
		if err := os.RemoveAll(p.Root); err != nil {
			return fmt.Errorf("delete %s: %w", p.Root, err)
		}
		slog.Info("deleted", "path", p.Root)
	}

	if p.cfg.DeleteSrcOnReset && utils.DirExists(p.SrcDir) {
		if err := os.RemoveAll(p.SrcDir); err != nil {
			return fmt.Errorf("delete %s: %w", p.SrcDir, err)
		}
		slog.Info("deleted", "path", p.SrcDir)
	}

	return nil
}
