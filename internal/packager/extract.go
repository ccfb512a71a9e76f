package packager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/openmined/forcesync/internal/archive"
	"github.com/openmined/forcesync/internal/changelog"
	"github.com/openmined/forcesync/internal/utils"
	"golang.org/x/sync/errgroup"
)

var errDestIsDir = errors.New("destination is a directory")

type stagedItem struct {
	key       string
	relPath   string
	staged    string
	dest      string
	hash      string
	untracked bool
}

// Extract reconciles an incoming archive into the source folder. stats maps item
// keys to their remote modification times. The archive is read and written to a
// staging area first; a malformed archive or a staging failure aborts before the
// live tree is touched. Past that point each entry gets its own Result and a
// failure on one never stops the others. No local file is ever deleted, and a
// local file that diverged from the last known remote state is left as is.
func (p *Packager) Extract(ctx context.Context, data []byte, stats map[string]time.Time) ([]Result, error) {
	entries, err := archive.Read(data)
	if err != nil {
		return nil, err
	}
	p.ignore.Load()

	if err := utils.EnsureDir(p.opts.StagingDir); err != nil {
		return nil, fmt.Errorf("staging folder: %w", err)
	}
	staging, err := os.MkdirTemp(p.opts.StagingDir, "extract-*")
	if err != nil {
		return nil, fmt.Errorf("staging folder: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			slog.Warn("extract remove staging", "path", staging, "error", err)
		}
	}()

	items, results, err := p.stage(entries, staging)
	if err != nil {
		return nil, err
	}

	reconciled := make([]Result, len(items))
	g := new(errgroup.Group)
	g.SetLimit(p.opts.Concurrency)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				reconciled[i] = failed(item, err)
				return nil
			}
			reconciled[i] = p.reconcile(item, p.remoteTime(stats, item.key))
			return nil
		})
	}
	_ = g.Wait()

	results = append(results, reconciled...)
	slices.SortFunc(results, func(a, b Result) int { return strings.Compare(a.Path, b.Path) })

	s := Summarize(results)
	slog.Info("extract", "entries", len(entries), "applied", s.Applied, "skipped", s.Skipped, "conflicts", s.Conflicts, "failed", s.Failed)
	return results, nil
}

// stage writes every rooted entry under dir. Entries that cannot be mapped into
// the source folder come back as skipped results instead.
func (p *Packager) stage(entries []archive.Entry, dir string) ([]stagedItem, []Result, error) {
	var items []stagedItem
	var skipped []Result
	keyCount := make(map[string]int)

	for _, e := range entries {
		relPath, ok := archive.Unroot(e.Path)
		if !ok {
			skipped = append(skipped, Result{Key: path.Base(e.Path), Path: e.Path, Status: StatusSkipped, Reason: ReasonUnrooted})
			continue
		}

		dest := filepath.Join(p.opts.SourceDir, filepath.FromSlash(relPath))
		if !utils.IsWithin(p.opts.SourceDir, dest) {
			skipped = append(skipped, Result{Key: path.Base(relPath), Path: relPath, Status: StatusSkipped, Reason: ReasonUnrooted})
			continue
		}

		staged := filepath.Join(dir, filepath.FromSlash(relPath))
		if err := utils.EnsureParent(staged); err != nil {
			return nil, nil, fmt.Errorf("stage %s: %w", relPath, err)
		}
		if err := os.WriteFile(staged, e.Data, 0o644); err != nil {
			return nil, nil, fmt.Errorf("stage %s: %w", relPath, err)
		}

		item := stagedItem{
			key:       path.Base(relPath),
			relPath:   relPath,
			staged:    staged,
			dest:      dest,
			hash:      utils.BytesHash(e.Data),
			untracked: IsUntracked(relPath),
		}
		if !item.untracked {
			keyCount[item.key]++
		}
		items = append(items, item)
	}

	// ambiguous keys cannot be tracked, none of them is applied
	kept := items[:0]
	for _, item := range items {
		if !item.untracked && keyCount[item.key] > 1 {
			skipped = append(skipped, Result{Key: item.key, Path: item.relPath, Status: StatusSkipped, Reason: ReasonDuplicateKey, Err: ErrDuplicateKey})
			continue
		}
		kept = append(kept, item)
	}
	return kept, skipped, nil
}

func (p *Packager) remoteTime(stats map[string]time.Time, key string) time.Time {
	if t, ok := stats[key]; ok && !t.IsZero() {
		return t
	}
	return p.now()
}

func (p *Packager) reconcile(item stagedItem, remoteTime time.Time) Result {
	res := Result{Key: item.key, Path: item.relPath}

	if p.ignore.ShouldIgnore(item.relPath) {
		res.Status = StatusSkipped
		res.Reason = ReasonIgnored
		return res
	}

	if item.untracked {
		if err := utils.MoveFile(item.staged, item.dest); err != nil {
			return failed(item, err)
		}
		res.Status = StatusApplied
		return res
	}

	existing, err := p.destState(item.dest)
	if err != nil {
		return failed(item, err)
	}

	incoming := changelog.NewState(item.hash, remoteTime)
	conflict := false
	err = p.store.Update(item.key, func(e *changelog.Entry) error {
		prevRemote := e.Remote
		e.Remote = cloneState(&incoming)
		if existing == nil {
			e.Local = cloneState(&incoming)
		} else {
			e.Local = cloneState(existing)
			conflict = existing.Hash != incoming.Hash && (prevRemote == nil || existing.Hash != prevRemote.Hash)
		}
		res.Side = e.Side()
		return nil
	})
	if err != nil {
		return failed(item, err)
	}

	if conflict {
		res.Status = StatusSkipped
		res.Reason = ReasonLocalConflict
		if p.opts.KeepConflictCopies {
			copyPath, err := saveConflictCopy(item.staged, item.dest, p.now())
			if err != nil {
				slog.Warn("extract conflict copy", "path", item.relPath, "error", err)
			} else {
				res.ConflictCopy = copyPath
			}
		}
		slog.Warn("extract conflict", "path", item.relPath, "side", res.Side)
		return res
	}

	if err := utils.MoveFile(item.staged, item.dest); err != nil {
		if existing == nil {
			_ = p.store.Update(item.key, func(e *changelog.Entry) error {
				e.Local = nil
				return nil
			})
		}
		return failed(item, err)
	}

	info, err := os.Stat(item.dest)
	if err != nil {
		return failed(item, err)
	}
	p.remember(item.dest, info, item.hash)

	applied := changelog.NewState(item.hash, info.ModTime())
	err = p.store.Update(item.key, func(e *changelog.Entry) error {
		e.Local = &applied
		return nil
	})
	if err != nil {
		return failed(item, err)
	}

	res.Status = StatusApplied
	return res
}

// destState fingerprints the file currently at dest, nil when there is none.
func (p *Packager) destState(dest string) (*changelog.State, error) {
	info, err := os.Stat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errDestIsDir
	}

	hash, err := p.hash(dest, info)
	if err != nil {
		return nil, err
	}
	state := changelog.NewState(hash, info.ModTime())
	return &state, nil
}

func failed(item stagedItem, err error) Result {
	slog.Warn("extract failed", "path", item.relPath, "error", err)
	return Result{Key: item.key, Path: item.relPath, Status: StatusFailed, Err: err}
}
