package packager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/openmined/forcesync/internal/archive"
	"github.com/openmined/forcesync/internal/changelog"
	"github.com/openmined/forcesync/internal/manifest"
	"github.com/openmined/forcesync/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Outgoing is an archive ready for deploy, along with what is needed to undo
// the optimistic remote state Compress recorded for it.
type Outgoing struct {
	Archive []byte
	// Items are the keys of the changed items in the archive, sorted.
	Items []string
	// Entries counts every archive entry, sidecars and the manifest included.
	Entries int

	store      *changelog.Store
	prevRemote map[string]*changelog.State
}

func (o *Outgoing) Size() int {
	return len(o.Archive)
}

// Revert restores the remote state each item had before Compress.
// Call it when the archive could not be deployed.
func (o *Outgoing) Revert() error {
	var errs []error
	for _, key := range o.Items {
		prev := o.prevRemote[key]
		err := o.store.Update(key, func(e *changelog.Entry) error {
			e.Remote = cloneState(prev)
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("revert %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

type scannedTree struct {
	items    []Item
	sidecars map[string]Item
	manifest *Item
}

// Compress records the local state of every item and builds an archive of the
// items whose local and remote fingerprints differ, plus the manifest. It returns
// ErrNothingChanged when no item differs. Any read failure aborts the call.
// Sent items get their remote state set to the local one; see Outgoing.Revert.
func (p *Packager) Compress(ctx context.Context) (*Outgoing, error) {
	if !utils.DirExists(p.opts.SourceDir) {
		return nil, fmt.Errorf("source folder %s: %w", p.opts.SourceDir, os.ErrNotExist)
	}
	p.ignore.Load()

	tree, err := p.scan()
	if err != nil {
		return nil, err
	}

	selected := make([]bool, len(tree.items))
	contents := make([][]byte, len(tree.items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, item := range tree.items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			hash, err := p.hash(item.Path, item.Info)
			if err != nil {
				return fmt.Errorf("hash %s: %w", item.RelPath, err)
			}

			local := changelog.NewState(hash, item.Info.ModTime())
			err = p.store.Update(item.Key, func(e *changelog.Entry) error {
				e.Local = &local
				selected[i] = e.HasChanged()
				return nil
			})
			if err != nil {
				return fmt.Errorf("record %s: %w", item.Key, err)
			}

			if selected[i] {
				data, err := item.ReadAll()
				if err != nil {
					return fmt.Errorf("read %s: %w", item.RelPath, err)
				}
				contents[i] = data
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var entries []archive.Entry
	var sent []Item
	for i, item := range tree.items {
		if !selected[i] {
			continue
		}
		sent = append(sent, item)
		entries = append(entries, archive.Entry{
			Path:    archive.Rooted(item.RelPath),
			Data:    contents[i],
			ModTime: item.Info.ModTime(),
			Mode:    item.Info.Mode(),
		})

		sidecar, err := p.sidecarFor(item, tree.sidecars)
		if err != nil {
			return nil, err
		}
		if sidecar != nil {
			entries = append(entries, *sidecar)
		}
	}

	if len(sent) == 0 {
		slog.Debug("compress nothing changed", "items", len(tree.items))
		return nil, ErrNothingChanged
	}

	manifestEntry, err := p.manifestEntry(tree.manifest)
	if err != nil {
		return nil, err
	}
	entries = append(entries, manifestEntry)

	data, err := archive.Build(entries)
	if err != nil {
		return nil, err
	}

	out := &Outgoing{
		Archive:    data,
		Entries:    len(entries),
		store:      p.store,
		prevRemote: make(map[string]*changelog.State, len(sent)),
	}
	for _, item := range sent {
		err := p.store.Update(item.Key, func(e *changelog.Entry) error {
			out.prevRemote[item.Key] = cloneState(e.Remote)
			e.Remote = cloneState(e.Local)
			return nil
		})
		if err != nil {
			if revertErr := out.Revert(); revertErr != nil {
				slog.Error("compress revert", "error", revertErr)
			}
			return nil, fmt.Errorf("record %s as sent: %w", item.Key, err)
		}
		out.Items = append(out.Items, item.Key)
	}
	slices.Sort(out.Items)

	slog.Info("compress", "items", len(out.Items), "entries", out.Entries, "size", humanize.Bytes(uint64(out.Size())))
	return out, nil
}

// scan splits the tree into tracked items, sidecars and the manifest file.
func (p *Packager) scan() (*scannedTree, error) {
	tree := &scannedTree{sidecars: make(map[string]Item)}
	keys := mapset.NewThreadUnsafeSet[string]()

	for item, err := range p.Walk() {
		if err != nil {
			return nil, err
		}

		switch {
		case strings.EqualFold(item.RelPath, manifest.FileName):
			tree.manifest = &item
		case IsUntracked(item.RelPath):
			if manifest.IsSidecar(item.RelPath) {
				tree.sidecars[item.RelPath] = item
			}
		default:
			if !keys.Add(item.Key) {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, item.RelPath)
			}
			tree.items = append(tree.items, item)
		}
	}
	return tree, nil
}

// sidecarFor returns the sidecar that travels with item: the one on disk, or a
// generated one when CreateMetaXML is set and the item's type is known.
func (p *Packager) sidecarFor(item Item, sidecars map[string]Item) (*archive.Entry, error) {
	relPath := manifest.SidecarPath(item.RelPath)

	if sidecar, ok := sidecars[relPath]; ok {
		data, err := sidecar.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", relPath, err)
		}
		return &archive.Entry{
			Path:    archive.Rooted(relPath),
			Data:    data,
			ModTime: sidecar.Info.ModTime(),
			Mode:    sidecar.Info.Mode(),
		}, nil
	}

	if !p.opts.CreateMetaXML {
		return nil, nil
	}

	typeInfo, member, ok := manifest.TypeForPath(item.RelPath)
	if !ok {
		return nil, nil
	}

	data, err := manifest.MetaXML(typeInfo, member, p.opts.APIVersion)
	if err != nil {
		return nil, err
	}
	slog.Debug("compress generated sidecar", "path", relPath)
	return &archive.Entry{Path: archive.Rooted(relPath), Data: data}, nil
}

// manifestEntry prefers the manifest file in the source folder.
func (p *Packager) manifestEntry(onDisk *Item) (archive.Entry, error) {
	entry := archive.Entry{Path: archive.Rooted(manifest.FileName)}

	if onDisk != nil {
		data, err := onDisk.ReadAll()
		if err != nil {
			return entry, fmt.Errorf("read %s: %w", onDisk.RelPath, err)
		}
		entry.Data = data
		entry.ModTime = onDisk.Info.ModTime()
		return entry, nil
	}

	desc := p.opts.Manifest
	if desc == nil {
		desc = manifest.Default(p.opts.APIVersion)
	}
	data, err := desc.ToXML()
	if err != nil {
		return entry, err
	}
	entry.Data = data
	return entry, nil
}

func cloneState(s *changelog.State) *changelog.State {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
