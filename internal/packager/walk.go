package packager

import (
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/openmined/forcesync/internal/utils"
)

// Item is a regular file in the source folder.
type Item struct {
	// Key identifies the item in the change store: its base name.
	Key string
	// RelPath is slash separated and relative to the source folder.
	RelPath string
	// Path is the file's location on disk.
	Path string
	Info fs.FileInfo
}

func (i Item) ReadAll() ([]byte, error) {
	return os.ReadFile(i.Path)
}

// Walk lazily yields the files under the source folder that are not ignored.
// Each range over the sequence walks the tree afresh. Walk errors are yielded
// and the walk carries on unless the consumer stops.
func (p *Packager) Walk() iter.Seq2[Item, error] {
	root := p.opts.SourceDir

	return func(yield func(Item, error) bool) {
		stopped := false
		err := filepath.WalkDir(root, func(fullPath string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				if !yield(Item{Path: fullPath}, fmt.Errorf("walk %s: %w", fullPath, walkErr)) {
					stopped = true
					return fs.SkipAll
				}
				return nil
			}

			if fullPath == root {
				return nil
			}

			relPath, err := filepath.Rel(root, fullPath)
			if err != nil {
				return fmt.Errorf("walk rel path: %w", err)
			}
			relPath = utils.NormPath(relPath)

			if p.ignore.ShouldIgnore(relPath) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				return nil
			}

			if !d.Type().IsRegular() {
				slog.Debug("walk skipping non-regular file", "path", relPath, "type", d.Type())
				return nil
			}

			info, err := d.Info()
			if err != nil {
				if !yield(Item{Path: fullPath, RelPath: relPath}, fmt.Errorf("stat %s: %w", relPath, err)) {
					stopped = true
					return fs.SkipAll
				}
				return nil
			}

			item := Item{
				Key:     path.Base(relPath),
				RelPath: relPath,
				Path:    fullPath,
				Info:    info,
			}
			if !yield(item, nil) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield(Item{Path: root}, err)
		}
	}
}
