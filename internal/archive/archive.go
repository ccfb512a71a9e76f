// Package archive builds and reads the zip payloads exchanged with the remote store.
// Entry paths are slash separated and rooted under Root.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// Root is the top-level segment every archive entry lives under.
const Root = "unpackaged"

var (
	errEmptyPath     = errors.New("empty path")
	errUnsafePath    = errors.New("path escapes archive root")
	errDuplicatePath = errors.New("duplicate path")
)

// Entry is a named blob in an archive.
type Entry struct {
	Path    string
	Data    []byte
	Size    int64
	ModTime time.Time
	Mode    fs.FileMode
}

// Build writes entries into a zip archive. Entries are sorted by path and
// written without timestamps, so the same set yields the same per-entry content
// regardless of input order.
func Build(entries []Entry) ([]byte, error) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for i, e := range sorted {
		name, err := cleanPath(e.Path)
		if err != nil {
			return nil, malformed("build", e.Path, err)
		}
		if i > 0 && sorted[i-1].Path == e.Path {
			return nil, malformed("build", e.Path, errDuplicatePath)
		}

		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		header.SetMode(fileMode(e.Mode))

		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, malformed("build", e.Path, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, malformed("build", e.Path, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, malformed("build", "", err)
	}
	return buf.Bytes(), nil
}

// Read enumerates the file entries of a zip archive. Directories are skipped.
func Read(data []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, malformed("read", "", err)
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		name, err := cleanPath(f.Name)
		if err != nil {
			return nil, malformed("read", f.Name, err)
		}

		content, err := readZipFile(f)
		if err != nil {
			return nil, malformed("read", f.Name, err)
		}

		entries = append(entries, Entry{
			Path:    name,
			Data:    content,
			Size:    int64(len(content)),
			ModTime: f.Modified,
			Mode:    f.Mode(),
		})
	}
	return entries, nil
}

// ReadBase64 decodes a base64 transport blob and reads the archive inside it.
func ReadBase64(encoded string) ([]Entry, error) {
	data, err := DecodeBase64(encoded)
	if err != nil {
		return nil, err
	}
	return Read(data)
}

// DecodeBase64 decodes a base64 transport blob into raw archive bytes.
func DecodeBase64(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, malformed("decode", "", err)
	}
	return data, nil
}

// EncodeBase64 is the inverse of DecodeBase64.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Rooted maps a source-relative path to its archive path.
func Rooted(relPath string) string {
	return path.Join(Root, strings.TrimLeft(relPath, "/"))
}

// Unroot maps an archive path back to a source-relative path. Anything up to
// and including the first Root segment is dropped, matched case-insensitively.
func Unroot(archivePath string) (string, bool) {
	segments := strings.Split(archivePath, "/")
	for i, seg := range segments {
		if strings.EqualFold(seg, Root) {
			rel := strings.Join(segments[i+1:], "/")
			if rel == "" {
				return "", false
			}
			return rel, true
		}
	}
	return "", false
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return content, nil
}

func cleanPath(p string) (string, error) {
	if p == "" {
		return "", errEmptyPath
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", errUnsafePath
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errUnsafePath
	}
	return clean, nil
}

func fileMode(mode fs.FileMode) fs.FileMode {
	if mode.Perm() == 0 {
		return 0o644
	}
	return mode.Perm()
}
