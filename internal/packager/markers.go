package packager

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/openmined/forcesync/internal/utils"
)

// conflictMarker is inserted before the extension of a conflict copy: "Foo.cls" -> "Foo.conflict.cls".
const conflictMarker = ".conflict"

// rotated copies carry a YYYYMMDDHHMMSS stamp: "Foo.conflict.20250712234500.cls"
const rotateTimeFormat = "20060102150405"

var conflictCopyRegex = regexp.MustCompile(regexp.QuoteMeta(conflictMarker) + `(\.\d{14})?(\.|$)`)

// ConflictCopyPath returns where the incoming copy of a conflicted item is kept.
func ConflictCopyPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + conflictMarker + ext
}

// IsConflictCopy reports whether path names a conflict copy, rotated or not.
func IsConflictCopy(path string) bool {
	return conflictCopyRegex.MatchString(filepath.Base(path))
}

// saveConflictCopy moves the staged incoming file next to dest as a conflict copy.
// An older copy is rotated out of the way by appending its timestamp.
func saveConflictCopy(staged, dest string, now time.Time) (string, error) {
	copyPath := ConflictCopyPath(dest)

	if utils.FileExists(copyPath) {
		rotated := rotatedPath(copyPath, now)
		if err := utils.MoveFile(copyPath, rotated); err != nil {
			return "", fmt.Errorf("rotate conflict copy %s: %w", copyPath, err)
		}
		slog.Debug("rotated conflict copy", "from", copyPath, "to", rotated)
	}

	if err := utils.MoveFile(staged, copyPath); err != nil {
		return "", fmt.Errorf("save conflict copy %s: %w", copyPath, err)
	}
	return copyPath, nil
}

func rotatedPath(path string, t time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s.%s%s", base, t.Format(rotateTimeFormat), ext)
}
