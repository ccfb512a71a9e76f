package packager

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/forcesync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is read from the root of the source folder.
const IgnoreFileName = ".forceignore"

var defaultIgnoreLines = []string{
	IgnoreFileName,
	// conflict copies, including rotated ones
	"*.conflict.*",
	// temp files
	"*.tmp",
	"*.tmp.*",
	"*.log",
	// IDE/Editor-specific
	".vscode",
	".idea",
	".sfdx",
	// General excludes
	".git",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// untrackedPatterns match items that always travel but never take part in change tracking.
var untrackedPatterns = []string{
	"**/*-meta.xml",
	"**/package.xml",
}

// IsUntracked reports whether a slash separated, source-relative path is a
// sidecar or the manifest. Matching is case-insensitive.
func IsUntracked(relPath string) bool {
	lower := strings.ToLower(relPath)
	for _, pattern := range untrackedPatterns {
		if ok, _ := doublestar.Match(pattern, lower); ok {
			return true
		}
	}
	return false
}

type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

// Load compiles the default rules plus any rules in the source folder's ignore file.
func (l *IgnoreList) Load() {
	ignorePath := filepath.Join(l.baseDir, IgnoreFileName)
	ignoreLines := append([]string(nil), defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		if lines, err := readIgnoreFile(ignorePath); err != nil {
			slog.Warn("failed to read ignore file", "path", ignorePath, "error", err)
		} else {
			ignoreLines = append(ignoreLines, lines...)
			slog.Debug("loaded ignore file", "path", ignorePath, "rules", len(lines))
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore accepts source-relative paths or absolute paths under the source folder.
func (l *IgnoreList) ShouldIgnore(path string) bool {
	if l.ignore == nil {
		l.Load()
	}
	if filepath.IsAbs(path) {
		if !utils.IsWithin(l.baseDir, path) {
			return false
		}
		rel, err := filepath.Rel(l.baseDir, path)
		if err != nil {
			return false
		}
		path = rel
	}
	return l.ignore.MatchesPath(utils.NormPath(path))
}

func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
