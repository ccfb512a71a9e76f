package packager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreList_DefaultAndCustomRules(t *testing.T) {
	baseDir := t.TempDir()
	ignore := NewIgnoreList(baseDir)
	ignore.Load()

	assert.True(t, ignore.ShouldIgnore(".DS_Store"))
	assert.True(t, ignore.ShouldIgnore("classes/Foo.conflict.cls"))
	assert.True(t, ignore.ShouldIgnore("classes/Foo.conflict.20250712234500.cls"))
	assert.True(t, ignore.ShouldIgnore(filepath.Join(baseDir, "debug.log")), "absolute paths are made relative")
	assert.False(t, ignore.ShouldIgnore("classes/Foo.cls"))

	custom := []byte(`
# comment
classes/Scratch*.cls
staticresources/**
`)
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, IgnoreFileName), custom, 0o644))
	ignore.Load()

	assert.True(t, ignore.ShouldIgnore("classes/ScratchPad.cls"))
	assert.True(t, ignore.ShouldIgnore("staticresources/logo.resource"))
	assert.False(t, ignore.ShouldIgnore("classes/Foo.cls"))
	assert.True(t, ignore.ShouldIgnore(IgnoreFileName))
}

func TestIgnoreList_OutsideBaseDirNotIgnored(t *testing.T) {
	ignore := NewIgnoreList(t.TempDir())
	assert.False(t, ignore.ShouldIgnore(filepath.Join(t.TempDir(), "debug.log")))
}

func TestIsUntracked(t *testing.T) {
	assert.True(t, IsUntracked("package.xml"))
	assert.True(t, IsUntracked("Package.XML"))
	assert.True(t, IsUntracked("classes/Foo.cls-meta.xml"))
	assert.True(t, IsUntracked("Foo.cls-meta.xml"))
	assert.False(t, IsUntracked("classes/Foo.cls"))
	assert.False(t, IsUntracked("classes/package.xml.cls"))
}

func TestConflictCopyPath(t *testing.T) {
	assert.Equal(t, filepath.Join("src", "classes", "Foo.conflict.cls"), ConflictCopyPath(filepath.Join("src", "classes", "Foo.cls")))
	assert.True(t, IsConflictCopy("Foo.conflict.cls"))
	assert.True(t, IsConflictCopy("Foo.conflict.20250712234500.cls"))
	assert.True(t, IsConflictCopy("Makefile.conflict"))
	assert.False(t, IsConflictCopy("Foo.cls"))
	assert.False(t, IsConflictCopy("ConflictResolver.cls"))
}

func TestSaveConflictCopy_Rotates(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "Foo.cls")
	now := time.Date(2025, 7, 12, 23, 45, 0, 0, time.UTC)

	staged := filepath.Join(dir, "staged-1")
	require.NoError(t, os.WriteFile(staged, []byte("first"), 0o644))
	copyPath, err := saveConflictCopy(staged, dest, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Foo.conflict.cls"), copyPath)
	assert.NoFileExists(t, staged)

	staged = filepath.Join(dir, "staged-2")
	require.NoError(t, os.WriteFile(staged, []byte("second"), 0o644))
	_, err = saveConflictCopy(staged, dest, now)
	require.NoError(t, err)

	data, err := os.ReadFile(copyPath)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "Foo.conflict.20250712234500.cls"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	assert.NoFileExists(t, dest)
}
